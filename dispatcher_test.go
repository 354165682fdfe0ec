package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawTile(t *testing.T, name string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(map[string]string{"type": "terrarium", "name": name})
	require.NoError(t, err)
	return b
}

func drainJobs(t *testing.T, queue *DirectQueue) []Job {
	t.Helper()
	queue.Close()
	var jobs []Job
	for msg := range queue.messages {
		var raws []json.RawMessage
		require.NoError(t, json.Unmarshal(msg.Body(), &raws))
		for _, raw := range raws {
			job, err := DecodeJob(raw)
			require.NoError(t, err)
			jobs = append(jobs, job)
		}
	}
	return jobs
}

func TestDispatcherGroupsRendersBySharedSources(t *testing.T) {
	ctx := context.Background()
	queue := NewDirectQueue(16)
	d := NewDispatcher(queue, DefaultMaxBytes, DefaultMaxBatchLen)

	sources := []JobSourceGroup{{Source: "srtm", Vrts: [][]string{{"srtm/a.tif"}}}}
	require.NoError(t, d.EnqueueRender(ctx, rawTile(t, "a"), sources))
	require.NoError(t, d.EnqueueRender(ctx, rawTile(t, "b"), sources))
	require.NoError(t, d.Flush(ctx))

	jobs := drainJobs(t, queue)
	require.Len(t, jobs, 1, "two renders sharing a sources-set should collapse into one renderbatch job")
	assert.Equal(t, "renderbatch", jobs[0].Kind)
	assert.Len(t, jobs[0].Batch, 2)
}

func TestDispatcherKeepsDifferentSourceSetsSeparate(t *testing.T) {
	ctx := context.Background()
	queue := NewDirectQueue(16)
	d := NewDispatcher(queue, DefaultMaxBytes, DefaultMaxBatchLen)

	srtmOnly := []JobSourceGroup{{Source: "srtm", Vrts: [][]string{{"srtm/a.tif"}}}}
	etopoOnly := []JobSourceGroup{{Source: "etopo1", Vrts: [][]string{{"etopo1/a.tif"}}}}
	require.NoError(t, d.EnqueueRender(ctx, rawTile(t, "a"), srtmOnly))
	require.NoError(t, d.EnqueueRender(ctx, rawTile(t, "b"), etopoOnly))
	require.NoError(t, d.Flush(ctx))

	jobs := drainJobs(t, queue)
	require.Len(t, jobs, 2, "renders with different sources-sets must not be grouped together")
	for _, job := range jobs {
		assert.Equal(t, "renderbatch", job.Kind)
		assert.Len(t, job.Batch, 1)
	}
}

func TestDispatcherCanonicalKeyIgnoresSourceOrder(t *testing.T) {
	a := []JobSourceGroup{
		{Source: "srtm", Vrts: [][]string{{"srtm/a.tif"}}},
		{Source: "etopo1", Vrts: [][]string{{"etopo1/a.tif"}}},
	}
	b := []JobSourceGroup{
		{Source: "etopo1", Vrts: [][]string{{"etopo1/a.tif"}}},
		{Source: "srtm", Vrts: [][]string{{"srtm/a.tif"}}},
	}

	keyA, err := canonicalSourcesKey(a)
	require.NoError(t, err)
	keyB, err := canonicalSourcesKey(b)
	require.NoError(t, err)
	assert.Equal(t, string(keyA), string(keyB))
}

func TestDispatcherRejectsOversizedTile(t *testing.T) {
	ctx := context.Background()
	queue := NewDirectQueue(4)
	d := NewDispatcher(queue, 32, DefaultMaxBatchLen)

	sources := []JobSourceGroup{{Source: "srtm"}}
	err := d.EnqueueRender(ctx, rawTile(t, "way-too-long-to-fit-in-32-bytes"), sources)
	require.Error(t, err)
}

func TestDispatcherFlushesGroupWhenOverflowing(t *testing.T) {
	ctx := context.Background()
	queue := NewDirectQueue(16)
	// Small enough that the second tile can't share the first's group.
	d := NewDispatcher(queue, 120, DefaultMaxBatchLen)

	sources := []JobSourceGroup{{Source: "srtm", Vrts: [][]string{{"srtm/a.tif"}}}}
	require.NoError(t, d.EnqueueRender(ctx, rawTile(t, "a"), sources))
	require.NoError(t, d.EnqueueRender(ctx, rawTile(t, "b"), sources))
	require.NoError(t, d.Flush(ctx))

	jobs := drainJobs(t, queue)
	assert.GreaterOrEqual(t, len(jobs), 1)
	total := 0
	for _, job := range jobs {
		total += len(job.Batch)
	}
	assert.Equal(t, 2, total, "no tile should be lost across a size-triggered flush")
}
