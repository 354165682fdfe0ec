package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
)

// DefaultMaxBytes is the per-message hard size limit: 256 KiB minus a
// small safety margin for JSON wrapping overhead.
const DefaultMaxBytes = 256*1024 - 1024

// DefaultMaxBatchLen is the per-API-call hard count limit, matching
// SQS's native SendMessageBatch cap.
const DefaultMaxBatchLen = 10

// Dispatcher groups render jobs by their canonicalized sources-set so
// tiles sharing the same VRT inputs travel in one renderbatch message,
// improving worker-side file cache reuse; download jobs bypass grouping
// entirely. Grounded on original_source/joerd/dispatcher.py.
type Dispatcher struct {
	batch       Batch
	maxBytes    int
	maxBatchLen int
	logger      *slog.Logger

	groups   map[string]*renderGroup
	jobCount int
}

type renderGroup struct {
	sources    []JobSourceGroup
	sourcesRaw []byte
	data       []json.RawMessage
	size       int
}

// NewDispatcher builds a Dispatcher over queue's batching with the given
// per-message byte and per-call count budgets.
func NewDispatcher(queue Queue, maxBytes, maxBatchLen int) *Dispatcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxBatchLen <= 0 {
		maxBatchLen = DefaultMaxBatchLen
	}
	return &Dispatcher{
		batch:       queue.StartBatch(maxBatchLen),
		maxBytes:    maxBytes,
		maxBatchLen: maxBatchLen,
		logger:      slog.Default(),
		groups:      make(map[string]*renderGroup),
	}
}

// canonicalSourcesKey produces a stable, deeply-ordered JSON encoding of
// a render job's sources field, used both as the grouping map key and as
// the literal "sources" payload of the eventual renderbatch message.
// Grounded on DESIGN NOTES' "Frozen/thawed nested values as map keys":
// sorting by source name makes the key independent of the order the
// planner happened to iterate sources in, without requiring a generic
// recursive freeze of arbitrary nested maps (every JobSourceGroup here
// is already a fixed, fully-typed shape).
func canonicalSourcesKey(sources []JobSourceGroup) ([]byte, error) {
	sorted := make([]JobSourceGroup, len(sources))
	copy(sorted, sources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Source < sorted[j].Source })
	return json.Marshal(sorted)
}

// EnqueueDownload sends a download job as its own message immediately,
// since downloads are long-running and gain nothing from grouping.
func (d *Dispatcher) EnqueueDownload(ctx context.Context, data json.RawMessage) error {
	d.tick()
	return d.batch.Append(ctx, Job{Kind: "download", Data: data})
}

// EnqueueRender accumulates a render job's frozen tile into the batch for
// its sources-set, flushing the current batch first if the addition
// would overflow MaxBytes. A tile whose encoding alone exceeds MaxBytes
// fails immediately rather than being silently dropped or truncated.
func (d *Dispatcher) EnqueueRender(ctx context.Context, data json.RawMessage, sources []JobSourceGroup) error {
	d.tick()

	key, err := canonicalSourcesKey(sources)
	if err != nil {
		return fmt.Errorf("canonicalizing sources: %w", err)
	}
	g, ok := d.groups[string(key)]
	if !ok {
		g = &renderGroup{sources: sourcesFromCanonical(sources), sourcesRaw: key, size: len(key) + len(`{"job":"renderbatch","sources":,"data":[]}`)}
		d.groups[string(key)] = g
	}

	itemSize := len(data) + 1 // +1 for the separating comma
	if itemSize > d.maxBytes {
		return fmt.Errorf("%w: single render tile (%d bytes) exceeds MaxBytes (%d)", ErrQueue, itemSize, d.maxBytes)
	}

	if len(g.data) > 0 && g.size+itemSize > d.maxBytes {
		if err := d.flushGroup(ctx, string(key), g); err != nil {
			return err
		}
		g = &renderGroup{sources: sourcesFromCanonical(sources), sourcesRaw: key, size: len(key) + len(`{"job":"renderbatch","sources":,"data":[]}`)}
		d.groups[string(key)] = g
	}

	g.data = append(g.data, data)
	g.size += itemSize
	return nil
}

func sourcesFromCanonical(sources []JobSourceGroup) []JobSourceGroup {
	sorted := make([]JobSourceGroup, len(sources))
	copy(sorted, sources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Source < sorted[j].Source })
	return sorted
}

func (d *Dispatcher) flushGroup(ctx context.Context, key string, g *renderGroup) error {
	if len(g.data) == 0 {
		return nil
	}
	job := Job{Kind: "renderbatch", Sources: g.sources, Batch: g.data}
	if err := d.batch.Append(ctx, job); err != nil {
		return err
	}
	delete(d.groups, key)
	return nil
}

// Flush emits every remaining per-key batch as a single message each,
// then flushes the underlying transport batch.
func (d *Dispatcher) Flush(ctx context.Context) error {
	for key, g := range d.groups {
		if err := d.flushGroup(ctx, key, g); err != nil {
			return err
		}
	}
	return d.batch.Flush(ctx)
}

func (d *Dispatcher) tick() {
	d.jobCount++
	if d.jobCount%1000 == 0 {
		d.logger.Info("dispatcher progress", "jobs", d.jobCount)
	}
}
