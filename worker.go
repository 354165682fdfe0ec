package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// typeDiscriminator pulls the "type" field common to every frozen tile
// payload, used to resolve which source or output plugin a job belongs
// to before attempting a full Rehydrate.
type typeDiscriminator struct {
	Type string `json:"type"`
}

// Worker pulls messages from a Queue, parses them as jobs, and executes
// download or render jobs against the configured sources, outputs, and
// stores. Grounded on original_source/joerd/server.py.
type Worker struct {
	Sources      map[string]Source
	Outputs      map[string]Output
	SourceStore  Store
	OutputStore  Store
	Downloader   *Downloader
	Logger       *slog.Logger
}

// NewWorker builds a Worker from already-constructed plugin instances.
func NewWorker(sources map[string]Source, outputs map[string]Output, sourceStore, outputStore Store) *Worker {
	return &Worker{
		Sources:     sources,
		Outputs:     outputs,
		SourceStore: sourceStore,
		OutputStore: outputStore,
		Downloader:  NewDownloader(),
		Logger:      slog.Default(),
	}
}

// Run consumes queue until ctx is cancelled, acking each message whose
// every job succeeded and leaving failed messages undeleted for the
// queue's own redelivery.
func (w *Worker) Run(ctx context.Context, queue Queue) error {
	messages, err := queue.ReceiveMessages(ctx)
	if err != nil {
		return fmt.Errorf("receiving messages: %w", err)
	}
	// A received message is processed on a context that ignores ctx's
	// cancellation, so a shutdown lets the in-flight message finish.
	jobCtx := context.WithoutCancel(ctx)
	for msg := range messages {
		if err := w.handleMessage(jobCtx, msg); err != nil {
			w.Logger.Warn("message processing failed, leaving for redelivery", "error", err)
			continue
		}
		if err := msg.Delete(jobCtx); err != nil {
			w.Logger.Warn("failed to delete processed message", "error", err)
		}
	}
	return ctx.Err()
}

func (w *Worker) handleMessage(ctx context.Context, msg Message) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(msg.Body(), &raws); err != nil {
		return fmt.Errorf("decoding message body: %w", err)
	}
	for _, raw := range raws {
		job, err := DecodeJob(raw)
		if err != nil {
			return fmt.Errorf("decoding job: %w", err)
		}
		if err := w.handleJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) handleJob(ctx context.Context, job Job) error {
	switch job.Kind {
	case "download":
		return w.handleDownload(ctx, job.Data)
	case "render":
		return w.handleRender(ctx, job.Data, job.Sources)
	case "renderbatch":
		for _, data := range job.Batch {
			if err := w.handleRender(ctx, data, job.Sources); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (w *Worker) handleDownload(ctx context.Context, data json.RawMessage) error {
	var disc typeDiscriminator
	if err := json.Unmarshal(data, &disc); err != nil {
		return fmt.Errorf("decoding source-tile type: %w", err)
	}
	source, ok := w.Sources[disc.Type]
	if !ok {
		return fmt.Errorf("%w: unknown source %q", ErrConfig, disc.Type)
	}
	tile, err := source.Rehydrate(data)
	if err != nil {
		return fmt.Errorf("rehydrating source tile: %w", err)
	}

	opts := tile.Options()
	if opts.Verifier == nil {
		opts.Verifier = tile.Verifier()
	}
	handles, err := w.Downloader.GetAll(ctx, tile.URLs(), opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer func() {
		for _, h := range handles {
			h.Close()
		}
	}()

	files := make([]*os.File, len(handles))
	for i, h := range handles {
		files[i] = h.File
	}

	if err := tile.Unpack(ctx, w.SourceStore, files); err != nil {
		return fmt.Errorf("%w: %v", ErrUnpackFailed, err)
	}
	if !w.SourceStore.Exists(ctx, tile.OutputFile()) {
		return fmt.Errorf("%w: %s missing after unpack", ErrUnpackFailed, tile.OutputFile())
	}
	return nil
}

func (w *Worker) handleRender(ctx context.Context, data json.RawMessage, sourceGroups []JobSourceGroup) error {
	var disc typeDiscriminator
	if err := json.Unmarshal(data, &disc); err != nil {
		return fmt.Errorf("decoding output-tile type: %w", err)
	}
	output, ok := w.Outputs[disc.Type]
	if !ok {
		return fmt.Errorf("%w: unknown output %q", ErrConfig, disc.Type)
	}
	tile, err := output.Rehydrate(data)
	if err != nil {
		return fmt.Errorf("rehydrating output tile: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "joerd-render-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	localized, err := w.localizeSources(ctx, tmpDir, sourceGroups)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingInput, err)
	}
	tile.SetSources(localized)

	if err := tile.Render(ctx, tmpDir); err != nil {
		return fmt.Errorf("rendering %s: %w", tile.TileName(), err)
	}
	if err := w.OutputStore.UploadDir(ctx, tmpDir); err != nil {
		return fmt.Errorf("uploading rendered tile: %w", err)
	}
	return nil
}

// localizeSources fetches every VRT file a render job references from
// the source store into tmpDir, preserving group structure, and wraps
// each named source with its localized paths (the data-carrying
// equivalent of the original's attribute-forwarding MockSource: see
// DESIGN NOTES "MockSource via attribute forwarding").
func (w *Worker) localizeSources(ctx context.Context, tmpDir string, groups []JobSourceGroup) ([]LocalizedSource, error) {
	out := make([]LocalizedSource, 0, len(groups))
	for _, jg := range groups {
		source, ok := w.Sources[jg.Source]
		if !ok {
			return nil, fmt.Errorf("unknown source %q in render job", jg.Source)
		}

		localGroups := make([][]string, len(jg.Vrts))
		g, gctx := errgroup.WithContext(ctx)
		for gi, group := range jg.Vrts {
			gi, group := gi, group
			localPaths := make([]string, len(group))
			localGroups[gi] = localPaths
			for pi, storePath := range group {
				pi, storePath := pi, storePath
				g.Go(func() error {
					dest := filepath.Join(tmpDir, "src", jg.Source, fmt.Sprintf("%d-%d-%s", gi, pi, filepath.Base(storePath)))
					if err := w.SourceStore.Get(gctx, storePath, dest); err != nil {
						return fmt.Errorf("fetching %s: %w", storePath, err)
					}
					localPaths[pi] = dest
					return nil
				})
			}
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		out = append(out, LocalizedSource{Source: source, VRTGroups: localGroups})
	}
	return out, nil
}
