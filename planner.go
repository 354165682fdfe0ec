package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
)

// expandedTile adapts an ExpandedRegion into the minimal slice of the
// OutputTile interface that Source.DownloadsFor actually reads
// (LatLonBBox, MaxResolution); its other methods are never called
// during download planning and exist only to satisfy the interface.
type expandedTile struct {
	baseTile
	bbox BoundingBox
	res  float64
}

func (t *expandedTile) ProductKind() string                { return "" }
func (t *expandedTile) TileName() string                   { return "" }
func (t *expandedTile) LatLonBBox() BoundingBox             { return t.bbox }
func (t *expandedTile) MaxResolution() float64              { return t.res }
func (t *expandedTile) Render(context.Context, string) error { return fmt.Errorf("not renderable") }
func (t *expandedTile) FreezeDry() json.RawMessage          { return nil }

// Planner expands configured regions into download and render jobs and
// feeds them to a Dispatcher. Grounded on original_source/joerd/command.py's
// joerd_enqueue_downloads / joerd_enqueuer.
type Planner struct {
	Sources []Source
	Outputs []Output
	Store   Store

	// SkipExisting suppresses download jobs whose output already
	// exists in the source store, set from the SKIP_EXISTING
	// environment variable per spec.md §6.
	SkipExisting bool
}

func NewPlanner(sources []Source, outputs []Output, store Store) *Planner {
	return &Planner{
		Sources:      sources,
		Outputs:      outputs,
		Store:        store,
		SkipExisting: os.Getenv("SKIP_EXISTING") != "",
	}
}

// PlanDownloads expands every region against every output's ExpandTile,
// collects the deduplicated set of SourceTiles each source needs, and
// emits one download job per tile via dispatcher.EnqueueDownload.
func (p *Planner) PlanDownloads(ctx context.Context, regions []Region, dispatcher *Dispatcher) error {
	seen := make(map[string]SourceTile)

	for _, region := range regions {
		for _, output := range p.Outputs {
			for _, expanded := range output.ExpandTile(region.BBox, region.ZoomRange) {
				tile := &expandedTile{bbox: expanded.BBox, res: expanded.Resolution}
				for _, source := range p.Sources {
					for _, t := range source.DownloadsFor(tile) {
						seen[t.SourceName()+":"+t.IdentityKey()] = t
					}
				}
			}
		}
	}

	bar := progressbar.Default(int64(len(seen)), "planning downloads")
	defer bar.Close()

	for _, tile := range seen {
		bar.Add(1)
		if p.SkipExisting && p.Store.Exists(ctx, tile.OutputFile()) {
			continue
		}
		if err := dispatcher.EnqueueDownload(ctx, tile.FreezeDry()); err != nil {
			return fmt.Errorf("enqueuing download for %s: %w", tile.IdentityKey(), err)
		}
	}
	return dispatcher.Flush(ctx)
}

// PlanRenders enumerates every output's GenerateTiles and, for each
// tile, computes every source's VrtsFor, flattening groups into
// source-store paths. A tile with zero contributing sources is a
// planner error (spec.md §4.8), since a render job with no data to
// composite can never succeed.
func (p *Planner) PlanRenders(ctx context.Context, regions []Region, dispatcher *Dispatcher) error {
	var total int
	tilesByOutput := make([][]OutputTile, len(p.Outputs))
	for i, output := range p.Outputs {
		tiles, err := output.GenerateTiles(ctx, regions)
		if err != nil {
			return fmt.Errorf("generating tiles for %s: %w", output.ProductKind(), err)
		}
		tilesByOutput[i] = tiles
		total += len(tiles)
	}

	bar := progressbar.Default(int64(total), "planning renders")
	defer bar.Close()

	for _, tiles := range tilesByOutput {
		for _, tile := range tiles {
			bar.Add(1)
			var sourceGroups []JobSourceGroup
			for _, source := range p.Sources {
				groups := source.VrtsFor(tile)
				if len(groups) == 0 {
					continue
				}
				var vrts [][]string
				for _, group := range groups {
					paths := make([]string, 0, len(group))
					for _, t := range group {
						paths = append(paths, t.OutputFile())
					}
					vrts = append(vrts, paths)
				}
				sourceGroups = append(sourceGroups, JobSourceGroup{Source: source.Name(), Vrts: vrts})
			}
			if len(sourceGroups) == 0 {
				return fmt.Errorf("tile %s has no contributing sources", tile.TileName())
			}
			if err := dispatcher.EnqueueRender(ctx, tile.FreezeDry(), sourceGroups); err != nil {
				return fmt.Errorf("enqueuing render for %s: %w", tile.TileName(), err)
			}
		}
	}
	return dispatcher.Flush(ctx)
}
