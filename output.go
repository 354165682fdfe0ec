package main

import (
	"context"
	"encoding/json"
	"fmt"
)

// ExpandedRegion is one concrete (bbox, resolution) extent that download
// planning intersects against source indexes. A region's configured
// bbox/zoom-range is translated into one or more of these per output,
// since different products cover a zoom range at different native pixel
// resolutions (e.g. Mercator zoom vs. Skadi's fixed 1-degree grid).
type ExpandedRegion struct {
	BBox       BoundingBox
	Resolution float64 // degrees per pixel, for resolution-aware source pruning
}

// Output is a product plugin: it knows how to enumerate, render, and
// encode tiles for a region. Grounded on original_source/joerd/output/*.py.
type Output interface {
	// ProductKind names this output ("terrarium", "normal", "skadi"),
	// used as the job's "type" discriminator and the output path prefix.
	ProductKind() string

	// GenerateTiles enumerates, for every configured region, all tiles
	// at every zoom in the region's zoom range, deduplicated.
	GenerateTiles(ctx context.Context, regions []Region) ([]OutputTile, error)

	// ExpandTile translates a region's bbox/zoom-range into concrete
	// spatial+resolution extents that sources can intersect against.
	ExpandTile(bbox BoundingBox, zoomRange ZoomRange) []ExpandedRegion

	Rehydrate(data json.RawMessage) (OutputTile, error)
}

// OutputFactory constructs an Output from plugin-specific config options.
type OutputFactory func(opts map[string]any) (Output, error)

var outputRegistry = map[string]OutputFactory{}

func RegisterOutput(name string, f OutputFactory) {
	outputRegistry[name] = f
}

func NewOutput(opts map[string]any) (Output, error) {
	t, _ := opts["type"].(string)
	f, ok := outputRegistry[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown output type %q", ErrConfig, t)
	}
	return f(opts)
}

// baseTile holds the fields and behavior shared by every OutputTile
// implementation: the attached source list and its accessors. Embedded
// rather than duplicated in MercatorTile and SkadiTile.
type baseTile struct {
	sources []LocalizedSource
}

func (t *baseTile) SetSources(sources []LocalizedSource) { t.sources = sources }
func (t *baseTile) Sources() []LocalizedSource            { return t.sources }
