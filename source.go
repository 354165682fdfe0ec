package main

import (
	"context"
	"encoding/json"
	"fmt"
)

// ResamplingFilter names a GDAL-style resampling algorithm used when
// reprojecting a source raster into a destination grid.
type ResamplingFilter int

const (
	ResampleLanczos ResamplingFilter = iota
	ResampleCubic
	ResampleBilinear
)

// Source is a dataset plugin: it knows its tile index, URL layout,
// archive layout, coordinate reference system, native resolution, and
// overlap policy. Grounded on original_source/joerd/source/*.py.
type Source interface {
	Name() string

	// GetIndex idempotently ensures a local index is present and fresh.
	GetIndex(ctx context.Context) error

	// DownloadsFor returns the SourceTiles required to cover tile's
	// lat/lon bbox buffered by this source's safety margin, or nil if
	// tile's resolution is too coarse to benefit from this source
	// (resolution-aware pruning).
	DownloadsFor(tile OutputTile) []SourceTile

	// VrtsFor returns the ordered list of VRT groups (§3) covering tile.
	VrtsFor(tile OutputTile) [][]SourceTile

	FilterType(srcRes, dstRes float64) ResamplingFilter
	SRS() string

	Rehydrate(data json.RawMessage) (SourceTile, error)

	ExistingFiles(ctx context.Context) ([]string, error)
}

// SourceFactory constructs a Source from plugin-specific config options.
type SourceFactory func(opts map[string]any) (Source, error)

var sourceRegistry = map[string]SourceFactory{}

func RegisterSource(name string, f SourceFactory) {
	sourceRegistry[name] = f
}

func NewSource(opts map[string]any) (Source, error) {
	t, _ := opts["type"].(string)
	f, ok := sourceRegistry[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown source type %q", ErrConfig, t)
	}
	return f(opts)
}

// optString / optFloat / optInt pull typed values out of a loosely typed
// config map, matching the permissiveness of the original's dict-based
// plugin options (a YAML document decoded into map[string]any).
func optString(opts map[string]any, key, def string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return def
}

func optFloat(opts map[string]any, key string, def float64) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func optInt(opts map[string]any, key string, def int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}
