package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

func init() {
	RegisterSource("etopo1", func(opts map[string]any) (Source, error) {
		return NewETOPO1(opts), nil
	})
}

// ETOPO1 is the single global 1-arc-minute bathymetry/topography raster.
// There is no tile index: it contributes exactly one download regardless
// of tile, and is not pruned by resolution. Grounded on
// original_source/joerd/source/etopo1.py.
type ETOPO1 struct {
	baseDir    string
	url        string
	downloads  DownloadOptions
	targetName string
}

func NewETOPO1(opts map[string]any) *ETOPO1 {
	return &ETOPO1{
		baseDir: optString(opts, "base_dir", "etopo1"),
		url:     optString(opts, "url", ""),
		downloads: DownloadOptions{
			Tries:   optInt(opts, "tries", 10),
			Timeout: optInt(opts, "timeout", 60),
		},
		targetName: "ETOPO1_Bed_g_geotiff.tif",
	}
}

func (e *ETOPO1) Name() string { return "etopo1" }
func (e *ETOPO1) SRS() string  { return "WGS84" }

func (e *ETOPO1) FilterType(srcRes, dstRes float64) ResamplingFilter {
	return ResampleLanczos
}

func (e *ETOPO1) GetIndex(ctx context.Context) error {
	return os.MkdirAll(e.baseDir, 0o755)
}

func (e *ETOPO1) DownloadsFor(tile OutputTile) []SourceTile {
	return []SourceTile{&ETOPO1Tile{parent: e}}
}

func (e *ETOPO1) VrtsFor(tile OutputTile) [][]SourceTile {
	d := e.DownloadsFor(tile)
	if len(d) == 0 {
		return nil
	}
	return [][]SourceTile{d}
}

func (e *ETOPO1) Rehydrate(data json.RawMessage) (SourceTile, error) {
	return &ETOPO1Tile{parent: e}, nil
}

func (e *ETOPO1) ExistingFiles(ctx context.Context) ([]string, error) {
	p := filepath.Join(e.baseDir, e.targetName)
	if _, err := os.Stat(p); err != nil {
		return nil, nil
	}
	return []string{e.targetName}, nil
}

// ETOPO1Tile is the one and only tile this source ever produces.
type ETOPO1Tile struct {
	parent *ETOPO1
}

func (t *ETOPO1Tile) IdentityKey() string { return "etopo1:global" }
func (t *ETOPO1Tile) SourceName() string  { return "etopo1" }
func (t *ETOPO1Tile) BBox() BoundingBox   { return NewBoundingBox(-180, -90, 180, 90) }
func (t *ETOPO1Tile) URLs() []string      { return []string{t.parent.url} }

func (t *ETOPO1Tile) Verifier() Verifier {
	return func(f *os.File) (bool, error) { return isZip(f) }
}

func (t *ETOPO1Tile) Options() DownloadOptions { return t.parent.downloads }

func (t *ETOPO1Tile) OutputFile() string {
	return filepath.Join(t.parent.baseDir, t.parent.targetName)
}

func (t *ETOPO1Tile) Unpack(ctx context.Context, store Store, tmps []*os.File) error {
	if len(tmps) != 1 {
		return errUnpackCount("etopo1", 1, len(tmps))
	}
	scratch, err := os.MkdirTemp("", "joerd-etopo1-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	extracted, err := extractZipMember(tmps[0].Name(), t.parent.targetName, scratch)
	if err != nil {
		return err
	}
	return writeLocalThenStore(extracted, t.OutputFile(), store)
}

func (t *ETOPO1Tile) FreezeDry() json.RawMessage {
	return json.RawMessage(`{"type":"etopo1"}`)
}
