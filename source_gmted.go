package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func init() {
	RegisterSource("gmted", func(opts map[string]any) (Source, error) {
		return NewGMTED(opts), nil
	})
}

// GMTED is a static worldwide grid of 30x20 degree tiles at 7.5 (or, in
// the southernmost row at y = -90, 30) arc-second resolution. Grounded on
// original_source/joerd/source/gmted.py.
type GMTED struct {
	baseDir   string
	url       string
	xs        []int
	ys        []int
	downloads DownloadOptions
}

func NewGMTED(opts map[string]any) *GMTED {
	return &GMTED{
		baseDir:   optString(opts, "base_dir", "gmted"),
		url:       optString(opts, "url", ""),
		xs:        optIntSlice(opts, "xs"),
		ys:        optIntSlice(opts, "ys"),
		downloads: DownloadOptions{
			Tries:   optInt(opts, "tries", 10),
			Timeout: optInt(opts, "timeout", 60),
		},
	}
}

func (g *GMTED) Name() string { return "gmted" }
func (g *GMTED) SRS() string  { return "WGS84" }

// FilterType uses bilinear rather than Lanczos: Lanczos exhibits ringing
// near nodata edges in this dataset.
func (g *GMTED) FilterType(srcRes, dstRes float64) ResamplingFilter {
	if srcRes > dstRes {
		return ResampleBilinear
	}
	return ResampleCubic
}

func (g *GMTED) GetIndex(ctx context.Context) error {
	return os.MkdirAll(g.baseDir, 0o755)
}

const gmtedNativeResolution = 7.5 / 3600.0
const gmtedPruneFactor = 20.0
const gmtedBuffer = 0.1

func (g *GMTED) DownloadsFor(tile OutputTile) []SourceTile {
	if tile.MaxResolution() > gmtedPruneFactor*gmtedNativeResolution {
		return nil
	}
	bbox := tile.LatLonBBox().Buffer(gmtedBuffer)

	var out []SourceTile
	for _, y := range g.ys {
		for _, x := range g.xs {
			cellBBox := NewBoundingBox(float64(x), float64(y), float64(x)+30, float64(y)+20)
			if bbox.Intersects(cellBBox) {
				out = append(out, &GMTEDTile{parent: g, x: x, y: y})
			}
		}
	}
	return out
}

func (g *GMTED) VrtsFor(tile OutputTile) [][]SourceTile {
	d := g.DownloadsFor(tile)
	if len(d) == 0 {
		return nil
	}
	return [][]SourceTile{d}
}

func (g *GMTED) Rehydrate(data json.RawMessage) (SourceTile, error) {
	var w struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &GMTEDTile{parent: g, x: w.X, y: w.Y}, nil
}

func (g *GMTED) ExistingFiles(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.Walk(g.baseDir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if filepath.Ext(p) == ".tif" {
			rel, _ := filepath.Rel(g.baseDir, p)
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}

// GMTEDTile is one 30x20 degree cell, named after its southwest corner.
type GMTEDTile struct {
	parent *GMTED
	x, y   int
}

func (t *GMTEDTile) res() string {
	if t.y == -90 {
		return "300"
	}
	return "075"
}

func (t *GMTEDTile) fileName() string {
	xName := fmt.Sprintf("%03d%s", absInt(t.x), ewLetter(t.x))
	yName := fmt.Sprintf("%02d%s", absInt(t.y), nsLetter(t.y))
	return fmt.Sprintf("%s%s_20101117_gmted_mea%s.tif", yName, xName, t.res())
}

func (t *GMTEDTile) IdentityKey() string { return fmt.Sprintf("gmted:%d,%d", t.x, t.y) }
func (t *GMTEDTile) SourceName() string  { return "gmted" }

func (t *GMTEDTile) BBox() BoundingBox {
	return NewBoundingBox(float64(t.x), float64(t.y), float64(t.x)+30, float64(t.y)+20)
}

func (t *GMTEDTile) URLs() []string {
	dir := fmt.Sprintf("%s%03d", ewLetter(t.x), absInt(t.x))
	return []string{fmt.Sprintf("%s/%sdarcsec/mea/%s/%s", t.parent.url, t.res(), dir, t.fileName())}
}

func (t *GMTEDTile) Verifier() Verifier {
	return func(f *os.File) (bool, error) { return isGdal(f) }
}

func (t *GMTEDTile) Options() DownloadOptions { return t.parent.downloads }

func (t *GMTEDTile) OutputFile() string {
	return filepath.Join(t.parent.baseDir, t.fileName())
}

func (t *GMTEDTile) Unpack(ctx context.Context, store Store, tmps []*os.File) error {
	if len(tmps) != 1 {
		return errUnpackCount("gmted", 1, len(tmps))
	}
	scratch, err := os.MkdirTemp("", "joerd-gmted-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	masked := filepath.Join(scratch, "masked.tif")
	if err := maskNegative(tmps[0].Name(), masked); err != nil {
		return fmt.Errorf("%w: %v", ErrUnpackFailed, err)
	}
	return writeLocalThenStore(masked, t.OutputFile(), store)
}

func (t *GMTEDTile) FreezeDry() json.RawMessage {
	b, _ := json.Marshal(struct {
		Type string `json:"type"`
		X    int    `json:"x"`
		Y    int    `json:"y"`
	}{Type: "gmted", X: t.x, Y: t.y})
	return b
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func ewLetter(x int) string {
	if x >= 0 {
		return "E"
	}
	return "W"
}

func nsLetter(y int) string {
	if y >= 0 {
		return "N"
	}
	return "S"
}

func optIntSlice(opts map[string]any, key string) []int {
	raw, ok := opts[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case int:
			out = append(out, n)
		case float64:
			out = append(out, int(n))
		}
	}
	return out
}
