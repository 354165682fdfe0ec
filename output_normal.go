package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
)

func init() {
	RegisterOutput("normal", func(opts map[string]any) (Output, error) {
		return NewNormalOutput(opts), nil
	})
}

// normalBleedPixels is the padding margin composited around each tile so
// the gradient computed at its edges has real neighbor data rather than
// an artificial discontinuity at the tile boundary.
const normalBleedPixels = 10

// NormalOutput produces 256x256 Web-Mercator RGBA tiles whose RGB
// channels encode a surface-normal unit vector and whose alpha channel
// encodes a hypsometric tint index. Grounded on
// original_source/joerd/output/normal.py.
type NormalOutput struct{}

func NewNormalOutput(opts map[string]any) *NormalOutput { return &NormalOutput{} }

func (o *NormalOutput) ProductKind() string { return "normal" }

func (o *NormalOutput) GenerateTiles(ctx context.Context, regions []Region) ([]OutputTile, error) {
	return generateMercatorTiles(regions, "normal", o)
}

func (o *NormalOutput) ExpandTile(bbox BoundingBox, zoomRange ZoomRange) []ExpandedRegion {
	return expandMercatorRegion(bbox, zoomRange)
}

func (o *NormalOutput) Rehydrate(data json.RawMessage) (OutputTile, error) {
	var w mercatorTileWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &MercatorTile{kind: "normal", z: w.Z, x: w.X, y: w.Y, output: o}, nil
}

// hypsometricTable is a small, fixed, non-linear height->alpha lookup
// table, concentrated in the 0-3000m band since that's where most
// population (and therefore most visual interest) lives, and inverted so
// low/sea-level heights get high alpha. Grounded on
// original_source/joerd/output/normal.py's hypsometric tint table.
var hypsometricTable = []struct {
	height float64
	alpha  float64
}{
	{-11000, 255},
	{0, 255},
	{200, 230},
	{500, 200},
	{1000, 160},
	{1500, 120},
	{2000, 90},
	{3000, 60},
	{5000, 30},
	{8850, 0},
}

func hypsometricAlpha(height float64) byte {
	t := hypsometricTable
	if height <= t[0].height {
		return byte(t[0].alpha)
	}
	if height >= t[len(t)-1].height {
		return byte(t[len(t)-1].alpha)
	}
	for i := 1; i < len(t); i++ {
		if height <= t[i].height {
			lo, hi := t[i-1], t[i]
			frac := (height - lo.height) / (hi.height - lo.height)
			return byte(math.Round(lo.alpha + frac*(hi.alpha-lo.alpha)))
		}
	}
	return 0
}

func (o *NormalOutput) render(ctx context.Context, z, x, y int, tile OutputTile, tmpDir string) error {
	buf, width, height, err := renderMercatorFloat(ctx, z, x, y, tile, normalBleedPixels)
	if err != nil {
		return err
	}

	merc := Mercator{}.MercatorBBox(z, x, y)
	pixelSize := merc.Width() / 256
	_, lat := mercUnproject(0, 0.5*(merc.MinY+merc.MaxY))
	groundRes := pixelSize * math.Cos(lat*math.Pi/180)

	out := 256
	rBuf := make([]byte, out*out)
	gBuf := make([]byte, out*out)
	bBuf := make([]byte, out*out)
	aBuf := make([]byte, out*out)

	at := func(px, py int) float64 {
		v := buf[py*width+px]
		if v == float32(FltNodata) {
			return 0
		}
		return float64(v)
	}

	for oy := 0; oy < out; oy++ {
		for ox := 0; ox < out; ox++ {
			px := ox + normalBleedPixels
			py := oy + normalBleedPixels

			dzdx := (at(px+1, py) - at(px-1, py)) / (2 * groundRes)
			dzdy := (at(px, py+1) - at(px, py-1)) / (2 * groundRes)

			nx, ny, nz := -dzdx, -dzdy, 1.0
			norm := math.Sqrt(nx*nx + ny*ny + nz*nz)
			nx, ny, nz = nx/norm, ny/norm, nz/norm

			i := oy*out + ox
			rBuf[i] = byte(math.Round((nx*0.5 + 0.5) * 255))
			gBuf[i] = byte(math.Round((ny*0.5 + 0.5) * 255))
			bBuf[i] = byte(math.Round((nz*0.5 + 0.5) * 255))
			aBuf[i] = hypsometricAlpha(at(px, py))
		}
	}

	rgba, err := godal.Create(godal.Memory, "", 4, godal.Byte, out, out)
	if err != nil {
		return fmt.Errorf("creating rgba raster: %w", err)
	}
	defer rgba.Close()

	bands := rgba.Bands()
	for i, b := range [][]byte{rBuf, gBuf, bBuf, aBuf} {
		if err := bands[i].Write(0, 0, b, out, out); err != nil {
			return fmt.Errorf("writing normal band %d: %w", i, err)
		}
	}

	outPath := filepath.Join(tmpDir, fmt.Sprintf("normal/%d/%d/%d.png", z, x, y))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	if _, err := rgba.Translate(outPath, []string{"-of", "PNG"}); err != nil {
		return fmt.Errorf("writing normal png: %w", err)
	}
	return nil
}
