package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
)

func init() {
	RegisterOutput("terrarium", func(opts map[string]any) (Output, error) {
		return NewTerrariumOutput(opts), nil
	})
}

// TerrariumOutput produces 256x256 Web-Mercator tiles that encode signed
// elevation into RGB. Grounded on original_source/joerd/output/terrarium.py.
type TerrariumOutput struct {
	writeGeoTIFF bool
}

func NewTerrariumOutput(opts map[string]any) *TerrariumOutput {
	return &TerrariumOutput{
		writeGeoTIFF: optString(opts, "geotiff", "") == "true",
	}
}

func (o *TerrariumOutput) ProductKind() string { return "terrarium" }

func (o *TerrariumOutput) GenerateTiles(ctx context.Context, regions []Region) ([]OutputTile, error) {
	return generateMercatorTiles(regions, "terrarium", o)
}

func (o *TerrariumOutput) ExpandTile(bbox BoundingBox, zoomRange ZoomRange) []ExpandedRegion {
	return expandMercatorRegion(bbox, zoomRange)
}

func (o *TerrariumOutput) Rehydrate(data json.RawMessage) (OutputTile, error) {
	var w mercatorTileWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &MercatorTile{kind: "terrarium", z: w.Z, x: w.X, y: w.Y, output: o}, nil
}

// renderMercatorFloat runs the common Mercator render pipeline: build the
// destination grid, composite, and return the raw float32 buffer for
// the caller's pixel encoder.
func renderMercatorFloat(ctx context.Context, z, x, y int, tile OutputTile, padPixels int) ([]float32, int, int, error) {
	const pixels = 256
	width := pixels + 2*padPixels
	height := pixels + 2*padPixels

	merc := Mercator{}.MercatorBBox(z, x, y)
	pixelSize := merc.Width() / pixels
	gt := [6]float64{
		merc.MinX - float64(padPixels)*pixelSize, pixelSize, 0,
		merc.MaxY + float64(padPixels)*pixelSize, 0, -pixelSize,
	}

	dst, err := godal.Create(godal.Memory, "", 1, godal.Float32, width, height)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("creating destination raster: %w", err)
	}
	defer dst.Close()

	if err := dst.SetProjection(epsg3857WKT); err != nil {
		return nil, 0, 0, err
	}
	if err := dst.SetGeoTransform(gt); err != nil {
		return nil, 0, 0, err
	}
	band := dst.Bands()[0]
	if err := band.SetNoData(FltNodata); err != nil {
		return nil, 0, 0, err
	}

	if err := (Compositor{}).Compose(ctx, tile, dst, tile.MaxResolution(), slog.Default()); err != nil {
		return nil, 0, 0, err
	}

	buf := make([]float32, width*height)
	if err := band.Read(0, 0, buf, width, height); err != nil {
		return nil, 0, 0, fmt.Errorf("reading composited raster: %w", err)
	}
	return buf, width, height, nil
}

// terrariumEncode splits a signed elevation in meters into the terrarium
// RGB triple: (R*256 + G + B/256) - 32768 recovers the height, with B's
// fractional bits giving sub-meter precision. Grounded on
// original_source/joerd/output/terrarium.py's encode.
func terrariumEncode(heightMeters float64) (r, g, b byte) {
	uheight := heightMeters + 32768
	if uheight < 0 {
		uheight = 0
	}
	if uheight > 65535 {
		uheight = 65535
	}
	whole := int(math.Floor(uheight))
	frac := uheight - float64(whole)
	r = byte((whole / 256) % 256)
	g = byte(whole % 256)
	b = byte(int(math.Floor(frac * 256)))
	return r, g, b
}

func (o *TerrariumOutput) render(ctx context.Context, z, x, y int, tile OutputTile, tmpDir string) error {
	buf, width, height, err := renderMercatorFloat(ctx, z, x, y, tile, 0)
	if err != nil {
		return err
	}

	rgb, err := godal.Create(godal.Memory, "", 3, godal.Byte, width, height)
	if err != nil {
		return fmt.Errorf("creating rgb raster: %w", err)
	}
	defer rgb.Close()

	r := make([]byte, width*height)
	g := make([]byte, width*height)
	b := make([]byte, width*height)
	for i, v := range buf {
		height := float64(v)
		if v == float32(FltNodata) {
			height = 0
		}
		r[i], g[i], b[i] = terrariumEncode(height)
	}

	bands := rgb.Bands()
	if err := bands[0].Write(0, 0, r, width, height); err != nil {
		return err
	}
	if err := bands[1].Write(0, 0, g, width, height); err != nil {
		return err
	}
	if err := bands[2].Write(0, 0, b, width, height); err != nil {
		return err
	}

	outPath := filepath.Join(tmpDir, fmt.Sprintf("terrarium/%d/%d/%d.png", z, x, y))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	if _, err := rgb.Translate(outPath, []string{"-of", "PNG"}); err != nil {
		return fmt.Errorf("writing terrarium png: %w", err)
	}

	if o.writeGeoTIFF {
		tifPath := filepath.Join(tmpDir, fmt.Sprintf("terrarium/%d/%d/%d.tif", z, x, y))
		i16, err := godal.Create(godal.Memory, "", 1, godal.Int16, width, height)
		if err != nil {
			return fmt.Errorf("creating int16 raster: %w", err)
		}
		defer i16.Close()
		ibuf := make([]int16, width*height)
		for i, v := range buf {
			if v == float32(FltNodata) {
				ibuf[i] = -32768
			} else {
				ibuf[i] = int16(math.Round(float64(v)))
			}
		}
		ib := i16.Bands()[0]
		if err := ib.SetNoData(-32768); err != nil {
			return err
		}
		if err := ib.Write(0, 0, ibuf, width, height); err != nil {
			return err
		}
		if _, err := i16.Translate(tifPath, []string{"-of", "GTiff", "-co", "COMPRESS=LZW", "-co", "PREDICTOR=2"}); err != nil {
			return fmt.Errorf("writing terrarium geotiff: %w", err)
		}
	}
	return nil
}
