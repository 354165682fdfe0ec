package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
)

func init() {
	RegisterOutput("skadi", func(opts map[string]any) (Output, error) {
		return NewSkadiOutput(opts), nil
	})
}

// epsg4326WKT tags every Skadi raster: it's produced directly in
// geographic coordinates, unlike the Mercator products.
const epsg4326WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]`

// SkadiOutput produces 1deg x 1deg, 3601x3601 signed-16-bit elevation
// tiles in the SRTM HGT format, gzip-compressed. Grounded on
// original_source/joerd/output/skadi.py.
type SkadiOutput struct{}

func NewSkadiOutput(opts map[string]any) *SkadiOutput { return &SkadiOutput{} }

func (o *SkadiOutput) ProductKind() string { return "skadi" }

type skadiTileWire struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

func (o *SkadiOutput) Rehydrate(data json.RawMessage) (OutputTile, error) {
	var w skadiTileWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &SkadiTile{x: w.X, y: w.Y, output: o}, nil
}

// GenerateTiles enumerates every 1x1 degree grid cell intersecting any
// configured region whose zoom range includes SkadiNominalZoom.
func (o *SkadiOutput) GenerateTiles(ctx context.Context, regions []Region) ([]OutputTile, error) {
	seen := make(map[[2]int]struct{})
	var out []OutputTile
	for _, r := range regions {
		if SkadiNominalZoom < float64(r.ZoomRange.Min) || SkadiNominalZoom >= float64(r.ZoomRange.Max) {
			continue
		}
		minX := int(math.Floor(r.BBox.MinX)) + 180
		maxX := int(math.Floor(r.BBox.MaxX-1e-9)) + 180
		minY := int(math.Floor(r.BBox.MinY)) + 90
		maxY := int(math.Floor(r.BBox.MaxY-1e-9)) + 90
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				if x < 0 || x >= 360 || y < 0 || y >= 180 {
					continue
				}
				key := [2]int{x, y}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, &SkadiTile{x: x, y: y, output: o})
			}
		}
	}
	return out, nil
}

// ExpandTile returns a single ExpandedRegion at Skadi's fixed native
// resolution, since there's no zoom axis to subdivide by.
func (o *SkadiOutput) ExpandTile(bbox BoundingBox, zoomRange ZoomRange) []ExpandedRegion {
	if SkadiNominalZoom < float64(zoomRange.Min) || SkadiNominalZoom >= float64(zoomRange.Max) {
		return nil
	}
	return []ExpandedRegion{{BBox: bbox, Resolution: SkadiMaxResolution()}}
}

// SkadiTile is a single 1x1 degree grid cell.
type SkadiTile struct {
	baseTile
	x, y   int
	output *SkadiOutput
}

func (t *SkadiTile) ProductKind() string     { return "skadi" }
func (t *SkadiTile) TileName() string        { return SkadiTileName(t.x, t.y) }
func (t *SkadiTile) LatLonBBox() BoundingBox  { return SkadiLatLonBBox(t.x, t.y) }
func (t *SkadiTile) MaxResolution() float64  { return SkadiMaxResolution() }

func (t *SkadiTile) FreezeDry() json.RawMessage {
	b, _ := json.Marshal(skadiTileWire{Type: "skadi", X: t.x, Y: t.y})
	return b
}

func (t *SkadiTile) Render(ctx context.Context, tmpDir string) error {
	bbox := SkadiPaddedBBox(t.x, t.y)
	pixelSize := SkadiArcSec
	gt := [6]float64{bbox.MinX, pixelSize, 0, bbox.MaxY, 0, -pixelSize}

	dst, err := godal.Create(godal.Memory, "", 1, godal.Float32, SkadiPixels, SkadiPixels)
	if err != nil {
		return fmt.Errorf("creating destination raster: %w", err)
	}
	defer dst.Close()

	if err := dst.SetProjection(epsg4326WKT); err != nil {
		return err
	}
	if err := dst.SetGeoTransform(gt); err != nil {
		return err
	}
	band := dst.Bands()[0]
	if err := band.SetNoData(FltNodata); err != nil {
		return err
	}

	if err := (Compositor{}).Compose(ctx, t, dst, pixelSize, slog.Default()); err != nil {
		return err
	}

	buf := make([]float32, SkadiPixels*SkadiPixels)
	if err := band.Read(0, 0, buf, SkadiPixels, SkadiPixels); err != nil {
		return fmt.Errorf("reading composited raster: %w", err)
	}

	i16, err := godal.Create(godal.Memory, "", 1, godal.Int16, SkadiPixels, SkadiPixels)
	if err != nil {
		return fmt.Errorf("creating int16 raster: %w", err)
	}
	defer i16.Close()
	if err := i16.SetProjection(epsg4326WKT); err != nil {
		return err
	}
	if err := i16.SetGeoTransform(gt); err != nil {
		return err
	}
	ibuf := make([]int16, SkadiPixels*SkadiPixels)
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
	if err := ib.Write(0, 0, ibuf, SkadiPixels, SkadiPixels); err != nil {
		return err
	}

	name := SkadiTileName(t.x, t.y)
	hgtPath := filepath.Join(tmpDir, name+".hgt")
	if _, err := i16.Translate(hgtPath, []string{"-of", "SRTMHGT"}); err != nil {
		return fmt.Errorf("writing skadi hgt: %w", err)
	}

	band3 := name[:3]
	gzPath := filepath.Join(tmpDir, fmt.Sprintf("skadi/%s/%s.hgt.gz", band3, name))
	if err := os.MkdirAll(filepath.Dir(gzPath), 0o755); err != nil {
		return err
	}
	if err := gzipFile(hgtPath, gzPath); err != nil {
		return fmt.Errorf("gzipping skadi hgt: %w", err)
	}
	return os.Remove(hgtPath)
}

func gzipFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}
