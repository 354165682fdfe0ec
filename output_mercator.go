package main

import (
	"context"
	"encoding/json"

	"github.com/paulmach/orb/maptile"
)

// epsg3857WKT is the WKT used to tag every Mercator scratch/destination
// raster. Embedded as a literal rather than resolved through a CRS
// database lookup, since it's the one fixed projection every Mercator
// product always uses.
const epsg3857WKT = `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1],AXIS["X",EAST],AXIS["Y",NORTH]]`

// mercatorTileWire is the freeze-dried wire shape shared by terrarium
// and normal tiles.
type mercatorTileWire struct {
	Type string `json:"type"`
	Z    int    `json:"z"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// mercatorRenderer is implemented by each Mercator-family Output plugin
// (TerrariumOutput, NormalOutput) to perform its own pixel encoding atop
// the shared grid/compositor plumbing in renderMercatorFloat.
type mercatorRenderer interface {
	render(ctx context.Context, z, x, y int, tile OutputTile, tmpDir string) error
}

// MercatorTile is the OutputTile implementation shared by every
// Web-Mercator product. Grounded on original_source/joerd/output/mercator.py's
// MercatorTile / base behavior common to terrarium.py and normal.py.
type MercatorTile struct {
	baseTile
	kind   string
	z, x, y int
	output mercatorRenderer
}

func (t *MercatorTile) ProductKind() string { return t.kind }

func (t *MercatorTile) TileName() string { return mercatorTileName(t.z, t.x, t.y) }

func (t *MercatorTile) LatLonBBox() BoundingBox {
	return Mercator{}.LatLonBBox(t.z, t.x, t.y)
}

// MaxResolution returns the tile's ground resolution in degrees per
// pixel, approximated from its geographic bbox width over 256 pixels.
func (t *MercatorTile) MaxResolution() float64 {
	bbox := t.LatLonBBox()
	return bbox.Width() / 256
}

func (t *MercatorTile) Render(ctx context.Context, tmpDir string) error {
	return t.output.render(ctx, t.z, t.x, t.y, t, tmpDir)
}

func (t *MercatorTile) FreezeDry() json.RawMessage {
	b, _ := json.Marshal(mercatorTileWire{Type: t.kind, Z: t.z, X: t.x, Y: t.y})
	return b
}

// generateMercatorTiles enumerates every (z,x,y) tile intersecting any
// configured region, deduplicated by tile identity. Grounded on
// original_source/joerd/output/mercator.py's generate_tiles, which
// recursively subdivides the world from z=0 down, pruning subtrees whose
// bbox doesn't intersect any region; this flattens that recursion into
// direct iteration over each region's own zoom range, since regions here
// are already small bounded bboxes rather than requiring whole-world
// descent.
func generateMercatorTiles(regions []Region, kind string, output mercatorRenderer) ([]OutputTile, error) {
	seen := make(map[maptile.Tile]struct{})
	var out []OutputTile
	merc := Mercator{}
	for _, r := range regions {
		for z := r.ZoomRange.Min; z < r.ZoomRange.Max; z++ {
			minX, minY := merc.LonLatToXY(z, r.BBox.MinX, r.BBox.MaxY)
			maxX, maxY := merc.LonLatToXY(z, r.BBox.MaxX, r.BBox.MinY)
			for x := minX; x <= maxX; x++ {
				for y := minY; y <= maxY; y++ {
					key := maptile.Tile{Z: maptile.Zoom(z), X: uint32(x), Y: uint32(y)}
					if _, ok := seen[key]; ok {
						continue
					}
					seen[key] = struct{}{}
					out = append(out, &MercatorTile{kind: kind, z: z, x: x, y: y, output: output})
				}
			}
		}
	}
	return out, nil
}

// expandMercatorRegion translates a region's bbox/zoom-range into one
// ExpandedRegion per zoom, each carrying that zoom's nominal ground
// resolution, so resolution-aware source pruning (§4.3) can compare a
// source's native resolution against each zoom the region spans.
func expandMercatorRegion(bbox BoundingBox, zoomRange ZoomRange) []ExpandedRegion {
	var out []ExpandedRegion
	for z := zoomRange.Min; z < zoomRange.Max; z++ {
		extent := float64(int64(1) << uint(z))
		degreesPerTile := 360.0 / extent
		out = append(out, ExpandedRegion{
			BBox:       bbox,
			Resolution: degreesPerTile / 256,
		})
	}
	return out
}
