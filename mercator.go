package main

import (
	"fmt"
	"math"
)

// FltNodata is the nodata sentinel used for all float32 compositing
// rasters. A round, exactly-representable binary value was chosen over
// the type's true minimum because the minimum drifted under roundoff
// during reprojection, silently turning nodata pixels into "data".
const FltNodata = -3.0e38

// MercatorWorldSize is the circumference, in meters, of the EPSG:3857
// projection of the whole world.
const MercatorWorldSize = 40075016.68

// mercatorRadius is the sphere radius implied by MercatorWorldSize,
// used for the forward/inverse spherical Mercator projection so that the
// tile-bbox math (which uses MercatorWorldSize directly) and the
// lon/lat <-> tile math stay mutually consistent.
const mercatorRadius = MercatorWorldSize / (2 * math.Pi)

// maxMercatorLat is the latitude at which the spherical Mercator
// projection's y coordinate would diverge; coordinates are clipped to
// this range before projecting.
const maxMercatorLat = 85.051129

func mercatorTileName(z, x, y int) string {
	return fmt.Sprintf("%d/%d/%d", z, x, y)
}

// merBBox returns the extent, in EPSG:3857 meters, of Mercator tile
// (z, x, y).
func merBBox(z, x, y int) BoundingBox {
	extent := float64(int64(1) << uint(z))
	return BoundingBox{
		MinX: MercatorWorldSize * (float64(x)/extent - 0.5),
		MinY: MercatorWorldSize * (0.5 - float64(y+1)/extent),
		MaxX: MercatorWorldSize * (float64(x+1)/extent - 0.5),
		MaxY: MercatorWorldSize * (0.5 - float64(y)/extent),
	}
}

// txBBoxCorners reprojects the four corners of bbox through project and
// returns the enclosing box, optionally expanded by a fraction of its own
// span. This mirrors composite's and mercator's _tx_bbox: reprojecting a
// bbox is not the same as reprojecting its corners when the projection is
// not axis-preserving, so all four corners are transformed independently.
func txBBoxCorners(project func(x, y float64) (float64, float64), bbox BoundingBox, expand float64) BoundingBox {
	corners := [4][2]float64{
		{bbox.MinX, bbox.MinY},
		{bbox.MinX, bbox.MaxY},
		{bbox.MaxX, bbox.MinY},
		{bbox.MaxX, bbox.MaxY},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x, y := project(c[0], c[1])
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}
	xspan := maxX - minX
	yspan := maxY - minY
	return BoundingBox{
		MinX: minX - 0.5*expand*xspan,
		MinY: minY - 0.5*expand*yspan,
		MaxX: maxX + 0.5*expand*xspan,
		MaxY: maxY + 0.5*expand*yspan,
	}
}

// Mercator holds the forward/inverse spherical Mercator projection used
// by the terrarium and normal outputs. It is stateless and safe for
// concurrent use; unlike the original's cached osr::CoordinateTransformation
// handles, there is nothing here that needs per-process reinitialization.
type Mercator struct{}

func mercProject(lon, lat float64) (x, y float64) {
	x = mercatorRadius * lon * math.Pi / 180
	y = mercatorRadius * math.Log(math.Tan(math.Pi/4+(lat*math.Pi/180)/2))
	return x, y
}

func mercUnproject(x, y float64) (lon, lat float64) {
	lon = (x / mercatorRadius) * 180 / math.Pi
	lat = (2*math.Atan(math.Exp(y/mercatorRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

// LatLonBBox returns the geographic bbox of Mercator tile (z,x,y).
func (Mercator) LatLonBBox(z, x, y int) BoundingBox {
	merc := merBBox(z, x, y)
	return txBBoxCorners(mercUnproject, merc, 0)
}

// LonLatToXY converts a geographic point to the tile coordinate that
// contains it at the given zoom. Latitude is clipped to
// +/-85.051129 degrees, the limit of what spherical Mercator can
// represent before the projection's tangent term diverges.
func (Mercator) LonLatToXY(zoom int, lon, lat float64) (x, y int) {
	lat = math.Min(math.Max(lat, -maxMercatorLat), maxMercatorLat)

	mx, my := mercProject(lon, lat)

	extent := float64(int64(1) << uint(zoom))
	tx := int(math.Floor(extent * (mx/MercatorWorldSize + 0.5)))
	ty := int(math.Floor(extent * (0.5 - my/MercatorWorldSize)))

	maxCoord := int(extent) - 1
	if tx < 0 {
		tx = 0
	} else if tx > maxCoord {
		tx = maxCoord
	}
	if ty < 0 {
		ty = 0
	} else if ty > maxCoord {
		ty = maxCoord
	}
	return tx, ty
}

// MercatorBBox returns the extent, in EPSG:3857 meters, of tile (z,x,y).
func (Mercator) MercatorBBox(z, x, y int) BoundingBox {
	return merBBox(z, x, y)
}
