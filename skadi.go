package main

import (
	"fmt"
	"regexp"
	"strconv"
)

// SkadiPixels is the fixed width/height, in pixels, of every Skadi tile.
const SkadiPixels = 3601

// SkadiArcSec is the nominal pixel spacing of a Skadi tile, in degrees.
const SkadiArcSec = 1.0 / 3600.0

// SkadiHalfArcSec is the padding applied to every edge of a Skadi tile's
// geographic bbox so adjacent tiles overlap by half a pixel, matching
// the SRTM HGT convention of shared edge rows/columns.
const SkadiHalfArcSec = SkadiArcSec * 0.5

// SkadiNominalZoom is the zoom value Skadi tiles report for region
// intersection purposes; it has no meaning as an actual raster zoom,
// it just needs to fall inside zoom ranges meant to include Skadi.
const SkadiNominalZoom = 12.3

var skadiNamePattern = regexp.MustCompile(`^([NS])(\d{2})([EW])(\d{3})$`)

// SkadiTileName formats the grid cell (x, y), with x in [0,360) and y in
// [0,180) corresponding to (lon-180, lat-90), as a "[NS]dd[EW]ddd" name.
// Grounded on original_source/joerd/output/skadi.py's tile naming.
func SkadiTileName(x, y int) string {
	lon := x - 180
	lat := y - 90

	latDir := "N"
	latAbs := lat
	if lat < 0 {
		latDir = "S"
		latAbs = -lat
	}
	lonDir := "E"
	lonAbs := lon
	if lon < 0 {
		lonDir = "W"
		lonAbs = -lon
	}
	return fmt.Sprintf("%s%02d%s%03d", latDir, latAbs, lonDir, lonAbs)
}

// ParseSkadiTileName is the exact inverse of SkadiTileName.
func ParseSkadiTileName(name string) (x, y int, ok bool) {
	m := skadiNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	lat, _ := strconv.Atoi(m[2])
	if m[1] == "S" {
		lat = -lat
	}
	lon, _ := strconv.Atoi(m[4])
	if m[3] == "W" {
		lon = -lon
	}
	return lon + 180, lat + 90, true
}

// SkadiLatLonBBox returns the unpadded 1x1 degree geographic bbox of
// grid cell (x, y).
func SkadiLatLonBBox(x, y int) BoundingBox {
	lon := float64(x - 180)
	lat := float64(y - 90)
	return NewBoundingBox(lon, lat, lon+1, lat+1)
}

// SkadiPaddedBBox returns the bbox used for rendering: the unpadded
// bbox buffered by half an arc-second in every direction, since the
// 3601x3601 raster samples one pixel past each edge so adjacent tiles
// share their border row/column.
func SkadiPaddedBBox(x, y int) BoundingBox {
	return SkadiLatLonBBox(x, y).Buffer(SkadiHalfArcSec)
}

// SkadiMaxResolution is the nominal ground resolution, in degrees per
// pixel, of a Skadi tile: its full padded extent divided by its pixel
// count.
func SkadiMaxResolution() float64 {
	return (1.0 + 2*SkadiHalfArcSec) / SkadiPixels
}

// SkadiPath returns the product-relative output path for grid cell
// (x, y), following spec.md §6's
// "{product}/{N|S}{dd}/{N|S}{dd}{E|W}{ddd}.hgt.gz" convention.
func SkadiPath(x, y int) string {
	name := SkadiTileName(x, y)
	// The directory component is the latitude band only, e.g. "N37"
	// from "N37W060".
	band := name[:3]
	return fmt.Sprintf("skadi/%s/%s.hgt.gz", band, name)
}
