package main

// ZoomRange is a half-open zoom interval [Min, Max). A zoom is "in range"
// when Min <= zoom < Max.
type ZoomRange struct {
	Min, Max int
}

// Region is a spatial selection plus a range of zooms at which to render
// it. Any output tile intersecting a configured region should be produced.
// Regions are immutable once constructed from configuration.
//
// Zoom is used as the scale axis because Mercator output is expected to be
// the majority of tiles rendered; other projections (e.g. Skadi) compare
// against their own nominal zoom for consistency.
type Region struct {
	BBox      BoundingBox
	ZoomRange ZoomRange
}

// Intersects reports whether bbox overlaps the region's bbox and zoom
// falls in the region's half-open zoom range.
func (r Region) Intersects(bbox BoundingBox, zoom float64) bool {
	return r.BBox.Intersects(bbox) &&
		zoom >= float64(r.ZoomRange.Min) &&
		zoom < float64(r.ZoomRange.Max)
}
