package main

// BoundingBox is an axis-aligned rectangle in some planar or geographic
// coordinate system, stored as (minX, minY, maxX, maxY). It is immutable;
// every method returns a new value rather than mutating the receiver.
type BoundingBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewBoundingBox builds a BoundingBox from the four bounds, in the
// left, bottom, right, top order used throughout the configuration and
// wire formats.
func NewBoundingBox(left, bottom, right, top float64) BoundingBox {
	return BoundingBox{MinX: left, MinY: bottom, MaxX: right, MaxY: top}
}

// Intersects reports whether the two bounding boxes overlap, including
// the degenerate case of a shared edge. It is symmetric and reflexive.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	if b.MinX > o.MaxX {
		return false
	}
	if b.MinY > o.MaxY {
		return false
	}
	if b.MaxX < o.MinX {
		return false
	}
	if b.MaxY < o.MinY {
		return false
	}
	return true
}

// Buffer expands the box by d in every direction.
func (b BoundingBox) Buffer(d float64) BoundingBox {
	return BoundingBox{
		MinX: b.MinX - d,
		MinY: b.MinY - d,
		MaxX: b.MaxX + d,
		MaxY: b.MaxY + d,
	}
}

// Equal compares bounds exactly.
func (b BoundingBox) Equal(o BoundingBox) bool {
	return b.MinX == o.MinX && b.MinY == o.MinY &&
		b.MaxX == o.MaxX && b.MaxY == o.MaxY
}

// Width and Height are the box's extent along each axis.
func (b BoundingBox) Width() float64  { return b.MaxX - b.MinX }
func (b BoundingBox) Height() float64 { return b.MaxY - b.MinY }

// Center returns the box's midpoint.
func (b BoundingBox) Center() (x, y float64) {
	return 0.5 * (b.MinX + b.MaxX), 0.5 * (b.MinY + b.MaxY)
}

// Bounds returns the four components in (left, bottom, right, top) order,
// matching the tuple layout used by the original Python bounds attribute.
func (b BoundingBox) Bounds() (left, bottom, right, top float64) {
	return b.MinX, b.MinY, b.MaxX, b.MaxY
}
