package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundingBoxIntersects(t *testing.T) {
	base := NewBoundingBox(-10, -10, 10, 10)

	testCases := []struct {
		name string
		o    BoundingBox
		want bool
	}{
		{"reflexive", base, true},
		{"fully contained", NewBoundingBox(-1, -1, 1, 1), true},
		{"overlapping corner", NewBoundingBox(5, 5, 20, 20), true},
		{"shared edge", NewBoundingBox(10, -10, 20, 10), true},
		{"disjoint to the east", NewBoundingBox(11, -10, 20, 10), false},
		{"disjoint to the north", NewBoundingBox(-10, 11, 10, 20), false},
		{"disjoint to the west", NewBoundingBox(-30, -10, -11, 10), false},
		{"disjoint to the south", NewBoundingBox(-10, -30, 10, -11), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, base.Intersects(tc.o), "forward")
			assert.Equal(t, tc.want, tc.o.Intersects(base), "symmetric")
		})
	}
}

func TestBoundingBoxBuffer(t *testing.T) {
	b := NewBoundingBox(0, 0, 10, 10).Buffer(2)
	assert.Equal(t, NewBoundingBox(-2, -2, 12, 12), b)
}

func TestBoundingBoxWidthHeightCenter(t *testing.T) {
	b := NewBoundingBox(-5, -2, 5, 8)
	assert.Equal(t, 10.0, b.Width())
	assert.Equal(t, 10.0, b.Height())
	cx, cy := b.Center()
	assert.Equal(t, 0.0, cx)
	assert.Equal(t, 3.0, cy)
}

func TestBoundingBoxBoundsRoundTrip(t *testing.T) {
	left, bottom, right, top := 1.0, 2.0, 3.0, 4.0
	b := NewBoundingBox(left, bottom, right, top)
	gotLeft, gotBottom, gotRight, gotTop := b.Bounds()
	assert.Equal(t, left, gotLeft)
	assert.Equal(t, bottom, gotBottom)
	assert.Equal(t, right, gotRight)
	assert.Equal(t, top, gotTop)
}
