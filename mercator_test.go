package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLonLatToXY(t *testing.T) {
	m := Mercator{}

	x, y := m.LonLatToXY(16, -122.39197, 37.79125)
	assert.Equal(t, 10487, x)
	assert.Equal(t, 25327, y)

	x, y = m.LonLatToXY(16, 149.12446, -35.30816)
	assert.Equal(t, 59915, x)
	assert.Equal(t, 39645, y)
}

func TestLonLatToXYCorners(t *testing.T) {
	m := Mercator{}
	for z := 0; z <= 19; z++ {
		x, y := m.LonLatToXY(z, -180, 90)
		assert.Equal(t, 0, x, "z=%d", z)
		assert.Equal(t, 0, y, "z=%d", z)

		maxCoord := (1 << uint(z)) - 1
		x, y = m.LonLatToXY(z, 180, -90)
		assert.Equal(t, maxCoord, x, "z=%d", z)
		assert.Equal(t, maxCoord, y, "z=%d", z)
	}
}

func TestLonLatToXYRoundTripsThroughLatLonBBox(t *testing.T) {
	m := Mercator{}
	cases := []struct{ z, x, y int }{
		{3, 2, 3},
		{10, 163, 395},
		{16, 10487, 25327},
	}
	for _, c := range cases {
		bbox := m.LatLonBBox(c.z, c.x, c.y)
		cx, cy := bbox.Center()
		gotX, gotY := m.LonLatToXY(c.z, cx, cy)
		assert.Equal(t, c.x, gotX)
		assert.Equal(t, c.y, gotY)
	}
}

func TestMercatorBBoxCoversWholeWorld(t *testing.T) {
	merc := Mercator{}.MercatorBBox(0, 0, 0)
	assert.InDelta(t, -MercatorWorldSize/2, merc.MinX, 1e-6)
	assert.InDelta(t, MercatorWorldSize/2, merc.MaxX, 1e-6)
}

func TestLatitudeClipping(t *testing.T) {
	m := Mercator{}
	x1, y1 := m.LonLatToXY(5, 0, 89)
	x2, y2 := m.LonLatToXY(5, 0, maxMercatorLat)
	assert.Equal(t, x1, x2)
	assert.Equal(t, y1, y2)
	assert.Equal(t, 0, y1, "far north clips to the top row")
}

func TestMercProjectUnprojectRoundTrip(t *testing.T) {
	lon, lat := -73.9857, 40.7484
	x, y := mercProject(lon, lat)
	gotLon, gotLat := mercUnproject(x, y)
	assert.True(t, math.Abs(lon-gotLon) < 1e-6)
	assert.True(t, math.Abs(lat-gotLat) < 1e-6)
}
