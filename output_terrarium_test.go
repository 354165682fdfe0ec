package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func decodeTerrarium(r, g, b byte) float64 {
	return float64(r)*256 + float64(g) + float64(b)/256 - 32768
}

func TestTerrariumEncodeRoundTrip(t *testing.T) {
	cases := []float64{0, 1, -1, 8848, -10994, 32767, -32768, 1234.5}
	for _, h := range cases {
		r, g, b := terrariumEncode(h)
		got := decodeTerrarium(r, g, b)
		assert.InDelta(t, h, got, 1.0/256, "height=%v", h)
	}
}

func TestTerrariumEncodeClampsOutOfRange(t *testing.T) {
	r, g, b := terrariumEncode(100000)
	assert.Equal(t, byte(255), r)
	assert.Equal(t, byte(255), g)
	assert.Equal(t, byte(0), b)

	r, g, b = terrariumEncode(-100000)
	assert.Equal(t, byte(0), r)
	assert.Equal(t, byte(0), g)
	assert.Equal(t, byte(0), b)
}

func TestTerrariumEncodeSeaLevel(t *testing.T) {
	r, g, b := terrariumEncode(0)
	assert.Equal(t, byte(128), r)
	assert.Equal(t, byte(0), g)
	assert.Equal(t, byte(0), b)
}
