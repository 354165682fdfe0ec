package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSkadiTileName(t *testing.T) {
	assert.Equal(t, "N37W060", SkadiTileName(120, 127))
}

func TestSkadiTileNameParseRoundTrip(t *testing.T) {
	for x := 0; x < 360; x += 7 {
		for y := 0; y < 180; y += 5 {
			name := SkadiTileName(x, y)
			gotX, gotY, ok := ParseSkadiTileName(name)
			assert.True(t, ok, "parsing %q", name)
			assert.Equal(t, x, gotX, "x round-trip for %q", name)
			assert.Equal(t, y, gotY, "y round-trip for %q", name)
		}
	}
}

func TestParseSkadiTileNameRejectsGarbage(t *testing.T) {
	for _, name := range []string{"", "N37W06", "X37W060", "N37W060 ", "n37w060"} {
		_, _, ok := ParseSkadiTileName(name)
		assert.False(t, ok, "expected %q to be rejected", name)
	}
}

func TestSkadiLatLonBBox(t *testing.T) {
	bbox := SkadiLatLonBBox(120, 127)
	assert.Equal(t, NewBoundingBox(-60, 37, -59, 38), bbox)
}

func TestSkadiPaddedBBox(t *testing.T) {
	padded := SkadiPaddedBBox(120, 127)
	assert.InDelta(t, -60-SkadiHalfArcSec, padded.MinX, 1e-12)
	assert.InDelta(t, 38+SkadiHalfArcSec, padded.MaxY, 1e-12)
}

func TestSkadiPath(t *testing.T) {
	assert.Equal(t, "skadi/N37/N37W060.hgt.gz", SkadiPath(120, 127))
}
