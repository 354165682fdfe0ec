package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSRTMTileNameDataForm(t *testing.T) {
	bbox, ok := ParseSRTMTileName("N37W123.SRTMGL1.hgt.zip")
	require.True(t, ok)
	assert.Equal(t, NewBoundingBox(-123, 37, -122, 38), bbox)
}

func TestParseSRTMTileNameMaskForm(t *testing.T) {
	bbox, ok := ParseSRTMTileName("N37W116.SRTMSWBD.raw.zip")
	require.True(t, ok)
	assert.Equal(t, NewBoundingBox(-116, 37, -115, 38), bbox)
}

func TestParseSRTMTileNameSouthAndEast(t *testing.T) {
	bbox, ok := ParseSRTMTileName("S12E045.SRTMGL1.hgt.zip")
	require.True(t, ok)
	assert.Equal(t, NewBoundingBox(45, -12, 46, -11), bbox)
}

func TestParseSRTMTileNameRejectsGarbage(t *testing.T) {
	for _, name := range []string{
		"",
		"N37W123.SRTMGL1.hgt",      // missing .zip
		"N37W123.hgt.zip",          // missing .SRTMGL1
		"N7W123.SRTMGL1.hgt.zip",   // latitude must be two digits
		"N37W123.SRTMSWBD.hgt.zip", // mask member must be .raw, not .hgt
	} {
		_, ok := ParseSRTMTileName(name)
		assert.False(t, ok, "expected %q to be rejected", name)
	}
}

func TestSRTMFilterTypeMatchesNEDConvention(t *testing.T) {
	s := &SRTM{}
	assert.Equal(t, ResampleLanczos, s.FilterType(srtmNativeResolution, srtmNativeResolution/2),
		"upsampling past native resolution (srcRes > dstRes) should use Lanczos")
	assert.Equal(t, ResampleCubic, s.FilterType(srtmNativeResolution, srtmNativeResolution*2),
		"downsampling (srcRes <= dstRes) should use Cubic")
}
