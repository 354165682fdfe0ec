package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMercatorTilesDedupesOverlappingRegions(t *testing.T) {
	region := Region{BBox: NewBoundingBox(-1, -1, 1, 1), ZoomRange: ZoomRange{Min: 2, Max: 3}}
	tiles, err := generateMercatorTiles([]Region{region, region}, "terrarium", nil)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, tile := range tiles {
		name := tile.TileName()
		assert.False(t, seen[name], "tile %s should not be generated twice", name)
		seen[name] = true
		assert.Equal(t, "terrarium", tile.ProductKind())
	}
	assert.NotEmpty(t, tiles)
}

func TestGenerateMercatorTilesRespectsZoomRange(t *testing.T) {
	region := Region{BBox: NewBoundingBox(-1, -1, 1, 1), ZoomRange: ZoomRange{Min: 4, Max: 5}}
	tiles, err := generateMercatorTiles([]Region{region}, "normal", nil)
	require.NoError(t, err)
	for _, tile := range tiles {
		mt := tile.(*MercatorTile)
		assert.Equal(t, 4, mt.z, "zoom range [4,5) should only generate z=4")
	}
}

func TestExpandMercatorRegionOneEntryPerZoom(t *testing.T) {
	bbox := NewBoundingBox(-10, -10, 10, 10)
	expanded := expandMercatorRegion(bbox, ZoomRange{Min: 0, Max: 4})
	require.Len(t, expanded, 4)
	for i, e := range expanded {
		assert.Equal(t, bbox, e.BBox)
		assert.Greater(t, e.Resolution, 0.0)
		if i > 0 {
			assert.Less(t, e.Resolution, expanded[i-1].Resolution, "resolution should get finer at higher zoom")
		}
	}
}

func TestMercatorTileNameFormat(t *testing.T) {
	tile := &MercatorTile{kind: "terrarium", z: 5, x: 3, y: 7}
	assert.Equal(t, "5/3/7", tile.TileName())
}
