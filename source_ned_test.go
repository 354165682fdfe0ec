package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNEDFilenameTopobathy(t *testing.T) {
	m, ok := parseNEDFilename("ned19_n38x00_w122x50_ca_sanfrancisco_topobathy_2010.zip")
	require.True(t, ok)
	assert.True(t, m.IsTopobathy)
	assert.Equal(t, "ca", m.StateCode)
	assert.Equal(t, "sanfrancisco", m.RegionName)
	assert.Equal(t, 2010, m.Year)
	assert.Equal(t, NewBoundingBox(-122.5, 37.75, -122.25, 38.0), m.BBox)
}

func TestParseNEDFilenameNormalMatchesSameBBox(t *testing.T) {
	m, ok := parseNEDFilename("ned19_n38x00_w122x50_ca_sanfrancisco_2010.zip")
	require.True(t, ok)
	assert.False(t, m.IsTopobathy)
	assert.Equal(t, NewBoundingBox(-122.5, 37.75, -122.25, 38.0), m.BBox)
}

func TestParseNEDFilenameRejectsGarbage(t *testing.T) {
	for _, name := range []string{
		"",
		"ned19_n38x00_w122x50_ca_sanfrancisco_2010.img",
		"ned19_n38x01_w122x50_ca_sanfrancisco_2010.zip", // "01" isn't a valid hundredths fraction
		"not_ned_at_all.zip",
	} {
		_, ok := parseNEDFilename(name)
		assert.False(t, ok, "expected %q to be rejected", name)
	}
}

func TestNEDTopobathyOnlyPatternExcludesNormalTiles(t *testing.T) {
	topobathyOnly := nedTopobathyPattern
	assert.True(t, topobathyOnly.MatchString("ned19_n38x00_w122x50_ca_sanfrancisco_topobathy_2010.zip"))
	assert.False(t, topobathyOnly.MatchString("ned19_n38x00_w122x50_ca_sanfrancisco_2010.zip"),
		"a topobathy-only pattern must not match the plain filename form")
}

func TestNEDTileMetaBaseNameRoundTrip(t *testing.T) {
	names := []string{
		"ned19_n38x00_w122x50_ca_sanfrancisco_topobathy_2010.zip",
		"ned19_n38x00_w122x50_ca_sanfrancisco_2010.zip",
		"ned19_n40x25_w105x75_co_denver_2013.zip",
	}
	for _, name := range names {
		m, ok := parseNEDFilename(name)
		require.True(t, ok, "parsing %q", name)
		assert.Equal(t, name, m.zipName(), "baseName round-trip for %q", name)

		reparsed, ok := parseNEDFilename(m.zipName())
		require.True(t, ok)
		assert.Equal(t, m.BBox, reparsed.BBox)
	}
}
