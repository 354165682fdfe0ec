package main

import (
	"fmt"
	"os"

	"github.com/airbusgeo/godal"
)

// maskNegative processes a raster which has valid positive heights but
// invalid heights at or below zero: those pixels are masked to nodata.
// Grounded on original_source/joerd/mask.py's negative().
func maskNegative(srcPath, dstPath string) error {
	src, err := godal.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer src.Close()

	mem, err := src.Translate("", []string{"-of", "MEM"})
	if err != nil {
		return fmt.Errorf("copying %s to MEM: %w", srcPath, err)
	}
	defer mem.Close()

	bands := mem.Bands()
	if len(bands) == 0 {
		return fmt.Errorf("%s has no bands", srcPath)
	}
	band := bands[0]
	nodata, _ := band.NoData()

	structure := mem.Structure()
	buf := make([]float32, structure.SizeX*structure.SizeY)
	if err := band.Read(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
		return fmt.Errorf("reading %s: %w", srcPath, err)
	}
	for i, v := range buf {
		if v <= 0 || float64(v) == nodata {
			buf[i] = float32(nodata)
		}
	}
	if err := band.Write(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
		return fmt.Errorf("writing masked band: %w", err)
	}

	if _, err := mem.Translate(dstPath, nil); err != nil {
		return fmt.Errorf("writing %s: %w", dstPath, err)
	}
	return nil
}

// maskRaw masks src wherever a co-registered raw byte grid equals
// maskValue, writing the result to dstPath. Used by SRTM to apply its
// water mask (maskValue 0 = water). Grounded on
// original_source/joerd/mask.py's raw().
func maskRaw(srcPath, rawPath string, maskValue byte, dstPath string) error {
	src, err := godal.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer src.Close()

	mem, err := src.Translate("", []string{"-of", "MEM"})
	if err != nil {
		return fmt.Errorf("copying %s to MEM: %w", srcPath, err)
	}
	defer mem.Close()

	bands := mem.Bands()
	if len(bands) == 0 {
		return fmt.Errorf("%s has no bands", srcPath)
	}
	band := bands[0]
	nodata, _ := band.NoData()
	structure := mem.Structure()

	raw, err := os.ReadFile(rawPath)
	if err != nil {
		return fmt.Errorf("reading raw mask %s: %w", rawPath, err)
	}
	want := structure.SizeX * structure.SizeY
	if len(raw) != want {
		return fmt.Errorf("raw mask %s has %d bytes, want %d", rawPath, len(raw), want)
	}

	buf := make([]float32, want)
	if err := band.Read(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
		return fmt.Errorf("reading %s: %w", srcPath, err)
	}
	for i, m := range raw {
		if m == maskValue {
			buf[i] = float32(nodata)
		}
	}
	if err := band.Write(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
		return fmt.Errorf("writing masked band: %w", err)
	}

	if _, err := mem.Translate(dstPath, nil); err != nil {
		return fmt.Errorf("writing %s: %w", dstPath, err)
	}
	return nil
}

// maskDatumShift adds a constant vertical offset to every valid pixel of
// src, leaving nodata untouched, and writes the result to dstPath. Used
// by the Great Lakes source to convert each lake's local chart datum to
// a common vertical reference; the shift amounts are per-lake data, not
// derivable from the raster itself.
func maskDatumShift(srcPath string, shift float64, dstPath string) error {
	src, err := godal.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer src.Close()

	mem, err := src.Translate("", []string{"-of", "MEM"})
	if err != nil {
		return fmt.Errorf("copying %s to MEM: %w", srcPath, err)
	}
	defer mem.Close()

	bands := mem.Bands()
	if len(bands) == 0 {
		return fmt.Errorf("%s has no bands", srcPath)
	}
	band := bands[0]
	nodata, _ := band.NoData()

	structure := mem.Structure()
	buf := make([]float32, structure.SizeX*structure.SizeY)
	if err := band.Read(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
		return fmt.Errorf("reading %s: %w", srcPath, err)
	}
	for i, v := range buf {
		if float64(v) == nodata {
			continue
		}
		buf[i] = float32(float64(v) + shift)
	}
	if err := band.Write(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
		return fmt.Errorf("writing shifted band: %w", err)
	}

	if _, err := mem.Translate(dstPath, nil); err != nil {
		return fmt.Errorf("writing %s: %w", dstPath, err)
	}
	return nil
}
