package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/airbusgeo/godal"
)

// resamplingAlgorithm maps a ResamplingFilter to the GDAL warp resampling
// name used as a "-r" switch, mirroring gdalwarp's CLI vocabulary the way
// mask.go's Translate calls use "-of"/"-ot" switches.
func resamplingAlgorithm(f ResamplingFilter) string {
	switch f {
	case ResampleLanczos:
		return "lanczos"
	case ResampleBilinear:
		return "bilinear"
	default:
		return "cubic"
	}
}

// Compositor merges an ordered, prioritized set of source rasters into
// one destination raster at a fixed grid. Grounded on
// original_source/joerd/composite.py.
type Compositor struct{}

// Compose fills dst (a single-band float32 raster with an assigned
// projection, geotransform, and nodata value already set) by painting
// tile.Sources() in order, least-detailed first, treating nodata as
// transparent. dstResolution is the destination's ground resolution in
// the source's native units, passed through to FilterType so a source
// can pick a resampling algorithm appropriate to the up/downsampling
// ratio.
func (Compositor) Compose(ctx context.Context, tile OutputTile, dst *godal.Dataset, dstResolution float64, logger *slog.Logger) error {
	structure := dst.Structure()
	gt, err := dst.GeoTransform()
	if err != nil {
		return fmt.Errorf("reading destination geotransform: %w", err)
	}
	proj := dst.Projection()

	dstBand := dst.Bands()[0]
	nodata, _ := dstBand.NoData()

	dstBuf := make([]float32, structure.SizeX*structure.SizeY)
	for i := range dstBuf {
		dstBuf[i] = float32(nodata)
	}
	if err := dstBand.Write(0, 0, dstBuf, structure.SizeX, structure.SizeY); err != nil {
		return fmt.Errorf("filling destination with nodata: %w", err)
	}

	sources := tile.Sources()
	if len(sources) == 0 {
		return fmt.Errorf("%w: no sources attached to tile", ErrMissingInput)
	}

	for _, ls := range sources {
		// ls.VRTGroups is the already-localized form of
		// ls.Source.VrtsFor(tile): the worker resolves every VRT
		// group's SourceTiles to local file paths once per render job
		// (see worker.go) so the compositor never has to consult the
		// store or re-walk the source index.
		for _, paths := range ls.VRTGroups {
			if len(paths) == 0 {
				continue
			}
			if err := composeGroup(ctx, paths, ls.Source, proj, gt, structure.SizeX, structure.SizeY, dstResolution, nodata, dstBuf, logger); err != nil {
				return err
			}
		}
	}

	if err := dstBand.Write(0, 0, dstBuf, structure.SizeX, structure.SizeY); err != nil {
		return fmt.Errorf("writing composited raster: %w", err)
	}
	return nil
}

// composeGroup reprojects one internally non-overlapping VRT group into
// a scratch MEM raster matching dst's grid, then overwrites dstBuf
// wherever the scratch raster has non-nodata data.
func composeGroup(ctx context.Context, paths []string, source Source, dstProj string, dstGT [6]float64, width, height int, dstResolution float64, nodata float64, dstBuf []float32, logger *slog.Logger) error {
	srcDatasets := make([]*godal.Dataset, 0, len(paths))
	for _, p := range paths {
		ds, err := godal.Open(p)
		if err != nil {
			return fmt.Errorf("%w: opening %s: %v", ErrMissingInput, p, err)
		}
		defer ds.Close()
		srcDatasets = append(srcDatasets, ds)
	}

	vrt, err := godal.BuildVRT("", srcDatasets, nil)
	if err != nil {
		return fmt.Errorf("building vrt from %d source(s): %w", len(paths), err)
	}
	defer vrt.Close()

	scratch, err := godal.Create(godal.Memory, "", 1, godal.Float32, width, height)
	if err != nil {
		return fmt.Errorf("creating scratch raster: %w", err)
	}
	defer scratch.Close()

	if err := scratch.SetProjection(dstProj); err != nil {
		return fmt.Errorf("setting scratch projection: %w", err)
	}
	if err := scratch.SetGeoTransform(dstGT); err != nil {
		return fmt.Errorf("setting scratch geotransform: %w", err)
	}
	scratchBand := scratch.Bands()[0]
	if err := scratchBand.SetNoData(nodata); err != nil {
		return fmt.Errorf("setting scratch nodata: %w", err)
	}
	scratchBuf := make([]float32, width*height)
	for i := range scratchBuf {
		scratchBuf[i] = float32(nodata)
	}
	if err := scratchBand.Write(0, 0, scratchBuf, width, height); err != nil {
		return fmt.Errorf("filling scratch with nodata: %w", err)
	}

	srcRes := nativeResolution(paths[0])
	filter := resamplingAlgorithm(source.FilterType(srcRes, dstResolution))

	if err := vrt.WarpInto([]*godal.Dataset{scratch}, []string{
		"-r", filter,
		"-wm", "1024",
		"-et", "0.125",
		"-s_srs", source.SRS(),
		"-t_srs", dstProj,
	}); err != nil {
		logger.Warn("reprojecting vrt group failed, treating as empty contribution", "error", err, "paths", paths)
		return nil
	}

	if err := scratchBand.Read(0, 0, scratchBuf, width, height); err != nil {
		return fmt.Errorf("reading reprojected scratch raster: %w", err)
	}

	for i, v := range scratchBuf {
		if float64(v) != nodata {
			dstBuf[i] = v
		}
	}
	return nil
}

// nativeResolution opens a raster just long enough to read its pixel
// size in its own SRS, used as the "source is this fine" term of
// Source.FilterType's up/downsampling comparison.
func nativeResolution(path string) float64 {
	ds, err := godal.Open(path)
	if err != nil {
		return 0
	}
	defer ds.Close()
	gt, err := ds.GeoTransform()
	if err != nil {
		return 0
	}
	dx := gt[1]
	if dx < 0 {
		dx = -dx
	}
	return dx
}
