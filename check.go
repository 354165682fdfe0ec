package main

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"

	"github.com/airbusgeo/godal"
)

// isGdal reports whether f appears to be a well-formed raster: the
// raster-I/O library can open it and it has at least one band; band
// data and statistics are not read. Grounded on original_source/joerd/check.py's is_gdal.
func isGdal(f *os.File) (bool, error) {
	ds, err := godal.Open(f.Name())
	if err != nil {
		return false, nil
	}
	defer ds.Close()
	bands := ds.Bands()
	if len(bands) == 0 {
		return false, nil
	}
	if _, err := bands[0].NoData(); err != nil {
		// absence of nodata isn't itself a corruption signal; only a
		// read failure further down would indicate one.
	}
	return true, nil
}

// isTarGz reports whether f appears to be a well-formed gzip-compressed
// tar archive, by reading through every entry. Grounded on
// original_source/joerd/check.py's tar_gz_has_gdal, generalized to not
// require a specific member name since callers here (Great Lakes) only
// need to know the archive itself is intact before extracting.
func isTarGz(f *os.File) (bool, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		return false, nil
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		_, err := tr.Next()
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, nil
		}
	}
}
