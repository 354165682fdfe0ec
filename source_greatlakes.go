package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// greatLakesInfo is the hard-coded bbox and vertical datum shift for one
// lake. There is no link between a lake's name and its extent in the
// source data itself, so these are carried as a fixed table rather than
// discovered from an index. Vertical datums from
// https://tidesandcurrents.noaa.gov/gldatums.html, per
// original_source/joerd/source/greatlakes.py.
type greatLakesInfo struct {
	BBox  BoundingBox
	Datum float64
}

var greatLakes = map[string]greatLakesInfo{
	"erie":     {BBox: NewBoundingBox(-84.0004167, 41.0004166, -78.0004166, 43.0004167), Datum: 173.5},
	"huron":    {BBox: NewBoundingBox(-84.5004167, 43.0004166, -79.6837500, 46.5004167), Datum: 176.0},
	"michigan": {BBox: NewBoundingBox(-88.0004167, 41.6237499, -84.5004166, 46.0904167), Datum: 176.0},
	"ontario":  {BBox: NewBoundingBox(-79.9004167, 43.1504166, -76.0504166, 44.2504167), Datum: 74.2},
	"superior": {BBox: NewBoundingBox(-92.2004167, 46.0004166, -84.0004166, 49.5004167), Datum: 183.2},
}

const greatLakesBaseURL = "https://www.ngdc.noaa.gov/mgg/greatlakes"

func init() {
	RegisterSource("greatlakes", func(opts map[string]any) (Source, error) {
		return NewGreatLakes(opts), nil
	})
}

// GreatLakes supplies bathymetry for the five US Great Lakes, each a
// single fixed GeoTIFF tarball with no tiling. Grounded on
// original_source/joerd/source/greatlakes.py.
type GreatLakes struct {
	baseDir   string
	downloads DownloadOptions
}

func NewGreatLakes(opts map[string]any) *GreatLakes {
	return &GreatLakes{
		baseDir: optString(opts, "base_dir", "greatlakes"),
		downloads: DownloadOptions{
			Tries:   optInt(opts, "tries", 10),
			Timeout: optInt(opts, "timeout", 60),
		},
	}
}

func (g *GreatLakes) Name() string { return "greatlakes" }
func (g *GreatLakes) SRS() string  { return "NAD83" }

func (g *GreatLakes) FilterType(srcRes, dstRes float64) ResamplingFilter {
	if srcRes > dstRes {
		return ResampleBilinear
	}
	return ResampleCubic
}

func (g *GreatLakes) GetIndex(ctx context.Context) error {
	return os.MkdirAll(g.baseDir, 0o755)
}

const greatLakesNativeResolution = 3.0 / 3600.0
const greatLakesPruneFactor = 20.0
const greatLakesBuffer = 0.1

func (g *GreatLakes) DownloadsFor(tile OutputTile) []SourceTile {
	if tile.MaxResolution() > greatLakesPruneFactor*greatLakesNativeResolution {
		return nil
	}
	bbox := tile.LatLonBBox().Buffer(greatLakesBuffer)

	var out []SourceTile
	for name, info := range greatLakes {
		if bbox.Intersects(info.BBox) {
			out = append(out, &GreatLake{parent: g, lake: name})
		}
	}
	return out
}

func (g *GreatLakes) VrtsFor(tile OutputTile) [][]SourceTile {
	d := g.DownloadsFor(tile)
	if len(d) == 0 {
		return nil
	}
	return [][]SourceTile{d}
}

func (g *GreatLakes) Rehydrate(data json.RawMessage) (SourceTile, error) {
	var w struct {
		Lake string `json:"lake"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &GreatLake{parent: g, lake: w.Lake}, nil
}

func (g *GreatLakes) ExistingFiles(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.Walk(g.baseDir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if filepath.Ext(p) == ".tif" {
			rel, _ := filepath.Rel(g.baseDir, p)
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}

// GreatLake is one lake's single bathymetry raster.
type GreatLake struct {
	parent *GreatLakes
	lake   string
}

func (t *GreatLake) IdentityKey() string { return "greatlakes:" + t.lake }
func (t *GreatLake) SourceName() string  { return "greatlakes" }
func (t *GreatLake) BBox() BoundingBox   { return greatLakes[t.lake].BBox }

func (t *GreatLake) URLs() []string {
	return []string{fmt.Sprintf("%s/%s/data/geotiff/%s_lld.geotiff.tar.gz", greatLakesBaseURL, t.lake, t.lake)}
}

func (t *GreatLake) Verifier() Verifier {
	return func(f *os.File) (bool, error) { return isTarGz(f) }
}

func (t *GreatLake) Options() DownloadOptions { return t.parent.downloads }

func (t *GreatLake) OutputFile() string {
	return filepath.Join(t.parent.baseDir, t.lake+".tif")
}

func (t *GreatLake) Unpack(ctx context.Context, store Store, tmps []*os.File) error {
	if len(tmps) != 1 {
		return errUnpackCount("greatlakes", 1, len(tmps))
	}
	member := fmt.Sprintf("%s_lld/%s_lld.tif", t.lake, t.lake)

	scratch, err := os.MkdirTemp("", "joerd-greatlakes-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	extracted, err := extractTarGzMember(tmps[0].Name(), member, scratch)
	if err != nil {
		return fmt.Errorf("%w: extracting %s: %v", ErrUnpackFailed, member, err)
	}

	shifted := filepath.Join(scratch, "shifted.tif")
	if err := maskDatumShift(extracted, greatLakes[t.lake].Datum, shifted); err != nil {
		return fmt.Errorf("%w: %v", ErrUnpackFailed, err)
	}
	return writeLocalThenStore(shifted, t.OutputFile(), store)
}

func (t *GreatLake) FreezeDry() json.RawMessage {
	b, _ := json.Marshal(struct {
		Type string `json:"type"`
		Lake string `json:"lake"`
	}{Type: "greatlakes", Lake: t.lake})
	return b
}

func extractTarGzMember(tarGzPath, member, destDir string) (string, error) {
	f, err := os.Open(tarGzPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return "", fmt.Errorf("member %q not found in %s", member, tarGzPath)
		}
		if err != nil {
			return "", err
		}
		if hdr.Name != member {
			continue
		}
		dest := filepath.Join(destDir, filepath.Base(member))
		out, err := os.Create(dest)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return "", err
		}
		out.Close()
		return dest, nil
	}
}
