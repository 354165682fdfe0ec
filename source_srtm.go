package main

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// srtmTileNamePattern matches "N37W123.SRTMGL1.hgt.zip".
var srtmTileNamePattern = regexp.MustCompile(`^([NS])([0-9]{2})([EW])([0-9]{3})\.SRTMGL1\.hgt\.zip$`)

// srtmMaskNamePattern matches the water-mask variant,
// "N37W116.SRTMSWBD.raw.zip".
var srtmMaskNamePattern = regexp.MustCompile(`^([NS])([0-9]{2})([EW])([0-9]{3})\.SRTMSWBD\.raw\.zip$`)

// ParseSRTMTileName parses either the data or the mask filename form and
// returns the 1x1 degree bbox it covers. Grounded on
// original_source/joerd/source/srtm.py's tile-name parsing (the
// concrete scenario in spec.md §8 #5).
func ParseSRTMTileName(name string) (BoundingBox, bool) {
	m := srtmTileNamePattern.FindStringSubmatch(name)
	if m == nil {
		m = srtmMaskNamePattern.FindStringSubmatch(name)
	}
	if m == nil {
		return BoundingBox{}, false
	}
	lat, _ := strconv.Atoi(m[2])
	if m[1] == "S" {
		lat = -lat
	}
	lon, _ := strconv.Atoi(m[4])
	if m[3] == "W" {
		lon = -lon
	}
	return NewBoundingBox(float64(lon), float64(lat), float64(lon+1), float64(lat+1)), true
}

// srtmNativeResolution is 1 arc-second expressed in degrees.
const srtmNativeResolution = 1.0 / 3600.0

// srtmPruneFactor: SRTM contributes nothing once the destination is more
// than 20x coarser than its native resolution.
const srtmPruneFactor = 20.0

// srtmBuffer is the lat/lon buffer applied when intersecting a tile's
// bbox against the SRTM index.
const srtmBuffer = 0.01

type SRTM struct {
	baseDir   string
	dataURL   string // template with %s for tile name, e.g. https://host/path/%s
	maskURL   string
	downloads DownloadOptions
	index     []srtmIndexEntry
}

type srtmIndexEntry struct {
	Name string       `json:"name"`
	BBox BoundingBox  `json:"bbox"`
}

func init() {
	RegisterSource("srtm", func(opts map[string]any) (Source, error) {
		return NewSRTM(opts), nil
	})
}

func NewSRTM(opts map[string]any) *SRTM {
	return &SRTM{
		baseDir: optString(opts, "base_dir", "srtm"),
		dataURL: optString(opts, "url", ""),
		maskURL: optString(opts, "mask_url", ""),
		downloads: DownloadOptions{
			Tries:   optInt(opts, "tries", 10),
			Timeout: optInt(opts, "timeout", 60),
		},
	}
}

func (s *SRTM) Name() string { return "srtm" }
func (s *SRTM) SRS() string  { return "WGS84" }

func (s *SRTM) FilterType(srcRes, dstRes float64) ResamplingFilter {
	if srcRes > dstRes {
		return ResampleLanczos
	}
	return ResampleCubic
}

// GetIndex loads (or refreshes, past a 24h TTL) the list of available
// SRTM tiles from a YAML index file under baseDir.
func (s *SRTM) GetIndex(ctx context.Context) error {
	indexPath := filepath.Join(s.baseDir, "index.yaml")
	if info, err := os.Stat(indexPath); err == nil {
		if time.Since(info.ModTime()) < 24*time.Hour {
			return s.loadIndex(indexPath)
		}
	}
	// Refreshing the index requires crawling a remote directory listing;
	// that network operation is supplied by the caller's configured
	// catalog fetcher in a full deployment. Here we just ensure the
	// directory exists and fall back to whatever index is on disk, if
	// any, matching the original's "no-op for static catalogs" path when
	// no network fetch is wired up.
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(indexPath); err == nil {
		return s.loadIndex(indexPath)
	}
	return nil
}

func (s *SRTM) loadIndex(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return yamlDecode(f, &s.index)
}

func (s *SRTM) DownloadsFor(tile OutputTile) []SourceTile {
	if tile.MaxResolution() > srtmPruneFactor*srtmNativeResolution {
		return nil
	}
	bbox := tile.LatLonBBox().Buffer(srtmBuffer)

	var out []SourceTile
	for _, e := range s.index {
		if e.BBox.Intersects(bbox) {
			out = append(out, s.tileFor(e.Name, e.BBox))
		}
	}
	return out
}

func (s *SRTM) tileFor(name string, bbox BoundingBox) *SRTMTile {
	dataURL := fmt.Sprintf(s.dataURL, name)
	maskName := strings.Replace(name, ".SRTMGL1.hgt", ".SRTMSWBD.raw", 1)
	maskURL := fmt.Sprintf(s.maskURL, maskName)
	return &SRTMTile{
		parent:  s,
		name:    name,
		bbox:    bbox,
		dataURL: dataURL,
		maskURL: maskURL,
	}
}

func (s *SRTM) VrtsFor(tile OutputTile) [][]SourceTile {
	d := s.DownloadsFor(tile)
	if len(d) == 0 {
		return nil
	}
	// SRTM tiles are non-overlapping, so a single VRT group suffices.
	return [][]SourceTile{d}
}

func (s *SRTM) Rehydrate(data json.RawMessage) (SourceTile, error) {
	var w struct {
		Name string      `json:"name"`
		BBox BoundingBox `json:"bbox"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return s.tileFor(w.Name, w.BBox), nil
}

func (s *SRTM) ExistingFiles(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.Walk(s.baseDir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(s.baseDir, p)
		files = append(files, rel)
		return nil
	})
	return files, err
}

// SRTMTile is one 1x1 degree SRTM cell, with an optional water mask.
// Grounded on original_source/joerd/source/srtm.py's SRTMTile: identity
// is the tile name; unpack always fetches the water mask and applies it
// when the mask archive holds the matching member (DESIGN.md Open
// Question 1).
type SRTMTile struct {
	parent  *SRTM
	name    string
	bbox    BoundingBox
	dataURL string
	maskURL string
}

func (t *SRTMTile) IdentityKey() string { return "srtm:" + t.name }
func (t *SRTMTile) SourceName() string  { return "srtm" }
func (t *SRTMTile) BBox() BoundingBox   { return t.bbox }

func (t *SRTMTile) URLs() []string { return []string{t.dataURL, t.maskURL} }

func (t *SRTMTile) Verifier() Verifier {
	return func(f *os.File) (bool, error) { return isZip(f) }
}

func (t *SRTMTile) Options() DownloadOptions { return t.parent.downloads }

func (t *SRTMTile) OutputFile() string {
	return filepath.Join(t.parent.baseDir, strings.TrimSuffix(t.name, ".zip")+".hgt")
}

func (t *SRTMTile) Unpack(ctx context.Context, store Store, tmps []*os.File) error {
	if len(tmps) != 2 {
		return fmt.Errorf("%w: srtm unpack expects data+mask temp files, got %d", ErrUnpackFailed, len(tmps))
	}
	dataTmp, maskTmp := tmps[0], tmps[1]

	hgtName := strings.TrimSuffix(t.name, ".zip") + ".hgt"
	scratch, err := os.MkdirTemp("", "joerd-srtm-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnpackFailed, err)
	}
	defer os.RemoveAll(scratch)

	hgtPath, err := extractZipMember(dataTmp.Name(), hgtName, scratch)
	if err != nil {
		return fmt.Errorf("%w: extracting %s: %v", ErrUnpackFailed, hgtName, err)
	}

	rawName := strings.Replace(hgtName, ".SRTMGL1.hgt", ".SRTMSWBD.raw", 1)
	rawPath, err := extractZipMember(maskTmp.Name(), rawName, scratch)
	if err != nil {
		// No mask member present for this cell (entirely land or
		// entirely water tiles sometimes omit it); fall back to the
		// unmasked raster rather than failing the whole unpack.
		return writeLocalThenStore(hgtPath, t.OutputFile(), store)
	}

	maskedPath := filepath.Join(scratch, "masked.hgt")
	if err := maskRaw(hgtPath, rawPath, 0 /* water */, maskedPath); err != nil {
		return fmt.Errorf("%w: %v", ErrUnpackFailed, err)
	}
	return writeLocalThenStore(maskedPath, t.OutputFile(), store)
}

func (t *SRTMTile) FreezeDry() json.RawMessage {
	b, _ := json.Marshal(struct {
		Type string      `json:"type"`
		Name string      `json:"name"`
		BBox BoundingBox `json:"bbox"`
	}{Type: "srtm", Name: t.name, BBox: t.bbox})
	return b
}

// writeLocalThenStore is the Go equivalent of the original's direct
// zipfile.extract-into-base_dir idiom when the store is just the local
// filesystem rooted at base_dir: here the store abstraction is always
// interposed, even for the filesystem case, so unpack always goes
// through Store rather than assuming a shared root directory.
func writeLocalThenStore(localPath, storePath string, store Store) error {
	if fs, ok := store.(*FileStore); ok {
		dest := filepath.Join(fs.BaseDir, storePath)
		return atomicCopy(localPath, dest)
	}
	// Generic stores only expose Get/Exists/UploadDir; upload a
	// single-file "directory" by staging it under storePath inside a
	// scratch dir and delegating to UploadDir.
	scratch, err := os.MkdirTemp("", "joerd-upload-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)
	staged := filepath.Join(scratch, storePath)
	if err := atomicCopy(localPath, staged); err != nil {
		return err
	}
	return store.UploadDir(context.Background(), scratch)
}

func extractZipMember(zipPath, member, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()

		dest := filepath.Join(destDir, filepath.Base(member))
		out, err := os.Create(dest)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(out, rc); err != nil {
			out.Close()
			return "", err
		}
		out.Close()
		return dest, nil
	}
	return "", fmt.Errorf("member %q not found in %s", member, zipPath)
}

func isZip(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	r, err := zip.NewReader(f, info.Size())
	if err != nil {
		return false, nil
	}
	_ = r
	return true, nil
}
