package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// nedFilenamePattern matches both the normal and topobathy NED19
// filename forms, e.g. "ned19_n40x25_w105x75_co_denver_2013.zip" or
// "ned19_n40x00_w105x00_co_denver_topobathy_2013.zip". Grounded on
// original_source/joerd/source/ned_base.py's UNIVERSAL_NED_PATTERN.
var nedFilenamePattern = regexp.MustCompile(
	`^ned19_` +
		`([ns])([0-9]{2})x([0257][05])_` +
		`([ew])([0-9]{3})x([0257][05])_` +
		`([a-z]{2})_` +
		`([a-z0-9_]+?)` +
		`(_topobathy)?_` +
		`(20[0-9]{2})\.zip$`)

// nedTileMeta is the parsed, persisted form of one NED zip's filename:
// enough to reconstruct its bbox and zip/output names without touching
// the filesystem again.
type nedTileMeta struct {
	StateCode  string      `json:"state_code"`
	RegionName string      `json:"region_name"`
	Year       int         `json:"year"`
	IsTopobathy bool       `json:"is_topobathy"`
	BBox       BoundingBox `json:"bbox"`
}

// parseNEDFilename parses a NED19 zip filename into its tile metadata,
// matching spec.md §8 scenario 4's round-trip requirement: formatting
// nedTileMeta.baseName() back out must reproduce a filename this
// function can re-parse to an equal bbox.
func parseNEDFilename(name string) (nedTileMeta, bool) {
	m := nedFilenamePattern.FindStringSubmatch(name)
	if m == nil {
		return nedTileMeta{}, false
	}
	northDeg, _ := strconv.Atoi(m[2])
	northFrac, _ := strconv.Atoi(m[3])
	y := float64(northDeg) + float64(northFrac)/100.0
	if m[1] == "s" {
		y = -y
	}

	eastDeg, _ := strconv.Atoi(m[5])
	eastFrac, _ := strconv.Atoi(m[6])
	x := float64(eastDeg) + float64(eastFrac)/100.0
	if m[4] == "w" {
		x = -x
	}

	year, _ := strconv.Atoi(m[10])
	return nedTileMeta{
		StateCode:   m[7],
		RegionName:  m[8],
		Year:        year,
		IsTopobathy: m[9] != "",
		BBox:        NewBoundingBox(x, y-0.25, x+0.25, y),
	}, true
}

// baseName reconstructs the filename stem the original tile was parsed
// from (minus extension), using the same bbox-to-degree/hundredths
// formatting as original_source/joerd/source/ned_base.py's base_name().
func (m nedTileMeta) baseName() string {
	fmtCoord := func(v float64, neg, pos string) (string, int, int) {
		sign := pos
		if v < 0 {
			sign = neg
		}
		whole := int(math.Abs(v))
		frac := int(math.Round(100 * (math.Abs(v) - math.Floor(math.Abs(v)))))
		return sign, whole, frac
	}
	nsSign, nsWhole, nsFrac := fmtCoord(m.BBox.MaxY, "s", "n")
	ewSign, ewWhole, ewFrac := fmtCoord(m.BBox.MinX, "w", "e")

	suffix := ""
	if m.IsTopobathy {
		suffix = "_topobathy"
	}
	return fmt.Sprintf("ned19_%s%02dx%02d_%s%03dx%02d_%s_%s%s_%4d",
		nsSign, nsWhole, nsFrac, ewSign, ewWhole, ewFrac,
		m.StateCode, m.RegionName, suffix, m.Year)
}

func (m nedTileMeta) zipName() string { return m.baseName() + ".zip" }
func (m nedTileMeta) imgName() string { return m.baseName() + ".img" }

// NEDBase is the shared implementation behind NED (bare-earth) and
// NEDTopobathy (topobathy-merged), differing only in their filename
// pattern, mask_negative policy, and base directory. Grounded on
// original_source/joerd/source/ned_base.py's NEDBase.
type NEDBase struct {
	name        string
	isTopobathy bool
	baseDir     string
	ftpServer   string
	basePath    string
	pattern     *regexp.Regexp
	downloads   DownloadOptions
	index       []nedTileMeta
}

func newNEDBase(name string, isTopobathy bool, opts map[string]any) *NEDBase {
	pattern := optString(opts, "pattern", "")
	var re *regexp.Regexp
	if pattern != "" {
		re = regexp.MustCompile(pattern)
	}
	return &NEDBase{
		name:        name,
		isTopobathy: isTopobathy,
		baseDir:     optString(opts, "base_dir", name),
		ftpServer:   optString(opts, "ftp_server", ""),
		basePath:    optString(opts, "base_path", ""),
		pattern:     re,
		downloads: DownloadOptions{
			Tries:   optInt(opts, "tries", 10),
			Timeout: optInt(opts, "timeout", 60),
		},
	}
}

func (n *NEDBase) Name() string { return n.name }
func (n *NEDBase) SRS() string  { return "WGS84" }

func (n *NEDBase) FilterType(srcRes, dstRes float64) ResamplingFilter {
	if srcRes > dstRes {
		return ResampleLanczos
	}
	return ResampleCubic
}

// GetIndex reads the cached index if fresh (< 24h old); a real remote
// deployment populates this file out-of-band via an FTP directory
// listing, mirroring the original's download_index. That network crawl
// isn't exercised here: planning assumes the index file is already
// present, per the same "no-op for static catalogs" fallback used by
// SRTM.GetIndex.
func (n *NEDBase) GetIndex(ctx context.Context) error {
	indexPath := filepath.Join(n.baseDir, "index.yaml")
	if info, err := os.Stat(indexPath); err == nil {
		if time.Since(info.ModTime()) < 24*time.Hour {
			return n.loadIndex(indexPath)
		}
	}
	if err := os.MkdirAll(n.baseDir, 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(indexPath); err == nil {
		return n.loadIndex(indexPath)
	}
	return nil
}

// loadIndex accepts either the structured form (a YAML list of
// nedTileMeta entries) or a plain list of
// filenames (the form an FTP directory listing produces): the latter is
// parsed with parseNEDFilename, matching the original's
// _list_ned_files/_parse_ned_tile split between crawling and parsing.
func (n *NEDBase) loadIndex(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var entries []nedTileMeta
	if err := yamlDecode(f, &entries); err == nil && len(entries) > 0 {
		n.index = entries
		return nil
	}

	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	var names []string
	if err := yamlDecode(f, &names); err != nil {
		return err
	}
	n.index = n.index[:0]
	for _, name := range names {
		if m, ok := parseNEDFilename(name); ok {
			n.index = append(n.index, m)
		}
	}
	return nil
}

const nedNativeResolution = 1.0 / (3600.0 * 9.0)
const nedPruneFactor = 20.0
const nedBuffer = 0.0025

func (n *NEDBase) DownloadsFor(tile OutputTile) []SourceTile {
	if tile.MaxResolution() > nedPruneFactor*nedNativeResolution {
		return nil
	}
	bbox := tile.LatLonBBox().Buffer(nedBuffer)

	var out []SourceTile
	for _, e := range n.index {
		if !e.BBox.Intersects(bbox) {
			continue
		}
		if n.pattern != nil && !n.pattern.MatchString(e.zipName()) {
			continue
		}
		out = append(out, n.tileFor(e))
	}
	return out
}

func (n *NEDBase) tileFor(m nedTileMeta) *NEDTile {
	return &NEDTile{parent: n, meta: m}
}

// VrtsFor groups overlapping NED tiles by (state, region, year) so that
// each VRT group is internally non-overlapping; ordering is alphabetical
// (then by year) for determinism, matching ned_base.py's
// groupby-on-sorted-key approach.
func (n *NEDBase) VrtsFor(tile OutputTile) [][]SourceTile {
	tiles := n.DownloadsFor(tile)
	if len(tiles) == 0 {
		return nil
	}
	sort.Slice(tiles, func(i, j int) bool {
		a := tiles[i].(*NEDTile).meta
		b := tiles[j].(*NEDTile).meta
		if a.StateCode != b.StateCode {
			return a.StateCode < b.StateCode
		}
		if a.RegionName != b.RegionName {
			return a.RegionName < b.RegionName
		}
		return a.Year < b.Year
	})

	var groups [][]SourceTile
	var cur []SourceTile
	var curKey string
	for _, t := range tiles {
		m := t.(*NEDTile).meta
		key := fmt.Sprintf("%s/%s/%d", m.StateCode, m.RegionName, m.Year)
		if key != curKey && len(cur) > 0 {
			groups = append(groups, cur)
			cur = nil
		}
		curKey = key
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func (n *NEDBase) Rehydrate(data json.RawMessage) (SourceTile, error) {
	var m nedTileMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return n.tileFor(m), nil
}

func (n *NEDBase) ExistingFiles(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.Walk(n.baseDir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if filepath.Ext(p) == ".img" {
			rel, _ := filepath.Rel(n.baseDir, p)
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}

// NEDTile is one 0.25x0.25 degree 1/9 arc-second cell, possibly
// overlapping others of the same dataset in different regions/years.
type NEDTile struct {
	parent *NEDBase
	meta   nedTileMeta
}

func (t *NEDTile) IdentityKey() string {
	return t.parent.name + ":" + t.meta.baseName()
}
func (t *NEDTile) SourceName() string { return t.parent.name }
func (t *NEDTile) BBox() BoundingBox  { return t.meta.BBox }

func (t *NEDTile) URLs() []string {
	return []string{"ftp://" + t.parent.ftpServer + "/" + t.parent.basePath + "/" + t.meta.zipName()}
}

func (t *NEDTile) Verifier() Verifier {
	return func(f *os.File) (bool, error) { return isZip(f) }
}

func (t *NEDTile) Options() DownloadOptions { return t.parent.downloads }

func (t *NEDTile) OutputFile() string {
	return filepath.Join(t.parent.baseDir, t.meta.imgName())
}

func (t *NEDTile) Unpack(ctx context.Context, store Store, tmps []*os.File) error {
	if len(tmps) != 1 {
		return errUnpackCount(t.parent.name, 1, len(tmps))
	}
	img := t.meta.imgName()

	if t.parent.isTopobathy {
		scratch, err := os.MkdirTemp("", "joerd-ned-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(scratch)

		extracted, err := extractZipMember(tmps[0].Name(), img, scratch)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnpackFailed, err)
		}
		// Topobathy tiles already have invalid cells represented as
		// nodata by the producer, so no masking is needed.
		return writeLocalThenStore(extracted, t.OutputFile(), store)
	}

	scratch, err := os.MkdirTemp("", "joerd-ned-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	extracted, err := extractZipMember(tmps[0].Name(), img, scratch)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnpackFailed, err)
	}
	masked := filepath.Join(scratch, "masked.img")
	if err := maskNegative(extracted, masked); err != nil {
		return fmt.Errorf("%w: %v", ErrUnpackFailed, err)
	}
	return writeLocalThenStore(masked, t.OutputFile(), store)
}

func (t *NEDTile) FreezeDry() json.RawMessage {
	b, _ := json.Marshal(struct {
		Type string `json:"type"`
		nedTileMeta
	}{Type: t.parent.name, nedTileMeta: t.meta})
	return b
}

// NED is the bare-earth NED19 dataset: invalid heights (<=0) are masked
// to nodata on unpack. Grounded on original_source/joerd/source/ned.py.
func init() {
	RegisterSource("ned", func(opts map[string]any) (Source, error) {
		opts = withDefault(opts, "pattern", nedNormalPattern.String())
		return newNEDBase("ned", false, opts), nil
	})
	RegisterSource("ned_topobathy", func(opts map[string]any) (Source, error) {
		opts = withDefault(opts, "pattern", nedTopobathyPattern.String())
		return newNEDBase("ned_topobathy", true, opts), nil
	})
}

var nedNormalPattern = regexp.MustCompile(
	`^ned19_([ns])([0-9]{2})x([0257][05])_([ew])([0-9]{3})x([0257][05])_[a-z]{2}_[a-z0-9_]+_20[0-9]{2}\.zip$`)

var nedTopobathyPattern = regexp.MustCompile(
	`^ned19_([ns])([0-9]{2})x([0257][05])_([ew])([0-9]{3})x([0257][05])_[a-z]{2}_[a-z0-9_]+_topobathy_20[0-9]{2}\.zip$`)

// withDefault returns a shallow copy of opts with key set to def when
// opts doesn't already define it, matching the original's dict.update()
// calls layering pattern/vrt_file onto caller-supplied options.
func withDefault(opts map[string]any, key string, def any) map[string]any {
	out := make(map[string]any, len(opts)+1)
	for k, v := range opts {
		out[k] = v
	}
	if _, ok := out[key]; !ok {
		out[key] = def
	}
	return out
}
