package main

import (
	"context"
	"encoding/json"
	"os"
)

// Verifier checks downloaded content for integrity once a SourceTile's
// temp file is complete. It must not assume the file's final size is
// known in advance.
type Verifier func(f *os.File) (bool, error)

// DownloadOptions configures a single Downloader.Get call. The zero value
// is conservative (Tries: 1); concrete source plugins set Tries explicitly
// (see SPEC_FULL.md §4.1 for why the zero-value default differs from what every
// real source actually configures).
type DownloadOptions struct {
	Tries    int
	Timeout  int // seconds
	Backoff  BackoffFunc
	Verifier Verifier
}

// BackoffFunc returns how long to sleep before attempt n (1-based)
// following a non-progressing attempt.
type BackoffFunc func(attempt int) (seconds int)

// ExponentialBackoff implements sleep(min(2^n - 1, 600)).
func ExponentialBackoff(attempt int) int {
	s := (1 << uint(attempt)) - 1
	if s > 600 {
		return 600
	}
	return s
}

// SourceTile is a single downloadable unit belonging to one Source.
// Equality and hashing are by identity key, not by value; two SourceTiles
// describing the same coordinates from the same source plugin are equal
// regardless of which struct instance constructed them.
type SourceTile interface {
	// IdentityKey uniquely identifies this tile within its source. It is
	// used for deduplication and as a map key.
	IdentityKey() string

	URLs() []string
	Verifier() Verifier
	Options() DownloadOptions
	BBox() BoundingBox

	// OutputFile is the canonical path of this tile's unpacked raster
	// inside the source store.
	OutputFile() string

	// Unpack turns the downloaded temp files (in the same order as
	// URLs()) into the canonical raster at OutputFile(), writing it into
	// store. Must be idempotent.
	Unpack(ctx context.Context, store Store, tmps []*os.File) error

	// FreezeDry serializes this tile's identity (not its content) for a
	// job payload. Rehydrate(FreezeDry(t)) must equal t.
	FreezeDry() json.RawMessage

	// SourceName names the owning source plugin, used as the job's
	// "source" discriminator.
	SourceName() string
}

// LocalizedSource pairs a concrete Source plugin (consulted for its
// resampling filter and SRS) with the VRT groups baked into a render
// job and already localized to the filesystem by the worker, so
// Render/Composite never has to go back to the store or recompute
// VrtsFor. Equivalent to server.py's MockSource, but as a plain struct
// rather than a `__getattr__`-forwarding proxy.
type LocalizedSource struct {
	Source    Source
	VRTGroups [][]string
}

// OutputTile is a single product tile (terrarium, normal, or skadi).
type OutputTile interface {
	TileName() string
	LatLonBBox() BoundingBox
	MaxResolution() float64

	// SetSources attaches the ordered list of localized sources this
	// tile should composite from, least-detailed first. Must be called
	// before Render.
	SetSources(sources []LocalizedSource)
	Sources() []LocalizedSource

	// Render computes the tile's raster and writes product files under
	// tmpDir, in the product's own path convention.
	Render(ctx context.Context, tmpDir string) error

	FreezeDry() json.RawMessage

	// ProductKind names the owning output plugin ("terrarium", "normal",
	// "skadi"), used as the job's "type" discriminator.
	ProductKind() string
}

// Job is the decoded form of one element of a queue message. Kind is one
// of "download", "render", or "renderbatch".
type Job struct {
	Kind    string            `json:"job"`
	Data    json.RawMessage   `json:"data,omitempty"`
	Sources []JobSourceGroup  `json:"sources,omitempty"`
	Batch   []json.RawMessage `json:"-"` // populated only for renderbatch after decode
}

// JobSourceGroup names a source and the VRT groups (lists of source-store
// paths) the worker should localize before rendering.
type JobSourceGroup struct {
	Source string     `json:"source"`
	Vrts   [][]string `json:"vrts"`
}

// jobWire is the literal wire shape, since "data" is polymorphic
// (a single tile for render/download, an array of tiles for renderbatch).
type jobWire struct {
	Job     string            `json:"job"`
	Data    json.RawMessage   `json:"data,omitempty"`
	Sources []JobSourceGroup  `json:"sources,omitempty"`
}

// DecodeJob parses one job object from a queue message.
func DecodeJob(raw json.RawMessage) (Job, error) {
	var w jobWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Job{}, err
	}
	j := Job{Kind: w.Job, Sources: w.Sources}
	if w.Job == "renderbatch" {
		var batch []json.RawMessage
		if err := json.Unmarshal(w.Data, &batch); err != nil {
			return Job{}, err
		}
		j.Batch = batch
	} else {
		j.Data = w.Data
	}
	return j, nil
}

// EncodeJob is the inverse of DecodeJob, used by the queue batches.
func EncodeJob(j Job) (json.RawMessage, error) {
	w := jobWire{Job: j.Kind, Sources: j.Sources}
	if j.Kind == "renderbatch" {
		data, err := json.Marshal(j.Batch)
		if err != nil {
			return nil, err
		}
		w.Data = data
	} else {
		w.Data = j.Data
	}
	return json.Marshal(w)
}
