package main

import (
	"errors"
	"fmt"
)

// Sentinel error kinds surfaced at job and process boundaries. Each is
// wrapped with context via fmt.Errorf("...: %w", err) at the point it's
// raised, and compared with errors.Is at the point it's handled.
var (
	// ErrDownloadFailed means the downloader exhausted its retries or the
	// caller-supplied verifier rejected the content.
	ErrDownloadFailed = errors.New("download failed")

	// ErrUnpackFailed means a source's Unpack step could not produce a
	// canonical raster from the downloaded bytes (archive corruption,
	// missing member, reprojection error).
	ErrUnpackFailed = errors.New("unpack failed")

	// ErrMissingInput means a render job referenced a source-store path
	// that could not be fetched.
	ErrMissingInput = errors.New("missing input")

	// ErrQueue means a transient send/receive failure against the queue
	// transport that persisted past the transport's own retries.
	ErrQueue = errors.New("queue error")

	// ErrConfig means a fatal configuration problem found at startup.
	// Never retried; the process exits nonzero.
	ErrConfig = errors.New("config error")

	// ErrOutOfSpace names the out-of-space error kind. No code path
	// returns it: there is no disk-reclaiming policy.
	ErrOutOfSpace = errors.New("out of space")
)

// errUnpackCount reports a mismatch between the number of temp files a
// source's Unpack received and the number its URLs() promised.
func errUnpackCount(source string, want, got int) error {
	return fmt.Errorf("%w: %s unpack expects %d temp file(s), got %d", ErrUnpackFailed, source, want, got)
}
