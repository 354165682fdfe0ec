package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// CacheStore wraps an inner Store but intercepts Get for a whitelisted
// set of paths (matched by substring, e.g. the single global ETOPO1
// raster): the first Get copies the blob into a local cache directory,
// and every subsequent Get hard-links from the cache into the
// destination. This avoids re-downloading large, frequently reused world
// rasters on every job.
//
// Grounded on original_source/joerd/store/cache.py, which hard-codes the
// check to the substring "ETOPO1"; generalized here to a configurable
// list of substrings so other large global sources (e.g. GMTED blocks)
// can opt in without code changes.
type CacheStore struct {
	inner      Store
	cacheDir   string
	substrings []string
}

func NewCacheStore(inner Store, cacheDir string, substrings []string) *CacheStore {
	return &CacheStore{inner: inner, cacheDir: cacheDir, substrings: substrings}
}

func (c *CacheStore) cacheable(path string) bool {
	for _, s := range c.substrings {
		if strings.Contains(path, s) {
			return true
		}
	}
	return false
}

func (c *CacheStore) Exists(ctx context.Context, path string) bool {
	return c.inner.Exists(ctx, path)
}

func (c *CacheStore) UploadDir(ctx context.Context, localDir string) error {
	return c.inner.UploadDir(ctx, localDir)
}

func (c *CacheStore) Get(ctx context.Context, path, dest string) error {
	if !c.cacheable(path) {
		return c.inner.Get(ctx, path, dest)
	}

	cachePath := filepath.Join(c.cacheDir, path)
	if _, err := os.Stat(cachePath); err != nil {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
			return err
		}
		if err := c.inner.Get(ctx, path, cachePath); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	// Hard link rather than copy: this makes the cache non-portable
	// across filesystems, but means deletion of dest is reference
	// counted by the OS and we never need to worry about a raster I/O
	// library's ability to follow symlinks.
	if err := os.Link(cachePath, dest); err != nil {
		return atomicCopy(cachePath, dest)
	}
	return nil
}
