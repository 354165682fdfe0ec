package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store is the blob store abstraction: content-addressed-by-path storage
// with exists/get/upload operations. Grounded on
// original_source/joerd/store/{file,s3,cache}.py.
type Store interface {
	Exists(ctx context.Context, path string) bool
	Get(ctx context.Context, path, localPath string) error
	UploadDir(ctx context.Context, localDir string) error
}

// StoreFactory constructs a Store from plugin-specific config options.
type StoreFactory func(opts map[string]any) (Store, error)

var storeRegistry = map[string]StoreFactory{}

// RegisterStore adds a store plugin to the registry, replacing the
// original's importlib-based plugin(type, name, func) lookup with an
// explicit, compile-time-checked map populated at program start.
func RegisterStore(name string, f StoreFactory) {
	storeRegistry[name] = f
}

// NewStore resolves a store's "type" field through the registry.
func NewStore(opts map[string]any) (Store, error) {
	t, _ := opts["type"].(string)
	f, ok := storeRegistry[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown store type %q", ErrConfig, t)
	}
	return f(opts)
}

func init() {
	RegisterStore("file", func(opts map[string]any) (Store, error) {
		baseDir, _ := opts["base_dir"].(string)
		if baseDir == "" {
			baseDir = "."
		}
		return NewFileStore(baseDir), nil
	})
	RegisterStore("s3", func(opts map[string]any) (Store, error) {
		return NewS3StoreFromOptions(opts)
	})
	RegisterStore("cache", func(opts map[string]any) (Store, error) {
		innerOpts, _ := opts["store"].(map[string]any)
		inner, err := NewStore(innerOpts)
		if err != nil {
			return nil, err
		}
		cacheDir, _ := opts["cache_dir"].(string)
		var cachedSubstrings []string
		if raw, ok := opts["cached_substrings"].([]any); ok {
			for _, v := range raw {
				if s, ok := v.(string); ok {
					cachedSubstrings = append(cachedSubstrings, s)
				}
			}
		}
		if len(cachedSubstrings) == 0 {
			cachedSubstrings = []string{"ETOPO1"}
		}
		return NewCacheStore(inner, cacheDir, cachedSubstrings), nil
	})
}

// atomicCopy copies src to dst by writing to a sibling temp file and
// renaming into place, so a concurrent reader of dst never observes a
// partial write.
func atomicCopy(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := copyAndSync(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	tmp.Close()
	return os.Rename(tmp.Name(), dst)
}

func copyAndSync(dst *os.File, src io.Reader) (int64, error) {
	n, err := io.Copy(dst, src)
	if err != nil {
		return n, err
	}
	return n, dst.Sync()
}
