package main

import (
	"context"
	"os"
	"path/filepath"
)

// FileStore stores blobs beneath a base directory on the local
// filesystem. Grounded on original_source/joerd/store/file.py.
type FileStore struct {
	BaseDir string
}

func NewFileStore(baseDir string) *FileStore {
	if baseDir == "" {
		baseDir = "."
	}
	return &FileStore{BaseDir: baseDir}
}

func (s *FileStore) Exists(ctx context.Context, path string) bool {
	_, err := os.Stat(filepath.Join(s.BaseDir, path))
	return err == nil
}

func (s *FileStore) Get(ctx context.Context, path, localPath string) error {
	return atomicCopy(filepath.Join(s.BaseDir, path), localPath)
}

func (s *FileStore) UploadDir(ctx context.Context, localDir string) error {
	return filepath.Walk(localDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		return atomicCopy(p, filepath.Join(s.BaseDir, rel))
	})
}
