package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const snapshotExt = ".snap"

// FileStore keeps one file per key in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Name() string { return "file" }

// Path returns the file that holds key.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, key+snapshotExt)
}

func (s *FileStore) Put(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return WriteFileAtomic(s.Path(key), data)
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound("file", key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) Close() error { return nil }

// WriteFileAtomic writes data to a uniquely named temporary sibling of path,
// syncs it and renames it over path, so readers see either the old or the
// new content and concurrent writers never share a temp file.
func WriteFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := f.Chmod(0644); err != nil {
		return fmt.Errorf("setting snapshot permissions: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	return nil
}

// Ping reports whether the snapshot directory is still reachable.
func (s *FileStore) Ping(context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	return nil
}
