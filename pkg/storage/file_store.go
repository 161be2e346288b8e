package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore saves uploaded files to disk under a base directory.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Put writes r to the file named by key. A partially written file is removed.
func (f *FileStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	target, err := f.path(key)
	if err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = os.Remove(target)
		return fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(target)
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// Get opens the file stored under key.
func (f *FileStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := f.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// Delete removes the file stored under key. A missing file is not an error.
func (f *FileStore) Delete(_ context.Context, key string) error {
	target, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (f *FileStore) path(key string) (string, error) {
	name := safeFilename(key)
	if name == "" {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(f.basePath, name), nil
}

func safeFilename(name string) string {
	name = strings.TrimSpace(filepath.Base(name))
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	if name == "." || name == ".." || name == string(os.PathSeparator) {
		return ""
	}
	return name
}
