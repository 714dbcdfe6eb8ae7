// Package local implements the filesystem log archive backend.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Archive stores log blobs under a base directory, one file per key.
type Archive struct {
	basePath string
}

// New creates a local archive rooted at basePath.
func New(basePath string) (*Archive, error) {
	if basePath == "" {
		basePath = "data/logs"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &Archive{basePath: basePath}, nil
}

// Put writes the log content for key.
func (a *Archive) Put(ctx context.Context, key string, data io.Reader, size int64) error {
	fullPath := a.keyToPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Get opens the archived log for key.
func (a *Archive) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(a.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("log not archived: %s", key)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Exists checks whether a log file exists for key.
func (a *Archive) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := os.Stat(a.keyToPath(key)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat file: %w", err)
	}
	return true, nil
}

// Type returns "local".
func (a *Archive) Type() string { return "local" }

func (a *Archive) keyToPath(key string) string {
	return filepath.Join(a.basePath, filepath.FromSlash(key))
}
