package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore keeps objects on local disk. It backs single-node deployments
// and tests that do not run MinIO.
type FileStore struct {
	basePath string
}

// NewFileStore creates basePath when missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (f *FileStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	target, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (f *FileStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := f.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// PresignGet has no signing on disk; it returns a file:// URL.
func (f *FileStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	target, err := f.resolve(key)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(target), nil
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	target, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (f *FileStore) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", fmt.Errorf("object key is required")
	}
	return filepath.Join(f.basePath, filepath.FromSlash(clean)), nil
}
