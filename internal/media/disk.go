package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

// DiskStore writes uploads to a local directory and serves them under a
// base URL (the router mounts the directory as a static file server).
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: baseURL}, nil
}

func (s *DiskStore) Upload(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	// Client filenames are untrusted; keep only the extension.
	name := uuid.NewString() + filepath.Ext(filepath.Base(filename))

	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return path.Join(s.baseURL, name), nil
}

// Dir exposes the storage directory for the static file route.
func (s *DiskStore) Dir() string { return s.dir }
