package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalFileStorage writes uploads below a root directory and returns
// file:// URLs for them.
type LocalFileStorage struct {
	root string
}

func NewLocalFileStorage(root string) (*LocalFileStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve uploads dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &LocalFileStorage{root: abs}, nil
}

// Upload stores data at the relative path and returns its URL. Paths that
// would escape the root are rejected.
func (f *LocalFileStorage) Upload(ctx context.Context, data []byte, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel := filepath.Clean(filepath.FromSlash(strings.TrimLeft(path, "/")))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid upload path %q", path)
	}

	full := filepath.Join(f.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(full)}).String(), nil
}

// Open reads back an upload by the URL Upload returned.
func (f *LocalFileStorage) Open(rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return nil, fmt.Errorf("not a local upload url: %q", rawURL)
	}
	full := filepath.Clean(filepath.FromSlash(u.Path))
	if !strings.HasPrefix(full, f.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("upload url outside storage root: %q", rawURL)
	}
	return os.ReadFile(full)
}
