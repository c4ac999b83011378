// Package local stores artifacts on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"claimsqa/internal/domain"
	"claimsqa/internal/port"
)

// Storage writes objects below a root directory. Keys are slash separated
// relative paths; writes go through a temp file and a rename so readers
// never see a partial object.
type Storage struct {
	root string
}

// New creates the root directory if needed.
func New(root string) (*Storage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return &Storage{root: abs}, nil
}

func (s *Storage) Upload(ctx context.Context, input port.UploadInput) (*port.UploadOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dst, err := s.path(input.Key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("local upload: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("local upload: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, input.Body); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("local upload write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("local upload close: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("local upload rename: %w", err)
	}

	return &port.UploadOutput{Location: "file://" + filepath.ToSlash(dst)}, nil
}

func (s *Storage) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("local download %s: %w", key, domain.ErrArtifactNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("local download: %w", err)
	}
	return data, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local delete: %w", err)
	}
	return nil
}

// path maps a key to a file below root, rejecting keys that escape it.
func (s *Storage) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}
