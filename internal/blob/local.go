package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// LocalStore keeps blobs as files in a directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at dir. The directory is created on
// first write.
func NewLocalStore(dir string) (*LocalStore, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the absolute directory blobs are written to.
func (s *LocalStore) Root() string {
	return s.root
}

// Put implements Store.
func (s *LocalStore) Put(ctx context.Context, data []byte, suffix string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.root, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create upload directory: %v", ErrIO, err)
	}

	path := filepath.Join(s.root, newName(suffix))
	if err := os.WriteFile(path, data, 0644); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: failed to write blob: %v", ErrIO, err)
	}

	log.Debug("Stored blob", "path", path, "bytes", len(data))
	return path, nil
}

// Read implements Store.
func (s *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read blob: %v", ErrIO, err)
	}
	return data, nil
}

// Delete implements Store.
func (s *LocalStore) Delete(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}

	err = os.Remove(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: failed to delete blob: %v", ErrIO, err)
	}
	return true, nil
}

// Exists implements Store.
func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: failed to stat blob: %v", ErrIO, err)
	}
	return !info.IsDir(), nil
}

// Close implements Store.
func (s *LocalStore) Close() error {
	return nil
}

// resolve maps a stored path to a file inside the root. Relative paths are
// taken relative to the root; paths escaping it are rejected.
func (s *LocalStore) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotFound)
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.root, full)
	}
	full = filepath.Clean(full)

	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: path outside upload directory: %s", ErrNotFound, path)
	}
	return full, nil
}
