// Package blob stores raw uploaded bytes under generated names.
package blob

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when reading a path that holds no blob.
	ErrNotFound = errors.New("blob not found")

	// ErrIO wraps storage failures.
	ErrIO = errors.New("blob i/o failed")
)

// Store persists document bytes. Paths returned by Put are opaque to
// callers and are passed back unchanged to Read, Delete and Exists.
type Store interface {
	// Put writes data under a new unique name ending in suffix.
	Put(ctx context.Context, data []byte, suffix string) (string, error)

	// Read returns the bytes stored at path, or ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)

	// Delete removes path. Deleting a missing path is not an error; the
	// result reports whether anything was removed.
	Delete(ctx context.Context, path string) (bool, error)

	// Exists reports whether path holds a blob.
	Exists(ctx context.Context, path string) (bool, error)

	// Close releases resources held by the store.
	Close() error
}

// newName returns a random file name keeping the original suffix.
func newName(suffix string) string {
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	return uuid.NewString() + strings.ToLower(suffix)
}
