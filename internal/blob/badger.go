package blob

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// blobPrefix namespaces blob keys inside the database.
const blobPrefix = "blob:"

// BadgerStore keeps blobs in an embedded badger database. Paths are the
// generated names.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger routes badger's logging through the package logger.
type badgerLogger struct{}

var _ badger.Logger = badgerLogger{}

func (badgerLogger) Errorf(msg string, args ...any)   { log.Errorf(msg, args...) }
func (badgerLogger) Warningf(msg string, args ...any) { log.Warnf(msg, args...) }
func (badgerLogger) Infof(msg string, args ...any)    { log.Debugf(msg, args...) }
func (badgerLogger) Debugf(msg string, args ...any)   { log.Debugf(msg, args...) }

// NewBadgerStore opens (or creates) a badger database in dir. An empty dir
// opens an in-memory database.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create blob directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = badgerLogger{}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob database: %w", err)
	}

	log.Debug("Opened badger blob store", "dir", dir)
	return &BadgerStore{db: db}, nil
}

// Put implements Store.
func (s *BadgerStore) Put(ctx context.Context, data []byte, suffix string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := newName(suffix)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(name), data)
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to write blob: %v", ErrIO, err)
	}
	return name, nil
}

// Read implements Store.
func (s *BadgerStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(path))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read blob: %v", ErrIO, err)
	}
	return data, nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	removed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(path)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		removed = true
		return txn.Delete(key(path))
	})
	if err != nil {
		return false, fmt.Errorf("%w: failed to delete blob: %v", ErrIO, err)
	}
	return removed, nil
}

// Exists implements Store.
func (s *BadgerStore) Exists(ctx context.Context, path string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key(path))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: failed to stat blob: %v", ErrIO, err)
	}
	return true, nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func key(path string) []byte {
	return []byte(blobPrefix + path)
}
