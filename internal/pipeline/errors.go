package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/nickcecere/docvec/internal/blob"
	"github.com/nickcecere/docvec/internal/extract"
	"github.com/nickcecere/docvec/internal/vectorsync"
)

var (
	// ErrStoreRequired is returned when no file store is provided.
	ErrStoreRequired = errors.New("file store is required")

	// ErrBlobStoreRequired is returned when no blob store is provided.
	ErrBlobStoreRequired = errors.New("blob store is required")

	// ErrSyncRequired is returned when no vector index sync is provided.
	ErrSyncRequired = errors.New("vector index sync is required")

	// ErrRecordNotFound is returned for ids with no file record.
	ErrRecordNotFound = errors.New("file record not found")

	// ErrEmptyContent is returned when a document yields no usable text.
	ErrEmptyContent = errors.New("document has no usable text")

	// ErrInvalidTransition is returned for a vectorization status change
	// the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid vectorization status transition")

	// ErrNotStored is returned when vectorizing a file whose bytes were
	// never stored.
	ErrNotStored = errors.New("file upload is not complete")

	// ErrFileTooLarge is returned for uploads above the size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pipeline is closed")

	// ErrUploadInProgress is returned when another writer holds the
	// unfinished upload row for the same content.
	ErrUploadInProgress = errors.New("upload of identical content in progress")

	// ErrUploadSuperseded is returned when another writer took over the
	// upload row before this one finished.
	ErrUploadSuperseded = errors.New("upload superseded by another writer")
)

// Kind classifies pipeline failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicateContent
	KindUnsupportedFormat
	KindExtractionFailed
	KindEmptyContent
	KindIndexWriteFailed
	KindIndexDeleteFailed
	KindBlobIOFailed
	KindRecordNotFound
	KindRepository
	KindInvalidTransition
	KindFileTooLarge
	KindCancelled
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindDuplicateContent:  "duplicate_content",
	KindUnsupportedFormat: "unsupported_format",
	KindExtractionFailed:  "extraction_failed",
	KindEmptyContent:      "empty_content",
	KindIndexWriteFailed:  "index_write_failed",
	KindIndexDeleteFailed: "index_delete_failed",
	KindBlobIOFailed:      "blob_io_failed",
	KindRecordNotFound:    "record_not_found",
	KindRepository:        "repository",
	KindInvalidTransition: "invalid_transition",
	KindFileTooLarge:      "file_too_large",
	KindCancelled:         "cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified pipeline failure.
type Error struct {
	Op     string
	FileID int64
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	if e.FileID != 0 {
		return fmt.Sprintf("%s file %d: %s: %v", e.Op, e.FileID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Errors that are not *Error are classified by the
// sentinel they wrap.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}

	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, extract.ErrExtractionFailed):
		return KindExtractionFailed
	case errors.Is(err, ErrEmptyContent):
		return KindEmptyContent
	case errors.Is(err, vectorsync.ErrIndexWrite):
		return KindIndexWriteFailed
	case errors.Is(err, vectorsync.ErrIndexDelete):
		return KindIndexDeleteFailed
	case errors.Is(err, blob.ErrIO), errors.Is(err, blob.ErrNotFound):
		return KindBlobIOFailed
	case errors.Is(err, ErrRecordNotFound):
		return KindRecordNotFound
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotStored):
		return KindInvalidTransition
	case errors.Is(err, ErrFileTooLarge):
		return KindFileTooLarge
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	}
	return KindUnknown
}

// wrap classifies err under op. Already classified errors keep their kind.
func wrap(op string, fileID int64, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Op: op, FileID: fileID, Kind: KindOf(err), Err: err}
}
