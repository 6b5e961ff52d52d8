// Package store provides the SQLite file-of-record for uploaded documents.
package store

import "time"

// UploadStatus tracks whether a file's bytes reached blob storage.
type UploadStatus string

const (
	UploadPending UploadStatus = "pending"
	UploadStored  UploadStatus = "stored"
	UploadFailed  UploadStatus = "failed"
)

// VectorizationStatus tracks the file's progress into the vector index.
type VectorizationStatus string

const (
	VectorNotStarted VectorizationStatus = "not_started"
	VectorInProgress VectorizationStatus = "in_progress"
	VectorSucceeded  VectorizationStatus = "succeeded"
	VectorFailed     VectorizationStatus = "failed"
)

// VectorizationStatuses lists every status in lifecycle order.
var VectorizationStatuses = []VectorizationStatus{
	VectorNotStarted, VectorInProgress, VectorSucceeded, VectorFailed,
}

// FileRecord represents an uploaded document.
type FileRecord struct {
	ID                  int64               `json:"id"`
	ContentHash         string              `json:"content_hash"` // BLAKE2b-256 hex, unique
	StoragePath         string              `json:"storage_path"`
	MediaType           string              `json:"media_type"`
	SizeBytes           int64               `json:"size_bytes"`
	OriginalName        string              `json:"original_name"`
	Suffix              string              `json:"suffix"` // With leading dot, may be empty
	Description         string              `json:"description"`
	UploadStatus        UploadStatus        `json:"upload_status"`
	VectorizationStatus VectorizationStatus `json:"vectorization_status"`
	VectorizedAt        *time.Time          `json:"vectorized_at,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// ListOptions contains options for listing files.
type ListOptions struct {
	Limit  int
	Offset int

	// Status limits results to one vectorization status when set.
	Status VectorizationStatus
}

// Stats contains statistics about the stored files.
type Stats struct {
	FileCount  int                         `json:"file_count"`
	TotalBytes int64                       `json:"total_bytes"`
	ByStatus   map[VectorizationStatus]int `json:"by_status"`
}
