package store

import "time"

// Store defines the repository of file records. Lookups that find nothing
// return nil without an error.
type Store interface {
	// Lookup
	FindByHash(hash string) (*FileRecord, error)
	FindByID(id int64) (*FileRecord, error)

	// Writes
	ClaimHash(record FileRecord) (*FileRecord, bool, error)
	Insert(record *FileRecord) error
	Update(record *FileRecord) error
	Delete(id int64) (bool, error)
	UpdateDescription(id int64, description string) (bool, error)
	TransitionVectorization(id int64, from, to VectorizationStatus, vectorizedAt *time.Time) (bool, error)
	TakeOverUpload(id int64, status UploadStatus, updatedAt time.Time) (*FileRecord, bool, error)
	FinishUpload(id int64, claimedAt time.Time, storagePath string, status UploadStatus) (bool, error)

	// Listing
	ListByNameLike(pattern string) ([]FileRecord, error)
	ListByType(mediaType string) ([]FileRecord, error)
	List(opts ListOptions) ([]FileRecord, error)
	Count() (int, error)

	// Stats
	Stats() (*Stats, error)

	Close() error
}
