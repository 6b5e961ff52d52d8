package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"
)

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const fileColumns = `id, content_hash, storage_path, media_type, size_bytes, original_name, suffix,
	description, upload_status, vectorization_status, vectorized_at, created_at, updated_at`

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite store at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Initialize schema
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug("Opened SQLite store", "path", dbPath)

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindByHash retrieves a file by its content hash.
func (s *SQLiteStore) FindByHash(hash string) (*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE content_hash = ?", hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file by hash: %w", err)
	}
	return record, nil
}

// FindByID retrieves a file by ID.
func (s *SQLiteStore) FindByID(id int64) (*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return record, nil
}

// ClaimHash inserts record unless a row with the same content hash exists,
// and returns the row that owns the hash. created reports whether this
// call inserted it.
func (s *SQLiteStore) ClaimHash(record FileRecord) (*FileRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	setDefaults(&record, now)

	result, err := tx.Exec(`
		INSERT INTO files (content_hash, storage_path, media_type, size_bytes, original_name, suffix,
			description, upload_status, vectorization_status, vectorized_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING
	`, insertArgs(&record)...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim hash: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check claim: %w", err)
	}

	owner, err := scanFile(tx.QueryRow("SELECT "+fileColumns+" FROM files WHERE content_hash = ?", record.ContentHash))
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch claimed file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit claim: %w", err)
	}

	return owner, affected == 1, nil
}

// Insert adds a new file and sets its ID and timestamps.
func (s *SQLiteStore) Insert(record *FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	setDefaults(record, time.Now().UTC())

	result, err := s.db.Exec(`
		INSERT INTO files (content_hash, storage_path, media_type, size_bytes, original_name, suffix,
			description, upload_status, vectorization_status, vectorized_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, insertArgs(record)...)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get file ID: %w", err)
	}
	record.ID = id

	return nil
}

// Update overwrites every mutable column of an existing file.
func (s *SQLiteStore) Update(record *FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.UpdatedAt = time.Now().UTC()

	result, err := s.db.Exec(`
		UPDATE files SET storage_path = ?, media_type = ?, size_bytes = ?, original_name = ?, suffix = ?,
			description = ?, upload_status = ?, vectorization_status = ?, vectorized_at = ?, updated_at = ?
		WHERE id = ?
	`, record.StoragePath, record.MediaType, record.SizeBytes, record.OriginalName, record.Suffix,
		record.Description, string(record.UploadStatus), string(record.VectorizationStatus),
		formatTimePtr(record.VectorizedAt), record.UpdatedAt.Format(timeFormat), record.ID)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to update file: no file with id %d", record.ID)
	}

	return nil
}

// Delete removes a file row. It reports whether a row was removed.
func (s *SQLiteStore) Delete(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM files WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check delete: %w", err)
	}
	return n > 0, nil
}

// UpdateDescription sets the free-form description of a file.
func (s *SQLiteStore) UpdateDescription(id int64, description string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(timeFormat)
	result, err := s.db.Exec("UPDATE files SET description = ?, updated_at = ? WHERE id = ?", description, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to update description: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check update: %w", err)
	}
	return n > 0, nil
}

// TransitionVectorization moves a file from one vectorization status to
// another only if it is still in the expected status. vectorizedAt is
// written alongside the new status. It reports whether the row changed.
func (s *SQLiteStore) TransitionVectorization(id int64, from, to VectorizationStatus, vectorizedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(timeFormat)
	result, err := s.db.Exec(`
		UPDATE files SET vectorization_status = ?, vectorized_at = ?, updated_at = ?
		WHERE id = ? AND vectorization_status = ?
	`, string(to), formatTimePtr(vectorizedAt), now, id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update vectorization status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check status update: %w", err)
	}
	return n == 1, nil
}

// TakeOverUpload claims an unfinished upload row for a new writer. It
// applies only while the row still has the given upload status and
// updated_at; the claim resets the row to pending with a fresh updated_at,
// so the previous writer can no longer finish it. The returned record is
// the claimed row.
func (s *SQLiteStore) TakeOverUpload(id int64, status UploadStatus, updatedAt time.Time) (*FileRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	result, err := s.db.Exec(`
		UPDATE files SET upload_status = ?, updated_at = ?
		WHERE id = ? AND upload_status = ? AND updated_at = ?
	`, string(UploadPending), now.Format(timeFormat), id, string(status), updatedAt.UTC().Format(timeFormat))
	if err != nil {
		return nil, false, fmt.Errorf("failed to take over upload: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil || n != 1 {
		return nil, false, err
	}

	rec, err := scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE id = ?", id))
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch claimed upload: %w", err)
	}
	return rec, true, nil
}

// FinishUpload records the outcome of a claimed upload. It applies only
// while the row is pending with the claimant's updated_at and reports
// whether it did.
func (s *SQLiteStore) FinishUpload(id int64, claimedAt time.Time, storagePath string, status UploadStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE files SET storage_path = ?, upload_status = ?, updated_at = ?
		WHERE id = ? AND upload_status = ? AND updated_at = ?
	`, storagePath, string(status), time.Now().UTC().Format(timeFormat),
		id, string(UploadPending), claimedAt.UTC().Format(timeFormat))
	if err != nil {
		return false, fmt.Errorf("failed to finish upload: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check upload finish: %w", err)
	}
	return n == 1, nil
}

// ListByNameLike returns files whose original name contains pattern,
// case-insensitively.
func (s *SQLiteStore) ListByNameLike(pattern string) ([]FileRecord, error) {
	like := "%" + escapeLike(pattern) + "%"
	return s.query(
		"SELECT "+fileColumns+" FROM files WHERE original_name LIKE ? ESCAPE '\\' ORDER BY created_at DESC, id DESC",
		like,
	)
}

// ListByType returns files with the given media type.
func (s *SQLiteStore) ListByType(mediaType string) ([]FileRecord, error) {
	return s.query(
		"SELECT "+fileColumns+" FROM files WHERE media_type = ? ORDER BY created_at DESC, id DESC",
		mediaType,
	)
}

// List returns files newest first.
func (s *SQLiteStore) List(opts ListOptions) ([]FileRecord, error) {
	query := "SELECT " + fileColumns + " FROM files"
	var args []any

	if opts.Status != "" {
		query += " WHERE vectorization_status = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
		if opts.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", opts.Offset)
		}
	}

	return s.query(query, args...)
}

// Count returns the number of files.
func (s *SQLiteStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}

// Stats returns file counts and sizes.
func (s *SQLiteStore) Stats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ByStatus: make(map[VectorizationStatus]int)}
	for _, status := range VectorizationStatuses {
		stats.ByStatus[status] = 0
	}

	err := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM files").Scan(&stats.FileCount, &stats.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to get file stats: %w", err)
	}

	rows, err := s.db.Query("SELECT vectorization_status, COUNT(*) FROM files GROUP BY vectorization_status")
	if err != nil {
		return nil, fmt.Errorf("failed to get status counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[VectorizationStatus(status)] = count
	}

	return &stats, rows.Err()
}

// query runs a SELECT returning file rows.
func (s *SQLiteStore) query(query string, args ...any) ([]FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		record, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, *record)
	}

	return files, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*FileRecord, error) {
	var record FileRecord
	var uploadStatus, vectorStatus, createdAt, updatedAt string
	var vectorizedAt sql.NullString

	if err := row.Scan(
		&record.ID, &record.ContentHash, &record.StoragePath, &record.MediaType,
		&record.SizeBytes, &record.OriginalName, &record.Suffix, &record.Description,
		&uploadStatus, &vectorStatus, &vectorizedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	record.UploadStatus = UploadStatus(uploadStatus)
	record.VectorizationStatus = VectorizationStatus(vectorStatus)
	record.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	record.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	if vectorizedAt.Valid {
		if t, err := time.Parse(timeFormat, vectorizedAt.String); err == nil {
			record.VectorizedAt = &t
		}
	}

	return &record, nil
}

// setDefaults fills statuses and timestamps of a new record.
func setDefaults(record *FileRecord, now time.Time) {
	if record.UploadStatus == "" {
		record.UploadStatus = UploadPending
	}
	if record.VectorizationStatus == "" {
		record.VectorizationStatus = VectorNotStarted
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
}

func insertArgs(record *FileRecord) []any {
	return []any{
		record.ContentHash, record.StoragePath, record.MediaType, record.SizeBytes,
		record.OriginalName, record.Suffix, record.Description,
		string(record.UploadStatus), string(record.VectorizationStatus),
		formatTimePtr(record.VectorizedAt),
		record.CreatedAt.UTC().Format(timeFormat), record.UpdatedAt.UTC().Format(timeFormat),
	}
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

// escapeLike escapes LIKE wildcards so pattern matches literally.
func escapeLike(pattern string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(pattern)
}
