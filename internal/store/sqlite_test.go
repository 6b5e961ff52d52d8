package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	// Verify database file was created
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestSchemaReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Insert(&FileRecord{ContentHash: "h1"}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSchemaVersion(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	v, err := readSchemaVersion(store.db)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion(), v)

	// Re-running is a no-op
	require.NoError(t, initSchema(store.db))

	_, err = store.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion()+1)
	require.NoError(t, err)
	assert.ErrorContains(t, initSchema(store.db), "newer than this build")
}

func TestInsertAndFind(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	record := &FileRecord{
		ContentHash:  "abc123",
		StoragePath:  "/uploads/x.md",
		MediaType:    "text/markdown",
		SizeBytes:    42,
		OriginalName: "notes.md",
		Suffix:       ".md",
		Description:  "meeting notes",
	}
	require.NoError(t, store.Insert(record))
	assert.NotZero(t, record.ID)
	assert.Equal(t, UploadPending, record.UploadStatus)
	assert.Equal(t, VectorNotStarted, record.VectorizationStatus)

	byID, err := store.FindByID(record.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "abc123", byID.ContentHash)
	assert.Equal(t, "/uploads/x.md", byID.StoragePath)
	assert.Equal(t, "text/markdown", byID.MediaType)
	assert.Equal(t, int64(42), byID.SizeBytes)
	assert.Equal(t, "notes.md", byID.OriginalName)
	assert.Equal(t, ".md", byID.Suffix)
	assert.Equal(t, "meeting notes", byID.Description)
	assert.Nil(t, byID.VectorizedAt)
	assert.WithinDuration(t, time.Now(), byID.CreatedAt, time.Minute)

	byHash, err := store.FindByHash("abc123")
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, record.ID, byHash.ID)

	// Missing records are nil without error
	missing, err := store.FindByID(9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = store.FindByHash("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertDuplicateHash(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	require.NoError(t, store.Insert(&FileRecord{ContentHash: "dup"}))
	err := store.Insert(&FileRecord{ContentHash: "dup"})
	assert.Error(t, err)
}

func TestClaimHash(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	first, created, err := store.ClaimHash(FileRecord{ContentHash: "h", OriginalName: "a.txt"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "a.txt", first.OriginalName)
	assert.Equal(t, UploadPending, first.UploadStatus)

	second, created, err := store.ClaimHash(FileRecord{ContentHash: "h", OriginalName: "b.txt"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "a.txt", second.OriginalName)
}

func TestClaimHashConcurrent(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	const workers = 16
	var wg sync.WaitGroup
	ids := make([]int64, workers)
	createdCount := make([]bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, created, err := store.ClaimHash(FileRecord{ContentHash: "same", OriginalName: fmt.Sprintf("f%d", i)})
			if assert.NoError(t, err) {
				ids[i] = rec.ID
				createdCount[i] = created
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if createdCount[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTakeOverAndFinishUpload(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	rec, created, err := store.ClaimHash(FileRecord{ContentHash: "h"})
	require.NoError(t, err)
	require.True(t, created)

	// A second writer claims the pending row
	claimed, ok, err := store.TakeOverUpload(rec.ID, UploadPending, rec.UpdatedAt)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, UploadPending, claimed.UploadStatus)
	assert.True(t, claimed.UpdatedAt.After(rec.UpdatedAt))

	// The same stale snapshot cannot claim it again
	_, ok, err = store.TakeOverUpload(rec.ID, UploadPending, rec.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, ok)

	// The original writer can no longer finish
	finished, err := store.FinishUpload(rec.ID, rec.UpdatedAt, "/uploads/a.txt", UploadStored)
	require.NoError(t, err)
	assert.False(t, finished)

	finished, err = store.FinishUpload(claimed.ID, claimed.UpdatedAt, "/uploads/b.txt", UploadStored)
	require.NoError(t, err)
	assert.True(t, finished)

	got, err := store.FindByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, UploadStored, got.UploadStatus)
	assert.Equal(t, "/uploads/b.txt", got.StoragePath)

	// Stored rows are never taken over or finished again
	_, ok, err = store.TakeOverUpload(rec.ID, UploadStored, got.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, ok)
	finished, err = store.FinishUpload(rec.ID, got.UpdatedAt, "", UploadFailed)
	require.NoError(t, err)
	assert.False(t, finished)
}

func TestTakeOverFailedUpload(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	rec, _, err := store.ClaimHash(FileRecord{ContentHash: "h"})
	require.NoError(t, err)
	finished, err := store.FinishUpload(rec.ID, rec.UpdatedAt, "", UploadFailed)
	require.NoError(t, err)
	require.True(t, finished)

	failed, err := store.FindByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, UploadFailed, failed.UploadStatus)

	// The status must match as well as the timestamp
	_, ok, err := store.TakeOverUpload(rec.ID, UploadPending, failed.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, ok)

	claimed, ok, err := store.TakeOverUpload(rec.ID, UploadFailed, failed.UpdatedAt)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, UploadPending, claimed.UploadStatus)
}

func TestUpdate(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	record := &FileRecord{ContentHash: "h"}
	require.NoError(t, store.Insert(record))

	now := time.Now().UTC().Truncate(time.Second)
	record.StoragePath = "/uploads/new.txt"
	record.UploadStatus = UploadStored
	record.VectorizationStatus = VectorSucceeded
	record.VectorizedAt = &now
	require.NoError(t, store.Update(record))

	got, err := store.FindByID(record.ID)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/new.txt", got.StoragePath)
	assert.Equal(t, UploadStored, got.UploadStatus)
	assert.Equal(t, VectorSucceeded, got.VectorizationStatus)
	require.NotNil(t, got.VectorizedAt)
	assert.True(t, now.Equal(*got.VectorizedAt))

	err = store.Update(&FileRecord{ID: 12345})
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	record := &FileRecord{ContentHash: "h"}
	require.NoError(t, store.Insert(record))

	removed, err := store.Delete(record.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	got, err := store.FindByID(record.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting again is a no-op
	removed, err = store.Delete(record.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	// The hash can be claimed again
	_, created, err := store.ClaimHash(FileRecord{ContentHash: "h"})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestUpdateDescription(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	record := &FileRecord{ContentHash: "h"}
	require.NoError(t, store.Insert(record))

	ok, err := store.UpdateDescription(record.ID, "quarterly report")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.FindByID(record.ID)
	require.NoError(t, err)
	assert.Equal(t, "quarterly report", got.Description)

	ok, err = store.UpdateDescription(999, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransitionVectorization(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	record := &FileRecord{ContentHash: "h"}
	require.NoError(t, store.Insert(record))

	ok, err := store.TransitionVectorization(record.ID, VectorNotStarted, VectorInProgress, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// Stale expectation is rejected
	ok, err = store.TransitionVectorization(record.ID, VectorNotStarted, VectorInProgress, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	done := time.Now().UTC()
	ok, err = store.TransitionVectorization(record.ID, VectorInProgress, VectorSucceeded, &done)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.FindByID(record.ID)
	require.NoError(t, err)
	assert.Equal(t, VectorSucceeded, got.VectorizationStatus)
	require.NotNil(t, got.VectorizedAt)

	ok, err = store.TransitionVectorization(424242, VectorNotStarted, VectorInProgress, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListing(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	base := time.Now().UTC().Add(-time.Hour)
	inputs := []FileRecord{
		{ContentHash: "1", OriginalName: "Report_2024.pdf", MediaType: "application/pdf"},
		{ContentHash: "2", OriginalName: "notes.md", MediaType: "text/markdown"},
		{ContentHash: "3", OriginalName: "report-draft.md", MediaType: "text/markdown"},
		{ContentHash: "4", OriginalName: "100%.txt", MediaType: "text/plain"},
	}
	for i := range inputs {
		inputs[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Insert(&inputs[i]))
	}

	t.Run("list newest first", func(t *testing.T) {
		files, err := store.List(ListOptions{})
		require.NoError(t, err)
		require.Len(t, files, 4)
		assert.Equal(t, "100%.txt", files[0].OriginalName)
		assert.Equal(t, "Report_2024.pdf", files[3].OriginalName)
	})

	t.Run("list paginates", func(t *testing.T) {
		files, err := store.List(ListOptions{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "report-draft.md", files[0].OriginalName)
		assert.Equal(t, "notes.md", files[1].OriginalName)
	})

	t.Run("list by status", func(t *testing.T) {
		ok, err := store.TransitionVectorization(inputs[1].ID, VectorNotStarted, VectorInProgress, nil)
		require.NoError(t, err)
		require.True(t, ok)

		files, err := store.List(ListOptions{Status: VectorInProgress})
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, inputs[1].ID, files[0].ID)
	})

	t.Run("name like is case insensitive", func(t *testing.T) {
		files, err := store.ListByNameLike("report")
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})

	t.Run("name like escapes wildcards", func(t *testing.T) {
		files, err := store.ListByNameLike("%")
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "100%.txt", files[0].OriginalName)

		files, err = store.ListByNameLike("t_2")
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "Report_2024.pdf", files[0].OriginalName)
	})

	t.Run("by type", func(t *testing.T) {
		files, err := store.ListByType("text/markdown")
		require.NoError(t, err)
		assert.Len(t, files, 2)

		files, err = store.ListByType("image/png")
		require.NoError(t, err)
		assert.Empty(t, files)
	})
}

func TestStats(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FileCount)
	assert.Equal(t, int64(0), stats.TotalBytes)
	assert.Len(t, stats.ByStatus, len(VectorizationStatuses))

	a := &FileRecord{ContentHash: "a", SizeBytes: 100}
	b := &FileRecord{ContentHash: "b", SizeBytes: 50, VectorizationStatus: VectorSucceeded}
	require.NoError(t, store.Insert(a))
	require.NoError(t, store.Insert(b))

	stats, err = store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, int64(150), stats.TotalBytes)
	assert.Equal(t, 1, stats.ByStatus[VectorNotStarted])
	assert.Equal(t, 1, stats.ByStatus[VectorSucceeded])
	assert.Equal(t, 0, stats.ByStatus[VectorFailed])
}

// Helper function to create a test store
func setupTestStore(t *testing.T) *SQLiteStore {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	return store
}
