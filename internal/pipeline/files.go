package pipeline

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docvec/internal/blob"
	"github.com/nickcecere/docvec/internal/store"
	"github.com/nickcecere/docvec/internal/vectorindex"
	"github.com/nickcecere/docvec/internal/vectorsync"
)

// DeleteResult reports what a deletion removed.
type DeleteResult struct {
	FileID        int64 `json:"file_id"`
	Found         bool  `json:"found"`
	IndexEntries  int   `json:"index_entries"`
	BlobRemoved   bool  `json:"blob_removed"`
	RecordRemoved bool  `json:"record_removed"`
}

// DeleteFile removes a file's index entries, blob and record, in that
// order. A missing record is a successful no-op. An index failure still
// removes the blob and record but is returned as KindIndexDeleteFailed.
func (p *Pipeline) DeleteFile(ctx context.Context, id int64) (*DeleteResult, error) {
	p.cancelDrives(id)

	unlock := p.locks.LockID(id)
	defer unlock()

	result := &DeleteResult{FileID: id}

	rec, err := p.store.FindByID(id)
	if err != nil {
		return result, &Error{Op: "delete", FileID: id, Kind: KindRepository, Err: err}
	}
	if rec == nil {
		return result, nil
	}
	result.Found = true

	n, indexErr := p.sync.DeleteByFile(ctx, id)
	result.IndexEntries = n
	if indexErr != nil {
		log.Warn("Failed to delete index entries", "file", id, "error", indexErr)
	}

	if rec.StoragePath != "" {
		removed, err := p.blobs.Delete(ctx, rec.StoragePath)
		if err != nil && !errors.Is(err, blob.ErrNotFound) {
			return result, &Error{Op: "delete", FileID: id, Kind: KindBlobIOFailed, Err: err}
		}
		result.BlobRemoved = removed
	}

	ok, err := p.store.Delete(id)
	if err != nil {
		return result, &Error{Op: "delete", FileID: id, Kind: KindRepository, Err: err}
	}
	result.RecordRemoved = ok

	log.Info("Deleted file", "file", id, "index_entries", n, "blob", result.BlobRemoved)

	if indexErr != nil {
		return result, &Error{Op: "delete", FileID: id, Kind: KindIndexDeleteFailed, Err: indexErr}
	}
	return result, nil
}

// ReadFile returns a file's record and stored bytes.
func (p *Pipeline) ReadFile(ctx context.Context, id int64) (*store.FileRecord, []byte, error) {
	rec, err := p.findRecord("read", id)
	if err != nil {
		return nil, nil, err
	}
	if rec.UploadStatus != store.UploadStored {
		return rec, nil, &Error{Op: "read", FileID: id, Kind: KindBlobIOFailed, Err: ErrNotStored}
	}

	data, err := p.blobs.Read(ctx, rec.StoragePath)
	if err != nil {
		return rec, nil, &Error{Op: "read", FileID: id, Kind: KindBlobIOFailed, Err: err}
	}
	return rec, data, nil
}

// Describe sets a file's description. Index entries carry the description
// from their last vectorization.
func (p *Pipeline) Describe(id int64, description string) (*store.FileRecord, error) {
	ok, err := p.store.UpdateDescription(id, description)
	if err != nil {
		return nil, &Error{Op: "describe", FileID: id, Kind: KindRepository, Err: err}
	}
	if !ok {
		return nil, &Error{Op: "describe", FileID: id, Kind: KindRecordNotFound, Err: ErrRecordNotFound}
	}
	return p.findRecord("describe", id)
}

// SearchSimilar returns the entries most similar to query across all files.
func (p *Pipeline) SearchSimilar(ctx context.Context, query string, topK int, threshold float64) ([]vectorindex.Document, error) {
	docs, err := p.sync.Search(ctx, vectorindex.SearchRequest{
		Query:     query,
		TopK:      topK,
		Threshold: threshold,
	})
	if err != nil {
		return nil, wrap("search", 0, err)
	}
	return docs, nil
}

// SearchInFile is SearchSimilar restricted to one file's entries.
func (p *Pipeline) SearchInFile(ctx context.Context, id int64, query string, topK int, threshold float64) ([]vectorindex.Document, error) {
	if _, err := p.findRecord("search", id); err != nil {
		return nil, err
	}

	docs, err := p.sync.Search(ctx, vectorindex.SearchRequest{
		Query:     query,
		TopK:      topK,
		Threshold: threshold,
		Filter:    vectorindex.Filter{vectorsync.KeyFileID: id},
	})
	if err != nil {
		return nil, wrap("search", id, err)
	}
	return docs, nil
}

// IndexedEntries returns the number of entries in the vector index.
func (p *Pipeline) IndexedEntries(ctx context.Context) (int, error) {
	return p.sync.Count(ctx)
}
