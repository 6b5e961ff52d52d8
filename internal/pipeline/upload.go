package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docvec/internal/extract"
	"github.com/nickcecere/docvec/internal/fs"
	"github.com/nickcecere/docvec/internal/store"
)

// UploadRequest describes a document to ingest.
type UploadRequest struct {
	Data        []byte
	Name        string // Original file name
	MediaType   string // Declared media type, may be empty
	Description string
	Vectorize   bool // Queue vectorization after a new upload
}

// UploadResult is the outcome of an upload.
type UploadResult struct {
	*store.FileRecord

	// Deduplicated is set when identical content was already stored and
	// the existing record is returned unchanged.
	Deduplicated bool

	// Queued is set when background vectorization was submitted.
	Queued bool
}

// uploadOutcome is shared by callers collapsed onto one single-flight call.
type uploadOutcome struct {
	record  *store.FileRecord
	created bool
	owner   *byte
}

// Upload stores a document once per distinct content. Identical bytes
// return the existing record without storing or vectorizing again.
func (p *Pipeline) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if p.maxFileSize > 0 && int64(len(req.Data)) > p.maxFileSize {
		return nil, &Error{Op: "upload", Kind: KindFileTooLarge,
			Err: fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, len(req.Data), p.maxFileSize)}
	}

	hash := fs.HashContent(req.Data)

	token := new(byte)
	v, err, _ := p.uploads.Do(hash, func() (any, error) {
		rec, created, err := p.persist(ctx, hash, req)
		return uploadOutcome{record: rec, created: created, owner: token}, err
	})
	if err != nil {
		return nil, err
	}

	out := v.(uploadOutcome)
	rec := *out.record
	result := &UploadResult{
		FileRecord:   &rec,
		Deduplicated: !out.created || out.owner != token,
	}

	if result.Deduplicated {
		log.Debug("Duplicate content", "file", rec.ID, "hash", hash, "name", req.Name)
		return result, nil
	}

	log.Info("Stored file", "file", rec.ID, "name", rec.OriginalName, "media_type", rec.MediaType, "bytes", rec.SizeBytes)

	if req.Vectorize {
		if err := p.VectorizeAsync(rec.ID); err != nil {
			log.Warn("Failed to queue vectorization", "file", rec.ID, "error", err)
		} else {
			result.Queued = true
		}
	}

	return result, nil
}

// persist claims the hash and persists the bytes. It reports whether this
// call created the record.
func (p *Pipeline) persist(ctx context.Context, hash string, req UploadRequest) (*store.FileRecord, bool, error) {
	suffix := fs.Suffix(req.Name)
	claim := store.FileRecord{
		ContentHash:  hash,
		MediaType:    extract.Resolve(req.Data, req.MediaType, req.Name),
		SizeBytes:    int64(len(req.Data)),
		OriginalName: req.Name,
		Suffix:       suffix,
		Description:  req.Description,
		UploadStatus: store.UploadPending,
	}

	rec, created, err := p.store.ClaimHash(claim)
	if err != nil {
		return nil, false, &Error{Op: "upload", Kind: KindRepository, Err: err}
	}
	if rec.UploadStatus == store.UploadStored {
		return rec, false, nil
	}

	if !created {
		if rec, err = p.takeOver(rec); err != nil {
			return nil, false, err
		}
	}
	claimedAt := rec.UpdatedAt

	path, err := p.blobs.Put(ctx, req.Data, suffix)
	if err != nil {
		if _, uerr := p.store.FinishUpload(rec.ID, claimedAt, "", store.UploadFailed); uerr != nil {
			log.Warn("Failed to mark upload failed", "file", rec.ID, "error", uerr)
		}
		return nil, false, &Error{Op: "upload", FileID: rec.ID, Kind: KindBlobIOFailed, Err: err}
	}

	finished, err := p.store.FinishUpload(rec.ID, claimedAt, path, store.UploadStored)
	if err != nil || !finished {
		if _, derr := p.blobs.Delete(context.WithoutCancel(ctx), path); derr != nil {
			log.Warn("Failed to remove orphaned blob", "path", path, "error", derr)
		}
		if err != nil {
			return nil, false, &Error{Op: "upload", FileID: rec.ID, Kind: KindRepository, Err: err}
		}
		return nil, false, &Error{Op: "upload", FileID: rec.ID, Kind: KindDuplicateContent, Err: ErrUploadSuperseded}
	}

	stored, err := p.store.FindByID(rec.ID)
	if err != nil {
		return nil, false, &Error{Op: "upload", FileID: rec.ID, Kind: KindRepository, Err: err}
	}
	if stored == nil {
		return nil, false, &Error{Op: "upload", FileID: rec.ID, Kind: KindDuplicateContent, Err: ErrUploadSuperseded}
	}
	return stored, true, nil
}

// takeOver claims a pending or failed row left by another writer. A
// pending row inside its lease still belongs to that writer.
func (p *Pipeline) takeOver(rec *store.FileRecord) (*store.FileRecord, error) {
	if rec.UploadStatus == store.UploadPending && time.Since(rec.UpdatedAt) < p.uploadLease {
		return nil, &Error{Op: "upload", FileID: rec.ID, Kind: KindDuplicateContent, Err: ErrUploadInProgress}
	}

	claimed, ok, err := p.store.TakeOverUpload(rec.ID, rec.UploadStatus, rec.UpdatedAt)
	if err != nil {
		return nil, &Error{Op: "upload", FileID: rec.ID, Kind: KindRepository, Err: err}
	}
	if !ok {
		return nil, &Error{Op: "upload", FileID: rec.ID, Kind: KindDuplicateContent, Err: ErrUploadInProgress}
	}

	log.Debug("Resuming incomplete upload", "file", rec.ID, "status", rec.UploadStatus)
	return claimed, nil
}
