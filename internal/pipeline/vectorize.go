package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docvec/internal/clean"
	"github.com/nickcecere/docvec/internal/extract"
	"github.com/nickcecere/docvec/internal/store"
	"github.com/nickcecere/docvec/internal/vectorsync"
)

// VectorizeExisting runs the drive sequence for a stored file and waits
// for it. It reports whether the file ended up vectorized.
func (p *Pipeline) VectorizeExisting(ctx context.Context, id int64) (bool, error) {
	if err := p.vectorize(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// VectorizeAsync queues the drive sequence on the background pool.
// Failures are recorded on the file's status and logged.
func (p *Pipeline) VectorizeAsync(id int64) error {
	if _, err := p.findRecord("vectorize", id); err != nil {
		return err
	}

	return p.submit(func() {
		if err := p.vectorize(context.Background(), id); err != nil {
			log.Error("Vectorization failed", "file", id, "kind", KindOf(err), "error", err)
		}
	})
}

// vectorize is the drive sequence. It holds the file's lock throughout and
// can be cancelled by DeleteFile.
func (p *Pipeline) vectorize(ctx context.Context, id int64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d := p.register(id, cancel)
	defer p.unregister(id, d)

	unlock := p.locks.LockID(id)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return &Error{Op: "vectorize", FileID: id, Kind: KindCancelled, Err: err}
	}

	rec, err := p.findRecord("vectorize", id)
	if err != nil {
		return err
	}
	if rec.UploadStatus != store.UploadStored {
		return &Error{Op: "vectorize", FileID: id, Kind: KindInvalidTransition,
			Err: fmt.Errorf("%w: upload status %s", ErrNotStored, rec.UploadStatus)}
	}

	// Unsupported formats fail before the status moves
	if mediaType := extract.Normalize(rec.MediaType); !extract.Allowed[mediaType] {
		return &Error{Op: "vectorize", FileID: id, Kind: KindUnsupportedFormat,
			Err: fmt.Errorf("%w: %q", extract.ErrUnsupportedFormat, mediaType)}
	}

	if err := p.transition(id, rec.VectorizationStatus, store.VectorInProgress, nil); err != nil {
		return err
	}

	start := time.Now()
	n, err := p.run(ctx, rec)
	if err == nil && ctx.Err() != nil {
		err = &Error{Op: "vectorize", FileID: id, Kind: KindCancelled, Err: ctx.Err()}
	}
	if err != nil {
		p.markFailed(id)
		return err
	}

	now := time.Now().UTC()
	if err := p.transition(id, store.VectorInProgress, store.VectorSucceeded, &now); err != nil {
		return err
	}

	log.Info("Vectorized file", "file", id, "chunks", n, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// run extracts, cleans, chunks and indexes the file, replacing any chunk
// set it had before. It returns the number of entries written.
func (p *Pipeline) run(ctx context.Context, rec *store.FileRecord) (int, error) {
	id := rec.ID

	data, err := p.blobs.Read(ctx, rec.StoragePath)
	if err != nil {
		return 0, &Error{Op: "read blob", FileID: id, Kind: KindBlobIOFailed, Err: err}
	}

	text, err := p.extractor.Extract(ctx, data, rec.MediaType, rec.OriginalName)
	if err != nil {
		return 0, wrap("extract", id, err)
	}

	text = clean.Clean(text, extract.FormatHint(rec.MediaType, rec.Suffix))
	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, &Error{Op: "chunk", FileID: id, Kind: KindEmptyContent, Err: ErrEmptyContent}
	}
	log.Debug("Chunked file", "file", id, "chars", len(text), "chunks", len(chunks))

	if removed, err := p.sync.DeleteByFile(ctx, id); err != nil {
		return 0, &Error{Op: "replace chunks", FileID: id, Kind: KindIndexDeleteFailed, Err: err}
	} else if removed > 0 {
		log.Debug("Removed previous chunks", "file", id, "count", removed)
	}

	if err := ctx.Err(); err != nil {
		return 0, &Error{Op: "index", FileID: id, Kind: KindCancelled, Err: err}
	}

	n, err := p.sync.Index(ctx, fileMeta(rec), chunks)
	if err != nil {
		// Partial writes must not survive a failed drive
		if _, derr := p.sync.DeleteByFile(context.WithoutCancel(ctx), id); derr != nil {
			log.Warn("Failed to remove partial chunks", "file", id, "error", derr)
		}
		return 0, &Error{Op: "index", FileID: id, Kind: KindIndexWriteFailed, Err: err}
	}

	return n, nil
}

// markFailed records a failed drive unless the record has gone away.
func (p *Pipeline) markFailed(id int64) {
	ok, err := p.store.TransitionVectorization(id, store.VectorInProgress, store.VectorFailed, nil)
	if err != nil {
		log.Warn("Failed to mark vectorization failed", "file", id, "error", err)
		return
	}
	if !ok {
		log.Debug("File changed during vectorization", "file", id)
	}
}

func fileMeta(rec *store.FileRecord) vectorsync.FileMeta {
	return vectorsync.FileMeta{
		ID:          rec.ID,
		Name:        rec.OriginalName,
		Hash:        rec.ContentHash,
		MediaType:   rec.MediaType,
		Description: rec.Description,
		CreatedAt:   rec.CreatedAt,
	}
}
