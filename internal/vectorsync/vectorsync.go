// Package vectorsync keeps the vector index in step with the file-of-record.
// It tags chunks with file metadata, searches with an in-process fallback
// for backends that cannot filter, and removes every entry of a file.
package vectorsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docvec/internal/fs"
	"github.com/nickcecere/docvec/internal/vectorindex"
)

var (
	// ErrIndexWrite wraps failures to add entries.
	ErrIndexWrite = errors.New("vector index write failed")

	// ErrIndexDelete wraps failures to locate or remove entries.
	ErrIndexDelete = errors.New("vector index delete failed")

	// ErrScanLimit means an unfiltered delete scan reached DeleteScanLimit
	// and entries past it may remain.
	ErrScanLimit = errors.New("scan limit reached, deletion incomplete")
)

// Metadata keys attached to every entry.
const (
	KeyFileID      = "fileId"
	KeyFileName    = "fileName"
	KeyFileHash    = "fileHash"
	KeyMediaType   = "mediaType"
	KeyDescription = "description"
	KeyCreatedAt   = "createdAt"
	KeyChunkIndex  = "chunkIndex"
	KeyTotalChunks = "totalChunks"
)

// FileMeta is the file-level metadata inherited by each chunk.
type FileMeta struct {
	ID          int64
	Name        string
	Hash        string
	MediaType   string
	Description string
	CreatedAt   time.Time
}

// Options tunes search fallback and deletion paging.
type Options struct {
	// FallbackCandidates is how many unfiltered results are fetched when
	// a filter has to be applied in process.
	FallbackCandidates int

	// DeleteScanLimit bounds the unfiltered scan used to locate entries
	// when the backend cannot filter.
	DeleteScanLimit int

	// FilterPageSize is the page size of filtered id lookups.
	FilterPageSize int
}

// DefaultOptions returns the default tuning.
func DefaultOptions() Options {
	return Options{
		FallbackCandidates: 1000,
		DeleteScanLimit:    10000,
		FilterPageSize:     1000,
	}
}

// Sync wraps a vector index with file-aware operations.
type Sync struct {
	index vectorindex.Index
	opts  Options
}

// New creates a Sync over index. Zero options take their defaults.
func New(index vectorindex.Index, opts Options) *Sync {
	defaults := DefaultOptions()
	if opts.FallbackCandidates <= 0 {
		opts.FallbackCandidates = defaults.FallbackCandidates
	}
	if opts.DeleteScanLimit <= 0 {
		opts.DeleteScanLimit = defaults.DeleteScanLimit
	}
	if opts.FilterPageSize <= 0 {
		opts.FilterPageSize = defaults.FilterPageSize
	}
	return &Sync{index: index, opts: opts}
}

// Index writes chunks for file in a single Add and returns how many
// entries were written.
func (s *Sync) Index(ctx context.Context, file FileMeta, chunks []fs.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	docs := make([]vectorindex.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vectorindex.Document{
			Content: c.Content,
			Metadata: map[string]any{
				KeyFileID:      file.ID,
				KeyFileName:    file.Name,
				KeyFileHash:    file.Hash,
				KeyMediaType:   file.MediaType,
				KeyDescription: file.Description,
				KeyCreatedAt:   file.CreatedAt.UTC().Format(time.RFC3339),
				KeyChunkIndex:  c.ChunkIndex,
				KeyTotalChunks: c.TotalChunks,
			},
		}
	}

	ids, err := s.index.Add(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("%w: file %d: %w", ErrIndexWrite, file.ID, err)
	}

	log.Debug("Indexed chunks", "file", file.ID, "chunks", len(ids))
	return len(ids), nil
}

// Search runs a similarity search. A filter the backend cannot apply is
// applied in process to a wider unfiltered candidate set.
func (s *Sync) Search(ctx context.Context, req vectorindex.SearchRequest) ([]vectorindex.Document, error) {
	if len(req.Filter) == 0 {
		return s.index.SimilaritySearch(ctx, req)
	}

	if s.index.SupportsFilter() {
		docs, err := s.index.SimilaritySearch(ctx, req)
		if err == nil {
			return docs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("Filtered search failed, filtering in process", "filter", req.Filter, "error", err)
	}

	return s.searchFallback(ctx, req)
}

func (s *Sync) searchFallback(ctx context.Context, req vectorindex.SearchRequest) ([]vectorindex.Document, error) {
	candidates, err := s.index.SimilaritySearch(ctx, vectorindex.SearchRequest{
		Query:     req.Query,
		TopK:      s.opts.FallbackCandidates,
		Threshold: req.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search candidates: %w", err)
	}

	var out []vectorindex.Document
	for _, d := range candidates {
		if !vectorindex.Matches(d.Metadata, req.Filter) {
			continue
		}
		out = append(out, d)
		if req.TopK > 0 && len(out) == req.TopK {
			break
		}
	}
	return out, nil
}

// DeleteByFile removes every entry of the file and returns how many were
// removed. No entries is not an error.
func (s *Sync) DeleteByFile(ctx context.Context, fileID int64) (int, error) {
	n, err := s.deleteMatching(ctx, vectorindex.Filter{KeyFileID: fileID})
	if err != nil {
		return n, fmt.Errorf("%w: file %d: %w", ErrIndexDelete, fileID, err)
	}
	return n, nil
}

// DeleteByHash removes every entry tagged with the content hash.
func (s *Sync) DeleteByHash(ctx context.Context, hash string) (int, error) {
	n, err := s.deleteMatching(ctx, vectorindex.Filter{KeyFileHash: hash})
	if err != nil {
		return n, fmt.Errorf("%w: hash %s: %w", ErrIndexDelete, hash, err)
	}
	return n, nil
}

// Count returns the number of entries in the index.
func (s *Sync) Count(ctx context.Context) (int, error) {
	return s.index.Count(ctx)
}

func (s *Sync) deleteMatching(ctx context.Context, f vectorindex.Filter) (int, error) {
	paged := 0
	if s.index.SupportsFilter() {
		n, err := s.deletePaged(ctx, f)
		if err == nil {
			return n, nil
		}
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		log.Warn("Filtered delete failed, scanning index", "filter", f, "error", err)
		paged = n
	}

	n, err := s.deleteScan(ctx, f)
	return paged + n, err
}

// deleteScan matches a bounded unfiltered scan in process. A scan that
// fills DeleteScanLimit may have missed entries beyond it, so it deletes
// what it found and reports ErrScanLimit.
func (s *Sync) deleteScan(ctx context.Context, f vectorindex.Filter) (int, error) {
	docs, err := s.index.SimilaritySearch(ctx, vectorindex.SearchRequest{TopK: s.opts.DeleteScanLimit})
	if err != nil {
		return 0, fmt.Errorf("failed to scan index: %w", err)
	}
	saturated := len(docs) >= s.opts.DeleteScanLimit
	if saturated {
		if total, err := s.index.Count(ctx); err == nil && total <= len(docs) {
			saturated = false
		}
	}

	var ids []string
	for _, d := range docs {
		if vectorindex.Matches(d.Metadata, f) {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) > 0 {
		if err := s.index.Delete(ctx, ids); err != nil {
			return 0, err
		}
	}
	if saturated {
		return len(ids), fmt.Errorf("%w: scanned %d entries", ErrScanLimit, len(docs))
	}
	return len(ids), nil
}

// deletePaged looks up ids a page at a time and deletes each page until
// a short page comes back.
func (s *Sync) deletePaged(ctx context.Context, f vectorindex.Filter) (int, error) {
	seen := make(map[string]bool)
	total := 0

	for {
		docs, err := s.index.SimilaritySearch(ctx, vectorindex.SearchRequest{TopK: s.opts.FilterPageSize, Filter: f})
		if err != nil {
			return total, err
		}

		var ids []string
		for _, d := range docs {
			if !seen[d.ID] {
				seen[d.ID] = true
				ids = append(ids, d.ID)
			}
		}
		// Entries that survive a delete would otherwise loop forever
		if len(ids) == 0 {
			return total, nil
		}

		if err := s.index.Delete(ctx, ids); err != nil {
			return total, err
		}
		total += len(ids)

		if len(docs) < s.opts.FilterPageSize {
			return total, nil
		}
	}
}
