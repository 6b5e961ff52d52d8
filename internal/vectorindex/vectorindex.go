// Package vectorindex stores embedded text with metadata and answers
// similarity queries. Backends: sqlite-vec, Qdrant and in-memory.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/nickcecere/docvec/internal/embeddings"
)

// ErrFilterUnsupported is returned by backends that cannot filter on
// metadata when a search carries a filter.
var ErrFilterUnsupported = errors.New("metadata filter not supported")

// Document is an entry of the index.
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"` // Similarity, set by searches
}

// Filter is a conjunction of metadata equality constraints.
type Filter map[string]any

// SearchRequest describes a similarity query. An empty Query matches every
// entry (subject to Filter) and ignores Threshold.
type SearchRequest struct {
	Query     string
	TopK      int
	Threshold float64
	Filter    Filter
}

// Index is an external vector index.
type Index interface {
	// Add embeds and stores docs, assigning IDs to those without one.
	// It returns the IDs in input order.
	Add(ctx context.Context, docs []Document) ([]string, error)

	// SimilaritySearch returns at most TopK documents, most similar first.
	SimilaritySearch(ctx context.Context, req SearchRequest) ([]Document, error)

	// Delete removes entries by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// SupportsFilter reports whether SimilaritySearch honors Filter.
	SupportsFilter() bool

	Close() error
}

// Matches reports whether metadata satisfies every constraint of f.
// Values compare by their printed form so JSON-decoded numbers match
// native integers.
func Matches(metadata map[string]any, f Filter) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// embedDocuments assigns missing IDs and embeds the contents of docs.
func embedDocuments(ctx context.Context, emb embeddings.Service, batch embeddings.BatchOptions, docs []Document) ([]string, [][]float32, error) {
	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		ids[i] = docs[i].ID
		texts[i] = docs[i].Content
	}

	vectors, err := embeddings.EmbedAll(ctx, emb, texts, batch)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	return ids, vectors, nil
}

// cosine returns the cosine similarity of a and b.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rank sorts docs by descending score, drops those under threshold and
// truncates to topK.
func rank(docs []Document, threshold float64, topK int) []Document {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })

	out := docs[:0]
	for _, d := range docs {
		if d.Score < threshold {
			continue
		}
		out = append(out, d)
		if topK > 0 && len(out) == topK {
			break
		}
	}
	return out
}

// copyMetadata returns a shallow copy so callers cannot mutate stored maps.
func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
