package vectorindex

import (
	"context"
	"sync"

	"github.com/nickcecere/docvec/internal/embeddings"
)

// MemoryIndex keeps entries in process and ranks them by brute-force
// cosine similarity. Entries live only as long as the process.
type MemoryIndex struct {
	mu      sync.RWMutex
	emb     embeddings.Service
	batch   embeddings.BatchOptions
	order   []string
	entries map[string]memoryEntry
}

type memoryEntry struct {
	doc    Document
	vector []float32
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex(emb embeddings.Service, batch embeddings.BatchOptions) *MemoryIndex {
	return &MemoryIndex{
		emb:     emb,
		batch:   batch,
		entries: make(map[string]memoryEntry),
	}
}

// Add implements Index.
func (m *MemoryIndex) Add(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	ids, vectors, err := embedDocuments(ctx, m.emb, m.batch, docs)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range docs {
		if _, exists := m.entries[d.ID]; !exists {
			m.order = append(m.order, d.ID)
		}
		d.Metadata = copyMetadata(d.Metadata)
		d.Score = 0
		m.entries[d.ID] = memoryEntry{doc: d, vector: vectors[i]}
	}

	return ids, nil
}

// SimilaritySearch implements Index. Filters are matched in process.
func (m *MemoryIndex) SimilaritySearch(ctx context.Context, req SearchRequest) ([]Document, error) {
	if req.Query == "" {
		m.mu.RLock()
		defer m.mu.RUnlock()

		var out []Document
		for _, id := range m.order {
			if req.TopK > 0 && len(out) == req.TopK {
				break
			}
			d := m.entries[id].doc
			if !Matches(d.Metadata, req.Filter) {
				continue
			}
			d.Metadata = copyMetadata(d.Metadata)
			out = append(out, d)
		}
		return out, nil
	}

	query, err := m.emb.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	docs := make([]Document, 0, len(m.order))
	for _, id := range m.order {
		e := m.entries[id]
		if !Matches(e.doc.Metadata, req.Filter) {
			continue
		}
		d := e.doc
		d.Metadata = copyMetadata(d.Metadata)
		d.Score = cosine(query, e.vector)
		docs = append(docs, d)
	}
	m.mu.RUnlock()

	return rank(docs, req.Threshold, req.TopK), nil
}

// Delete implements Index.
func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := m.entries[id]; ok {
			delete(m.entries, id)
			removed[id] = true
		}
	}
	if len(removed) == 0 {
		return nil
	}

	order := m.order[:0]
	for _, id := range m.order {
		if !removed[id] {
			order = append(order, id)
		}
	}
	m.order = order

	return nil
}

// Count implements Index.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// SupportsFilter implements Index.
func (m *MemoryIndex) SupportsFilter() bool {
	return true
}

// Close implements Index.
func (m *MemoryIndex) Close() error {
	return nil
}
