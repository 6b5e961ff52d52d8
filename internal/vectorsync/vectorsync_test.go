package vectorsync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docvec/internal/embeddings"
	"github.com/nickcecere/docvec/internal/fs"
	"github.com/nickcecere/docvec/internal/vectorindex"
)

// mockEmbedder maps text to letter frequencies.
type mockEmbedder struct{}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return letters(text), nil
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return letters(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = letters(t)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int               { return 26 }
func (m *mockEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }
func (m *mockEmbedder) ModelName() string             { return "letters" }

func letters(text string) []float32 {
	v := make([]float32, 26)
	v[0] = 0.01
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

// flakyIndex overrides selected operations of a real index.
type flakyIndex struct {
	vectorindex.Index
	filterErr error
	addErr    error
	deleteErr error
	searches  int
}

func (f *flakyIndex) SupportsFilter() bool { return true }

// unfilteredIndex hides a backend's filter support.
type unfilteredIndex struct {
	vectorindex.Index
}

func (u unfilteredIndex) SupportsFilter() bool { return false }

func (f *flakyIndex) SimilaritySearch(ctx context.Context, req vectorindex.SearchRequest) ([]vectorindex.Document, error) {
	f.searches++
	if len(req.Filter) > 0 && f.filterErr != nil {
		return nil, f.filterErr
	}
	return f.Index.SimilaritySearch(ctx, req)
}

func (f *flakyIndex) Add(ctx context.Context, docs []vectorindex.Document) ([]string, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	return f.Index.Add(ctx, docs)
}

func (f *flakyIndex) Delete(ctx context.Context, ids []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Index.Delete(ctx, ids)
}

func indexes(t *testing.T) map[string]vectorindex.Index {
	t.Helper()

	sqliteIdx, err := vectorindex.NewSQLiteIndex(filepath.Join(t.TempDir(), "vectors.db"), &mockEmbedder{}, embeddings.BatchOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { sqliteIdx.Close() })

	return map[string]vectorindex.Index{
		"sqlite": sqliteIdx,
		"memory": vectorindex.NewMemoryIndex(&mockEmbedder{}, embeddings.BatchOptions{}),
	}
}

func chunksOf(texts ...string) []fs.Chunk {
	chunks := make([]fs.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = fs.Chunk{Content: text, ChunkIndex: i, TotalChunks: len(texts)}
	}
	return chunks
}

func meta(id int64, name string) FileMeta {
	return FileMeta{
		ID:          id,
		Name:        name,
		Hash:        fmt.Sprintf("hash-%d", id),
		MediaType:   "text/plain",
		Description: "about " + name,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestIndexAttachesMetadata(t *testing.T) {
	for name, idx := range indexes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(idx, Options{})

			n, err := s.Index(ctx, meta(7, "notes.txt"), chunksOf("first part", "second part"))
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			docs, err := s.Search(ctx, vectorindex.SearchRequest{Filter: vectorindex.Filter{KeyFileID: int64(7)}})
			require.NoError(t, err)
			require.Len(t, docs, 2)

			for _, d := range docs {
				assert.Equal(t, "notes.txt", d.Metadata[KeyFileName])
				assert.Equal(t, "hash-7", d.Metadata[KeyFileHash])
				assert.Equal(t, "text/plain", d.Metadata[KeyMediaType])
				assert.Equal(t, "about notes.txt", d.Metadata[KeyDescription])
				assert.Equal(t, "2026-01-02T03:04:05Z", d.Metadata[KeyCreatedAt])
				assert.True(t, vectorindex.Matches(d.Metadata, vectorindex.Filter{KeyTotalChunks: 2}))
			}

			count, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, count)
		})
	}
}

func TestIndexNoChunks(t *testing.T) {
	s := New(vectorindex.NewMemoryIndex(&mockEmbedder{}, embeddings.BatchOptions{}), Options{})

	n, err := s.Index(context.Background(), meta(1, "empty.txt"), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSearchWithinFile(t *testing.T) {
	for name, idx := range indexes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(idx, Options{})

			_, err := s.Index(ctx, meta(1, "fruit.txt"), chunksOf("apple pie", "banana bread"))
			require.NoError(t, err)
			_, err = s.Index(ctx, meta(2, "more-fruit.txt"), chunksOf("apple tart"))
			require.NoError(t, err)

			all, err := s.Search(ctx, vectorindex.SearchRequest{Query: "apple", TopK: 10})
			require.NoError(t, err)
			assert.Len(t, all, 3)

			scoped, err := s.Search(ctx, vectorindex.SearchRequest{
				Query:  "apple",
				TopK:   1,
				Filter: vectorindex.Filter{KeyFileID: int64(1)},
			})
			require.NoError(t, err)
			require.Len(t, scoped, 1)
			assert.Equal(t, "apple pie", scoped[0].Content)
		})
	}
}

func TestSearchFallsBackOnFilterError(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyIndex{
		Index:     vectorindex.NewMemoryIndex(&mockEmbedder{}, embeddings.BatchOptions{}),
		filterErr: errors.New("filter syntax"),
	}
	s := New(flaky, Options{FallbackCandidates: 10})

	_, err := s.Index(ctx, meta(1, "a.txt"), chunksOf("alpha", "beta"))
	require.NoError(t, err)
	_, err = s.Index(ctx, meta(2, "b.txt"), chunksOf("gamma"))
	require.NoError(t, err)

	docs, err := s.Search(ctx, vectorindex.SearchRequest{Filter: vectorindex.Filter{KeyFileID: int64(2)}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "gamma", docs[0].Content)
	assert.Equal(t, 2, flaky.searches, "one filtered attempt then one candidate search")
}

func TestFallbackCandidatesBoundResults(t *testing.T) {
	ctx := context.Background()
	s := New(unfilteredIndex{vectorindex.NewMemoryIndex(&mockEmbedder{}, embeddings.BatchOptions{})}, Options{FallbackCandidates: 2})

	_, err := s.Index(ctx, meta(1, "a.txt"), chunksOf("one", "two", "three"))
	require.NoError(t, err)

	docs, err := s.Search(ctx, vectorindex.SearchRequest{Filter: vectorindex.Filter{KeyFileID: int64(1)}})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestDeleteByFile(t *testing.T) {
	for name, idx := range indexes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(idx, Options{FilterPageSize: 2})

			_, err := s.Index(ctx, meta(1, "a.txt"), chunksOf("a1", "a2", "a3", "a4", "a5"))
			require.NoError(t, err)
			_, err = s.Index(ctx, meta(2, "b.txt"), chunksOf("b1"))
			require.NoError(t, err)

			n, err := s.DeleteByFile(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 5, n)

			count, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			// Nothing left is still a success
			n, err = s.DeleteByFile(ctx, 1)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestDeleteByHash(t *testing.T) {
	for name, idx := range indexes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(idx, Options{})

			_, err := s.Index(ctx, meta(3, "c.txt"), chunksOf("c1", "c2"))
			require.NoError(t, err)

			n, err := s.DeleteByHash(ctx, "hash-3")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			count, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestDeleteFallsBackToScan(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyIndex{
		Index:     vectorindex.NewMemoryIndex(&mockEmbedder{}, embeddings.BatchOptions{}),
		filterErr: errors.New("no payload index"),
	}
	s := New(flaky, Options{})

	_, err := s.Index(ctx, meta(1, "a.txt"), chunksOf("x", "y"))
	require.NoError(t, err)

	n, err := s.DeleteByFile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeleteScanLimitReported(t *testing.T) {
	ctx := context.Background()
	mem := vectorindex.NewMemoryIndex(&mockEmbedder{}, embeddings.BatchOptions{})
	s := New(unfilteredIndex{mem}, Options{DeleteScanLimit: 4})

	_, err := s.Index(ctx, meta(1, "a.txt"), chunksOf("a1", "a2", "a3", "a4"))
	require.NoError(t, err)
	_, err = s.Index(ctx, meta(2, "b.txt"), chunksOf("b1", "b2", "b3", "b4"))
	require.NoError(t, err)

	// File 2 lies entirely past the scan window
	n, err := s.DeleteByFile(ctx, 2)
	assert.ErrorIs(t, err, ErrIndexDelete)
	assert.ErrorIs(t, err, ErrScanLimit)
	assert.Zero(t, n)

	// Matches inside the window are still removed
	n, err = s.DeleteByFile(ctx, 1)
	assert.ErrorIs(t, err, ErrScanLimit)
	assert.Equal(t, 4, n)

	// Once the scan comes back short, the delete is complete
	n, err = s.DeleteByFile(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryIndexDeletesByFilter(t *testing.T) {
	ctx := context.Background()
	s := New(vectorindex.NewMemoryIndex(&mockEmbedder{}, embeddings.BatchOptions{}), Options{DeleteScanLimit: 4})

	_, err := s.Index(ctx, meta(1, "a.txt"), chunksOf("a1", "a2", "a3", "a4"))
	require.NoError(t, err)
	_, err = s.Index(ctx, meta(2, "b.txt"), chunksOf("b1", "b2", "b3", "b4"))
	require.NoError(t, err)

	n, err := s.DeleteByFile(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	left, err := s.Search(ctx, vectorindex.SearchRequest{Filter: vectorindex.Filter{KeyFileID: int64(2)}})
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestSyncErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("write failure", func(t *testing.T) {
		s := New(&flakyIndex{Index: vectorindex.NewMemoryIndex(&mockEmbedder{}, embeddings.BatchOptions{}), addErr: boom}, Options{})
		_, err := s.Index(ctx, meta(1, "a.txt"), chunksOf("x"))
		assert.ErrorIs(t, err, ErrIndexWrite)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("delete failure", func(t *testing.T) {
		flaky := &flakyIndex{Index: vectorindex.NewMemoryIndex(&mockEmbedder{}, embeddings.BatchOptions{})}
		s := New(flaky, Options{})
		_, err := s.Index(ctx, meta(1, "a.txt"), chunksOf("x"))
		require.NoError(t, err)

		flaky.deleteErr = boom
		_, err = s.DeleteByFile(ctx, 1)
		assert.ErrorIs(t, err, ErrIndexDelete)
	})
}
