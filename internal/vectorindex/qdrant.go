package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docvec/internal/embeddings"
)

// contentKey is the payload field holding the entry text.
const contentKey = "content"

// errCollectionMissing marks a 404 for the collection itself.
var errCollectionMissing = errors.New("collection not found")

// QdrantConfig configures the Qdrant REST client.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantIndex is a REST client for a Qdrant collection using cosine
// distance. The collection is created on first write.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
	emb        embeddings.Service
	batch      embeddings.BatchOptions

	mu    sync.Mutex
	ready bool
}

// NewQdrantIndex creates a Qdrant-backed index.
func NewQdrantIndex(cfg QdrantConfig, emb embeddings.Service, batch embeddings.BatchOptions) (*QdrantIndex, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant URL is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &QdrantIndex{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		emb:        emb,
		batch:      batch,
	}, nil
}

// Add implements Index.
func (q *QdrantIndex) Add(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	ids, vectors, err := embedDocuments(ctx, q.emb, q.batch, docs)
	if err != nil {
		return nil, err
	}

	if err := q.ensureCollection(ctx, len(vectors[0])); err != nil {
		return nil, err
	}

	points := make([]map[string]any, len(docs))
	for i, d := range docs {
		payload := copyMetadata(d.Metadata)
		payload[contentKey] = d.Content
		points[i] = map[string]any{
			"id":      d.ID,
			"vector":  vectors[i],
			"payload": payload,
		}
	}

	if err := q.do(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
		return nil, fmt.Errorf("failed to upsert points: %w", err)
	}

	return ids, nil
}

// SimilaritySearch implements Index.
func (q *QdrantIndex) SimilaritySearch(ctx context.Context, req SearchRequest) ([]Document, error) {
	if req.Query == "" {
		return q.scroll(ctx, req)
	}

	vector, err := q.emb.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if req.Threshold > 0 {
		body["score_threshold"] = req.Threshold
	}
	if len(req.Filter) > 0 {
		body["filter"] = qdrantFilter(req.Filter)
	}

	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	err = q.do(ctx, http.MethodPost, q.collectionPath("/points/search"), body, &resp)
	if errors.Is(err, errCollectionMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	docs := make([]Document, 0, len(resp.Result))
	for _, p := range resp.Result {
		docs = append(docs, p.document())
	}
	return rank(docs, req.Threshold, topK), nil
}

// scroll pages through points matching the filter.
func (q *QdrantIndex) scroll(ctx context.Context, req SearchRequest) ([]Document, error) {
	var docs []Document
	var offset any

	for {
		limit := 256
		if req.TopK > 0 && req.TopK-len(docs) < limit {
			limit = req.TopK - len(docs)
		}

		body := map[string]any{
			"limit":        limit,
			"with_payload": true,
			"with_vector":  false,
		}
		if len(req.Filter) > 0 {
			body["filter"] = qdrantFilter(req.Filter)
		}
		if offset != nil {
			body["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points         []qdrantPoint `json:"points"`
				NextPageOffset any           `json:"next_page_offset"`
			} `json:"result"`
		}
		err := q.do(ctx, http.MethodPost, q.collectionPath("/points/scroll"), body, &resp)
		if errors.Is(err, errCollectionMissing) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}

		for _, p := range resp.Result.Points {
			docs = append(docs, p.document())
		}

		offset = resp.Result.NextPageOffset
		if offset == nil || len(resp.Result.Points) == 0 || (req.TopK > 0 && len(docs) >= req.TopK) {
			return docs, nil
		}
	}
}

// Delete implements Index.
func (q *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	err := q.do(ctx, http.MethodPost, q.collectionPath("/points/delete?wait=true"), map[string]any{"points": ids}, nil)
	if errors.Is(err, errCollectionMissing) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

// Count implements Index.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodPost, q.collectionPath("/points/count"), map[string]any{"exact": true}, &resp)
	if errors.Is(err, errCollectionMissing) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return resp.Result.Count, nil
}

// SupportsFilter implements Index.
func (q *QdrantIndex) SupportsFilter() bool {
	return true
}

// Close implements Index.
func (q *QdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

// ensureCollection creates the collection if it does not exist yet.
func (q *QdrantIndex) ensureCollection(ctx context.Context, dimensions int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ready {
		return nil
	}

	err := q.do(ctx, http.MethodGet, q.collectionPath(""), nil, nil)
	if errors.Is(err, errCollectionMissing) {
		log.Debug("Creating Qdrant collection", "collection", q.collection, "dimensions", dimensions)
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimensions,
				"distance": "Cosine",
			},
		}
		err = q.do(ctx, http.MethodPut, q.collectionPath(""), body, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	q.ready = true
	return nil
}

func (q *QdrantIndex) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", q.url, q.collection, suffix)
}

// do sends a JSON request and decodes the JSON response into out.
func (q *QdrantIndex) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errCollectionMissing
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qdrant %s %s returned status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// qdrantPoint is a point returned by search or scroll.
type qdrantPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (p qdrantPoint) document() Document {
	meta := copyMetadata(p.Payload)
	content, _ := meta[contentKey].(string)
	delete(meta, contentKey)
	return Document{
		ID:       fmt.Sprint(p.ID),
		Content:  content,
		Metadata: meta,
		Score:    p.Score,
	}
}

// qdrantFilter renders a Filter as a Qdrant "must" clause.
func qdrantFilter(f Filter) map[string]any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": f[k]},
		})
	}
	return map[string]any{"must": must}
}
