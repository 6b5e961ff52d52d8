// Package embeddings provides text embedding services for chunk vectors.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docvec/internal/config"
)

// Provider represents an embedding provider type.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Service defines the interface for embedding services.
type Service interface {
	// Embed generates an embedding for the given text (for documents).
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery generates an embedding for a query (may use different task prefix).
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensions for this model.
	Dimensions() int

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model name.
	ModelName() string
}

// Known model dimensions
var modelDimensions = map[string]int{
	// Ollama models
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,

	// OpenAI models
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// GetModelDimensions returns the known dimensions for a model, or 0 if unknown.
func GetModelDimensions(model string) int {
	return modelDimensions[model]
}

// NewService creates an embedding service based on the configuration.
func NewService(cfg *config.Config) (Service, error) {
	switch Provider(cfg.Embeddings.Provider) {
	case ProviderOllama:
		return NewOllamaService(cfg.Embeddings.Ollama)
	case ProviderOpenAI:
		return NewOpenAIService(cfg.Embeddings.OpenAI)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embeddings.Provider)
	}
}

// StatusError is a non-success HTTP answer from an embedding provider.
type StatusError struct {
	Provider Provider
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Code, strings.TrimSpace(e.Body))
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// ErrNoEmbedding is returned when a provider answers with no vector for a
// single text.
var ErrNoEmbedding = errors.New("no embedding returned")

// first returns the only vector of a single-text request.
func first(vectors [][]float32, err error) ([]float32, error) {
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrNoEmbedding
	}
	return vectors[0], nil
}

// dimensionHint holds the vector width a service expects. It starts from
// the model table and follows whatever the provider actually returns.
type dimensionHint struct {
	n atomic.Int64
}

func newDimensionHint(model string, requested, fallback int) *dimensionHint {
	n := requested
	if n <= 0 {
		n = GetModelDimensions(model)
	}
	if n <= 0 {
		n = fallback
		log.Debug("Unknown model dimensions, defaulting", "model", model, "dimensions", n)
	}
	h := &dimensionHint{}
	h.n.Store(int64(n))
	return h
}

func (h *dimensionHint) get() int { return int(h.n.Load()) }

func (h *dimensionHint) observe(vectors [][]float32) {
	for _, v := range vectors {
		if len(v) > 0 {
			h.n.Store(int64(len(v)))
			return
		}
	}
}

// DefaultBatchSize is the number of texts sent per embedding request.
const DefaultBatchSize = 50

// ErrCountMismatch is returned when a provider answers with a different
// number of vectors than texts sent.
var ErrCountMismatch = errors.New("embedding count mismatch")

// BatchOptions controls EmbedAll.
type BatchOptions struct {
	BatchSize   int           // Texts per request, DefaultBatchSize when zero
	MaxAttempts int           // Attempts per batch, 1 when zero
	BaseDelay   time.Duration // First retry delay, doubled per attempt
}

// EmbedAll embeds texts as documents in batches, retrying failed batches
// with exponential backoff. The result has one vector per text, in order.
func EmbedAll(ctx context.Context, svc Service, texts []string, opts BatchOptions) ([][]float32, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		var got [][]float32
		err := retry(ctx, opts.MaxAttempts, opts.BaseDelay, func() error {
			var err error
			got, err = svc.EmbedBatch(ctx, batch)
			if err != nil {
				return err
			}
			if len(got) != len(batch) {
				return fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, len(batch), len(got))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}

		vectors = append(vectors, got...)
	}

	return vectors, nil
}

// retry runs op up to attempts times, sleeping baseDelay*2^(n-1) between
// tries. Context errors and client-side provider errors stop it early.
func retry(ctx context.Context, attempts int, baseDelay time.Duration, op func() error) error {
	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		var statusErr *StatusError
		if errors.As(lastErr, &statusErr) && !statusErr.Retryable() {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		log.Debug("Embedding request failed, retrying", "attempt", attempt, "error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return lastErr
}
