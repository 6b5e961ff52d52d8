package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/nickcecere/docvec/internal/config"
)

// OpenAIService embeds chunks through the OpenAI embeddings endpoint or any
// compatible server reachable at BaseURL.
type OpenAIService struct {
	client    openai.Client
	model     string
	requested int
	dims      *dimensionHint
}

// NewOpenAIService creates an OpenAI-backed service. An API key is required;
// Dimensions asks the model for shortened vectors when non-zero.
func NewOpenAIService(cfg config.OpenAIEmbedConfig) (*OpenAIService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY or embeddings.openai.api_key)")
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultOpenAIEmbedModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIService{
		client:    openai.NewClient(opts...),
		model:     model,
		requested: cfg.Dimensions,
		dims:      newDimensionHint(model, cfg.Dimensions, 1536),
	}, nil
}

func (s *OpenAIService) Embed(ctx context.Context, text string) ([]float32, error) {
	return first(s.embed(ctx, []string{text}))
}

// EmbedQuery is Embed; OpenAI models take no query instruction.
func (s *OpenAIService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.Embed(ctx, text)
}

func (s *OpenAIService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return s.embed(ctx, texts)
}

func (s *OpenAIService) Dimensions() int    { return s.dims.get() }
func (s *OpenAIService) Provider() Provider { return ProviderOpenAI }
func (s *OpenAIService) ModelName() string  { return s.model }

func (s *OpenAIService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(s.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if s.requested > 0 {
		params.Dimensions = openai.Int(int64(s.requested))
	}

	start := time.Now()
	resp, err := s.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: ProviderOpenAI, Code: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	vectors, err := collectOpenAIVectors(resp.Data, len(texts))
	if err != nil {
		return nil, err
	}

	s.dims.observe(vectors)
	log.Debug("OpenAI embeddings", "model", s.model, "count", len(texts), "took", time.Since(start))
	return vectors, nil
}

// collectOpenAIVectors places each returned embedding at its input index.
// Every slot must be filled exactly once.
func collectOpenAIVectors(data []openai.Embedding, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, want, len(data))
	}
	vectors := make([][]float32, want)
	for _, d := range data {
		idx := int(d.Index)
		if idx < 0 || idx >= want || vectors[idx] != nil {
			return nil, fmt.Errorf("%w: unexpected index %d", ErrCountMismatch, idx)
		}
		v := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			v[i] = float32(f)
		}
		vectors[idx] = v
	}
	return vectors, nil
}
