package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docvec/internal/config"
)

// Some Ollama models are trained with instruction prefixes that separate
// stored passages from search queries.
type instruction struct {
	document string
	query    string
}

var ollamaInstructions = map[string]instruction{
	"nomic-embed-text":  {document: "search_document: ", query: "search_query: "},
	"mxbai-embed-large": {query: "Represent this sentence for searching relevant passages: "},
}

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 4 << 10

// OllamaService embeds chunks through a local Ollama server.
type OllamaService struct {
	endpoint    string
	model       string
	instruction instruction
	dims        *dimensionHint
	client      *http.Client
}

type ollamaEmbedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaService creates an Ollama-backed service. Empty fields fall back
// to the package defaults.
func NewOllamaService(cfg config.OllamaEmbedConfig) (*OllamaService, error) {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		base = config.DefaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultOllamaEmbedModel
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = config.DefaultOllamaTimeoutSecs * time.Second
	}

	return &OllamaService{
		endpoint:    base + "/api/embed",
		model:       model,
		instruction: ollamaInstructions[model],
		dims:        newDimensionHint(model, 0, 768),
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (s *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	return first(s.embed(ctx, []string{s.instruction.document + text}))
}

func (s *OllamaService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return first(s.embed(ctx, []string{s.instruction.query + text}))
}

// EmbedBatch embeds chunk texts with the model's document instruction.
func (s *OllamaService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	input := texts
	if s.instruction.document != "" {
		input = make([]string, len(texts))
		for i, text := range texts {
			input[i] = s.instruction.document + text
		}
	}
	return s.embed(ctx, input)
}

func (s *OllamaService) Dimensions() int    { return s.dims.get() }
func (s *OllamaService) Provider() Provider { return ProviderOllama }
func (s *OllamaService) ModelName() string  { return s.model }

func (s *OllamaService) embed(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: s.model, Input: input, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Provider: ProviderOllama, Code: resp.StatusCode, Body: string(msg)}
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if len(out.Embeddings) != len(input) {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, len(input), len(out.Embeddings))
	}

	s.dims.observe(out.Embeddings)
	log.Debug("Ollama embeddings", "model", s.model, "count", len(input), "took", time.Since(start))
	return out.Embeddings, nil
}
