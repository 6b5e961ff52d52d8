package vectorindex

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docvec/internal/config"
	"github.com/nickcecere/docvec/internal/embeddings"
)

// Open creates the index backend named by the configuration.
func Open(cfg config.VectorIndexConfig, emb embeddings.Service, batch embeddings.BatchOptions) (Index, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteIndex(cfg.SQLite.Path, emb, batch)
	case "qdrant":
		return NewQdrantIndex(QdrantConfig{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}, emb, batch)
	case "memory":
		log.Warn("Memory vector index is discarded when the process exits; use sqlite or qdrant to keep search results across commands")
		return NewMemoryIndex(emb, batch), nil
	default:
		return nil, fmt.Errorf("unsupported vector index backend: %s", cfg.Backend)
	}
}
