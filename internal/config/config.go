// Package config handles configuration loading and validation for docvec.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete docvec configuration.
type Config struct {
	Embeddings  EmbeddingsConfig  `mapstructure:"embeddings"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Chunking    ChunkingConfig    `mapstructure:"chunking"`
	VectorIndex VectorIndexConfig `mapstructure:"vector_index"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Search      SearchConfig      `mapstructure:"search"`
	Ignore      []string          `mapstructure:"ignore"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider    string            `mapstructure:"provider"`
	BatchSize   int               `mapstructure:"batch_size"`
	MaxAttempts int               `mapstructure:"max_attempts"`
	Ollama      OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI      OpenAIEmbedConfig `mapstructure:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL         string `mapstructure:"url"`
	Model       string `mapstructure:"model"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// DatabaseConfig configures the SQLite file-of-record.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig configures blob storage for uploaded bytes.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"` // local or badger
	UploadDir   string `mapstructure:"upload_dir"`
	BadgerDir   string `mapstructure:"badger_dir"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
}

// ChunkingConfig configures the text splitter.
type ChunkingConfig struct {
	Size           int     `mapstructure:"size"`
	Overlap        int     `mapstructure:"overlap"`
	BoundaryWindow int     `mapstructure:"boundary_window"`
	BoundarySlack  float64 `mapstructure:"boundary_slack"`
}

// VectorIndexConfig configures the vector index backend.
type VectorIndexConfig struct {
	Backend            string            `mapstructure:"backend"` // sqlite, qdrant or memory
	SQLite             SQLiteIndexConfig `mapstructure:"sqlite"`
	Qdrant             QdrantIndexConfig `mapstructure:"qdrant"`
	FallbackCandidates int               `mapstructure:"fallback_candidates"`
	DeleteScanLimit    int               `mapstructure:"delete_scan_limit"`
	FilterPageSize     int               `mapstructure:"filter_page_size"`
}

// SQLiteIndexConfig configures the sqlite-vec backend.
type SQLiteIndexConfig struct {
	Path string `mapstructure:"path"`
}

// QdrantIndexConfig configures the Qdrant backend.
type QdrantIndexConfig struct {
	URL         string `mapstructure:"url"`
	APIKey      string `mapstructure:"api_key"`
	Collection  string `mapstructure:"collection"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`
}

// PipelineConfig configures the ingestion orchestrator.
type PipelineConfig struct {
	Workers           int  `mapstructure:"workers"`
	VectorizeOnUpload bool `mapstructure:"vectorize_on_upload"`
}

// SearchConfig configures search defaults.
type SearchConfig struct {
	TopK      int     `mapstructure:"top_k"`
	Threshold float64 `mapstructure:"threshold"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider:    DefaultEmbeddingProvider,
			BatchSize:   DefaultEmbedBatchSize,
			MaxAttempts: DefaultEmbedMaxAttempts,
			Ollama: OllamaEmbedConfig{
				URL:         DefaultOllamaURL,
				Model:       DefaultOllamaEmbedModel,
				TimeoutSecs: DefaultOllamaTimeoutSecs,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Storage: StorageConfig{
			Backend:     DefaultStorageBackend,
			UploadDir:   DefaultUploadDir(),
			BadgerDir:   DefaultBadgerDir(),
			MaxFileSize: DefaultMaxFileSize,
		},
		Chunking: ChunkingConfig{
			Size:           DefaultChunkSize,
			Overlap:        DefaultChunkOverlap,
			BoundaryWindow: DefaultBoundaryWindow,
			BoundarySlack:  DefaultBoundarySlack,
		},
		VectorIndex: VectorIndexConfig{
			Backend: DefaultVectorBackend,
			SQLite: SQLiteIndexConfig{
				Path: DefaultVectorDBPath(),
			},
			Qdrant: QdrantIndexConfig{
				URL:         DefaultQdrantURL,
				Collection:  DefaultQdrantCollection,
				TimeoutSecs: DefaultQdrantTimeoutSecs,
			},
			FallbackCandidates: DefaultFallbackCandidates,
			DeleteScanLimit:    DefaultDeleteScanLimit,
			FilterPageSize:     DefaultFilterPageSize,
		},
		Pipeline: PipelineConfig{
			Workers:           DefaultWorkers(),
			VectorizeOnUpload: true,
		},
		Search: SearchConfig{
			TopK:      DefaultTopK,
			Threshold: DefaultThreshold,
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from file, .env and environment variables.
func Load(configFile string) error {
	// A .env file in the working directory feeds the environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debug("Failed to load .env file", "error", err)
	}

	// Set defaults
	setDefaults()

	// Set config file if specified
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		// Search for config in standard locations
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		// Also check for .docvecrc.yaml in current directory and parents
		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	// Environment variables
	viper.SetEnvPrefix("DOCVEC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	// Unmarshal into config struct
	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	// Load API keys from environment if not in config
	loadAPIKeysFromEnv()

	return cfg.Validate()
}

// Validate checks enumerated settings and numeric ranges.
func (c *Config) Validate() error {
	switch c.Embeddings.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("invalid embeddings.provider %q (want ollama or openai)", c.Embeddings.Provider)
	}

	switch c.Storage.Backend {
	case "local", "badger":
	default:
		return fmt.Errorf("invalid storage.backend %q (want local or badger)", c.Storage.Backend)
	}

	switch c.VectorIndex.Backend {
	case "sqlite", "qdrant", "memory":
	default:
		return fmt.Errorf("invalid vector_index.backend %q (want sqlite, qdrant or memory)", c.VectorIndex.Backend)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must not be negative, got %d", c.Chunking.Overlap)
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return fmt.Errorf("search.threshold must be within [0, 1], got %v", c.Search.Threshold)
	}

	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Embeddings
	viper.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embeddings.batch_size", DefaultEmbedBatchSize)
	viper.SetDefault("embeddings.max_attempts", DefaultEmbedMaxAttempts)
	viper.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	viper.SetDefault("embeddings.ollama.model", DefaultOllamaEmbedModel)
	viper.SetDefault("embeddings.ollama.timeout_secs", DefaultOllamaTimeoutSecs)
	viper.SetDefault("embeddings.openai.model", DefaultOpenAIEmbedModel)

	// Database
	viper.SetDefault("database.path", DefaultDatabasePath())

	// Storage
	viper.SetDefault("storage.backend", DefaultStorageBackend)
	viper.SetDefault("storage.upload_dir", DefaultUploadDir())
	viper.SetDefault("storage.badger_dir", DefaultBadgerDir())
	viper.SetDefault("storage.max_file_size", DefaultMaxFileSize)

	// Chunking
	viper.SetDefault("chunking.size", DefaultChunkSize)
	viper.SetDefault("chunking.overlap", DefaultChunkOverlap)
	viper.SetDefault("chunking.boundary_window", DefaultBoundaryWindow)
	viper.SetDefault("chunking.boundary_slack", DefaultBoundarySlack)

	// Vector index
	viper.SetDefault("vector_index.backend", DefaultVectorBackend)
	viper.SetDefault("vector_index.sqlite.path", DefaultVectorDBPath())
	viper.SetDefault("vector_index.qdrant.url", DefaultQdrantURL)
	viper.SetDefault("vector_index.qdrant.collection", DefaultQdrantCollection)
	viper.SetDefault("vector_index.qdrant.timeout_secs", DefaultQdrantTimeoutSecs)
	viper.SetDefault("vector_index.fallback_candidates", DefaultFallbackCandidates)
	viper.SetDefault("vector_index.delete_scan_limit", DefaultDeleteScanLimit)
	viper.SetDefault("vector_index.filter_page_size", DefaultFilterPageSize)

	// Pipeline
	viper.SetDefault("pipeline.workers", DefaultWorkers())
	viper.SetDefault("pipeline.vectorize_on_upload", true)

	// Search
	viper.SetDefault("search.top_k", DefaultTopK)
	viper.SetDefault("search.threshold", DefaultThreshold)

	// Ignore patterns
	viper.SetDefault("ignore", DefaultIgnorePatterns())
}

// findRCFile searches for .docvecrc.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".docvecrc.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// loadAPIKeysFromEnv loads API keys from environment variables if not already set.
func loadAPIKeysFromEnv() {
	if cfg.Embeddings.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Embeddings.OpenAI.APIKey = key
		}
	}
	if cfg.VectorIndex.Qdrant.APIKey == "" {
		if key := os.Getenv("QDRANT_API_KEY"); key != "" {
			cfg.VectorIndex.Qdrant.APIKey = key
		}
	}
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
