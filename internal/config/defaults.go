package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Default configuration values
const (
	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOllamaTimeoutSecs = 60
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"
	DefaultEmbedBatchSize    = 50
	DefaultEmbedMaxAttempts  = 3

	// Storage defaults
	DefaultStorageBackend = "local"
	DefaultMaxFileSize    = 100 << 20 // 100MB

	// Chunking defaults
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 200
	DefaultBoundaryWindow = 100
	DefaultBoundarySlack  = 0.2

	// Vector index defaults
	DefaultVectorBackend      = "sqlite"
	DefaultQdrantURL          = "http://localhost:6333"
	DefaultQdrantCollection   = "docvec"
	DefaultQdrantTimeoutSecs  = 30
	DefaultFallbackCandidates = 1000
	DefaultDeleteScanLimit    = 10000
	DefaultFilterPageSize     = 1000

	// Search defaults
	DefaultTopK      = 5
	DefaultThreshold = 0.0

	// File names
	DefaultDBFileName       = "files.db"
	DefaultVectorDBFileName = "vectors.db"
)

// DefaultIgnorePatterns returns the default list of patterns skipped when
// importing a directory.
func DefaultIgnorePatterns() []string {
	return []string{
		// Lock files
		"*.lock",
		"package-lock.json",
		"yarn.lock",
		"pnpm-lock.yaml",

		// Build outputs
		"dist/",
		"build/",
		"out/",
		"target/",
		"__pycache__/",
		".next/",

		// Dependencies
		"node_modules/",
		"vendor/",
		".venv/",
		"venv/",

		// IDE/Editor
		".idea/",
		".vscode/",
		"*.swp",
		"*~",

		// Version control
		".git/",
		".svn/",
		".hg/",

		// Misc
		".DS_Store",
		"Thumbs.db",
		".env",
		".env.*",
	}
}

// DefaultWorkers returns the default background worker count.
func DefaultWorkers() int {
	if n := runtime.NumCPU() / 2; n > 1 {
		return n
	}
	return 1
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/docvec"
	}
	return filepath.Join(home, ".config", "docvec")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/docvec"
	}
	return filepath.Join(home, ".local", "share", "docvec")
}

// DefaultDatabasePath returns the default file-of-record path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}

// DefaultVectorDBPath returns the default sqlite-vec index path.
func DefaultVectorDBPath() string {
	return filepath.Join(DefaultDataDir(), DefaultVectorDBFileName)
}

// DefaultUploadDir returns the default local blob directory.
func DefaultUploadDir() string {
	return filepath.Join(DefaultDataDir(), "uploads")
}

// DefaultBadgerDir returns the default badger blob directory.
func DefaultBadgerDir() string {
	return filepath.Join(DefaultDataDir(), "blobs")
}
