package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docvec/internal/config"
	"github.com/nickcecere/docvec/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Display current configuration settings and config file locations.

Settings can be overridden with DOCVEC_* environment variables, for
example DOCVEC_VECTOR_INDEX_BACKEND=qdrant.

Examples:
  # Show current configuration
  docvec config

  # Show config file paths
  docvec config --path`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if configShowPath {
		fmt.Println(ui.SectionTitle.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Global config: %s\n", config.GlobalConfigPath())
		fmt.Printf("Local config:  .docvecrc.yaml (searched from cwd upward)\n")
		fmt.Printf("Active config: %s\n", config.ConfigFilePath())
		fmt.Printf("Database:      %s\n", cfg.Database.Path)
		return nil
	}

	fmt.Println(ui.SectionTitle.Render("Current Configuration"))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Embeddings:"))
	fmt.Printf("  Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Printf("  Batch Size: %d\n", cfg.Embeddings.BatchSize)
	fmt.Printf("  Max Attempts: %d\n", cfg.Embeddings.MaxAttempts)
	fmt.Printf("  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
	fmt.Printf("  Ollama Model: %s\n", cfg.Embeddings.Ollama.Model)
	fmt.Printf("  Ollama Timeout: %ds\n", cfg.Embeddings.Ollama.TimeoutSecs)
	fmt.Printf("  OpenAI Model: %s\n", cfg.Embeddings.OpenAI.Model)
	if cfg.Embeddings.OpenAI.BaseURL != "" {
		fmt.Printf("  OpenAI Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
	}
	fmt.Println()

	fmt.Println(ui.Bold.Render("Storage:"))
	fmt.Printf("  Backend: %s\n", cfg.Storage.Backend)
	switch cfg.Storage.Backend {
	case "badger":
		fmt.Printf("  Directory: %s\n", cfg.Storage.BadgerDir)
	default:
		fmt.Printf("  Directory: %s\n", cfg.Storage.UploadDir)
	}
	fmt.Printf("  Max File Size: %s\n", formatBytes(cfg.Storage.MaxFileSize))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Chunking:"))
	fmt.Printf("  Size: %d\n", cfg.Chunking.Size)
	fmt.Printf("  Overlap: %d\n", cfg.Chunking.Overlap)
	fmt.Printf("  Boundary Window: %d\n", cfg.Chunking.BoundaryWindow)
	fmt.Printf("  Boundary Slack: %.2f\n", cfg.Chunking.BoundarySlack)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Vector Index:"))
	fmt.Printf("  Backend: %s\n", cfg.VectorIndex.Backend)
	switch cfg.VectorIndex.Backend {
	case "sqlite":
		fmt.Printf("  Path: %s\n", cfg.VectorIndex.SQLite.Path)
	case "qdrant":
		fmt.Printf("  URL: %s\n", cfg.VectorIndex.Qdrant.URL)
		fmt.Printf("  Collection: %s\n", cfg.VectorIndex.Qdrant.Collection)
	case "memory":
		fmt.Printf("  %s\n", ui.Warning.Render("Ephemeral: entries last only for one command"))
	}
	fmt.Printf("  Fallback Candidates: %d\n", cfg.VectorIndex.FallbackCandidates)
	fmt.Printf("  Delete Scan Limit: %d\n", cfg.VectorIndex.DeleteScanLimit)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Pipeline:"))
	fmt.Printf("  Workers: %d\n", cfg.Pipeline.Workers)
	fmt.Printf("  Vectorize On Upload: %t\n", cfg.Pipeline.VectorizeOnUpload)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Search:"))
	fmt.Printf("  Top K: %d\n", cfg.Search.TopK)
	fmt.Printf("  Threshold: %.2f\n", cfg.Search.Threshold)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Database:"))
	fmt.Printf("  Path: %s\n", cfg.Database.Path)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Ignore Patterns:"))
	fmt.Printf("  %d patterns configured\n", len(cfg.Ignore))

	return nil
}
