package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docvec/internal/config"
	"github.com/nickcecere/docvec/internal/store"
	"github.com/nickcecere/docvec/internal/ui"
)

var statusJSON bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show storage and index statistics",
	Long: `Display information about stored files including:
- Number of files and total size
- Files per vectorization status
- Number of entries in the vector index

Examples:
  docvec status
  docvec status --json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

// statusReport is the JSON form of the status command.
type statusReport struct {
	*store.Stats
	IndexEntries *int   `json:"index_entries"`
	IndexBackend string `json:"index_backend"`
	Storage      string `json:"storage_backend"`
	Provider     string `json:"embedding_provider"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	ctx, cancel := signalContext("")
	defer cancel()

	// The index needs an embedding service; report records without it
	a, err := openApp(cfg)
	if err != nil {
		log.Warn("Vector index unavailable", "error", err)
		if a, err = openRecords(cfg); err != nil {
			return err
		}
	}
	defer a.close()

	stats, err := a.store.Stats()
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	report := statusReport{
		Stats:        stats,
		IndexBackend: cfg.VectorIndex.Backend,
		Storage:      cfg.Storage.Backend,
		Provider:     cfg.Embeddings.Provider,
	}
	if a.pipeline != nil {
		n, err := a.pipeline.IndexedEntries(ctx)
		if err != nil {
			log.Warn("Failed to count index entries", "error", err)
		} else {
			report.IndexEntries = &n
		}
	}

	if statusJSON {
		return printJSON(report)
	}

	fmt.Println(ui.Header.Render("Status"))
	fmt.Println()

	fmt.Printf("  %s %d (%s)\n", ui.Dim.Render("Files:"), stats.FileCount, formatBytes(stats.TotalBytes))
	for _, status := range store.VectorizationStatuses {
		fmt.Printf("    %-22s %d\n", statusStyle(status), stats.ByStatus[status])
	}

	entries := "unknown"
	if report.IndexEntries != nil {
		entries = fmt.Sprint(*report.IndexEntries)
	}
	fmt.Printf("  %s %s\n", ui.Dim.Render("Index entries:"), entries)
	fmt.Printf("  %s %s\n", ui.Dim.Render("Health:"), getHealthStatus(stats, report.IndexEntries))

	fmt.Println()
	fmt.Println(ui.Dim.Render("Configuration:"))
	fmt.Printf("  Database: %s\n", cfg.Database.Path)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Backend)
	fmt.Printf("  Vector Index: %s\n", cfg.VectorIndex.Backend)
	fmt.Printf("  Embedding Provider: %s\n", cfg.Embeddings.Provider)

	return nil
}

// getHealthStatus returns a health indicator based on stats.
func getHealthStatus(stats *store.Stats, entries *int) string {
	if stats.FileCount == 0 {
		return ui.Warning.Render("empty (no files stored)")
	}
	if n := stats.ByStatus[store.VectorFailed]; n > 0 {
		return ui.Warning.Render(fmt.Sprintf("%d failed (run 'docvec vectorize --failed')", n))
	}
	if entries != nil && *entries == 0 && stats.ByStatus[store.VectorSucceeded] > 0 {
		return ui.Warning.Render("index is empty (re-vectorize may be needed)")
	}
	if n := stats.ByStatus[store.VectorNotStarted]; n > 0 {
		return ui.Warning.Render(fmt.Sprintf("%d not vectorized", n))
	}
	return ui.Success.Render("healthy")
}
