package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docvec/internal/config"
	"github.com/nickcecere/docvec/internal/ui"
	"github.com/nickcecere/docvec/internal/vectorindex"
	"github.com/nickcecere/docvec/internal/vectorsync"
)

var (
	searchFile     int64
	searchLimit    int
	searchMinScore float64
	searchContent  bool
	searchJSON     bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search vectorized files by semantic similarity",
	Long: `Search for passages using natural language queries.

Examples:
  # Search across all files
  docvec search "how are refunds handled"

  # Search within one file, showing the matched text
  docvec search "termination clause" --file 4 -c

  # Filter by minimum similarity score
  docvec search "error handling" --min-score 0.5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearchCmd,
}

func init() {
	searchCmd.Flags().Int64VarP(&searchFile, "file", "f", 0, "only search entries of this file id")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "m", 0, "maximum number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", -1, "minimum similarity score (0-1, default from config)")
	searchCmd.Flags().BoolVarP(&searchContent, "content", "c", false, "show matched text")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
}

// searchResult is the JSON form of a match.
type searchResult struct {
	FileID   int64   `json:"file_id"`
	FileName string  `json:"file_name"`
	Chunk    int     `json:"chunk"`
	Chunks   int     `json:"chunks"`
	Score    float64 `json:"score"`
	Content  string  `json:"content"`
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	cfg := config.Get()

	limit := searchLimit
	if limit <= 0 {
		limit = cfg.Search.TopK
	}
	threshold := searchMinScore
	if threshold < 0 {
		threshold = cfg.Search.Threshold
	}

	log.Debug("Starting search", "query", query, "file", searchFile, "limit", limit, "threshold", threshold)

	ctx, cancel := signalContext("Interrupted")
	defer cancel()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	var docs []vectorindex.Document
	err = withSpinner("Searching", func() error {
		var err error
		if searchFile > 0 {
			docs, err = a.pipeline.SearchInFile(ctx, searchFile, query, limit, threshold)
		} else {
			docs, err = a.pipeline.SearchSimilar(ctx, query, limit, threshold)
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("search failed: %w", err)
	}

	results := make([]searchResult, len(docs))
	for i, d := range docs {
		results[i] = searchResult{
			FileID:   metaInt(d.Metadata, vectorsync.KeyFileID),
			FileName: metaString(d.Metadata, vectorsync.KeyFileName),
			Chunk:    int(metaInt(d.Metadata, vectorsync.KeyChunkIndex)),
			Chunks:   int(metaInt(d.Metadata, vectorsync.KeyTotalChunks)),
			Score:    d.Score,
			Content:  d.Content,
		}
	}

	if searchJSON {
		return printJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	displayResults(results, searchContent)
	return nil
}

// displayResults formats and displays search results.
func displayResults(results []searchResult, showContent bool) {
	fmt.Printf("Found %d results:\n\n", len(results))

	for i, r := range results {
		fmt.Printf("%s %s %s %s\n",
			ui.Highlight.Render(fmt.Sprintf("[%d]", i+1)),
			ui.FilePath.Render(r.FileName),
			ui.Dim.Render(fmt.Sprintf("#%d", r.FileID)),
			ui.FormatScore(r.Score),
		)
		fmt.Printf("    %s\n", ui.LineNum.Render(fmt.Sprintf("Chunk %d of %d", r.Chunk+1, r.Chunks)))

		if showContent {
			fmt.Println()
			displayContent(r.Content)
		}
		fmt.Println()
	}
}

// displayContent prints matched text, eliding the middle of long chunks.
func displayContent(content string) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	maxLines := 12

	if len(lines) > maxLines {
		half := maxLines / 2
		for _, line := range lines[:half] {
			fmt.Printf("    %s\n", truncateLine(line, 100))
		}
		fmt.Printf("    %s\n", ui.Dim.Render(fmt.Sprintf("... (%d lines omitted)", len(lines)-maxLines)))
		lines = lines[len(lines)-half:]
	}
	for _, line := range lines {
		fmt.Printf("    %s\n", truncateLine(line, 100))
	}
}

func metaString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func metaInt(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}
