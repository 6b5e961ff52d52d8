package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docvec/internal/config"
	"github.com/nickcecere/docvec/internal/pipeline"
	"github.com/nickcecere/docvec/internal/store"
	"github.com/nickcecere/docvec/internal/ui"
)

var (
	vectorizePending bool
	vectorizeFailed  bool
	vectorizeJSON    bool
)

// vectorizeCmd (re)builds index entries for stored files
var vectorizeCmd = &cobra.Command{
	Use:   "vectorize [id]...",
	Short: "Vectorize stored files",
	Long: `Extract, chunk and embed stored files, replacing any entries they
already have in the vector index.

Examples:
  # Vectorize two files
  docvec vectorize 3 7

  # Vectorize everything that has never been vectorized
  docvec vectorize --pending

  # Retry failed files
  docvec vectorize --failed`,
	RunE: runVectorize,
}

func init() {
	vectorizeCmd.Flags().BoolVar(&vectorizePending, "pending", false, "vectorize files not yet started")
	vectorizeCmd.Flags().BoolVar(&vectorizeFailed, "failed", false, "retry files whose vectorization failed")
	vectorizeCmd.Flags().BoolVar(&vectorizeJSON, "json", false, "output results as JSON")
}

func runVectorize(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	if len(ids) == 0 && !vectorizePending && !vectorizeFailed {
		return fmt.Errorf("specify file ids, --pending or --failed")
	}

	ctx, cancel := signalContext("Interrupted")
	defer cancel()

	a, err := openApp(config.Get())
	if err != nil {
		return err
	}
	defer a.close()

	if vectorizePending {
		more, err := idsWithStatus(a.store, store.VectorNotStarted)
		if err != nil {
			return err
		}
		ids = append(ids, more...)
	}
	if vectorizeFailed {
		more, err := idsWithStatus(a.store, store.VectorFailed)
		if err != nil {
			return err
		}
		ids = append(ids, more...)
	}

	if len(ids) == 0 {
		fmt.Println("Nothing to vectorize.")
		return nil
	}

	log.Debug("Vectorizing files", "count", len(ids))

	var result *pipeline.BatchResult
	_ = withSpinner(fmt.Sprintf("Vectorizing %d files", len(ids)), func() error {
		result = a.pipeline.BatchVectorize(ctx, ids)
		return nil
	})

	if vectorizeJSON {
		return printJSON(result)
	}
	printBatch(result, "vectorized")

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", result.Failed, len(ids))
	}
	return nil
}

// idsWithStatus lists the IDs of every file in a vectorization status.
func idsWithStatus(st store.Store, status store.VectorizationStatus) ([]int64, error) {
	records, err := st.List(store.ListOptions{Status: status})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		if r.UploadStatus == store.UploadStored {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

// printBatch shows one line per batch item and a summary.
func printBatch(result *pipeline.BatchResult, verb string) {
	for _, item := range result.Items {
		if item.OK {
			fmt.Printf("%s #%d %s\n", ui.Success.Render("✓"), item.FileID, verb)
			continue
		}
		fmt.Printf("%s #%d %s %s\n", ui.Error.Render("✗"), item.FileID,
			ui.Warning.Render(item.Kind), ui.Dim.Render(item.Error))
	}
	fmt.Println()
	fmt.Printf("%d succeeded, %d failed\n", result.Succeeded, result.Failed)
}
