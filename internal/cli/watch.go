package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docvec/internal/config"
	"github.com/nickcecere/docvec/internal/fs"
	"github.com/nickcecere/docvec/internal/pipeline"
	"github.com/nickcecere/docvec/internal/ui"
	"github.com/nickcecere/docvec/internal/watcher"
)

var (
	watchNoInitial bool
	watchRemove    bool
	watchVectorize bool
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Upload documents dropped into an inbox directory",
	Long: `Watch a directory and upload documents as they are created or changed.

This command first imports the documents already in the directory (unless
--no-initial is specified), then uploads new and modified files as they
appear. Removing a file from the inbox never deletes the stored copy.

Examples:
  # Watch the current directory
  docvec watch

  # Watch an inbox and remove files once stored
  docvec watch ./inbox --remove

  # Skip the initial import
  docvec watch --no-initial`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "skip initial import")
	watchCmd.Flags().BoolVar(&watchRemove, "remove", false, "delete inbox files after upload")
	watchCmd.Flags().BoolVar(&watchVectorize, "vectorize", true, "vectorize new uploads")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	// Resolve absolute path
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Check path exists and is a directory
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	cfg := config.Get()
	if !cmd.Flags().Changed("vectorize") {
		watchVectorize = cfg.Pipeline.VectorizeOnUpload
	}

	ctx, cancel := signalContext("Shutting down...")
	defer cancel()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// Perform initial import unless --no-initial is set
	if !watchNoInitial {
		fmt.Println(ui.Header.Render("Initial Import"))
		fmt.Printf("Path: %s\n", absPath)
		fmt.Printf("Provider: %s\n\n", cfg.Embeddings.Provider)

		walkOpts := fs.DefaultWalkOptions()
		walkOpts.Root = absPath
		walkOpts.MaxFileSize = cfg.Storage.MaxFileSize
		walkOpts.IgnorePatterns = cfg.Ignore

		var stats *pipeline.ImportStats
		err = withSpinner("Uploading files", func() error {
			var err error
			stats, err = a.pipeline.Import(ctx, pipeline.ImportOptions{
				Walk:      walkOpts,
				Vectorize: watchVectorize,
				OnFile: func(info fs.FileInfo, result *pipeline.UploadResult, err error) {
					if err == nil && watchRemove {
						if rmErr := os.Remove(info.Path); rmErr != nil {
							log.Warn("Failed to remove uploaded file", "path", info.RelPath, "error", rmErr)
						}
					}
				},
			})
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil // User cancelled
			}
			return fmt.Errorf("initial import failed: %w", err)
		}

		fmt.Printf("Initial import complete: %d uploaded, %d already stored, %d failed\n\n",
			stats.Uploaded, stats.Deduplicated, stats.Failed)
	}

	w, err := watcher.New(
		absPath,
		a.pipeline,
		watcher.WithDebounceTime(500*time.Millisecond),
		watcher.WithVectorize(watchVectorize),
		watcher.WithMaxFileSize(cfg.Storage.MaxFileSize),
		watcher.WithRemoveAfterUpload(watchRemove),
		watcher.WithEventCallback(func(event, path string) {
			switch event {
			case watcher.EventUploaded:
				fmt.Printf("%s %s\n", ui.Success.Render("✓"), ui.FilePath.Render(path))
			case watcher.EventDuplicate:
				fmt.Printf("%s %s %s\n", ui.Warning.Render("="), ui.FilePath.Render(path), ui.Dim.Render("already stored"))
			case watcher.EventFailed:
				fmt.Printf("%s %s\n", ui.Error.Render("✗"), ui.FilePath.Render(path))
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Start watching
	fmt.Println(ui.Header.Render("Watching Inbox"))
	fmt.Printf("Directory: %s\n", absPath)
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
