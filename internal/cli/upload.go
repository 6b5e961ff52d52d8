package cli

import (
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
)

var (
	uploadDescription string
	uploadType        string
	uploadVectorize   bool

	importExtensions []string
	importIgnore     []string
	importHidden     bool
	importDryRun     bool
	importVectorize  bool
)

// uploadCmd stores documents and queues their vectorization
var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload documents",
	Long: `Upload one or more documents.

Each document is stored once per distinct content. Uploading the same bytes
again returns the existing file record. The command returns once queued
vectorization has finished.

Examples:
  # Upload and vectorize in the background
  docvec upload notes.md

  # Upload with a description
  docvec upload report.pdf --description "Annual report"

  # Store only
  docvec upload data.json --vectorize=false`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

// importCmd uploads every document under a directory
var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Upload every document under a directory",
	Long: `Walk a directory and upload every document it contains.

Hidden files, .gitignore matches and the configured ignore patterns are
skipped.

Examples:
  # Import the current directory
  docvec import

  # Import only markdown and PDF files
  docvec import ./docs --ext .md --ext .pdf

  # Show what would be imported
  docvec import ./docs --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadDescription, "description", "d", "", "description stored with the file")
	uploadCmd.Flags().StringVarP(&uploadType, "type", "t", "", "media type (detected when empty)")
	uploadCmd.Flags().BoolVar(&uploadVectorize, "vectorize", true, "vectorize new uploads")

	importCmd.Flags().StringSliceVar(&importExtensions, "ext", nil, "only import these extensions")
	importCmd.Flags().StringSliceVar(&importIgnore, "ignore", nil, "additional ignore patterns (gitignore syntax)")
	importCmd.Flags().BoolVar(&importHidden, "hidden", false, "include hidden files")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "list files without uploading")
	importCmd.Flags().BoolVar(&importVectorize, "vectorize", true, "vectorize new uploads")
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if !cmd.Flags().Changed("vectorize") {
		uploadVectorize = cfg.Pipeline.VectorizeOnUpload
	}

	ctx, cancel := signalContext("Interrupted")
	defer cancel()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	var failed, queued int
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("%s %s: %v\n", ui.Error.Render("✗"), path, err)
			failed++
			continue
		}

		mediaType := uploadType
		if mediaType == "" {
			mediaType = fs.DetectMediaType(path)
		}

		result, err := a.pipeline.Upload(ctx, pipeline.UploadRequest{
			Data:        data,
			Name:        filepath.Base(path),
			MediaType:   mediaType,
			Description: uploadDescription,
			Vectorize:   uploadVectorize,
		})
		if err != nil {
			fmt.Printf("%s %s: %v\n", ui.Error.Render("✗"), path, err)
			failed++
			continue
		}

		switch {
		case result.Deduplicated:
			fmt.Printf("%s %s %s\n", ui.Warning.Render("="), ui.FilePath.Render(path),
				ui.Dim.Render(fmt.Sprintf("already stored as #%d", result.ID)))
		case result.Queued:
			queued++
			fmt.Printf("%s %s %s\n", ui.Success.Render("✓"), ui.FilePath.Render(path),
				ui.Dim.Render(fmt.Sprintf("#%d, %s, vectorizing", result.ID, formatBytes(result.SizeBytes))))
		default:
			fmt.Printf("%s %s %s\n", ui.Success.Render("✓"), ui.FilePath.Render(path),
				ui.Dim.Render(fmt.Sprintf("#%d, %s", result.ID, formatBytes(result.SizeBytes))))
		}
	}

	if queued > 0 {
		_ = withSpinner(fmt.Sprintf("Vectorizing %d files", queued), func() error {
			a.pipeline.Wait()
			return nil
		})
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(args))
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	cfg := config.Get()
	if !cmd.Flags().Changed("vectorize") {
		importVectorize = cfg.Pipeline.VectorizeOnUpload
	}

	walkOpts := fs.DefaultWalkOptions()
	walkOpts.Root = absPath
	walkOpts.MaxFileSize = cfg.Storage.MaxFileSize
	walkOpts.IgnorePatterns = append(append([]string{}, cfg.Ignore...), importIgnore...)
	walkOpts.IncludeHidden = importHidden
	walkOpts.Extensions = importExtensions

	if importDryRun {
		return runImportDryRun(walkOpts)
	}

	ctx, cancel := signalContext("Interrupted")
	defer cancel()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Println(ui.Header.Render("Importing Documents"))
	fmt.Printf("Path: %s\n\n", absPath)

	var stats *pipeline.ImportStats
	err = withSpinner("Uploading files", func() error {
		var err error
		stats, err = a.pipeline.Import(ctx, pipeline.ImportOptions{
			Walk:      walkOpts,
			Vectorize: importVectorize,
			OnFile: func(info fs.FileInfo, result *pipeline.UploadResult, err error) {
				if err != nil {
					log.Debug("Import failed", "path", info.RelPath, "error", err)
				}
			},
		})
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("%s %d uploaded, %d already stored, %d failed, %d skipped in %s\n",
		ui.Success.Render("✓"),
		stats.Uploaded, stats.Deduplicated, stats.Failed, stats.Skipped,
		stats.Duration.Round(time.Millisecond),
	)

	if importVectorize && stats.Uploaded > 0 {
		_ = withSpinner(fmt.Sprintf("Vectorizing %d files", stats.Uploaded), func() error {
			a.pipeline.Wait()
			return nil
		})
		fmt.Println(ui.Success.Render("Vectorization finished."))
	}

	if stats.Failed > 0 {
		return fmt.Errorf("%d files failed to import", stats.Failed)
	}
	return nil
}

// runImportDryRun lists the files an import would upload.
func runImportDryRun(opts fs.WalkOptions) error {
	walker, err := fs.NewFileWalker(opts)
	if err != nil {
		return fmt.Errorf("failed to create file walker: %w", err)
	}

	fmt.Println(ui.Header.Render("Dry Run"))
	fmt.Printf("Path: %s\n\n", opts.Root)

	var total int64
	var count int
	err = walker.Walk(func(info fs.FileInfo) error {
		count++
		total += info.Size
		fmt.Printf("  %s %s %s\n",
			ui.FilePath.Render(truncatePath(info.RelPath, 60)),
			ui.Dim.Render(info.MediaType),
			ui.Dim.Render(formatBytes(info.Size)),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk failed: %w", err)
	}

	stats := walker.Stats()
	fmt.Println()
	fmt.Printf("Would import %d files (%s), skip %d\n", count, formatBytes(total), stats.FilesSkipped())
	for _, reason := range []fs.SkipReason{fs.SkipHidden, fs.SkipIgnored, fs.SkipExtension, fs.SkipTooLarge, fs.SkipBinary, fs.SkipUnreadable} {
		if n := stats.Skipped[reason]; n > 0 {
			fmt.Printf("  %s %d\n", ui.Dim.Render(string(reason)+":"), n)
		}
	}
	return nil
}
