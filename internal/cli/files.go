package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docvec/internal/config"
	"github.com/nickcecere/docvec/internal/store"
	"github.com/nickcecere/docvec/internal/ui"
)

var (
	listLimit  int
	listOffset int
	listStatus string
	listName   string
	listType   string
	listJSON   bool

	showContent bool
	showJSON    bool

	exportOutput string

	deleteYes  bool
	deleteJSON bool
)

// listCmd lists file records
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored files",
	Long: `List stored files, newest first.

Examples:
  # List the 20 most recent files
  docvec list

  # Files whose vectorization failed
  docvec list --status failed

  # Files with "report" in their name
  docvec list --name report`,
	Args: cobra.NoArgs,
	RunE: runList,
}

// showCmd shows one file record
var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored file",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

// describeCmd sets a file's description
var describeCmd = &cobra.Command{
	Use:   "describe <id> <description>",
	Short: "Set a file's description",
	Long: `Set the description stored with a file.

Index entries keep the description from their last vectorization until the
file is vectorized again.`,
	Args: cobra.ExactArgs(2),
	RunE: runDescribe,
}

// exportCmd writes stored bytes back to disk
var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write a stored file's bytes to disk",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

// deleteCmd removes files with their blobs and index entries
var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete stored files",
	Long: `Delete files together with their stored bytes and index entries.

Deleting an unknown id succeeds without doing anything.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of files (0 for all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "number of files to skip")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by vectorization status")
	listCmd.Flags().StringVar(&listName, "name", "", "filter by name substring")
	listCmd.Flags().StringVar(&listType, "type", "", "filter by media type")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")

	showCmd.Flags().BoolVarP(&showContent, "content", "c", false, "render the stored content")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "output as JSON")

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output path (default is the original name)")

	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")
	deleteCmd.Flags().BoolVar(&deleteJSON, "json", false, "output results as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openRecords(config.Get())
	if err != nil {
		return err
	}
	defer a.close()

	var records []store.FileRecord
	switch {
	case listName != "":
		records, err = a.store.ListByNameLike(listName)
	case listType != "":
		records, err = a.store.ListByType(listType)
	default:
		status := store.VectorizationStatus(listStatus)
		if status != "" && !slices.Contains(store.VectorizationStatuses, status) {
			return fmt.Errorf("invalid status %q", listStatus)
		}
		records, err = a.store.List(store.ListOptions{
			Limit:  listLimit,
			Offset: listOffset,
			Status: status,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	if listJSON {
		if records == nil {
			records = []store.FileRecord{}
		}
		return printJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No files found.")
		fmt.Println("\nRun 'docvec upload <file>' to add one.")
		return nil
	}

	fmt.Println(ui.Header.Render("Stored Files"))
	fmt.Println()

	for _, r := range records {
		fmt.Printf("%s %s %s %s\n",
			ui.Highlight.Render(fmt.Sprintf("#%-5d", r.ID)),
			ui.FilePath.Render(truncatePath(r.OriginalName, 48)),
			ui.Dim.Render(formatBytes(r.SizeBytes)),
			statusStyle(r.VectorizationStatus),
		)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	a, err := openRecords(config.Get())
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.store.FindByID(ids[0])
	if err != nil {
		return fmt.Errorf("failed to find file: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("file not found: %d", ids[0])
	}

	if showJSON {
		return printJSON(rec)
	}

	fmt.Printf("%s %s\n", ui.Highlight.Render(fmt.Sprintf("#%d", rec.ID)), ui.Bold.Render(rec.OriginalName))
	fmt.Printf("  %s %s\n", ui.Dim.Render("Type:"), rec.MediaType)
	fmt.Printf("  %s %s\n", ui.Dim.Render("Size:"), formatBytes(rec.SizeBytes))
	fmt.Printf("  %s %s\n", ui.Dim.Render("Hash:"), rec.ContentHash)
	if rec.Description != "" {
		fmt.Printf("  %s %s\n", ui.Dim.Render("Description:"), rec.Description)
	}
	fmt.Printf("  %s %s\n", ui.Dim.Render("Upload:"), rec.UploadStatus)
	fmt.Printf("  %s %s\n", ui.Dim.Render("Vectorization:"), statusStyle(rec.VectorizationStatus))
	if rec.VectorizedAt != nil {
		fmt.Printf("  %s %s\n", ui.Dim.Render("Vectorized:"), formatTime(*rec.VectorizedAt))
	}
	fmt.Printf("  %s %s\n", ui.Dim.Render("Created:"), formatTime(rec.CreatedAt))
	fmt.Printf("  %s %s\n", ui.Dim.Render("Updated:"), formatTime(rec.UpdatedAt))

	if !showContent {
		return nil
	}
	if rec.UploadStatus != store.UploadStored {
		fmt.Println()
		fmt.Println(ui.Warning.Render("(content not stored)"))
		return nil
	}

	data, err := a.blobs.Read(cmd.Context(), rec.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	fmt.Println()
	fmt.Println(ui.SectionTitle.Render("Content"))
	fmt.Println(renderDocument(cmd.Context(), rec, data))
	return nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args[:1])
	if err != nil {
		return err
	}

	a, err := openRecords(config.Get())
	if err != nil {
		return err
	}
	defer a.close()

	ok, err := a.store.UpdateDescription(ids[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to update description: %w", err)
	}
	if !ok {
		return fmt.Errorf("file not found: %d", ids[0])
	}

	fmt.Println(ui.Success.Render(fmt.Sprintf("Description of #%d updated.", ids[0])))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	a, err := openRecords(config.Get())
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.store.FindByID(ids[0])
	if err != nil {
		return fmt.Errorf("failed to find file: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("file not found: %d", ids[0])
	}
	if rec.UploadStatus != store.UploadStored {
		return fmt.Errorf("file %d has no stored content (upload %s)", rec.ID, rec.UploadStatus)
	}

	data, err := a.blobs.Read(cmd.Context(), rec.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	out := exportOutput
	if out == "" {
		out = filepath.Base(rec.OriginalName)
	}
	if _, err := os.Stat(out); err == nil && !confirm(fmt.Sprintf("Overwrite %s?", out)) {
		fmt.Println("Cancelled.")
		return nil
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Println(ui.Success.Render(fmt.Sprintf("Wrote %s (%s)", out, formatBytes(int64(len(data))))))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	if !deleteYes && !confirm(fmt.Sprintf("Delete %d file(s) and their index entries?", len(ids))) {
		fmt.Println("Cancelled.")
		return nil
	}

	ctx, cancel := signalContext("Interrupted")
	defer cancel()

	a, err := openApp(config.Get())
	if err != nil {
		return err
	}
	defer a.close()

	result := a.pipeline.BatchDelete(ctx, ids)
	if deleteJSON {
		return printJSON(result)
	}
	printBatch(result, "deleted")

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", result.Failed, len(ids))
	}
	return nil
}
