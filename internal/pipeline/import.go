package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docvec/internal/fs"
)

// ImportOptions configures a directory import.
type ImportOptions struct {
	Walk      fs.WalkOptions
	Vectorize bool

	// OnFile is called after each file with its upload result or error.
	OnFile func(info fs.FileInfo, result *UploadResult, err error)
}

// ImportStats summarizes a directory import.
type ImportStats struct {
	Uploaded     int
	Deduplicated int
	Failed       int
	Skipped      int
	Duration     time.Duration
}

// Import walks a directory and uploads every document it finds. Per-file
// failures are counted and reported through OnFile.
func (p *Pipeline) Import(ctx context.Context, opts ImportOptions) (*ImportStats, error) {
	walker, err := fs.NewFileWalker(opts.Walk)
	if err != nil {
		return nil, fmt.Errorf("failed to create file walker: %w", err)
	}

	start := time.Now()
	stats := &ImportStats{}

	err = walker.Walk(func(info fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := os.ReadFile(info.Path)
		var result *UploadResult
		if err == nil {
			result, err = p.Upload(ctx, UploadRequest{
				Data:      data,
				Name:      info.RelPath,
				MediaType: info.MediaType,
				Vectorize: opts.Vectorize,
			})
		}

		switch {
		case err != nil:
			stats.Failed++
			log.Warn("Failed to import file", "path", info.RelPath, "error", err)
		case result.Deduplicated:
			stats.Deduplicated++
		default:
			stats.Uploaded++
		}

		if opts.OnFile != nil {
			opts.OnFile(info, result, err)
		}
		return nil
	})
	stats.Skipped = walker.Stats().FilesSkipped()
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, err
	}

	log.Info("Import complete", "uploaded", stats.Uploaded, "duplicates", stats.Deduplicated,
		"failed", stats.Failed, "duration", stats.Duration.Round(time.Millisecond))
	return stats, nil
}
