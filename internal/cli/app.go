package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docvec/internal/blob"
	"github.com/nickcecere/docvec/internal/config"
	"github.com/nickcecere/docvec/internal/embeddings"
	"github.com/nickcecere/docvec/internal/fs"
	"github.com/nickcecere/docvec/internal/pipeline"
	"github.com/nickcecere/docvec/internal/store"
	"github.com/nickcecere/docvec/internal/vectorindex"
	"github.com/nickcecere/docvec/internal/vectorsync"
)

// app holds the components a command works with.
type app struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	blobs    blob.Store
	index    vectorindex.Index
	pipeline *pipeline.Pipeline
}

// openRecords opens the file-of-record and blob storage only. Commands that
// never touch the vector index use it so they work without an embedding
// provider.
func openRecords(cfg *config.Config) (*app, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	blobs, err := openBlobs(cfg.Storage)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: st, blobs: blobs}, nil
}

// openApp opens every component and wires the pipeline.
func openApp(cfg *config.Config) (*app, error) {
	a, err := openRecords(cfg)
	if err != nil {
		return nil, err
	}

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	index, err := vectorindex.Open(cfg.VectorIndex, emb, embeddings.BatchOptions{
		BatchSize:   cfg.Embeddings.BatchSize,
		MaxAttempts: cfg.Embeddings.MaxAttempts,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	a.index = index

	vs := vectorsync.New(index, vectorsync.Options{
		FallbackCandidates: cfg.VectorIndex.FallbackCandidates,
		DeleteScanLimit:    cfg.VectorIndex.DeleteScanLimit,
		FilterPageSize:     cfg.VectorIndex.FilterPageSize,
	})

	p, err := pipeline.New(a.store, a.blobs, vs,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithMaxFileSize(cfg.Storage.MaxFileSize),
		pipeline.WithChunkOptions(fs.ChunkOptions{
			ChunkSize:      cfg.Chunking.Size,
			ChunkOverlap:   cfg.Chunking.Overlap,
			BoundaryWindow: cfg.Chunking.BoundaryWindow,
			BoundarySlack:  cfg.Chunking.BoundarySlack,
		}),
	)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	a.pipeline = p

	log.Debug("Opened docvec",
		"database", cfg.Database.Path,
		"storage", cfg.Storage.Backend,
		"index", cfg.VectorIndex.Backend,
		"provider", cfg.Embeddings.Provider,
	)
	return a, nil
}

func openBlobs(cfg config.StorageConfig) (blob.Store, error) {
	switch cfg.Backend {
	case "local":
		s, err := blob.NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open blob storage: %w", err)
		}
		return s, nil
	case "badger":
		s, err := blob.NewBadgerStore(cfg.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open blob storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// close waits for background work, then releases everything in reverse
// order of opening.
func (a *app) close() {
	if a.pipeline != nil {
		if err := a.pipeline.Close(); err != nil {
			log.Warn("Failed to stop background work", "error", err)
		}
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			log.Warn("Failed to close vector index", "error", err)
		}
	}
	if err := a.blobs.Close(); err != nil {
		log.Warn("Failed to close blob storage", "error", err)
	}
	if err := a.store.Close(); err != nil {
		log.Warn("Failed to close store", "error", err)
	}
}

// signalContext returns a context cancelled on interrupt.
func signalContext(message string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if message != "" {
				fmt.Println("\n" + message)
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
