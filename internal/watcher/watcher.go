// Package watcher uploads documents dropped into an inbox directory.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/nickcecere/docvec/internal/fs"
	"github.com/nickcecere/docvec/internal/pipeline"
)

// Event names passed to the event callback.
const (
	EventUploaded  = "uploaded"
	EventDuplicate = "duplicate"
	EventFailed    = "failed"
)

// Uploader ingests document bytes.
type Uploader interface {
	Upload(ctx context.Context, req pipeline.UploadRequest) (*pipeline.UploadResult, error)
}

// Watcher watches an inbox directory and uploads new or changed documents.
type Watcher struct {
	root     string
	uploader Uploader

	vectorize   bool
	maxFileSize int64
	removeAfter bool

	// debounce holds pending paths to batch process
	debounce     map[string]fsnotify.Op
	debounceMu   sync.Mutex
	debounceTime time.Duration

	// callback for status updates
	onEvent func(event string, path string)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets the debounce duration for batching events.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceTime = d
	}
}

// WithEventCallback sets a callback for upload events.
func WithEventCallback(fn func(event string, path string)) Option {
	return func(w *Watcher) {
		w.onEvent = fn
	}
}

// WithVectorize queues vectorization for new uploads.
func WithVectorize(enabled bool) Option {
	return func(w *Watcher) {
		w.vectorize = enabled
	}
}

// WithMaxFileSize skips files larger than n bytes.
func WithMaxFileSize(n int64) Option {
	return func(w *Watcher) {
		w.maxFileSize = n
	}
}

// WithRemoveAfterUpload deletes inbox files once they are stored.
func WithRemoveAfterUpload(enabled bool) Option {
	return func(w *Watcher) {
		w.removeAfter = enabled
	}
}

// New creates a new inbox watcher.
func New(root string, uploader Uploader, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:         absRoot,
		uploader:     uploader,
		debounce:     make(map[string]fsnotify.Op),
		debounceTime: 500 * time.Millisecond,
		onEvent:      func(string, string) {}, // noop default
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start begins watching. Blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addDirectories(watcher); err != nil {
		return err
	}

	log.Info("Watching inbox", "root", w.root)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, watcher)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// addDirectories recursively adds all directories to the watcher.
func (w *Watcher) addDirectories(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !d.IsDir() {
			return nil
		}

		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		if err := watcher.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// handleEvent queues a single file system event.
func (w *Watcher) handleEvent(event fsnotify.Event, watcher *fsnotify.Watcher) {
	path := event.Name

	// Skip hidden and partial files
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Removed or renamed away; the stored copy is kept
		return
	}

	if info.IsDir() {
		if event.Has(fsnotify.Create) && !strings.HasPrefix(info.Name(), ".") {
			watcher.Add(path)
			log.Debug("Added directory to watch", "path", path)
		}
		return
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if !w.isDocument(path, info.Size()) {
		return
	}

	w.debounceMu.Lock()
	w.debounce[path] = event.Op
	w.debounceMu.Unlock()
}

// isDocument checks if a file should be uploaded.
func (w *Watcher) isDocument(path string, size int64) bool {
	if !fs.IsDocumentFile(path) {
		return false
	}
	if w.maxFileSize > 0 && size > w.maxFileSize {
		log.Warn("Skipping large file", "path", path, "bytes", size)
		return false
	}
	return true
}

// processDebounced processes debounced file events periodically.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushDebounced(ctx)
		}
	}
}

// flushDebounced uploads all pending paths.
func (w *Watcher) flushDebounced(ctx context.Context) {
	w.debounceMu.Lock()
	if len(w.debounce) == 0 {
		w.debounceMu.Unlock()
		return
	}

	paths := make([]string, 0, len(w.debounce))
	for k := range w.debounce {
		paths = append(paths, k)
	}
	w.debounce = make(map[string]fsnotify.Op)
	w.debounceMu.Unlock()

	for _, path := range paths {
		select {
		case <-ctx.Done():
			return
		default:
		}

		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			relPath = path
		}

		event, err := w.upload(ctx, path, relPath)
		if err != nil {
			log.Error("Failed to upload", "path", relPath, "error", err)
		}
		w.onEvent(event, relPath)
	}
}

// upload stores a single inbox file.
func (w *Watcher) upload(ctx context.Context, path, relPath string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EventFailed, err
	}

	result, err := w.uploader.Upload(ctx, pipeline.UploadRequest{
		Data:      data,
		Name:      relPath,
		MediaType: fs.DetectMediaType(path),
		Vectorize: w.vectorize,
	})
	if err != nil {
		return EventFailed, err
	}

	if w.removeAfter {
		if err := os.Remove(path); err != nil {
			log.Warn("Failed to remove uploaded file", "path", relPath, "error", err)
		}
	}

	if result.Deduplicated {
		log.Info("Already stored", "file", result.ID, "path", relPath)
		return EventDuplicate, nil
	}
	log.Info("Uploaded", "file", result.ID, "path", relPath)
	return EventUploaded, nil
}
