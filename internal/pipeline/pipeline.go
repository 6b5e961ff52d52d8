// Package pipeline orchestrates document ingestion: dedup on upload, blob
// persistence, and the background extract/clean/chunk/index sequence that
// drives a file's vectorization status.
package pipeline

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"

	"github.com/nickcecere/docvec/internal/blob"
	"github.com/nickcecere/docvec/internal/extract"
	"github.com/nickcecere/docvec/internal/fs"
	"github.com/nickcecere/docvec/internal/lockmap"
	"github.com/nickcecere/docvec/internal/store"
	"github.com/nickcecere/docvec/internal/vectorsync"
)

// Pipeline owns every write to a file's vectorization status.
type Pipeline struct {
	store     store.Store
	blobs     blob.Store
	sync      *vectorsync.Sync
	extractor extract.Extractor
	chunker   *fs.TextChunker

	pool        *ants.Pool
	locks       *lockmap.Map
	uploads     singleflight.Group
	maxFileSize int64
	uploadLease time.Duration

	wg     sync.WaitGroup
	closed atomic.Bool

	mu     sync.Mutex
	drives map[int64]map[*drive]struct{}
}

// drive is a running vectorization that can be cancelled.
type drive struct {
	cancel context.CancelFunc
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithWorkers sets the background pool size.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithChunkOptions sets the chunker options.
func WithChunkOptions(opts fs.ChunkOptions) Option {
	return func(p *Pipeline) error {
		p.chunker = fs.NewTextChunker(opts)
		return nil
	}
}

// WithExtractor replaces the default extractor.
func WithExtractor(e extract.Extractor) Option {
	return func(p *Pipeline) error {
		if e != nil {
			p.extractor = e
		}
		return nil
	}
}

// WithMaxFileSize rejects uploads larger than n bytes. Zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(p *Pipeline) error {
		p.maxFileSize = n
		return nil
	}
}

// DefaultUploadLease is how long a pending upload row belongs to the
// writer that claimed it.
const DefaultUploadLease = time.Minute

// WithUploadLease sets how long a pending upload row is left to its
// writer before another upload of the same content may take it over.
func WithUploadLease(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			d = 0
		}
		p.uploadLease = d
		return nil
	}
}

// New creates a pipeline.
func New(st store.Store, blobs blob.Store, vs *vectorsync.Sync, opts ...Option) (*Pipeline, error) {
	if st == nil {
		return nil, ErrStoreRequired
	}
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}
	if vs == nil {
		return nil, ErrSyncRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		store:       st,
		blobs:       blobs,
		sync:        vs,
		extractor:   extract.New(),
		chunker:     fs.NewTextChunker(fs.DefaultChunkOptions()),
		pool:        pool,
		locks:       lockmap.New(0),
		uploadLease: DefaultUploadLease,
		drives:      make(map[int64]map[*drive]struct{}),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.pool.Release()
			return nil, err
		}
	}

	return p, nil
}

// Wait blocks until all submitted background work has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Close stops accepting background work, waits for running work and
// releases the pool. The stores are owned by the caller.
func (p *Pipeline) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.wg.Wait()
	p.pool.Release()
	return nil
}

// submit runs fn on the background pool.
func (p *Pipeline) submit(fn func()) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		fn()
	})
	if err != nil {
		p.wg.Done()
		return err
	}
	return nil
}

// register records a cancellable drive for id.
func (p *Pipeline) register(id int64, cancel context.CancelFunc) *drive {
	d := &drive{cancel: cancel}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drives[id] == nil {
		p.drives[id] = make(map[*drive]struct{})
	}
	p.drives[id][d] = struct{}{}
	return d
}

func (p *Pipeline) unregister(id int64, d *drive) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.drives[id], d)
	if len(p.drives[id]) == 0 {
		delete(p.drives, id)
	}
}

// cancelDrives cancels every running drive for id and returns how many.
func (p *Pipeline) cancelDrives(id int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for d := range p.drives[id] {
		d.cancel()
	}
	n := len(p.drives[id])
	if n > 0 {
		log.Debug("Cancelled vectorization", "file", id, "drives", n)
	}
	return n
}

// findRecord loads a record, mapping a missing row to ErrRecordNotFound.
func (p *Pipeline) findRecord(op string, id int64) (*store.FileRecord, error) {
	rec, err := p.store.FindByID(id)
	if err != nil {
		return nil, &Error{Op: op, FileID: id, Kind: KindRepository, Err: err}
	}
	if rec == nil {
		return nil, &Error{Op: op, FileID: id, Kind: KindRecordNotFound, Err: ErrRecordNotFound}
	}
	return rec, nil
}
