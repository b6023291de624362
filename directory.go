package kvdir

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/kvdir/kv"
	"github.com/hupe1980/kvdir/tuple"
)

// DefaultRootPrefix is the first element of the root subspace created by
// NewWithPath.
const DefaultRootPrefix = "kvdir"

// Subspace elements that partition a directory's root.
const (
	catalogRegion int64 = 0
	dataRegion    int64 = 1
)

// Directory is a virtual file system stored in a key-value keyspace.
//
// The catalog maps names to file ids under root+(0); content lives in
// ChunkSize records under root+(1, fileID, offset). Every operation runs as a
// unit of work against the bound kv.Transactor: a kv.Database commits each
// call on its own, a kv.Tx leaves commit to its owner.
type Directory struct {
	t       kv.Transactor
	root    tuple.Subspace
	catalog *catalog
	chunks  *chunkStore
	logger  *Logger

	mu   sync.RWMutex
	opts options
}

var _ Dir = (*Directory)(nil)

// New returns a directory over root bound to t.
//
// Example:
//
//	db := memkv.New()
//	dir := kvdir.New(db, tuple.NewSubspace(tuple.Tuple{"kvdir", "index"}))
//	out, _ := dir.CreateOutput(ctx, "_0.si")
func New(t kv.Transactor, root tuple.Subspace, optFns ...Option) *Directory {
	o := applyOptions(optFns)
	chunks := &chunkStore{data: root.Sub(dataRegion)}
	return &Directory{
		t:    t,
		root: root,
		catalog: &catalog{
			names:  root.Sub(catalogRegion),
			chunks: chunks,
		},
		chunks: chunks,
		logger: o.logger.WithDirectory(root.String()),
		opts:   o,
	}
}

// NewWithPath returns a directory rooted at (DefaultRootPrefix, path).
func NewWithPath(t kv.Transactor, path string, optFns ...Option) *Directory {
	return New(t, tuple.NewSubspace(tuple.Tuple{DefaultRootPrefix, path}), optFns...)
}

// WithTransactor returns a directory over the same keyspace bound to t.
// Options and the lock factory are shared with d.
func (d *Directory) WithTransactor(t kv.Transactor) *Directory {
	d.mu.RLock()
	o := d.opts
	d.mu.RUnlock()
	return &Directory{
		t:       t,
		root:    d.root,
		catalog: d.catalog,
		chunks:  d.chunks,
		logger:  d.logger,
		opts:    o,
	}
}

// Subspace returns the directory's root subspace.
func (d *Directory) Subspace() tuple.Subspace { return d.root }

// Transactor returns the bound transactional context.
func (d *Directory) Transactor() kv.Transactor { return d.t }

// Logger returns the directory's logger.
func (d *Directory) Logger() *Logger { return d.logger }

// Mode reports whether operations commit on their own or join the caller's
// transaction.
func (d *Directory) Mode() kv.Mode { return kv.ModeOf(d.t) }

// ListAll returns the names of all files in key order.
func (d *Directory) ListAll(ctx context.Context) ([]string, error) {
	var names []string
	err := d.t.Transact(ctx, func(tr kv.Transaction) error {
		var err error
		names, err = d.catalog.list(ctx, tr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// FileExists reports whether name is registered.
func (d *Directory) FileExists(ctx context.Context, name string) (bool, error) {
	err := d.t.Transact(ctx, func(tr kv.Transaction) error {
		_, err := d.catalog.resolve(ctx, tr, name)
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, fileError("exists", name, err)
	}
}

// DeleteFile removes name and its content.
func (d *Directory) DeleteFile(ctx context.Context, name string) error {
	start := time.Now()
	err := d.t.Transact(ctx, func(tr kv.Transaction) error {
		return d.catalog.delete(ctx, tr, name)
	})
	err = fileError("delete", name, err)
	d.metrics().RecordDelete(time.Since(start), err)
	d.logger.LogDelete(ctx, name, err)
	return err
}

// FileLength returns the size of name's content.
func (d *Directory) FileLength(ctx context.Context, name string) (int64, error) {
	var n int64
	err := d.t.Transact(ctx, func(tr kv.Transaction) error {
		id, err := d.catalog.resolve(ctx, tr, name)
		if err != nil {
			return err
		}
		n, err = d.chunks.size(ctx, tr, id)
		return err
	})
	if err != nil {
		return 0, fileError("length", name, err)
	}
	return n, nil
}

// CreateOutput registers name and returns an output for its content.
//
// The catalog entry is written immediately. The content is written when the
// output is flushed or closed, using ctx.
func (d *Directory) CreateOutput(ctx context.Context, name string) (IndexOutput, error) {
	out, err := d.createOutput(ctx, name)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Directory) createOutput(ctx context.Context, name string) (*Output, error) {
	start := time.Now()
	var id int64
	err := d.t.Transact(ctx, func(tr kv.Transaction) error {
		var err error
		id, err = d.catalog.create(ctx, tr, name)
		return err
	})
	err = fileError("create", name, err)
	d.metrics().RecordCreate(time.Since(start), err)
	d.logger.LogCreate(ctx, name, id, err)
	if err != nil {
		return nil, err
	}
	return newOutput(ctx, d, name, id), nil
}

// OpenInput reads name's content and returns an input over it.
func (d *Directory) OpenInput(ctx context.Context, name string) (IndexInput, error) {
	in, err := d.openInput(ctx, name)
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (d *Directory) openInput(ctx context.Context, name string) (*Input, error) {
	start := time.Now()
	var data []byte
	err := d.t.Transact(ctx, func(tr kv.Transaction) error {
		id, err := d.catalog.resolve(ctx, tr, name)
		if err != nil {
			return err
		}
		data, err = d.chunks.read(ctx, tr, id)
		return err
	})
	err = fileError("open", name, err)
	d.metrics().RecordOpen(int64(len(data)), time.Since(start), err)
	d.logger.LogOpen(ctx, name, int64(len(data)), err)
	if err != nil {
		return nil, err
	}
	return newInput(name, data), nil
}

// Sync is a no-op. Content is durable once its transaction commits.
func (d *Directory) Sync(context.Context, []string) error { return nil }

// MakeLock returns a lock from the configured factory.
func (d *Directory) MakeLock(name string) Lock {
	return d.LockFactory().MakeLock(name)
}

// ClearLock clears a lock through the configured factory.
func (d *Directory) ClearLock(name string) error {
	return d.LockFactory().ClearLock(name)
}

// LockFactory returns the configured lock factory.
func (d *Directory) LockFactory() LockFactory {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.opts.lockFactory
}

// SetLockFactory replaces the lock factory. Nil restores NoLockFactory.
func (d *Directory) SetLockFactory(f LockFactory) {
	if f == nil {
		f = NoLockFactory{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts.lockFactory = f
}

// Close is a no-op. The directory does not own the store.
func (d *Directory) Close() error { return nil }

func (d *Directory) metrics() MetricsCollector {
	return d.opts.metricsCollector
}
