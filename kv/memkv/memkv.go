// Package memkv provides an in-process kv.Database.
//
// Data lives in a copy-on-write B-tree. Every transaction reads from a
// snapshot taken when it starts and applies its own writes to that snapshot,
// giving read-your-writes semantics. Commits use optimistic concurrency: a
// transaction fails with kv.ErrConflict if any transaction that committed after
// its snapshot wrote into a range it read.
//
// Limits mirror FoundationDB so that code exercised against memkv respects the
// same value and transaction sizes a production store enforces.
package memkv

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/hupe1980/kvdir/kv"
)

const (
	// DefaultMaxValueSize is the largest value accepted by Set.
	DefaultMaxValueSize = 100_000
	// DefaultMaxTransactionSize bounds the bytes of keys and values mutated by
	// one transaction.
	DefaultMaxTransactionSize = 10_000_000
	// DefaultConflictHistory is the number of commits kept for conflict checks.
	DefaultConflictHistory = 4096
	// DefaultMaxRetries bounds the attempts made by Transact.
	DefaultMaxRetries = 100

	btreeDegree = 32
)

// Options configures a Database.
type Options struct {
	MaxValueSize       int
	MaxTransactionSize int
	ConflictHistory    int
	MaxRetries         int
}

type item struct {
	key   []byte
	value []byte
}

func lessItem(a, b item) bool { return bytes.Compare(a.key, b.key) < 0 }

type commitRecord struct {
	version uint64
	keys    [][]byte
	ranges  []kv.KeyRange
}

// Database is an in-memory ordered transactional store.
// It is safe for concurrent use.
type Database struct {
	opts Options

	mu      sync.Mutex
	tree    *btree.BTreeG[item]
	version uint64
	history []commitRecord
	// horizon is the newest version whose commit record was discarded.
	horizon uint64
}

var _ kv.Database = (*Database)(nil)

// New creates an empty database.
func New(optFns ...func(o *Options)) *Database {
	opts := Options{
		MaxValueSize:       DefaultMaxValueSize,
		MaxTransactionSize: DefaultMaxTransactionSize,
		ConflictHistory:    DefaultConflictHistory,
		MaxRetries:         DefaultMaxRetries,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ConflictHistory <= 0 {
		opts.ConflictHistory = DefaultConflictHistory
	}
	return &Database{
		opts: opts,
		tree: btree.NewG(btreeDegree, lessItem),
	}
}

// CreateTransaction starts an explicit transaction.
func (db *Database) CreateTransaction(ctx context.Context) (kv.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return db.begin(), nil
}

// Transact runs fn in a fresh transaction and commits it, retrying the whole
// unit of work on conflicts.
func (db *Database) Transact(ctx context.Context, fn func(kv.Transaction) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := db.begin()
		err := fn(tx)
		if err == nil {
			err = tx.Commit(ctx)
		}
		tx.Cancel()
		if err == nil {
			return nil
		}
		if !kv.IsRetryable(err) || attempt >= db.opts.MaxRetries {
			return err
		}
	}
}

// Len returns the number of committed keys.
func (db *Database) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tree.Len()
}

func (db *Database) begin() *Transaction {
	db.mu.Lock()
	defer db.mu.Unlock()
	return &Transaction{
		db:          db,
		readVersion: db.version,
		view:        db.tree.Clone(),
	}
}

// commit validates and applies t. The caller holds t.mu.
func (db *Database) commit(t *Transaction) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(t.reads) > 0 {
		if t.readVersion < db.horizon {
			return kv.ErrConflict
		}
		for i := len(db.history) - 1; i >= 0; i-- {
			rec := &db.history[i]
			if rec.version <= t.readVersion {
				break
			}
			if rec.intersects(t.reads) {
				return kv.ErrConflict
			}
		}
	}

	rec := commitRecord{}
	for _, op := range t.ops {
		switch op.kind {
		case opSet:
			db.tree.ReplaceOrInsert(item{key: op.key, value: op.value})
			rec.keys = append(rec.keys, op.key)
		case opClear:
			db.tree.Delete(item{key: op.key})
			rec.keys = append(rec.keys, op.key)
		case opClearRange:
			clearRange(db.tree, op.rng)
			rec.ranges = append(rec.ranges, op.rng)
		}
	}

	db.version++
	rec.version = db.version
	db.history = append(db.history, rec)
	if over := len(db.history) - db.opts.ConflictHistory; over > 0 {
		db.horizon = db.history[over-1].version
		db.history = append(db.history[:0:0], db.history[over:]...)
	}
	return nil
}

func (rec *commitRecord) intersects(reads []kv.KeyRange) bool {
	for _, r := range reads {
		for _, k := range rec.keys {
			if r.Contains(k) {
				return true
			}
		}
		for _, w := range rec.ranges {
			if bytes.Compare(r.Begin, w.End) < 0 && bytes.Compare(w.Begin, r.End) < 0 {
				return true
			}
		}
	}
	return false
}

func clearRange(tree *btree.BTreeG[item], r kv.KeyRange) {
	var doomed []item
	tree.AscendRange(item{key: r.Begin}, item{key: r.End}, func(it item) bool {
		doomed = append(doomed, it)
		return true
	})
	for _, it := range doomed {
		tree.Delete(it)
	}
}
