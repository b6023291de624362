package memkv

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/hupe1980/kvdir/kv"
)

type opKind uint8

const (
	opSet opKind = iota
	opClear
	opClearRange
)

type mutation struct {
	kind  opKind
	key   []byte
	value []byte
	rng   kv.KeyRange
}

// Transaction is an explicit memkv transaction.
// It is safe for concurrent use.
type Transaction struct {
	db          *Database
	readVersion uint64

	mu     sync.Mutex
	view   *btree.BTreeG[item]
	reads  []kv.KeyRange
	ops    []mutation
	size   int
	err    error
	closed bool
}

var _ kv.Tx = (*Transaction)(nil)

// Transact runs fn against the transaction itself without committing.
func (t *Transaction) Transact(_ context.Context, fn func(kv.Transaction) error) error {
	return fn(t)
}

// Get returns the value stored under key, or nil if absent.
func (t *Transaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, kv.ErrTransactionClosed
	}

	t.reads = append(t.reads, kv.KeyRange{Begin: bytes.Clone(key), End: keyAfter(key)})
	it, ok := t.view.Get(item{key: key})
	if !ok {
		return nil, nil
	}
	if len(it.value) == 0 {
		return []byte{}, nil
	}
	return bytes.Clone(it.value), nil
}

// GetRange returns the rows in r ordered by key.
func (t *Transaction) GetRange(ctx context.Context, r kv.KeyRange, opts kv.RangeOptions) ([]kv.KeyValue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, kv.ErrTransactionClosed
	}

	var rows []kv.KeyValue
	collect := func(it item) bool {
		rows = append(rows, kv.KeyValue{Key: bytes.Clone(it.key), Value: bytes.Clone(it.value)})
		return opts.Limit <= 0 || len(rows) < opts.Limit
	}

	if opts.Reverse {
		t.view.DescendLessOrEqual(item{key: r.End}, func(it item) bool {
			if bytes.Equal(it.key, r.End) {
				return true
			}
			if bytes.Compare(it.key, r.Begin) < 0 {
				return false
			}
			return collect(it)
		})
	} else {
		t.view.AscendRange(item{key: r.Begin}, item{key: r.End}, collect)
	}

	// A limited read only depends on the part of the range it actually saw.
	read := kv.KeyRange{Begin: bytes.Clone(r.Begin), End: bytes.Clone(r.End)}
	if opts.Limit > 0 && len(rows) == opts.Limit {
		last := rows[len(rows)-1].Key
		if opts.Reverse {
			read.Begin = bytes.Clone(last)
		} else {
			read.End = keyAfter(last)
		}
	}
	t.reads = append(t.reads, read)
	return rows, nil
}

// Set stores value under key.
func (t *Transaction) Set(key, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if len(value) > t.db.opts.MaxValueSize && t.err == nil {
		t.err = fmt.Errorf("%w: %d bytes exceeds %d", kv.ErrValueTooLarge, len(value), t.db.opts.MaxValueSize)
	}
	m := mutation{kind: opSet, key: bytes.Clone(key), value: bytes.Clone(value)}
	t.view.ReplaceOrInsert(item{key: m.key, value: m.value})
	t.record(m, len(key)+len(value))
}

// Clear removes key.
func (t *Transaction) Clear(key []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	m := mutation{kind: opClear, key: bytes.Clone(key)}
	t.view.Delete(item{key: m.key})
	t.record(m, len(key))
}

// ClearRange removes every key in r.
func (t *Transaction) ClearRange(r kv.KeyRange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	m := mutation{kind: opClearRange, rng: kv.KeyRange{Begin: bytes.Clone(r.Begin), End: bytes.Clone(r.End)}}
	clearRange(t.view, m.rng)
	t.record(m, len(r.Begin)+len(r.End))
}

func (t *Transaction) record(m mutation, size int) {
	t.ops = append(t.ops, m)
	t.size += size
	if t.size > t.db.opts.MaxTransactionSize && t.err == nil {
		t.err = fmt.Errorf("%w: %d bytes exceeds %d", kv.ErrTransactionTooLarge, t.size, t.db.opts.MaxTransactionSize)
	}
}

// Commit applies the buffered mutations atomically.
func (t *Transaction) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return kv.ErrTransactionClosed
	}
	t.closed = true
	t.view = nil

	if t.err != nil {
		return t.err
	}
	if len(t.ops) == 0 {
		return nil
	}
	return t.db.commit(t)
}

// Cancel discards the transaction.
func (t *Transaction) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.view = nil
}

// keyAfter returns the smallest key strictly greater than key.
func keyAfter(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}
