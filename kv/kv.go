// Package kv defines the transactional context boundary between kvdir and an
// ordered, transactional key-value store.
//
// A store backend supplies a Database. Database.Transact runs a unit of work
// in a fresh transaction and retries it on conflicts; CreateTransaction hands
// out an explicit Tx whose commit the caller owns. Both satisfy Transactor, so
// code written against Transactor runs unchanged in either mode.
//
// Mutations (Set, Clear, ClearRange) are buffered and become visible to other
// transactions only on commit. Reads observe the transaction's own earlier
// writes.
package kv

import (
	"context"

	"github.com/hupe1980/kvdir/tuple"
)

// KeyRange is a half-open key interval [Begin, End).
type KeyRange = tuple.KeyRange

// KeyValue is a single row returned by a range read.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// RangeOptions tunes a range read.
type RangeOptions struct {
	// Limit caps the number of rows returned. Zero means unlimited.
	Limit int
	// Reverse returns rows in descending key order.
	Reverse bool
}

// Transaction is the store handle the directory layer operates on.
// Implementations must be safe for concurrent use.
type Transaction interface {
	// Get returns the value stored under key, or nil if the key is absent.
	Get(ctx context.Context, key []byte) ([]byte, error)
	// GetRange returns the rows in r ordered by key.
	GetRange(ctx context.Context, r KeyRange, opts RangeOptions) ([]KeyValue, error)
	// Set stores value under key.
	Set(key, value []byte)
	// Clear removes key.
	Clear(key []byte)
	// ClearRange removes every key in r.
	ClearRange(r KeyRange)
}

// Transactor runs a unit of work against a Transaction.
type Transactor interface {
	Transact(ctx context.Context, fn func(Transaction) error) error
}

// Tx is an explicit transaction. Its owner decides when to commit.
type Tx interface {
	Transaction
	Transactor
	// Commit atomically applies all buffered mutations. It returns
	// ErrConflict if a concurrently committed transaction wrote a key this
	// transaction read.
	Commit(ctx context.Context) error
	// Cancel discards the transaction. It is safe to call after Commit.
	Cancel()
}

// Database is a store connection.
type Database interface {
	Transactor
	// CreateTransaction starts an explicit transaction.
	CreateTransaction(ctx context.Context) (Tx, error)
}

// Mode reports how a Transactor scopes its units of work.
type Mode int

const (
	// AutoCommit runs every unit of work in its own committed transaction.
	AutoCommit Mode = iota
	// Threaded runs every unit of work inside one caller-owned transaction.
	Threaded
)

func (m Mode) String() string {
	switch m {
	case AutoCommit:
		return "auto-commit"
	case Threaded:
		return "threaded"
	default:
		return "unknown"
	}
}

// ModeOf returns Threaded for explicit transactions and AutoCommit otherwise.
func ModeOf(t Transactor) Mode {
	if _, ok := t.(Tx); ok {
		return Threaded
	}
	return AutoCommit
}
