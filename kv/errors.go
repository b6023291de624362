package kv

import "errors"

var (
	// ErrConflict is returned by Commit when the transaction read data that
	// another transaction changed. The unit of work may be retried.
	ErrConflict = errors.New("kv: transaction conflict")

	// ErrTransactionTooLarge is returned by Commit when the buffered
	// mutations exceed the store's per-transaction limit.
	ErrTransactionTooLarge = errors.New("kv: transaction too large")

	// ErrValueTooLarge is returned by Commit when a single value exceeds the
	// store's value size limit.
	ErrValueTooLarge = errors.New("kv: value too large")

	// ErrTransactionClosed is returned when a committed or cancelled
	// transaction is used.
	ErrTransactionClosed = errors.New("kv: transaction closed")
)

// IsRetryable reports whether err is a conflict that a fresh attempt may
// resolve.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
