// Package dynamokv provides a kv.Database backed by an Amazon DynamoDB table.
//
// All keys of one database share a partition; the key bytes are the binary
// sort key, so DynamoDB's byte-wise ordering of binary sort keys yields the
// ordered keyspace kv requires.
//
// Table schema:
//   - Partition key: pk (string) - the database partition
//   - Sort key: sk (binary) - the kv key
//   - Attribute v (binary) - the kv value
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name kvdir \
//	  --attribute-definitions AttributeName=pk,AttributeType=S AttributeName=sk,AttributeType=B \
//	  --key-schema AttributeName=pk,KeyType=HASH AttributeName=sk,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
//
// Writes are buffered in the transaction and committed with one
// TransactWriteItems call. Every key the transaction read with Get is
// re-checked at commit through a condition expression, so a concurrent change
// to it fails the commit with kv.ErrConflict. Range reads are not
// conflict-checked.
//
// A transaction holds at most MaxTransactionItems mutations. A kvdir Output
// flushes its whole content as one 1024-byte item per chunk in a single
// transaction, so over this backend one file is capped at 100 KiB; larger
// flushes fail with kv.ErrTransactionTooLarge.
package dynamokv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/hupe1980/kvdir/kv"
)

const (
	// DefaultPartition is the partition key value used when none is set.
	DefaultPartition = "kvdir"
	// DefaultMaxAttempts bounds the attempts made by Transact.
	DefaultMaxAttempts = 10
	// DefaultMaxBackoff caps the delay between Transact attempts.
	DefaultMaxBackoff = 2 * time.Second

	// MaxTransactionItems is the TransactWriteItems item limit.
	MaxTransactionItems = 100
	// MaxValueSize keeps an item below DynamoDB's 400 KB item limit.
	MaxValueSize = 390_000

	attrPartition = "pk"
	attrKey       = "sk"
	attrValue     = "v"
)

// Client is the subset of the DynamoDB API the database uses.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Options configures a Database.
type Options struct {
	// Partition is the partition key value shared by all keys.
	Partition string
	// MaxAttempts bounds the attempts made by Transact.
	MaxAttempts int
	// MaxBackoff caps the jittered delay between attempts.
	MaxBackoff time.Duration
}

// Database is a DynamoDB-backed kv.Database.
type Database struct {
	client  Client
	table   string
	opts    Options
	backoff *retry.ExponentialJitterBackoff
}

var _ kv.Database = (*Database)(nil)

// New creates a database over table using client.
func New(client Client, table string, optFns ...func(o *Options)) *Database {
	opts := Options{
		Partition:   DefaultPartition,
		MaxAttempts: DefaultMaxAttempts,
		MaxBackoff:  DefaultMaxBackoff,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Database{
		client:  client,
		table:   table,
		opts:    opts,
		backoff: retry.NewExponentialJitterBackoff(opts.MaxBackoff),
	}
}

// NewFromConfig creates a database using the default AWS configuration chain.
func NewFromConfig(ctx context.Context, table string, optFns ...func(o *Options)) (*Database, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), table, optFns...), nil
}

// CreateTransaction starts an explicit transaction.
func (db *Database) CreateTransaction(ctx context.Context) (kv.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newTransaction(db), nil
}

// Transact runs fn in a fresh transaction and commits it. Conflicts are
// retried with exponential jittered backoff up to MaxAttempts.
func (db *Database) Transact(ctx context.Context, fn func(kv.Transaction) error) error {
	var err error
	for attempt := 1; attempt <= db.opts.MaxAttempts; attempt++ {
		tx := newTransaction(db)
		if err = fn(tx); err != nil {
			tx.Cancel()
			return err
		}
		if err = tx.Commit(ctx); err == nil || !kv.IsRetryable(err) {
			return err
		}

		delay, berr := db.backoff.BackoffDelay(attempt, err)
		if berr != nil {
			return errors.Join(err, berr)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("dynamokv: giving up after %d attempts: %w", db.opts.MaxAttempts, err)
}
