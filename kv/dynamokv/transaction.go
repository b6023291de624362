package dynamokv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/btree"
	"github.com/hupe1980/kvdir/kv"
)

const btreeDegree = 16

// write is a buffered mutation. deleted marks a Clear.
type write struct {
	key     []byte
	value   []byte
	deleted bool
}

func lessWrite(a, b write) bool { return bytes.Compare(a.key, b.key) < 0 }

// Transaction buffers writes locally and commits them atomically.
// It is safe for concurrent use.
type Transaction struct {
	db *Database

	mu     sync.Mutex
	writes *btree.BTreeG[write]
	clears []kv.KeyRange
	// reads holds the first value observed per key; nil means absent.
	reads  map[string][]byte
	err    error
	closed bool
}

var _ kv.Tx = (*Transaction)(nil)

func newTransaction(db *Database) *Transaction {
	return &Transaction{
		db:     db,
		writes: btree.NewG(btreeDegree, lessWrite),
		reads:  make(map[string][]byte),
	}
}

// Transact runs fn against the transaction itself without committing.
func (t *Transaction) Transact(_ context.Context, fn func(kv.Transaction) error) error {
	return fn(t)
}

func (t *Transaction) itemKey(key []byte) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPartition: &types.AttributeValueMemberS{Value: t.db.opts.Partition},
		attrKey:       &types.AttributeValueMemberB{Value: key},
	}
}

// local reports what the transaction's own mutations say about key.
func (t *Transaction) local(key []byte) (value []byte, known bool) {
	if w, ok := t.writes.Get(write{key: key}); ok {
		if w.deleted {
			return nil, true
		}
		return w.value, true
	}
	for _, r := range t.clears {
		if r.Contains(key) {
			return nil, true
		}
	}
	return nil, false
}

// Get returns the value stored under key, or nil if absent.
func (t *Transaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, kv.ErrTransactionClosed
	}
	if v, ok := t.local(key); ok {
		return bytes.Clone(v), nil
	}
	if v, ok := t.reads[string(key)]; ok {
		return bytes.Clone(v), nil
	}

	out, err := t.db.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.db.table),
		Key:            t.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamokv: get: %w", err)
	}

	var value []byte
	if out.Item != nil {
		value, err = valueOf(out.Item)
		if err != nil {
			return nil, err
		}
	}
	t.reads[string(key)] = value
	return bytes.Clone(value), nil
}

// GetRange returns the rows in r ordered by key, merging committed rows with
// the transaction's own mutations.
func (t *Transaction) GetRange(ctx context.Context, r kv.KeyRange, opts kv.RangeOptions) ([]kv.KeyValue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, kv.ErrTransactionClosed
	}
	if bytes.Compare(r.Begin, r.End) >= 0 {
		return nil, nil
	}

	var local []write
	t.writes.AscendRange(write{key: r.Begin}, write{key: r.End}, func(w write) bool {
		local = append(local, w)
		return true
	})
	if opts.Reverse {
		for i, j := 0, len(local)-1; i < j; i, j = i+1, j-1 {
			local[i], local[j] = local[j], local[i]
		}
	}
	before := func(a, b []byte) bool {
		if opts.Reverse {
			return bytes.Compare(a, b) > 0
		}
		return bytes.Compare(a, b) < 0
	}

	var rows []kv.KeyValue
	full := func() bool { return opts.Limit > 0 && len(rows) >= opts.Limit }
	emitLocal := func(w write) {
		if !w.deleted && !full() {
			rows = append(rows, kv.KeyValue{Key: bytes.Clone(w.key), Value: bytes.Clone(w.value)})
		}
	}

	li := 0
	err := t.query(ctx, r, opts, func(key, value []byte) bool {
		if _, known := t.local(key); known {
			return !full()
		}
		for li < len(local) && before(local[li].key, key) {
			emitLocal(local[li])
			li++
		}
		if full() {
			return false
		}
		rows = append(rows, kv.KeyValue{Key: key, Value: value})
		return !full()
	})
	if err != nil {
		return nil, err
	}
	for ; li < len(local) && !full(); li++ {
		emitLocal(local[li])
	}
	return rows, nil
}

// query walks the committed rows of r in order until fn returns false.
func (t *Transaction) query(ctx context.Context, r kv.KeyRange, opts kv.RangeOptions, fn func(key, value []byte) bool) error {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(t.db.table),
		KeyConditionExpression: aws.String("pk = :pk AND sk BETWEEN :b AND :e"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: t.db.opts.Partition},
			":b":  &types.AttributeValueMemberB{Value: r.Begin},
			":e":  &types.AttributeValueMemberB{Value: r.End},
		},
		ConsistentRead:   aws.Bool(true),
		ScanIndexForward: aws.Bool(!opts.Reverse),
	}
	if opts.Limit > 0 {
		// One extra for the inclusive upper bound.
		in.Limit = aws.Int32(int32(opts.Limit + 1))
	}

	for {
		out, err := t.db.client.Query(ctx, in)
		if err != nil {
			return fmt.Errorf("dynamokv: query: %w", err)
		}
		for _, item := range out.Items {
			key, err := keyOf(item)
			if err != nil {
				return err
			}
			if bytes.Equal(key, r.End) {
				continue
			}
			value, err := valueOf(item)
			if err != nil {
				return err
			}
			if !fn(key, value) {
				return nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Set stores value under key.
func (t *Transaction) Set(key, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if len(value) > MaxValueSize && t.err == nil {
		t.err = fmt.Errorf("%w: %d bytes exceeds %d", kv.ErrValueTooLarge, len(value), MaxValueSize)
	}
	t.writes.ReplaceOrInsert(write{key: bytes.Clone(key), value: append([]byte{}, value...)})
}

// Clear removes key.
func (t *Transaction) Clear(key []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.writes.ReplaceOrInsert(write{key: bytes.Clone(key), deleted: true})
}

// ClearRange removes every key in r. Committed keys in r are resolved to
// deletes when the transaction commits.
func (t *Transaction) ClearRange(r kv.KeyRange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || bytes.Compare(r.Begin, r.End) >= 0 {
		return
	}
	var drop []write
	t.writes.AscendRange(write{key: r.Begin}, write{key: r.End}, func(w write) bool {
		drop = append(drop, w)
		return true
	})
	for _, w := range drop {
		t.writes.Delete(w)
	}
	t.clears = append(t.clears, kv.KeyRange{Begin: bytes.Clone(r.Begin), End: bytes.Clone(r.End)})
}

// Commit applies all buffered mutations in one TransactWriteItems call.
// Transactions without mutations commit without contacting the table.
func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return kv.ErrTransactionClosed
	}
	t.closed = true
	if t.err != nil {
		return t.err
	}

	items, err := t.buildItems(ctx)
	if err != nil {
		return err
	}
	if items == nil {
		return nil
	}
	if len(items) > MaxTransactionItems {
		return fmt.Errorf("%w: %d items exceeds %d", kv.ErrTransactionTooLarge, len(items), MaxTransactionItems)
	}

	_, err = t.db.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return fmt.Errorf("%w: %s", kv.ErrConflict, aws.ToString(canceled.Message))
		}
		var conflict *types.TransactionConflictException
		if errors.As(err, &conflict) {
			return fmt.Errorf("%w: %s", kv.ErrConflict, aws.ToString(conflict.Message))
		}
		return fmt.Errorf("dynamokv: commit: %w", err)
	}
	return nil
}

// buildItems returns nil if the transaction wrote nothing.
func (t *Transaction) buildItems(ctx context.Context) ([]types.TransactWriteItem, error) {
	type mutation struct {
		key     []byte
		value   []byte
		deleted bool
	}
	var muts []mutation
	seen := make(map[string]struct{})

	t.writes.Ascend(func(w write) bool {
		muts = append(muts, mutation{key: w.key, value: w.value, deleted: w.deleted})
		seen[string(w.key)] = struct{}{}
		return true
	})
	for _, r := range t.clears {
		err := t.query(ctx, r, kv.RangeOptions{}, func(key, _ []byte) bool {
			if _, ok := seen[string(key)]; !ok {
				muts = append(muts, mutation{key: key, deleted: true})
				seen[string(key)] = struct{}{}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	if len(muts) == 0 {
		return nil, nil
	}

	items := make([]types.TransactWriteItem, 0, len(muts)+len(t.reads))
	for _, m := range muts {
		cond, values := t.condition(m.key)
		if m.deleted {
			items = append(items, types.TransactWriteItem{Delete: &types.Delete{
				TableName:                 aws.String(t.db.table),
				Key:                       t.itemKey(m.key),
				ConditionExpression:       cond,
				ExpressionAttributeValues: values,
			}})
			continue
		}
		item := t.itemKey(m.key)
		item[attrValue] = &types.AttributeValueMemberB{Value: m.value}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName:                 aws.String(t.db.table),
			Item:                      item,
			ConditionExpression:       cond,
			ExpressionAttributeValues: values,
		}})
	}
	for key := range t.reads {
		if _, ok := seen[key]; ok {
			continue
		}
		cond, values := t.condition([]byte(key))
		items = append(items, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(t.db.table),
			Key:                       t.itemKey([]byte(key)),
			ConditionExpression:       cond,
			ExpressionAttributeValues: values,
		}})
	}
	return items, nil
}

// condition asserts that key still holds the value the transaction read.
// It returns nil for keys that were never read.
func (t *Transaction) condition(key []byte) (*string, map[string]types.AttributeValue) {
	v, ok := t.reads[string(key)]
	if !ok {
		return nil, nil
	}
	if v == nil {
		return aws.String("attribute_not_exists(sk)"), nil
	}
	return aws.String("v = :v"), map[string]types.AttributeValue{
		":v": &types.AttributeValueMemberB{Value: v},
	}
}

// Cancel discards the transaction.
func (t *Transaction) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func keyOf(item map[string]types.AttributeValue) ([]byte, error) {
	k, ok := item[attrKey].(*types.AttributeValueMemberB)
	if !ok {
		return nil, errors.New("dynamokv: item without binary sort key")
	}
	return k.Value, nil
}

func valueOf(item map[string]types.AttributeValue) ([]byte, error) {
	switch v := item[attrValue].(type) {
	case *types.AttributeValueMemberB:
		if v.Value == nil {
			return []byte{}, nil
		}
		return v.Value, nil
	case nil:
		return []byte{}, nil
	default:
		return nil, fmt.Errorf("dynamokv: value attribute has type %T", v)
	}
}
