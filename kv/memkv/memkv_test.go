package memkv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/kvdir/kv"
	"github.com/hupe1980/kvdir/tuple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(rows []kv.KeyValue) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = string(r.Key)
	}
	return out
}

func TestTransaction_ReadYourWrites(t *testing.T) {
	ctx := context.Background()
	db := New()

	tx, err := db.CreateTransaction(ctx)
	require.NoError(t, err)

	tx.Set([]byte("a"), []byte("1"))
	v, err := tx.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	tx.Clear([]byte("a"))
	v, err = tx.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 0, db.Len())
}

func TestTransaction_GetRange(t *testing.T) {
	ctx := context.Background()
	db := New()

	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		for _, k := range []string{"a", "b", "c", "d", "e"} {
			tr.Set([]byte(k), []byte(k))
		}
		return nil
	}))

	r := kv.KeyRange{Begin: []byte("b"), End: []byte("e")}
	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		rows, err := tr.GetRange(ctx, r, kv.RangeOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c", "d"}, keys(rows))

		rows, err = tr.GetRange(ctx, r, kv.RangeOptions{Reverse: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c", "b"}, keys(rows))

		rows, err = tr.GetRange(ctx, r, kv.RangeOptions{Reverse: true, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"d"}, keys(rows))

		rows, err = tr.GetRange(ctx, r, kv.RangeOptions{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, keys(rows))
		return nil
	}))
}

func TestTransaction_ClearRange(t *testing.T) {
	ctx := context.Background()
	db := New()
	sub := tuple.NewSubspace(tuple.Tuple{"t"})

	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		for i := 0; i < 10; i++ {
			tr.Set(sub.Pack(tuple.Tuple{i % 2, i}), []byte{byte(i)})
		}
		return nil
	}))
	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		tr.ClearRange(sub.Range(1))
		return nil
	}))

	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		rows, err := tr.GetRange(ctx, sub.Range(), kv.RangeOptions{})
		require.NoError(t, err)
		assert.Len(t, rows, 5)
		for _, row := range rows {
			tup, err := sub.Unpack(row.Key)
			require.NoError(t, err)
			assert.Equal(t, int64(0), tup[0])
		}
		return nil
	}))
}

func TestTransaction_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	db := New()

	reader, err := db.CreateTransaction(ctx)
	require.NoError(t, err)

	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		tr.Set([]byte("k"), []byte("v"))
		return nil
	}))

	v, err := reader.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Nil(t, v, "snapshot must not observe later commits")
	reader.Cancel()
}

func TestTransaction_Conflict(t *testing.T) {
	ctx := context.Background()
	db := New()

	t1, err := db.CreateTransaction(ctx)
	require.NoError(t, err)
	t2, err := db.CreateTransaction(ctx)
	require.NoError(t, err)

	for _, tx := range []kv.Tx{t1, t2} {
		v, err := tx.Get(ctx, []byte("name"))
		require.NoError(t, err)
		require.Nil(t, v)
		tx.Set([]byte("name"), []byte("taken"))
	}

	require.NoError(t, t1.Commit(ctx))
	assert.ErrorIs(t, t2.Commit(ctx), kv.ErrConflict)
}

func TestTransaction_BlindWritesDoNotConflict(t *testing.T) {
	ctx := context.Background()
	db := New()

	t1, _ := db.CreateTransaction(ctx)
	t2, _ := db.CreateTransaction(ctx)
	t1.Set([]byte("x"), []byte("1"))
	t2.Set([]byte("x"), []byte("2"))

	require.NoError(t, t1.Commit(ctx))
	require.NoError(t, t2.Commit(ctx))

	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		v, err := tr.Get(ctx, []byte("x"))
		require.NoError(t, err)
		assert.Equal(t, []byte("2"), v)
		return nil
	}))
}

func TestTransaction_LimitedReadNarrowsConflictRange(t *testing.T) {
	ctx := context.Background()
	db := New()
	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		tr.Set([]byte("b"), nil)
		tr.Set([]byte("d"), nil)
		return nil
	}))

	t1, _ := db.CreateTransaction(ctx)
	rows, err := t1.GetRange(ctx, kv.KeyRange{Begin: []byte("a"), End: []byte("z")}, kv.RangeOptions{Reverse: true, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"d"}, keys(rows))
	t1.Set([]byte("out"), nil)

	// A write below the observed row does not affect the result of the read.
	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		tr.Set([]byte("c"), nil)
		return nil
	}))
	require.NoError(t, t1.Commit(ctx))
}

func TestTransaction_Limits(t *testing.T) {
	ctx := context.Background()
	db := New(func(o *Options) {
		o.MaxValueSize = 8
		o.MaxTransactionSize = 64
	})

	tx, _ := db.CreateTransaction(ctx)
	tx.Set([]byte("k"), make([]byte, 9))
	assert.ErrorIs(t, tx.Commit(ctx), kv.ErrValueTooLarge)

	tx, _ = db.CreateTransaction(ctx)
	for i := 0; i < 10; i++ {
		tx.Set([]byte(fmt.Sprintf("key-%d", i)), make([]byte, 8))
	}
	assert.ErrorIs(t, tx.Commit(ctx), kv.ErrTransactionTooLarge)
}

func TestTransaction_Closed(t *testing.T) {
	ctx := context.Background()
	db := New()
	tx, _ := db.CreateTransaction(ctx)
	require.NoError(t, tx.Commit(ctx))

	_, err := tx.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, kv.ErrTransactionClosed)
	assert.ErrorIs(t, tx.Commit(ctx), kv.ErrTransactionClosed)
}

func TestDatabase_TransactRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	db := New()
	counter := []byte("counter")

	const workers = 8
	var wg sync.WaitGroup
	var attempts atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Transact(ctx, func(tr kv.Transaction) error {
				attempts.Add(1)
				v, err := tr.Get(ctx, counter)
				if err != nil {
					return err
				}
				n := 0
				if v != nil {
					tup, err := tuple.Unpack(v)
					if err != nil {
						return err
					}
					c, err := tup.Int(0)
					if err != nil {
						return err
					}
					n = int(c)
				}
				tr.Set(counter, tuple.Tuple{n + 1}.Pack())
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		v, err := tr.Get(ctx, counter)
		require.NoError(t, err)
		tup, err := tuple.Unpack(v)
		require.NoError(t, err)
		n, err := tup.Int(0)
		require.NoError(t, err)
		assert.Equal(t, int64(workers), n)
		return nil
	}))
	assert.GreaterOrEqual(t, attempts.Load(), int64(workers))
}

func TestDatabase_ConflictHistoryHorizon(t *testing.T) {
	ctx := context.Background()
	db := New(func(o *Options) { o.ConflictHistory = 2 })

	old, _ := db.CreateTransaction(ctx)
	_, err := old.Get(ctx, []byte("unrelated"))
	require.NoError(t, err)
	old.Set([]byte("w"), nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
			tr.Set([]byte{byte(i)}, nil)
			return nil
		}))
	}
	assert.ErrorIs(t, old.Commit(ctx), kv.ErrConflict)
}

func TestModeOf(t *testing.T) {
	db := New()
	tx, _ := db.CreateTransaction(context.Background())
	assert.Equal(t, kv.AutoCommit, kv.ModeOf(db))
	assert.Equal(t, kv.Threaded, kv.ModeOf(tx))
	assert.Equal(t, "threaded", kv.ModeOf(tx).String())
}
