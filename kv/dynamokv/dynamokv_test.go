package dynamokv

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hupe1980/kvdir"
	"github.com/hupe1980/kvdir/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(client *mockDDBClient) *Database {
	return New(client, "kvdir-test", func(o *Options) {
		o.MaxBackoff = time.Millisecond
	})
}

func rowKeys(rows []kv.KeyValue) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = string(r.Key)
	}
	return out
}

func seed(t *testing.T, db *Database, keys ...string) {
	t.Helper()
	require.NoError(t, db.Transact(context.Background(), func(tr kv.Transaction) error {
		for _, k := range keys {
			tr.Set([]byte(k), []byte("v"+k))
		}
		return nil
	}))
}

func TestTransaction_ReadYourWrites(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	db := newTestDB(client)

	tx, err := db.CreateTransaction(ctx)
	require.NoError(t, err)

	tx.Set([]byte("a"), []byte("1"))
	tx.Set([]byte("empty"), nil)

	v, err := tx.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	v, err = tx.Get(ctx, []byte("empty"))
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Empty(t, v)

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 2, client.size(DefaultPartition))

	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		v, err := tr.Get(ctx, []byte("empty"))
		require.NoError(t, err)
		assert.NotNil(t, v)

		v, err = tr.Get(ctx, []byte("missing"))
		require.NoError(t, err)
		assert.Nil(t, v)
		return nil
	}))
}

func TestTransaction_GetRangeMergesLocalWrites(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	client.pageSize = 2
	db := newTestDB(client)
	seed(t, db, "a", "c", "e", "g", "i")

	tx, err := db.CreateTransaction(ctx)
	require.NoError(t, err)
	tx.Set([]byte("b"), []byte("local"))
	tx.Set([]byte("e"), []byte("override"))
	tx.Clear([]byte("g"))
	tx.Set([]byte("h"), []byte("local"))

	r := kv.KeyRange{Begin: []byte("a"), End: []byte("i")}

	rows, err := tx.GetRange(ctx, r, kv.RangeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "e", "h"}, rowKeys(rows))
	assert.Equal(t, []byte("override"), rows[3].Value)

	rows, err = tx.GetRange(ctx, r, kv.RangeOptions{Reverse: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"h", "e", "c", "b", "a"}, rowKeys(rows))

	rows, err = tx.GetRange(ctx, r, kv.RangeOptions{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rowKeys(rows))

	rows, err = tx.GetRange(ctx, r, kv.RangeOptions{Limit: 1, Reverse: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"h"}, rowKeys(rows))

	rows, err = tx.GetRange(ctx, kv.KeyRange{Begin: []byte("z"), End: []byte("a")}, kv.RangeOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	tx.Cancel()
}

func TestTransaction_ClearRangeResolvedAtCommit(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	db := newTestDB(client)
	seed(t, db, "a", "b", "c", "d")

	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		tr.ClearRange(kv.KeyRange{Begin: []byte("b"), End: []byte("d")})
		tr.Set([]byte("c"), []byte("again"))

		rows, err := tr.GetRange(ctx, kv.KeyRange{Begin: []byte("a"), End: []byte("z")}, kv.RangeOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "d"}, rowKeys(rows))
		return nil
	}))

	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		rows, err := tr.GetRange(ctx, kv.KeyRange{Begin: []byte("a"), End: []byte("z")}, kv.RangeOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "d"}, rowKeys(rows))
		assert.Equal(t, []byte("again"), rows[1].Value)
		return nil
	}))
}

func TestTransaction_PointReadConflict(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(newMockDDBClient())

	tx1, err := db.CreateTransaction(ctx)
	require.NoError(t, err)
	tx2, err := db.CreateTransaction(ctx)
	require.NoError(t, err)

	for _, tx := range []kv.Tx{tx1, tx2} {
		v, err := tx.Get(ctx, []byte("k"))
		require.NoError(t, err)
		require.Nil(t, v)
		tx.Set([]byte("k"), []byte("mine"))
	}

	require.NoError(t, tx1.Commit(ctx))
	err = tx2.Commit(ctx)
	assert.ErrorIs(t, err, kv.ErrConflict)
	assert.True(t, kv.IsRetryable(err))
}

func TestTransaction_UnwrittenReadIsChecked(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	db := newTestDB(client)
	seed(t, db, "k")

	tx, err := db.CreateTransaction(ctx)
	require.NoError(t, err)
	_, err = tx.Get(ctx, []byte("k"))
	require.NoError(t, err)
	tx.Set([]byte("other"), []byte("x"))

	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		tr.Set([]byte("k"), []byte("changed"))
		return nil
	}))

	err = tx.Commit(ctx)
	assert.ErrorIs(t, err, kv.ErrConflict)
}

func TestTransaction_ReadOnlyCommitSkipsTable(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	db := newTestDB(client)

	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		_, err := tr.Get(ctx, []byte("k"))
		return err
	}))
	assert.Zero(t, client.transactions)
}

func TestTransaction_TooLarge(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(newMockDDBClient())

	err := db.Transact(ctx, func(tr kv.Transaction) error {
		for i := 0; i <= MaxTransactionItems; i++ {
			tr.Set([]byte(fmt.Sprintf("k%03d", i)), nil)
		}
		return nil
	})
	assert.ErrorIs(t, err, kv.ErrTransactionTooLarge)

	err = db.Transact(ctx, func(tr kv.Transaction) error {
		tr.Set([]byte("big"), make([]byte, MaxValueSize+1))
		return nil
	})
	assert.ErrorIs(t, err, kv.ErrValueTooLarge)
}

func TestTransaction_Closed(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(newMockDDBClient())

	tx, err := db.CreateTransaction(ctx)
	require.NoError(t, err)
	tx.Cancel()

	_, err = tx.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, kv.ErrTransactionClosed)
	assert.ErrorIs(t, tx.Commit(ctx), kv.ErrTransactionClosed)
}

func TestDatabase_TransactRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(newMockDDBClient())
	seed(t, db, "counter")

	attempts := 0
	err := db.Transact(ctx, func(tr kv.Transaction) error {
		attempts++
		v, err := tr.Get(ctx, []byte("counter"))
		if err != nil {
			return err
		}
		if attempts == 1 {
			// A concurrent writer commits between our read and commit.
			require.NoError(t, db.Transact(ctx, func(other kv.Transaction) error {
				other.Set([]byte("counter"), []byte("interloper"))
				return nil
			}))
		}
		tr.Set([]byte("counter"), append(v, '+'))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	require.NoError(t, db.Transact(ctx, func(tr kv.Transaction) error {
		v, err := tr.Get(ctx, []byte("counter"))
		require.NoError(t, err)
		assert.Equal(t, []byte("interloper+"), v)
		return nil
	}))
}

func TestDatabase_TransactGivesUp(t *testing.T) {
	ctx := context.Background()
	db := New(newMockDDBClient(), "kvdir-test", func(o *Options) {
		o.MaxAttempts = 2
		o.MaxBackoff = time.Millisecond
	})

	err := db.Transact(ctx, func(tr kv.Transaction) error {
		if _, err := tr.Get(ctx, []byte("k")); err != nil {
			return err
		}
		require.NoError(t, db.Transact(ctx, func(other kv.Transaction) error {
			other.Set([]byte("k"), []byte(time.Now().String()))
			return nil
		}))
		tr.Set([]byte("k"), []byte("mine"))
		return nil
	})
	assert.ErrorIs(t, err, kv.ErrConflict)
}

func TestDirectory_OverDynamoDB(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	client.pageSize = 3
	db := newTestDB(client)
	dir := kvdir.NewWithPath(db, "index")
	assert.Equal(t, kv.AutoCommit, dir.Mode())

	content := bytes.Repeat([]byte("0123456789"), 1000)
	out, err := dir.CreateOutput(ctx, "_0.cfs")
	require.NoError(t, err)
	_, err = out.Write(content)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	length, err := dir.FileLength(ctx, "_0.cfs")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), length)

	in, err := dir.OpenInput(ctx, "_0.cfs")
	require.NoError(t, err)
	got := make([]byte, in.Length())
	_, err = in.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = dir.CreateOutput(ctx, "_0.cfs")
	assert.ErrorIs(t, err, kvdir.ErrAlreadyExists)

	require.NoError(t, dir.DeleteFile(ctx, "_0.cfs"))
	names, err := dir.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Zero(t, client.size(DefaultPartition))
}

func TestDirectory_FileSizeCap(t *testing.T) {
	ctx := context.Background()
	dir := kvdir.NewWithPath(newTestDB(newMockDDBClient()), "index")

	write := func(name string, size int) error {
		out, err := dir.CreateOutput(ctx, name)
		require.NoError(t, err)
		_, err = out.Write(bytes.Repeat([]byte{'x'}, size))
		require.NoError(t, err)
		return out.Close()
	}

	require.NoError(t, write("fits", MaxTransactionItems*kvdir.ChunkSize))
	length, err := dir.FileLength(ctx, "fits")
	require.NoError(t, err)
	assert.Equal(t, int64(100*1024), length)

	err = write("too-big", MaxTransactionItems*kvdir.ChunkSize+1)
	assert.ErrorIs(t, err, kv.ErrTransactionTooLarge)
}

func TestDirectory_ConcurrentCreateOverDynamoDB(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(newMockDDBClient())
	dir := kvdir.NewWithPath(db, "index")

	tx1, err := db.CreateTransaction(ctx)
	require.NoError(t, err)
	tx2, err := db.CreateTransaction(ctx)
	require.NoError(t, err)

	_, err = dir.WithTransactor(tx1).CreateOutput(ctx, "same")
	require.NoError(t, err)
	_, err = dir.WithTransactor(tx2).CreateOutput(ctx, "same")
	require.NoError(t, err)

	require.NoError(t, tx1.Commit(ctx))
	assert.ErrorIs(t, tx2.Commit(ctx), kv.ErrConflict)

	_, err = dir.CreateOutput(ctx, "same")
	assert.ErrorIs(t, err, kvdir.ErrAlreadyExists)
}

func TestDirectory_ConcurrentCreateClaimsDistinctIDs(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(newMockDDBClient())
	dir := kvdir.NewWithPath(db, "index")

	tx1, err := db.CreateTransaction(ctx)
	require.NoError(t, err)
	tx2, err := db.CreateTransaction(ctx)
	require.NoError(t, err)

	_, err = dir.WithTransactor(tx1).CreateOutput(ctx, "a")
	require.NoError(t, err)
	_, err = dir.WithTransactor(tx2).CreateOutput(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, tx1.Commit(ctx))
	assert.ErrorIs(t, tx2.Commit(ctx), kv.ErrConflict)

	_, err = dir.CreateOutput(ctx, "b")
	require.NoError(t, err)

	report, err := dir.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Files)
}
