package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "sub", "dir")
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	f, err := lfs.CreateTemp(dir, ".tmp-*")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	target := filepath.Join(dir, "blob")
	require.NoError(t, lfs.Rename(f.Name(), target))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, lfs.Remove(target))
	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_WriteLimit(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("limited", Fault{FailAfterBytes: 4})

	f, err := ffs.CreateTemp(t.TempDir(), "limited-*")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("abcd"))
	require.NoError(t, err)
	_, err = f.Write([]byte("e"))
	assert.ErrorIs(t, err, ErrInjected)
}

func TestFaultyFS_LongestRuleWins(t *testing.T) {
	custom := errors.New("disk full")
	ffs := NewFaultyFS(nil)
	ffs.AddRule("blob", Fault{FailAfterBytes: -1, FailOnSync: true})
	ffs.AddRule("blob-special", Fault{FailAfterBytes: 0, Err: custom})

	dir := t.TempDir()
	plain, err := ffs.CreateTemp(dir, "blob-*")
	require.NoError(t, err)
	defer plain.Close()
	_, err = plain.Write([]byte("ok"))
	require.NoError(t, err)
	assert.ErrorIs(t, plain.Sync(), ErrInjected)

	special, err := ffs.CreateTemp(dir, "blob-special-*")
	require.NoError(t, err)
	defer special.Close()
	_, err = special.Write([]byte("x"))
	assert.ErrorIs(t, err, custom)
	assert.NoError(t, special.Sync())
}

func TestFaultyFS_Rename(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("final", Fault{FailAfterBytes: -1, FailOnRename: true})

	dir := t.TempDir()
	f, err := ffs.CreateTemp(dir, "tmp-*")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.ErrorIs(t, ffs.Rename(f.Name(), filepath.Join(dir, "final")), ErrInjected)
	require.NoError(t, ffs.Rename(f.Name(), filepath.Join(dir, "other")))
}

func TestFaultyFS_NoRule(t *testing.T) {
	ffs := NewFaultyFS(LocalFS{})
	f, err := ffs.CreateTemp(t.TempDir(), "x-*")
	require.NoError(t, err)
	_, err = f.Write(make([]byte, 1<<16))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())
}
