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

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())
	assert.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))

	assert.NoError(t, lfs.Remove(newPath))
	_, err = os.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFSWriteLimit(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("faulty", Fault{FailAfterBytes: 5})

	fpath := filepath.Join(tmp, "faulty.txt")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = f.Write([]byte("!"))
	assert.Error(t, err)
}

func TestFaultyFSRuleMatching(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	injected := errors.New("disk died")
	ffs.AddRule("victim", Fault{FailAfterBytes: -1, FailOnSync: true, Err: injected})

	// Unmatched files behave normally.
	ok, err := ffs.OpenFile(filepath.Join(tmp, "healthy.txt"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	assert.NoError(t, ok.Sync())
	assert.NoError(t, ok.Close())

	// Matched files fail on sync with the armed error.
	bad, err := ffs.OpenFile(filepath.Join(tmp, "victim.txt"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	assert.ErrorIs(t, bad.Sync(), injected)
	assert.NoError(t, bad.Close())

	// Reset disarms the rule.
	ffs.Reset()
	again, err := ffs.OpenFile(filepath.Join(tmp, "victim.txt"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	assert.NoError(t, again.Sync())
	assert.NoError(t, again.Close())
}

func TestFaultyFSDelegation(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, ffs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := ffs.OpenFile(fpath, os.O_CREATE, 0o644)
	require.NoError(t, err)
	f.Close()

	entries, err := ffs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.NoError(t, ffs.Rename(fpath, fpath+".renamed"))
	assert.NoError(t, ffs.Remove(fpath+".renamed"))
}

func TestWriteAtomic(t *testing.T) {
	tmp := t.TempDir()
	fpath := filepath.Join(tmp, "data.json")

	require.NoError(t, WriteAtomic(Default, fpath, []byte(`{"v":1}`), 0o640))

	got, err := ReadFile(Default, fpath)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(got))

	// Overwrite goes through the same rename path.
	require.NoError(t, WriteAtomic(Default, fpath, []byte(`{"v":2}`), 0o640))
	got, err = ReadFile(Default, fpath)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))

	// No temp file survives.
	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSyncDirAfterRename(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, syncDir(Default, dir))

	ffs := NewFaultyFS(nil)
	ffs.AddRule(filepath.Base(dir), Fault{FailAfterBytes: -1, FailOnSync: true})
	assert.Error(t, syncDir(ffs, dir), "directory sync failure surfaces")
}

func TestWriteAtomicKeepsOldVersionOnFailure(t *testing.T) {
	tmp := t.TempDir()
	fpath := filepath.Join(tmp, "data.json")
	require.NoError(t, WriteAtomic(Default, fpath, []byte("old"), 0o640))

	ffs := NewFaultyFS(nil)
	ffs.AddRule("data.json.tmp", Fault{FailAfterBytes: -1, FailOnSync: true})

	err := WriteAtomic(ffs, fpath, []byte("new"), 0o640)
	require.Error(t, err)

	got, err := ReadFile(Default, fpath)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got), "target untouched after failed write")

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file cleaned up")
}
