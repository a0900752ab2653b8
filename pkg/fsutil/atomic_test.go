package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctenopoma/issuer/pkg/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.lock")
	data := []byte(`{"user": "alice"}`)

	err := fsutil.AtomicWrite(path, data, 0644)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestAtomicWrite_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.lock")
	os.WriteFile(path, []byte("old"), 0644)

	err := fsutil.AtomicWrite(path, []byte("new"), 0644)
	require.NoError(t, err)

	content, _ := os.ReadFile(path)
	assert.Equal(t, "new", string(content))
}

func TestAtomicWrite_NoTmpLeftOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.lock")
	fsutil.AtomicWrite(path, []byte("data"), 0644)

	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1, "only the target file should exist")
}

func TestAtomicWrite_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "app.lock")
	err := fsutil.AtomicWrite(path, []byte("data"), 0644)
	require.Error(t, err)
}

func TestAtomicCopy_CopiesContentAndModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data.db")
	dst := filepath.Join(dir, "copy.db")
	require.NoError(t, os.WriteFile(src, []byte("sqlite bytes"), 0644))
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	require.NoError(t, fsutil.AtomicCopy(src, dst))

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "sqlite bytes", string(content))
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))

	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 2)
}

func TestAtomicCopy_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := fsutil.AtomicCopy(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "dst"))
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db-wal")
	require.NoError(t, os.WriteFile(path, []byte("wal"), 0644))

	removed, err := fsutil.RemoveIfExists(path)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = fsutil.RemoveIfExists(path)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestIsTemp(t *testing.T) {
	assert.True(t, fsutil.IsTemp(".issuer-tmp-12345"))
	assert.False(t, fsutil.IsTemp("data.db"))
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, fsutil.Exists(dir))
	assert.False(t, fsutil.Exists(filepath.Join(dir, "missing")))
}

func TestRenameAndSync(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	os.WriteFile(src, []byte("data"), 0644)

	err := fsutil.RenameAndSync(src, dst)
	require.NoError(t, err)

	assert.NoFileExists(t, src)
	content, _ := os.ReadFile(dst)
	assert.Equal(t, "data", string(content))
}
