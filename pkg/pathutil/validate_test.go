package pathutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ctenopoma/issuer/pkg/errclass"
	"github.com/ctenopoma/issuer/pkg/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFileName_Valid(t *testing.T) {
	valid := []string{"data.db", "app.lock", "issues 2024.sqlite", "課題.db"}
	for _, name := range valid {
		assert.NoError(t, pathutil.ValidateFileName(name), "should accept: %s", name)
	}
}

func TestValidateFileName_Empty(t *testing.T) {
	err := pathutil.ValidateFileName(" ")
	require.ErrorIs(t, err, errclass.ErrNameInvalid)
}

func TestValidateFileName_DotDot(t *testing.T) {
	for _, name := range []string{"..", ".", "a..b"} {
		err := pathutil.ValidateFileName(name)
		require.ErrorIs(t, err, errclass.ErrNameInvalid, "should reject: %s", name)
	}
}

func TestValidateFileName_Separators(t *testing.T) {
	for _, name := range []string{"a/b", `a\b`, "C:data.db"} {
		err := pathutil.ValidateFileName(name)
		require.ErrorIs(t, err, errclass.ErrNameInvalid, "should reject: %s", name)
	}
}

func TestValidateFileName_ControlChars(t *testing.T) {
	err := pathutil.ValidateFileName("data\x00.db")
	require.ErrorIs(t, err, errclass.ErrNameInvalid)
}

func TestNormalizeOwner(t *testing.T) {
	assert.Equal(t, "alice", pathutil.NormalizeOwner(`CORP\alice`))
	assert.Equal(t, "bob", pathutil.NormalizeOwner("  bob "))
	// NFD "é" (e + combining acute) normalizes to NFC.
	assert.Equal(t, "ren\u00e9", pathutil.NormalizeOwner("rene\u0301"))
}

func TestSameOwner(t *testing.T) {
	assert.True(t, pathutil.SameOwner(`CORP\Alice`, "alice"))
	assert.False(t, pathutil.SameOwner("alice", "bob"))
}

func TestSameDir(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()

	assert.True(t, pathutil.SameDir(root, root))
	assert.True(t, pathutil.SameDir(root, root+string(filepath.Separator)))
	assert.True(t, pathutil.SameDir(root, filepath.Join(root, "sub", "..")))
	assert.False(t, pathutil.SameDir(root, other))
	assert.False(t, pathutil.SameDir(root, filepath.Join(root, "cache")))
}

func TestSameDir_Symlink(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(root, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	assert.True(t, pathutil.SameDir(root, link))
}
