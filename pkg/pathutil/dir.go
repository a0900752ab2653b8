package pathutil

import (
	"path/filepath"
	"runtime"
	"strings"
)

// SameDir reports whether a and b name the same directory. Both are made
// absolute and cleaned; symlinks are resolved when the path exists.
func SameDir(a, b string) bool {
	ca, cb := canonicalDir(a), canonicalDir(b)
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.EqualFold(ca, cb)
	}
	return ca == cb
}

func canonicalDir(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	return filepath.Clean(p)
}
