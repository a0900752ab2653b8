// Package integrity computes digests of a store's file set so a copy can be
// compared with its source.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ctenopoma/issuer/pkg/model"
)

// FileHash returns the SHA-256 of the file at path.
func FileHash(path string) (model.HashValue, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return model.HashValue(hex.EncodeToString(h.Sum(nil))), nil
}

// FileSetDigest hashes the named files in dir. Every name contributes one
// line, "<name>:absent" or "<name>:<size>:<sha256>", and the sorted lines
// are hashed together, so two directories yield the same digest exactly
// when the same files are present with the same contents.
func FileSetDigest(dir string, names []string) (model.HashValue, error) {
	lines := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			lines = append(lines, name+":absent")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", name, err)
		}
		sum, err := FileHash(path)
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", name, err)
		}
		lines = append(lines, fmt.Sprintf("%s:%d:%s", name, info.Size(), sum))
	}
	sort.Strings(lines)

	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	hash := sha256.Sum256([]byte(buf.String()))
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}
