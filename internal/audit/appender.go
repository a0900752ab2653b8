// Package audit keeps the lock journal: an append-only JSON-lines file in
// the shared root recording who took, broke and released the lock.
// Records are hash-chained so an edited or truncated history shows up in
// Verify.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/ctenopoma/issuer/pkg/model"
)

// maxLine bounds a single journal line when scanning.
const maxLine = 1 << 20

// FileAppender appends audit records to a JSONL file with hash chain.
type FileAppender struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewFileAppender creates a new FileAppender.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path, now: time.Now}
}

// WithClock replaces the time source for record timestamps.
func (a *FileAppender) WithClock(now func() time.Time) *FileAppender {
	a.now = now
	return a
}

// Path returns the journal file path.
func (a *FileAppender) Path() string {
	return a.path
}

// Append adds a new audit record to the log. Other processes appending to
// the same journal are serialized through an advisory lock on <path>.lock.
func (a *FileAppender) Append(event model.AuditEventType, owner, sessionID string, details map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	guard := flock.New(a.path + ".lock")
	if err := guard.Lock(); err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	defer guard.Unlock()

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}

	record := &model.AuditRecord{
		Timestamp: a.now().UTC(),
		EventType: event,
		Owner:     owner,
		SessionID: sessionID,
		Details:   details,
		PrevHash:  prevHash,
	}
	unsigned, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if record.RecordHash, err = hashRecord(unsigned); err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

// lastRecordHash returns the hash of the last parseable record in file.
func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var lastHash model.HashValue
	scanner := newScanner(file)
	for scanner.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue // skip malformed lines
		}
		lastHash = record.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan audit log: %w", err)
	}
	return lastHash, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	return scanner
}

// hashRecord hashes the canonical form of an encoded record with its
// record_hash field removed.
func hashRecord(line []byte) (model.HashValue, error) {
	fields, err := decodeObject(line)
	if err != nil {
		return "", err
	}
	delete(fields, "record_hash")
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}
