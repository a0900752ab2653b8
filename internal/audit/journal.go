package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ctenopoma/issuer/pkg/errclass"
	"github.com/ctenopoma/issuer/pkg/model"
)

// Tail returns the last n records of the journal at path, oldest first, or
// all of them when n <= 0. A missing journal has no records. Malformed
// lines are skipped.
func Tail(path string, n int) ([]model.AuditRecord, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var records []model.AuditRecord
	scanner := newScanner(file)
	for scanner.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		records = append(records, record)
		if n > 0 && len(records) > n {
			records = records[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return records, nil
}

// Verify walks the hash chain of the journal at path and returns how many
// records it holds. A malformed line, a record whose content does not match
// its hash, or a record not linked to its predecessor fails with
// errclass.ErrAuditChain naming the line. A missing journal is empty.
func Verify(path string) (int, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var (
		count int
		prev  model.HashValue
		line  int
	)
	scanner := newScanner(file)
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var record model.AuditRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return count, errclass.ErrAuditChain.WithMessagef("line %d: malformed record: %v", line, err)
		}
		sum, err := hashRecord(raw)
		if err != nil {
			return count, errclass.ErrAuditChain.WithMessagef("line %d: %v", line, err)
		}
		if sum != record.RecordHash {
			return count, errclass.ErrAuditChain.WithMessagef("line %d: record hash mismatch", line)
		}
		if record.PrevHash != prev {
			return count, errclass.ErrAuditChain.WithMessagef("line %d: chain broken", line)
		}
		prev = record.RecordHash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scan audit log: %w", err)
	}
	return count, nil
}
