package model

import "time"

// HashValue is a hex-encoded SHA-256 digest.
type HashValue string

// AuditEventType names an entry in the lock journal.
type AuditEventType string

const (
	EventLockAcquire    AuditEventType = "lock_acquire"
	EventLockForce      AuditEventType = "lock_force"
	EventLockRelease    AuditEventType = "lock_release"
	EventLockBreak      AuditEventType = "lock_break"
	EventSyncBack       AuditEventType = "sync_back"
	EventSyncBackFailed AuditEventType = "sync_back_failed"
)

// AuditRecord is one line of the lock journal. Each record carries the hash
// of the one before it.
type AuditRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  AuditEventType `json:"event"`
	Owner      string         `json:"owner"`
	SessionID  string         `json:"session_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	PrevHash   HashValue      `json:"prev_hash"`
	RecordHash HashValue      `json:"record_hash"`
}
