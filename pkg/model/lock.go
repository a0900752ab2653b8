package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// LockTimeLayout is the on-disk timestamp layout: ISO-8601 local time, second precision.
const LockTimeLayout = "2006-01-02T15:04:05"

// ErrCorruptLock is returned by ParseLockRecord for any content that is not a
// well-formed lock record.
var ErrCorruptLock = errors.New("corrupt lock record")

// LockRecord is stored as the sole content of the lock file on the shared root.
// Its presence means someone believes they are editing the store.
type LockRecord struct {
	Owner      string
	AcquiredAt time.Time
}

type lockRecordJSON struct {
	User     *string `json:"user"`
	LockedAt *string `json:"locked_at"`
}

// MarshalJSON encodes the record as {"user": ..., "locked_at": ...}.
func (r LockRecord) MarshalJSON() ([]byte, error) {
	user := r.Owner
	at := r.AcquiredAt.Local().Format(LockTimeLayout)
	return json.Marshal(lockRecordJSON{User: &user, LockedAt: &at})
}

// UnmarshalJSON decodes a record, rejecting anything but a complete one.
func (r *LockRecord) UnmarshalJSON(data []byte) error {
	var raw lockRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptLock, err)
	}
	if raw.User == nil || strings.TrimSpace(*raw.User) == "" {
		return fmt.Errorf("%w: missing user", ErrCorruptLock)
	}
	if raw.LockedAt == nil {
		return fmt.Errorf("%w: missing locked_at", ErrCorruptLock)
	}
	at, err := ParseLockTime(*raw.LockedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptLock, err)
	}
	r.Owner = *raw.User
	r.AcquiredAt = at
	return nil
}

// ParseLockRecord parses lock file content. Any error wraps ErrCorruptLock.
func ParseLockRecord(data []byte) (*LockRecord, error) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, fmt.Errorf("%w: not a JSON object", ErrCorruptLock)
	}
	var rec LockRecord
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		if errors.Is(err, ErrCorruptLock) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptLock, err)
	}
	return &rec, nil
}

// ParseLockTime accepts the local second-precision layout and RFC 3339
// timestamps with an explicit offset.
func ParseLockTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(LockTimeLayout, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	return t, nil
}

// Age returns how long ago the lock was acquired (or last refreshed).
func (r *LockRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.AcquiredAt)
}

// IsZombie reports whether the lock is older than threshold. The comparison
// is strict: a lock exactly threshold old is still alive.
func (r *LockRecord) IsZombie(now time.Time, threshold time.Duration) bool {
	return r.Age(now) > threshold
}

// AgeHours converts an age to hours rounded to one decimal place, for display.
func AgeHours(age time.Duration) float64 {
	return math.Round(age.Hours()*10) / 10
}

// LockState is the read-only classification of the lock file.
type LockState string

const (
	LockStateFree    LockState = "free"
	LockStateHeld    LockState = "held"
	LockStateZombie  LockState = "zombie"
	LockStateCorrupt LockState = "corrupt"
)

// LockStatus is a point-in-time inspection of the lock file.
type LockStatus struct {
	State    LockState   `json:"state"`
	Path     string      `json:"path"`
	Record   *LockRecord `json:"lock,omitempty"`
	AgeHours float64     `json:"age_hours,omitempty"`
}
