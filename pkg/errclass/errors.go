// Package errclass defines the stable, machine-readable error classes
// reported by issuer commands and returned by its packages.
package errclass

import "fmt"

// IssuerError is a stable, machine-readable error class.
type IssuerError struct {
	Code    string
	Message string
	cause   error
}

func (e *IssuerError) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *IssuerError) Is(target error) bool {
	t, ok := target.(*IssuerError)
	return ok && e.Code == t.Code
}

// Unwrap returns the underlying cause, if any.
func (e *IssuerError) Unwrap() error {
	return e.cause
}

// WithMessage returns a new IssuerError with the same Code but a specific message.
func (e *IssuerError) WithMessage(msg string) *IssuerError {
	return &IssuerError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new IssuerError with a formatted message.
func (e *IssuerError) WithMessagef(format string, args ...any) *IssuerError {
	return &IssuerError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a new IssuerError carrying err as its cause, so both
// errors.Is(err, class) and errors.Is(err, cause) hold.
func (e *IssuerError) Wrap(err error, msg string) *IssuerError {
	return &IssuerError{Code: e.Code, Message: msg, cause: err}
}

var (
	ErrNameInvalid      = &IssuerError{Code: "E_NAME_INVALID"}
	ErrConfigInvalid    = &IssuerError{Code: "E_CONFIG_INVALID"}
	ErrLockWrite        = &IssuerError{Code: "E_LOCK_WRITE"}
	ErrLockHeld         = &IssuerError{Code: "E_LOCK_HELD"}
	ErrLockCorrupt      = &IssuerError{Code: "E_LOCK_CORRUPT"}
	ErrSessionState     = &IssuerError{Code: "E_SESSION_STATE"}
	ErrHeartbeatRunning = &IssuerError{Code: "E_HEARTBEAT_RUNNING"}
	ErrReplicaBusy      = &IssuerError{Code: "E_REPLICA_BUSY"}
	ErrReplicaTarget    = &IssuerError{Code: "E_REPLICA_TARGET"}
	ErrCheckpointFailed = &IssuerError{Code: "E_CHECKPOINT"}
	ErrSyncBackFailed   = &IssuerError{Code: "E_SYNC_BACK"}
	ErrUnhealthy        = &IssuerError{Code: "E_UNHEALTHY"}
	ErrAuditChain       = &IssuerError{Code: "E_AUDIT_CHAIN"}
)
