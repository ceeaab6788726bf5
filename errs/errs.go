// Package errs is the closed error taxonomy every session-tracker caller
// discriminates against. Every kind is a distinct Go type implementing
// error plus a stable Code, the same shape the teacher repo uses for its
// pkg/error.NotFoundError: a named type, an Error() string, and a second
// method callers can switch on instead of string-matching messages.
package errs

import "fmt"

// NotFound is returned when neither compartment holds the key.
type NotFound struct {
	Key string
}

func (e *NotFound) Error() string { return fmt.Sprintf("session tracker: key %q not found", e.Key) }
func (e *NotFound) Code() string  { return "NOT_FOUND" }

// SessionInProgress is returned by Add when either compartment (active
// or evicted) already holds the key. Existing carries the existing
// record's payload as the raw bytes the backend returned, so callers
// don't need a second round trip to see what won the race; it is not
// decoded here (session.Tracker.ExistingSession decodes it).
type SessionInProgress struct {
	Key      string
	Existing []byte
}

func (e *SessionInProgress) Error() string {
	return fmt.Sprintf("session tracker: %q already in progress", e.Key)
}
func (e *SessionInProgress) Code() string { return "SESSION_IN_PROGRESS" }

// SessionAlreadyEvicted is returned when an operation targeting the
// active compartment finds the key only in evicted.
type SessionAlreadyEvicted struct {
	Key string
}

func (e *SessionAlreadyEvicted) Error() string {
	return fmt.Sprintf("session tracker: %q already evicted", e.Key)
}
func (e *SessionAlreadyEvicted) Code() string { return "SESSION_ALREADY_EVICTED" }

// SessionAlreadyRestored is returned when an operation targeting the
// evicted compartment finds the key only in active.
type SessionAlreadyRestored struct {
	Key string
}

func (e *SessionAlreadyRestored) Error() string {
	return fmt.Sprintf("session tracker: %q already restored", e.Key)
}
func (e *SessionAlreadyRestored) Code() string { return "SESSION_ALREADY_RESTORED" }

// LockStatus is the closed vocabulary every lock backend variant (single
// node, quorum, in-process) must report through.
type LockStatus string

const (
	LockUnlocked   LockStatus = "unlocked"
	LockAcquired   LockStatus = "acquired"
	LockNoQuorum   LockStatus = "no_quorum"
	LockConflicted LockStatus = "conflicted"
	LockExpired    LockStatus = "expired"
)

// LockNotAcquired is returned when Acquire could not obtain the lock
// before its wait budget elapsed (or on the first, non-blocking, attempt).
type LockNotAcquired struct {
	Resource string
	Status   LockStatus
}

func (e *LockNotAcquired) Error() string {
	return fmt.Sprintf("session tracker: lock %q not acquired: %s", e.Resource, e.Status)
}
func (e *LockNotAcquired) Code() string { return "LOCK_NOT_ACQUIRED" }

// CodecError wraps a failure from the pluggable Codec.
type CodecError struct {
	Cause error
}

func (e *CodecError) Error() string { return fmt.Sprintf("session tracker: codec error: %v", e.Cause) }
func (e *CodecError) Code() string  { return "CODEC_ERROR" }
func (e *CodecError) Unwrap() error { return e.Cause }

// BackendError wraps a transport-level failure from the remote store.
type BackendError struct {
	Cause error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("session tracker: backend error: %v", e.Cause)
}
func (e *BackendError) Code() string  { return "BACKEND_ERROR" }
func (e *BackendError) Unwrap() error { return e.Cause }

// UnexpectedBackendResult is returned when a script reply shape matches
// none of the documented sentinels (success, sentinel, payload, nil).
type UnexpectedBackendResult struct {
	Raw any
}

func (e *UnexpectedBackendResult) Error() string {
	return fmt.Sprintf("session tracker: unexpected backend result: %#v", e.Raw)
}
func (e *UnexpectedBackendResult) Code() string { return "UNEXPECTED_BACKEND_RESULT" }

// Cancelled is returned when the caller's cancellation signal tripped
// before the operation could complete.
type Cancelled struct {
	Cause error
}

func (e *Cancelled) Error() string { return "session tracker: operation cancelled" }
func (e *Cancelled) Code() string  { return "CANCELLED" }
func (e *Cancelled) Unwrap() error { return e.Cause }

// InvalidOptions is returned when a SessionEntryOptions or
// TrackerSettings value is rejected at configuration time.
type InvalidOptions struct {
	Reason string
}

func (e *InvalidOptions) Error() string {
	return fmt.Sprintf("session tracker: invalid options: %s", e.Reason)
}
func (e *InvalidOptions) Code() string { return "INVALID_OPTIONS" }
