// Package keyns builds the deterministic backend and lock key names used
// throughout the tracker, generalizing the teacher's
// workspace/repository.ValkeySessionStore.fullKey/lockKey helpers (which
// hardcode a single compartment and a single lock suffix) into the
// spec's three-name, per-type scheme.
package keyns

import "strings"

const (
	// DefaultKeyPrefix is used when a Namer is constructed with an
	// empty prefix.
	DefaultKeyPrefix = "session-tracker"
	// DefaultLockPrefix is used when a Namer is constructed with an
	// empty lock prefix.
	DefaultLockPrefix = "lock"

	evictedSegment = "evicted"
)

// Namer builds active, evicted and lock key names from a
// (keyPrefix, lockPrefix) pair fixed at construction.
type Namer struct {
	keyPrefix  string
	lockPrefix string
}

// New returns a Namer. Empty prefixes fall back to the documented
// defaults ("session-tracker" / "lock").
func New(keyPrefix, lockPrefix string) *Namer {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if lockPrefix == "" {
		lockPrefix = DefaultLockPrefix
	}
	return &Namer{keyPrefix: keyPrefix, lockPrefix: lockPrefix}
}

// typeName lowercases a session type name using ASCII case folding, as
// mandated by §4.1 for stability across callers regardless of locale.
func typeName(sessionType string) string {
	return asciiToLower(sessionType)
}

// asciiToLower case-folds only the ASCII range, leaving any non-ASCII
// byte untouched — §4.1 requires "ASCII case folding," not a
// locale-aware Unicode lowering such as strings.ToLower would apply.
func asciiToLower(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// Active returns the backend key for the active compartment.
func (n *Namer) Active(sessionType, userKey string) string {
	return n.keyPrefix + ":" + typeName(sessionType) + ":" + userKey
}

// Evicted returns the backend key for the evicted compartment.
func (n *Namer) Evicted(sessionType, userKey string) string {
	return n.keyPrefix + ":" + evictedSegment + ":" + typeName(sessionType) + ":" + userKey
}

// Lock returns the lock name for a (type, user-key) pair.
func (n *Namer) Lock(sessionType, userKey string) string {
	return n.keyPrefix + ":" + n.lockPrefix + ":" + typeName(sessionType) + ":" + userKey
}
