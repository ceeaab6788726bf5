package session

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-sessiontracker/clock"
	"github.com/AzielCF/az-sessiontracker/codec"
	"github.com/AzielCF/az-sessiontracker/engine"
	"github.com/AzielCF/az-sessiontracker/errs"
	"github.com/AzielCF/az-sessiontracker/keyns"
	"github.com/AzielCF/az-sessiontracker/lock"
	"github.com/AzielCF/az-sessiontracker/policy"
)

// Tracker is the Session Facade (C6) for one session type T. Construct
// one per session type sharing the same backend.Client, the way the
// teacher constructs one ValkeySessionStore per domain concern against
// a shared valkey.Client.
type Tracker[T any] struct {
	engine      *engine.Engine[Session[T]]
	locker      lock.Locker
	namer       *keyns.Namer
	settings    *policy.Settings
	clk         clock.Clock
	sessionType string
	codec       codec.Codec[Session[T]]
}

// Deps bundles the shared, already-constructed collaborators a Tracker
// needs. All of them are safe to share across Trackers for different
// session types.
type Deps struct {
	Namer    *keyns.Namer
	Settings *policy.Settings
	Locker   lock.Locker
	Clock    clock.Clock
}

// NewFromEngine constructs a Tracker for sessionType around an
// already-built engine.Engine[Session[T]], using codec cd to decode the
// raw bytes carried by a SessionInProgress error. The backend.Client
// backing eng must already have had engine.Register and lock.Register
// called against it.
func NewFromEngine[T any](eng *engine.Engine[Session[T]], d Deps, sessionType string, cd codec.Codec[Session[T]]) *Tracker[T] {
	return &Tracker[T]{
		engine:      eng,
		locker:      d.Locker,
		namer:       d.Namer,
		settings:    d.Settings,
		clk:         d.Clock,
		sessionType: sessionType,
		codec:       cd,
	}
}

func (t *Tracker[T]) log() *logrus.Entry {
	return logrus.WithField("session_type", t.sessionType)
}

// Start creates a new active session under key with the given payload,
// equivalent to Add(session, active-policy) per §4.6.
func (t *Tracker[T]) Start(ctx context.Context, key string, payload T) (Session[T], error) {
	s := New(key, payload)
	// UTC drops the monotonic reading and the Local zone pointer, so the
	// value reads back from the codec identical to what Start returns.
	s.StartedAt = t.clk.Now().UTC()
	s.ActiveProviderKey = t.namer.Active(t.sessionType, key)
	s.EvictedProviderKey = t.namer.Evicted(t.sessionType, key)

	stored, err := t.engine.Add(ctx, key, s)
	if err != nil {
		t.log().WithError(err).WithField("key", key).Debug("session tracker: start failed")
		return Session[T]{}, err
	}
	return stored, nil
}

// ExistingSession decodes the raw payload carried by a
// *errs.SessionInProgress returned from Start/Add, for callers that
// want the winning session without a second round trip.
func (t *Tracker[T]) ExistingSession(err error) (Session[T], bool) {
	var inProgress *errs.SessionInProgress
	if !errors.As(err, &inProgress) {
		return Session[T]{}, false
	}
	s, decErr := t.codec.Decode(inProgress.Existing)
	if decErr != nil {
		return Session[T]{}, false
	}
	return s, true
}

// Get returns the active session, bumping its sliding TTL.
func (t *Tracker[T]) Get(ctx context.Context, key string) (Session[T], error) {
	return t.engine.Get(ctx, key)
}

// GetEvicted returns the evicted session, bumping its sliding TTL.
func (t *Tracker[T]) GetEvicted(ctx context.Context, key string) (Session[T], error) {
	return t.engine.GetEvicted(ctx, key)
}

// Refresh bumps the active session's sliding TTL without returning it.
func (t *Tracker[T]) Refresh(ctx context.Context, key string) error {
	return t.engine.Refresh(ctx, key)
}

// Update increments s.Version before calling the engine, per §4.6 —
// and, per §9, does so even though a subsequent engine failure leaves
// the caller's in-memory copy of s with an already-bumped Version; the
// caller's Session value is ephemeral, so this is treated as intentional
// rather than rolled back.
func (t *Tracker[T]) Update(ctx context.Context, s Session[T]) (Session[T], error) {
	s.Version++
	return t.engine.UpdateAndGet(ctx, s.Key, s)
}

// FinishKey moves the session at key to evicted under the evicted
// compartment's policy.
//
// The source repository's facade calls Refresh here when given a whole
// Session value (a copy-paste bug this spec does not reproduce — see
// §9) and Evict when given a bare key. This implementation always
// evicts, for both FinishKey and Finish, matching the spec's documented
// fix.
func (t *Tracker[T]) FinishKey(ctx context.Context, key string) error {
	return t.engine.Evict(ctx, key)
}

// Finish is Finish(session) from §4.6: evicts the session identified
// by s.Key. See FinishKey's doc comment for why this does not mirror
// the source's Refresh-on-session-value bug.
func (t *Tracker[T]) Finish(ctx context.Context, s Session[T]) error {
	return t.engine.Evict(ctx, s.Key)
}

// Resume moves the session at key from evicted back to active under
// the active compartment's policy.
func (t *Tracker[T]) Resume(ctx context.Context, key string) (Session[T], error) {
	return t.engine.RestoreAndGet(ctx, key)
}

// Lock attempts a single, non-blocking acquisition of the lock for key
// using this session type's default lock TTL.
func (t *Tracker[T]) Lock(ctx context.Context, key string) (*lock.Lock, error) {
	ts := t.settings.For(t.sessionType)
	return t.locker.Acquire(ctx, t.namer.Lock(t.sessionType, key), ts.LockTTL)
}

// LockWait acquires the lock for key, polling until acquired, wait
// elapses, or ctx is cancelled. Zero-valued ttl/wait/retry fall back to
// this session type's configured defaults.
func (t *Tracker[T]) LockWait(ctx context.Context, key string, ttl, wait, retry time.Duration) (*lock.Lock, error) {
	ts := t.settings.For(t.sessionType)
	if ttl == 0 {
		ttl = ts.LockTTL
	}
	if wait == 0 {
		wait = ts.LockWait
	}
	if retry == 0 {
		retry = ts.LockRetry
	}
	return t.locker.AcquireWait(ctx, t.namer.Lock(t.sessionType, key), ttl, wait, retry)
}

// GetLocked acquires the lock for key, then Gets the session. If the
// Get fails, the lock is released (idempotent dispose) before the
// error propagates, per §4.6.
func (t *Tracker[T]) GetLocked(ctx context.Context, key string, ttl, wait, retry time.Duration) (Session[T], *lock.Lock, error) {
	l, err := t.LockWait(ctx, key, ttl, wait, retry)
	if err != nil {
		return Session[T]{}, nil, err
	}
	s, err := t.Get(ctx, key)
	if err != nil {
		if relErr := l.Release(ctx); relErr != nil {
			t.log().WithError(relErr).WithField("key", key).Warn("session tracker: failed to release lock after GetLocked miss")
		}
		return Session[T]{}, nil, err
	}
	return s, l, nil
}
