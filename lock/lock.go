// Package lock implements the Lock Coordinator (C5): bounded-wait
// acquisition, owner-tagged release, and lost-handle observation over a
// single-node SET-NX-PX backend, generalizing the teacher's
// workspace/repository.ValkeySessionStore.acquireLock/releaseLock pair
// (a fixed-TTL, fixed-retry-count spinlock embedded in one repository
// method) into the spec's parametrized, reusable coordinator.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-sessiontracker/backend"
	"github.com/AzielCF/az-sessiontracker/clock"
	"github.com/AzielCF/az-sessiontracker/errs"
)

// releaseScript deletes the lock key only if its stored value still
// matches the caller's id, the same compare-and-delete the teacher
// performs with releaseLockScript in valkey_session.go.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// ScriptRelease is the name releaseScript is registered under.
const ScriptRelease = "lock-release"

// Register precomputes and stores the release script against c. Call
// once per backend.Client at startup.
func Register(c *backend.Client) {
	c.Register(ScriptRelease, releaseScript)
}

// Locker is the backend-agnostic contract from spec §4.5. The
// single-node SET-NX-PX variant below is the only one this module
// ships a concrete implementation for; a Redlock-style quorum or
// in-process variant can implement the same interface without
// touching the Session Facade.
type Locker interface {
	Acquire(ctx context.Context, resource string, ttl time.Duration) (*Lock, error)
	AcquireWait(ctx context.Context, resource string, ttl, wait, retry time.Duration) (*Lock, error)
}

// Lock is the opaque owned handle returned by a successful acquisition.
// Release is idempotent and safe to call from any exit path (deferred,
// scoped, or explicit), mirroring §9's "internal release flag prevents
// double-free."
type Lock struct {
	Resource   string
	ID         string
	Status     errs.LockStatus
	AcquiredAt time.Time
	ExpiresAt  time.Time

	lost     chan struct{}
	lostOnce bool

	coordinator *Coordinator
	released    bool
}

// Lost returns a channel that closes when a Release call fails to
// reach the backend (or the release script errors), so the handle can
// no longer be trusted to have been released cleanly. The coordinator
// does not watch the lock while it is held: a connection loss between
// acquisition and Release does not close the channel. It never fires
// on a clean, explicit Release.
func (l *Lock) Lost() <-chan struct{} {
	return l.lost
}

// Release deletes the lock iff it is still owned by this handle's ID.
// Calling Release more than once is a no-op, per §8's "idempotent
// release" property, and a Release whose ID no longer matches the
// backend-stored value never deletes another holder's entry (the
// "exclusion of aliens" property).
func (l *Lock) Release(ctx context.Context) error {
	if l.released {
		return nil
	}
	l.released = true
	if l.coordinator == nil {
		return nil
	}
	return l.coordinator.release(ctx, l)
}

// Coordinator is the single-node SET-NX-PX Locker implementation.
type Coordinator struct {
	backend *backend.Client
	namer   keyNamer
	clk     clock.Clock
}

// keyNamer is the subset of keyns.Namer the coordinator needs; kept as
// an interface so lock tests don't have to construct a full Namer.
type keyNamer interface {
	Lock(sessionType, userKey string) string
}

// NewCoordinator builds a Coordinator. c must already have had
// Register called against it.
func NewCoordinator(c *backend.Client, namer keyNamer, clk clock.Clock) *Coordinator {
	return &Coordinator{backend: c, namer: namer, clk: clk}
}

// Acquire is the single-shot, non-blocking attempt from §4.5: it tries
// once and returns LockNotAcquired(Conflicted) immediately on failure.
func (c *Coordinator) Acquire(ctx context.Context, resource string, ttl time.Duration) (*Lock, error) {
	return c.tryOnce(ctx, resource, ttl)
}

// AcquireWait polls every retry until acquired, wait elapses, or ctx is
// cancelled, per §4.5's bounded-wait variant. A cancellation trips
// within one retry interval plus a small constant, per §8.
func (c *Coordinator) AcquireWait(ctx context.Context, resource string, ttl, wait, retry time.Duration) (*Lock, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	deadline := c.clk.Now().Add(wait)
	for {
		l, err := c.tryOnce(ctx, resource, ttl)
		if err == nil {
			return l, nil
		}
		var notAcquired *errs.LockNotAcquired
		if !errors.As(err, &notAcquired) {
			return nil, err
		}

		if !c.clk.Now().Before(deadline) {
			return nil, err
		}

		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &errs.Cancelled{Cause: ctx.Err()}
		case <-timer.C:
		}
	}
}

func (c *Coordinator) tryOnce(ctx context.Context, resource string, ttl time.Duration) (*Lock, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	key := resource

	cmd := c.backend.Inner().B().Set().Key(key).Value(id).Nx().Px(ttl).Build()
	err := c.backend.Inner().Do(ctx, cmd).Error()
	if err == nil {
		now := c.clk.Now()
		logrus.WithFields(logrus.Fields{
			"resource": resource,
			"ttl":      humanize.RelTime(now, now.Add(ttl), "", ""),
		}).Debug("session tracker: lock acquired")
		return &Lock{
			Resource:    resource,
			ID:          id,
			Status:      errs.LockAcquired,
			AcquiredAt:  now,
			ExpiresAt:   now.Add(ttl),
			lost:        make(chan struct{}),
			coordinator: c,
		}, nil
	}
	if backend.IsNil(err) {
		return nil, &errs.LockNotAcquired{Resource: resource, Status: errs.LockConflicted}
	}
	return nil, &errs.BackendError{Cause: err}
}

// release runs the compare-and-delete script and marks l's status,
// closing its lost channel only if the backend could not be reached
// (never on a clean delete or a delete that found a mismatched owner).
func (c *Coordinator) release(ctx context.Context, l *Lock) error {
	result, err := c.backend.Eval(ctx, ScriptRelease, []string{l.Resource}, []string{l.ID})
	if err != nil {
		l.signalLost()
		return &errs.BackendError{Cause: err}
	}
	if err := result.Error(); err != nil {
		l.signalLost()
		return &errs.BackendError{Cause: err}
	}
	l.Status = errs.LockUnlocked
	return nil
}

// signalLost closes the lock's Lost channel exactly once.
func (l *Lock) signalLost() {
	if l.lostOnce {
		return
	}
	l.lostOnce = true
	close(l.lost)
}

func checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return &errs.Cancelled{Cause: ctx.Err()}
	default:
		return nil
	}
}
