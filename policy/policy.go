// Package policy resolves per-session-type expiration and lock timing,
// falling back to module-wide defaults. It is the Entry-Policy Resolver
// (C3): pure lookups over a read-only table built once at construction,
// following the teacher's core/config.Config shape (nested structs with
// env-driven defaults) but scoped to expiration/lock timing instead of
// application settings.
package policy

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/AzielCF/az-sessiontracker/clock"
	"github.com/AzielCF/az-sessiontracker/errs"
)

// Defaults per §3: absolute 30s, sliding 10s, lock TTL 30s, wait 10s,
// retry 3s. Evicted absolute/sliding default to the same active values
// when unset, matching the source's fallback behavior.
const (
	DefaultAbsoluteExpiration = 30 * time.Second
	DefaultSlidingExpiration  = 10 * time.Second
	DefaultLockTTL            = 30 * time.Second
	DefaultLockWait           = 10 * time.Second
	DefaultLockRetry          = 3 * time.Second
)

// EntryOptions mirrors the spec's SessionEntryOptions: an absolute
// bound (either a fixed timestamp or relative-to-now duration) and an
// optional sliding window.
type EntryOptions struct {
	AbsoluteExpiration              time.Time
	AbsoluteExpirationRelativeToNow time.Duration
	SlidingExpiration               time.Duration
}

// Validate rejects negative durations (a zero duration means the bound
// is unset) and absolute expirations that do not lie strictly in the
// future of now, per §3/§7: configuration
// errors surface at set time, never at call time.
func (o EntryOptions) Validate(now time.Time) error {
	if o.AbsoluteExpirationRelativeToNow < 0 {
		return &errs.InvalidOptions{Reason: "absoluteExpirationRelativeToNow must be positive"}
	}
	if o.SlidingExpiration < 0 {
		return &errs.InvalidOptions{Reason: "slidingExpiration must be positive"}
	}
	if err := validation.Validate(o.SlidingExpiration, validation.Min(time.Duration(0))); err != nil {
		return &errs.InvalidOptions{Reason: err.Error()}
	}

	abs := o.resolvedAbsolute(now)
	if !abs.IsZero() && !abs.After(now) {
		return &errs.InvalidOptions{Reason: "absoluteExpiration must lie strictly in the future"}
	}
	return nil
}

// resolvedAbsolute returns the effective absolute expiration instant,
// preferring an explicit timestamp over the relative-to-now duration.
func (o EntryOptions) resolvedAbsolute(now time.Time) time.Time {
	if !o.AbsoluteExpiration.IsZero() {
		return o.AbsoluteExpiration
	}
	if o.AbsoluteExpirationRelativeToNow > 0 {
		return now.Add(o.AbsoluteExpirationRelativeToNow)
	}
	return time.Time{}
}

// EffectiveTTL computes min(abs-now, sliding), or whichever bound is
// present, or zero (no expiration) if neither is set. Sliding alone,
// with no absolute bound, is permitted and becomes the effective TTL —
// per §3, "sliding is ignored if no absolute bound exists alongside"
// describes the inverse case (an absolute-less sliding value still
// stands on its own as the TTL; it only stops contributing a *second*
// bound to min() when there is no absolute value to compare against).
func (o EntryOptions) EffectiveTTL(now time.Time) (time.Duration, bool) {
	abs := o.resolvedAbsolute(now)
	hasAbs := !abs.IsZero()
	hasSliding := o.SlidingExpiration > 0

	switch {
	case hasAbs && hasSliding:
		remaining := abs.Sub(now)
		if o.SlidingExpiration < remaining {
			return o.SlidingExpiration, true
		}
		return remaining, true
	case hasAbs:
		return abs.Sub(now), true
	case hasSliding:
		return o.SlidingExpiration, true
	default:
		return 0, false
	}
}

// TypeSettings holds the resolved knobs for one session type.
type TypeSettings struct {
	Absolute        time.Duration
	Sliding         time.Duration
	EvictedAbsolute time.Duration
	EvictedSliding  time.Duration
	LockTTL         time.Duration
	LockWait        time.Duration
	LockRetry       time.Duration
}

// defaultTypeSettings is the module-wide fallback, per §3.
var defaultTypeSettings = TypeSettings{
	Absolute:        DefaultAbsoluteExpiration,
	Sliding:         DefaultSlidingExpiration,
	EvictedAbsolute: DefaultAbsoluteExpiration,
	EvictedSliding:  DefaultSlidingExpiration,
	LockTTL:         DefaultLockTTL,
	LockWait:        DefaultLockWait,
	LockRetry:       DefaultLockRetry,
}

// Settings is the per-type table plus defaults (TrackerSettings, §3).
// Built once and treated as read-only thereafter — it is the only
// shared state the facade and engine hold across calls (§5).
type Settings struct {
	perType  map[string]TypeSettings
	defaults TypeSettings
}

// NewSettings builds a Settings table. defaults, if the zero value, is
// replaced with the documented module defaults.
func NewSettings(defaults TypeSettings, perType map[string]TypeSettings) *Settings {
	if defaults == (TypeSettings{}) {
		defaults = defaultTypeSettings
	}
	table := make(map[string]TypeSettings, len(perType))
	for k, v := range perType {
		table[k] = v
	}
	return &Settings{perType: table, defaults: defaults}
}

// For resolves the effective TypeSettings for a session type, falling
// back to defaults field-by-field when a per-type override leaves a
// field at its zero value.
func (s *Settings) For(sessionType string) TypeSettings {
	t, ok := s.perType[sessionType]
	if !ok {
		return s.defaults
	}
	return TypeSettings{
		Absolute:        orDefault(t.Absolute, s.defaults.Absolute),
		Sliding:         orDefault(t.Sliding, s.defaults.Sliding),
		EvictedAbsolute: orDefault(t.EvictedAbsolute, s.defaults.EvictedAbsolute),
		EvictedSliding:  orDefault(t.EvictedSliding, s.defaults.EvictedSliding),
		LockTTL:         orDefault(t.LockTTL, s.defaults.LockTTL),
		LockWait:        orDefault(t.LockWait, s.defaults.LockWait),
		LockRetry:       orDefault(t.LockRetry, s.defaults.LockRetry),
	}
}

func orDefault(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

// ActiveOptions returns the EntryOptions a resolved TypeSettings implies
// for the active compartment, anchored at startedAt.
func (t TypeSettings) ActiveOptions(startedAt time.Time) EntryOptions {
	return EntryOptions{
		AbsoluteExpiration: startedAt.Add(t.Absolute),
		SlidingExpiration:  t.Sliding,
	}
}

// EvictedOptions returns the EntryOptions a resolved TypeSettings
// implies for the evicted compartment, anchored at evictedAt.
func (t TypeSettings) EvictedOptions(evictedAt time.Time) EntryOptions {
	return EntryOptions{
		AbsoluteExpiration: evictedAt.Add(t.EvictedAbsolute),
		SlidingExpiration:  t.EvictedSliding,
	}
}

// GetExpirationInSeconds implements §4.3's named helper: min((abs-now),
// sliding) if both, else whichever is present, else unset (ok=false).
// creationTime is accepted for parity with the spec's named signature;
// the resolver only needs "now" plus the already-anchored absolute
// expiration to compute the remaining TTL.
func GetExpirationInSeconds(clk clock.Clock, creationTime time.Time, absoluteExpiration time.Time, opts EntryOptions) (seconds int64, ok bool) {
	now := clk.Now()
	resolved := opts
	if resolved.AbsoluteExpiration.IsZero() {
		resolved.AbsoluteExpiration = absoluteExpiration
	}
	ttl, has := resolved.EffectiveTTL(now)
	if !has {
		return 0, false
	}
	if ttl < 0 {
		ttl = 0
	}
	return int64(ttl.Seconds()), true
}
