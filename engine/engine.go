// Package engine implements the Compartment Engine (C4): the atomic
// two-compartment state machine described in spec §4.4. Every public
// method executes exactly one server-side script against the backend,
// generalizing the teacher's workspace/repository.ValkeySessionStore,
// which hardcodes a single compartment and performs its "critical
// section" (UpdateField) as a client-side read-modify-write guarded by
// a lock instead of a single atomic script. This package removes that
// lock dependency for the core operations by pushing the whole
// transition into Lua, per §4.4's atomicity requirement.
package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/AzielCF/az-sessiontracker/backend"
	"github.com/AzielCF/az-sessiontracker/clock"
	"github.com/AzielCF/az-sessiontracker/codec"
	"github.com/AzielCF/az-sessiontracker/errs"
	"github.com/AzielCF/az-sessiontracker/keyns"
	"github.com/AzielCF/az-sessiontracker/policy"
)

// Script family names, registered once per Engine against the shared
// backend.Client, per §4.4's "small fixed set of five scripts".
const (
	ScriptAddIfAbsent         = "add-if-absent"
	ScriptGetAndRefresh       = "get-and-refresh"
	ScriptUpdateIfPresent     = "update-if-present"
	ScriptMoveActiveToEvicted = "move-active-to-evicted"
	ScriptMoveEvictedToActive = "move-evicted-to-active"
)

// noneSentinel marks an absent absolute/sliding/TTL argument. The same
// literal also doubles as the backend reply meaning "the other
// compartment already holds this key" (otherSentinel below) — both are
// the spec's single "-1" sentinel, used in the argument and return
// positions respectively.
const noneSentinel = "-1"

// otherSentinel is the distinguished backend reply meaning "the other
// compartment already holds this key".
const otherSentinel = noneSentinel

// okSentinel is the distinguished backend reply for a data-less success.
const okSentinel = "1"

const addIfAbsentScript = `
local active, evicted = KEYS[1], KEYS[2]
if redis.call('EXISTS', active) == 1 then
  return redis.call('HGET', active, 'data')
end
if redis.call('EXISTS', evicted) == 1 then
  return redis.call('HGET', evicted, 'data')
end
redis.call('HSET', active, 'data', ARGV[1], 'absexp', ARGV[2], 'sldexp', ARGV[3])
local ttl = tonumber(ARGV[4])
if ttl ~= nil and ttl >= 0 then
  redis.call('EXPIRE', active, ttl)
end
return '1'
`

// getAndRefreshScript operates on a (primary, other) key pair rather
// than hardcoding active/evicted: Get/Refresh call it with
// primary=active, other=evicted, while GetEvicted calls it with the
// pair swapped, so the same script's "-1" sentinel means
// SessionAlreadyEvicted in the first case and SessionAlreadyRestored
// in the second. This keeps the five-script budget from §4.4 exact
// while covering all ten public operations.
const getAndRefreshScript = `
local primary, other = KEYS[1], KEYS[2]
if redis.call('EXISTS', primary) == 1 then
  local data = redis.call('HGET', primary, 'data')
  local absexp = tonumber(redis.call('HGET', primary, 'absexp'))
  local sldexp = tonumber(redis.call('HGET', primary, 'sldexp'))
  local ttl = nil
  if absexp ~= nil and absexp >= 0 then
    local now = tonumber(redis.call('TIME')[1])
    local remain = absexp - now
    if sldexp ~= nil and sldexp >= 0 and sldexp < remain then
      ttl = sldexp
    else
      ttl = remain
    end
  elseif sldexp ~= nil and sldexp >= 0 then
    ttl = sldexp
  end
  if ttl ~= nil then
    if ttl < 0 then ttl = 0 end
    redis.call('EXPIRE', primary, ttl)
  end
  return data
end
if redis.call('EXISTS', other) == 1 then
  return '-1'
end
return false
`

const updateIfPresentScript = `
local active, evicted = KEYS[1], KEYS[2]
if redis.call('EXISTS', active) == 1 then
  redis.call('HSET', active, 'data', ARGV[1])
  local absexp = tonumber(redis.call('HGET', active, 'absexp'))
  local sldexp = tonumber(redis.call('HGET', active, 'sldexp'))
  local ttl = nil
  if absexp ~= nil and absexp >= 0 then
    local now = tonumber(redis.call('TIME')[1])
    local remain = absexp - now
    if sldexp ~= nil and sldexp >= 0 and sldexp < remain then
      ttl = sldexp
    else
      ttl = remain
    end
  elseif sldexp ~= nil and sldexp >= 0 then
    ttl = sldexp
  end
  if ttl ~= nil then
    if ttl < 0 then ttl = 0 end
    redis.call('EXPIRE', active, ttl)
  end
  return ARGV[1]
end
if redis.call('EXISTS', evicted) == 1 then
  return '-1'
end
return false
`

const moveActiveToEvictedScript = `
local active, evicted = KEYS[1], KEYS[2]
if redis.call('EXISTS', active) == 1 then
  local data = redis.call('HGET', active, 'data')
  redis.call('DEL', active)
  redis.call('HSET', evicted, 'data', data, 'absexp', ARGV[1], 'sldexp', ARGV[2])
  local ttl = tonumber(ARGV[3])
  if ttl ~= nil and ttl >= 0 then
    redis.call('EXPIRE', evicted, ttl)
  end
  return data
end
if redis.call('EXISTS', evicted) == 1 then
  return '-1'
end
return false
`

const moveEvictedToActiveScript = `
local evicted, active = KEYS[1], KEYS[2]
if redis.call('EXISTS', evicted) == 1 then
  local data = redis.call('HGET', evicted, 'data')
  redis.call('DEL', evicted)
  redis.call('HSET', active, 'data', data, 'absexp', ARGV[1], 'sldexp', ARGV[2])
  local ttl = tonumber(ARGV[3])
  if ttl ~= nil and ttl >= 0 then
    redis.call('EXPIRE', active, ttl)
  end
  return data
end
if redis.call('EXISTS', active) == 1 then
  return '-1'
end
return false
`

// Register precomputes and stores the five script bodies against c,
// per §4.4. Call once per backend.Client at startup, before
// constructing any Engine against it.
func Register(c *backend.Client) {
	c.Register(ScriptAddIfAbsent, addIfAbsentScript)
	c.Register(ScriptGetAndRefresh, getAndRefreshScript)
	c.Register(ScriptUpdateIfPresent, updateIfPresentScript)
	c.Register(ScriptMoveActiveToEvicted, moveActiveToEvictedScript)
	c.Register(ScriptMoveEvictedToActive, moveEvictedToActiveScript)
}

// Engine is the Compartment Engine for one session type T.
type Engine[T any] struct {
	backend     *backend.Client
	namer       *keyns.Namer
	settings    *policy.Settings
	codec       codec.Codec[T]
	clk         clock.Clock
	sessionType string
}

// New constructs an Engine for sessionType. c must already have had
// Register called against it.
func New[T any](c *backend.Client, namer *keyns.Namer, settings *policy.Settings, cd codec.Codec[T], clk clock.Clock, sessionType string) *Engine[T] {
	return &Engine[T]{backend: c, namer: namer, settings: settings, codec: cd, clk: clk, sessionType: sessionType}
}

func checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return &errs.Cancelled{Cause: ctx.Err()}
	default:
		return nil
	}
}

// ttlArgs turns a resolved EntryOptions into the three string ARGV
// parameters every write-fresh script expects: absExpUnix, slidingSeconds,
// effectiveTtlSeconds, each "-1" when absent, per §6.
func ttlArgs(opts policy.EntryOptions, now time.Time) (absArg, sldArg, ttlArg string) {
	absArg = noneSentinel
	if !opts.AbsoluteExpiration.IsZero() {
		absArg = strconv.FormatInt(opts.AbsoluteExpiration.Unix(), 10)
	}
	sldArg = noneSentinel
	if opts.SlidingExpiration > 0 {
		sldArg = strconv.FormatInt(int64(opts.SlidingExpiration.Seconds()), 10)
	}
	ttlArg = noneSentinel
	if ttl, ok := opts.EffectiveTTL(now); ok {
		if ttl < 0 {
			ttl = 0
		}
		ttlArg = strconv.FormatInt(int64(ttl.Seconds()), 10)
	}
	return absArg, sldArg, ttlArg
}

// Add creates an active entry if absent from both compartments. If an
// entry already exists (active or evicted), it returns
// SessionInProgress carrying the existing payload's raw bytes — the
// existing record wins the race, per the at-most-one-compartment
// invariant in §8's "Exactly one returns Ok, the other returns
// SessionInProgress with the winning payload."
func (e *Engine[T]) Add(ctx context.Context, userKey string, value T) (T, error) {
	var zero T
	if err := checkCancel(ctx); err != nil {
		return zero, err
	}
	data, err := e.codec.Encode(value)
	if err != nil {
		return zero, &errs.CodecError{Cause: err}
	}

	now := e.clk.Now()
	ts := e.settings.For(e.sessionType)
	opts := ts.ActiveOptions(now)
	absArg, sldArg, ttlArg := ttlArgs(opts, now)

	activeKey := e.namer.Active(e.sessionType, userKey)
	evictedKey := e.namer.Evicted(e.sessionType, userKey)

	result, err := e.backend.Eval(ctx, ScriptAddIfAbsent, []string{activeKey, evictedKey}, []string{string(data), absArg, sldArg, ttlArg})
	if err != nil {
		return zero, &errs.BackendError{Cause: err}
	}
	raw, err := result.AsBytes()
	if err != nil {
		return zero, &errs.BackendError{Cause: err}
	}
	if string(raw) == okSentinel {
		return value, nil
	}
	return zero, &errs.SessionInProgress{Key: userKey, Existing: raw}
}

// Get returns the active entry, bumping its sliding TTL.
func (e *Engine[T]) Get(ctx context.Context, userKey string) (T, error) {
	return e.getAndRefresh(ctx, userKey, false)
}

// Refresh bumps the active entry's sliding TTL without returning its
// payload to the caller. It shares Get's path, so the payload is still
// decoded (a decode failure surfaces as CodecError) and then discarded.
func (e *Engine[T]) Refresh(ctx context.Context, userKey string) error {
	_, err := e.getAndRefresh(ctx, userKey, false)
	return err
}

// GetEvicted returns the evicted entry, bumping its sliding TTL. It
// reuses get-and-refresh with the compartments swapped, so "-1"
// resolves to SessionAlreadyRestored instead of SessionAlreadyEvicted.
func (e *Engine[T]) GetEvicted(ctx context.Context, userKey string) (T, error) {
	return e.getAndRefresh(ctx, userKey, true)
}

func (e *Engine[T]) getAndRefresh(ctx context.Context, userKey string, evictedSide bool) (T, error) {
	var zero T
	if err := checkCancel(ctx); err != nil {
		return zero, err
	}
	activeKey := e.namer.Active(e.sessionType, userKey)
	evictedKey := e.namer.Evicted(e.sessionType, userKey)

	primary, other := activeKey, evictedKey
	otherErr := error(&errs.SessionAlreadyEvicted{Key: userKey})
	if evictedSide {
		primary, other = evictedKey, activeKey
		otherErr = &errs.SessionAlreadyRestored{Key: userKey}
	}

	result, err := e.backend.Eval(ctx, ScriptGetAndRefresh, []string{primary, other}, nil)
	if err != nil {
		return zero, &errs.BackendError{Cause: err}
	}
	raw, err := result.AsBytes()
	if err != nil {
		if backend.IsNil(err) {
			return zero, &errs.NotFound{Key: userKey}
		}
		return zero, &errs.BackendError{Cause: err}
	}
	if string(raw) == otherSentinel {
		return zero, otherErr
	}
	value, decErr := e.codec.Decode(raw)
	if decErr != nil {
		return zero, &errs.CodecError{Cause: decErr}
	}
	return value, nil
}

// Update replaces the active entry's payload and bumps its sliding
// TTL, discarding the new value it would otherwise return.
func (e *Engine[T]) Update(ctx context.Context, userKey string, value T) error {
	_, err := e.UpdateAndGet(ctx, userKey, value)
	return err
}

// UpdateAndGet replaces the active entry's payload, bumps its sliding
// TTL, and returns the value that was written.
func (e *Engine[T]) UpdateAndGet(ctx context.Context, userKey string, value T) (T, error) {
	var zero T
	if err := checkCancel(ctx); err != nil {
		return zero, err
	}
	data, err := e.codec.Encode(value)
	if err != nil {
		return zero, &errs.CodecError{Cause: err}
	}

	activeKey := e.namer.Active(e.sessionType, userKey)
	evictedKey := e.namer.Evicted(e.sessionType, userKey)

	result, err := e.backend.Eval(ctx, ScriptUpdateIfPresent, []string{activeKey, evictedKey}, []string{string(data)})
	if err != nil {
		return zero, &errs.BackendError{Cause: err}
	}
	raw, err := result.AsBytes()
	if err != nil {
		if backend.IsNil(err) {
			return zero, &errs.NotFound{Key: userKey}
		}
		return zero, &errs.BackendError{Cause: err}
	}
	if string(raw) == otherSentinel {
		return zero, &errs.SessionAlreadyEvicted{Key: userKey}
	}
	return value, nil
}

// Evict moves the active entry to evicted under the evicted
// compartment's policy, discarding the moved value it would otherwise
// return.
func (e *Engine[T]) Evict(ctx context.Context, userKey string) error {
	_, err := e.EvictAndGet(ctx, userKey)
	return err
}

// EvictAndGet moves the active entry to evicted under the evicted
// compartment's policy and returns the moved value.
func (e *Engine[T]) EvictAndGet(ctx context.Context, userKey string) (T, error) {
	var zero T
	if err := checkCancel(ctx); err != nil {
		return zero, err
	}
	now := e.clk.Now()
	ts := e.settings.For(e.sessionType)
	opts := ts.EvictedOptions(now)
	absArg, sldArg, ttlArg := ttlArgs(opts, now)

	activeKey := e.namer.Active(e.sessionType, userKey)
	evictedKey := e.namer.Evicted(e.sessionType, userKey)

	result, err := e.backend.Eval(ctx, ScriptMoveActiveToEvicted, []string{activeKey, evictedKey}, []string{absArg, sldArg, ttlArg})
	if err != nil {
		return zero, &errs.BackendError{Cause: err}
	}
	raw, err := result.AsBytes()
	if err != nil {
		if backend.IsNil(err) {
			return zero, &errs.NotFound{Key: userKey}
		}
		return zero, &errs.BackendError{Cause: err}
	}
	if string(raw) == otherSentinel {
		return zero, &errs.SessionAlreadyEvicted{Key: userKey}
	}
	value, decErr := e.codec.Decode(raw)
	if decErr != nil {
		return zero, &errs.CodecError{Cause: decErr}
	}
	return value, nil
}

// Restore moves the evicted entry back to active under the active
// compartment's policy, discarding the moved value it would otherwise
// return.
func (e *Engine[T]) Restore(ctx context.Context, userKey string) error {
	_, err := e.RestoreAndGet(ctx, userKey)
	return err
}

// RestoreAndGet moves the evicted entry back to active under the
// active compartment's policy and returns the moved value.
func (e *Engine[T]) RestoreAndGet(ctx context.Context, userKey string) (T, error) {
	var zero T
	if err := checkCancel(ctx); err != nil {
		return zero, err
	}
	now := e.clk.Now()
	ts := e.settings.For(e.sessionType)
	opts := ts.ActiveOptions(now)
	absArg, sldArg, ttlArg := ttlArgs(opts, now)

	activeKey := e.namer.Active(e.sessionType, userKey)
	evictedKey := e.namer.Evicted(e.sessionType, userKey)

	result, err := e.backend.Eval(ctx, ScriptMoveEvictedToActive, []string{evictedKey, activeKey}, []string{absArg, sldArg, ttlArg})
	if err != nil {
		return zero, &errs.BackendError{Cause: err}
	}
	raw, err := result.AsBytes()
	if err != nil {
		if backend.IsNil(err) {
			return zero, &errs.NotFound{Key: userKey}
		}
		return zero, &errs.BackendError{Cause: err}
	}
	if string(raw) == otherSentinel {
		return zero, &errs.SessionAlreadyRestored{Key: userKey}
	}
	value, decErr := e.codec.Decode(raw)
	if decErr != nil {
		return zero, &errs.CodecError{Cause: decErr}
	}
	return value, nil
}
