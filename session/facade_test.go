package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzielCF/az-sessiontracker/backend"
	"github.com/AzielCF/az-sessiontracker/clock"
	"github.com/AzielCF/az-sessiontracker/codec"
	"github.com/AzielCF/az-sessiontracker/engine"
	"github.com/AzielCF/az-sessiontracker/errs"
	"github.com/AzielCF/az-sessiontracker/keyns"
	"github.com/AzielCF/az-sessiontracker/lock"
	"github.com/AzielCF/az-sessiontracker/policy"
)

type cartPayload struct {
	Items []string `json:"items"`
}

func newTestTracker(t *testing.T) (*Tracker[cartPayload], *backend.Client, *keyns.Namer, string) {
	t.Helper()
	c, err := backend.NewClient(backend.Config{Address: "localhost:6379"})
	if err != nil {
		t.Skip("backend not available at localhost:6379")
	}
	engine.Register(c)
	lock.Register(c)

	namer := keyns.New("facade-test", "facade-test-lock")
	settings := policy.NewSettings(policy.TypeSettings{
		Absolute:        time.Minute,
		Sliding:         30 * time.Second,
		EvictedAbsolute: time.Minute,
		EvictedSliding:  30 * time.Second,
		LockTTL:         time.Second,
		LockWait:        2 * time.Second,
		LockRetry:       50 * time.Millisecond,
	}, nil)
	clk := clock.System{}
	sessionCodec := codec.NewJSON[Session[cartPayload]]()

	eng := engine.New[Session[cartPayload]](c, namer, settings, sessionCodec, clk, "cart")
	coordinator := lock.NewCoordinator(c, namer, clk)

	tracker := NewFromEngine(eng, Deps{
		Namer:    namer,
		Settings: settings,
		Locker:   coordinator,
		Clock:    clk,
	}, "cart", sessionCodec)

	return tracker, c, namer, uuid.NewString()
}

func cleanup(t *testing.T, c *backend.Client, namer *keyns.Namer, key string) {
	t.Helper()
	ctx := context.Background()
	for _, k := range []string{namer.Active("cart", key), namer.Evicted("cart", key), namer.Lock("cart", key)} {
		_ = c.Inner().Do(ctx, c.Inner().B().Del().Key(k).Build()).Error()
	}
}

func TestTracker_StartGetUpdateFinishResume(t *testing.T) {
	tracker, c, namer, key := newTestTracker(t)
	defer c.Close()
	defer cleanup(t, c, namer, key)

	ctx := context.Background()
	started, err := tracker.Start(ctx, key, cartPayload{Items: []string{"a"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, started.Version)

	got, err := tracker.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, started, got)

	got.Payload.Items = append(got.Payload.Items, "b")
	updated, err := tracker.Update(ctx, got)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated.Version)
	assert.Equal(t, []string{"a", "b"}, updated.Payload.Items)

	require.NoError(t, tracker.FinishKey(ctx, key))

	_, err = tracker.Get(ctx, key)
	var alreadyEvicted *errs.SessionAlreadyEvicted
	assert.True(t, errors.As(err, &alreadyEvicted))

	evicted, err := tracker.GetEvicted(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, evicted.Payload.Items)

	resumed, err := tracker.Resume(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, resumed.Payload.Items)
}

func TestTracker_Start_SecondCallExposesExistingSession(t *testing.T) {
	tracker, c, namer, key := newTestTracker(t)
	defer c.Close()
	defer cleanup(t, c, namer, key)

	ctx := context.Background()
	first, err := tracker.Start(ctx, key, cartPayload{Items: []string{"first"}})
	require.NoError(t, err)

	_, err = tracker.Start(ctx, key, cartPayload{Items: []string{"second"}})
	require.Error(t, err)

	existing, ok := tracker.ExistingSession(err)
	require.True(t, ok)
	assert.Equal(t, first.Payload.Items, existing.Payload.Items)
}

func TestTracker_GetLocked_ReleasesLockOnMiss(t *testing.T) {
	tracker, c, namer, key := newTestTracker(t)
	defer c.Close()
	defer cleanup(t, c, namer, key)

	ctx := context.Background()
	_, _, err := tracker.GetLocked(ctx, key, 0, 0, 0)
	var notFound *errs.NotFound
	assert.True(t, errors.As(err, &notFound))

	l, err := tracker.Lock(ctx, key)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))
}

func TestTracker_LockWait_ZeroValuesFallBackToSettings(t *testing.T) {
	tracker, c, namer, key := newTestTracker(t)
	defer c.Close()
	defer cleanup(t, c, namer, key)

	l, err := tracker.LockWait(context.Background(), key, 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, l.Release(context.Background()))
}
