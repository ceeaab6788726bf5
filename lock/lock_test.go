package lock

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
	"github.com/AzielCF/az-sessiontracker/errs"
	"github.com/AzielCF/az-sessiontracker/keyns"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *backend.Client, string) {
	t.Helper()
	c, err := backend.NewClient(backend.Config{Address: "localhost:6379"})
	if err != nil {
		t.Skip("backend not available at localhost:6379")
	}
	Register(c)

	namer := keyns.New("lock-test", "lock-test-lock")
	coordinator := NewCoordinator(c, namer, clock.System{})
	return coordinator, c, uuid.NewString()
}

func TestCoordinator_Acquire_ThenConflict(t *testing.T) {
	coord, c, resource := newTestCoordinator(t)
	defer c.Close()
	defer func() {
		_ = c.Inner().Do(context.Background(), c.Inner().B().Del().Key(resource).Build()).Error()
	}()

	l1, err := coord.Acquire(context.Background(), resource, time.Second)
	require.NoError(t, err)
	assert.Equal(t, errs.LockAcquired, l1.Status)

	_, err = coord.Acquire(context.Background(), resource, time.Second)
	var notAcquired *errs.LockNotAcquired
	require.True(t, errors.As(err, &notAcquired))
	assert.Equal(t, errs.LockConflicted, notAcquired.Status)

	require.NoError(t, l1.Release(context.Background()))

	l2, err := coord.Acquire(context.Background(), resource, time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, l1.ID, l2.ID)
	require.NoError(t, l2.Release(context.Background()))
}

func TestLock_ReleaseIsIdempotent(t *testing.T) {
	coord, c, resource := newTestCoordinator(t)
	defer c.Close()
	defer func() {
		_ = c.Inner().Do(context.Background(), c.Inner().B().Del().Key(resource).Build()).Error()
	}()

	l, err := coord.Acquire(context.Background(), resource, time.Second)
	require.NoError(t, err)

	require.NoError(t, l.Release(context.Background()))
	require.NoError(t, l.Release(context.Background()))
}

func TestLock_ReleaseDoesNotDeleteAnotherHolder(t *testing.T) {
	coord, c, resource := newTestCoordinator(t)
	defer c.Close()
	defer func() {
		_ = c.Inner().Do(context.Background(), c.Inner().B().Del().Key(resource).Build()).Error()
	}()

	l1, err := coord.Acquire(context.Background(), resource, 200*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)

	l2, err := coord.Acquire(context.Background(), resource, time.Second)
	require.NoError(t, err)

	require.NoError(t, l1.Release(context.Background()))

	held, err := c.Inner().Do(context.Background(), c.Inner().B().Get().Key(resource).Build()).AsBytes()
	require.NoError(t, err)
	assert.Equal(t, l2.ID, string(held))

	require.NoError(t, l2.Release(context.Background()))
}

func TestCoordinator_AcquireWait_SucceedsAfterRelease(t *testing.T) {
	coord, c, resource := newTestCoordinator(t)
	defer c.Close()
	defer func() {
		_ = c.Inner().Do(context.Background(), c.Inner().B().Del().Key(resource).Build()).Error()
	}()

	l1, err := coord.Acquire(context.Background(), resource, time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = l1.Release(context.Background())
	}()

	l2, err := coord.AcquireWait(context.Background(), resource, time.Second, 2*time.Second, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, l2.Release(context.Background()))
}

func TestCoordinator_AcquireWait_CancellationTripsPromptly(t *testing.T) {
	coord, c, resource := newTestCoordinator(t)
	defer c.Close()
	defer func() {
		_ = c.Inner().Do(context.Background(), c.Inner().B().Del().Key(resource).Build()).Error()
	}()

	l1, err := coord.Acquire(context.Background(), resource, 5*time.Second)
	require.NoError(t, err)
	defer l1.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = coord.AcquireWait(ctx, resource, time.Second, 5*time.Second, 50*time.Millisecond)
	elapsed := time.Since(start)

	var cancelled *errs.Cancelled
	assert.True(t, errors.As(err, &cancelled))
	assert.Less(t, elapsed, time.Second)
}
