package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzielCF/az-sessiontracker/clock"
	"github.com/AzielCF/az-sessiontracker/errs"
)

var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestEntryOptions_Validate(t *testing.T) {
	t.Run("rejects past absolute expiration", func(t *testing.T) {
		opts := EntryOptions{AbsoluteExpiration: fixedNow.Add(-time.Minute)}
		err := opts.Validate(fixedNow)
		require.Error(t, err)
		var invalid *errs.InvalidOptions
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("rejects negative relative duration", func(t *testing.T) {
		opts := EntryOptions{AbsoluteExpirationRelativeToNow: -time.Second}
		assert.Error(t, opts.Validate(fixedNow))
	})

	t.Run("rejects negative sliding expiration", func(t *testing.T) {
		opts := EntryOptions{SlidingExpiration: -time.Second}
		assert.Error(t, opts.Validate(fixedNow))
	})

	t.Run("accepts a future absolute expiration alone", func(t *testing.T) {
		opts := EntryOptions{AbsoluteExpiration: fixedNow.Add(time.Minute)}
		assert.NoError(t, opts.Validate(fixedNow))
	})

	t.Run("accepts sliding alone with no absolute bound", func(t *testing.T) {
		opts := EntryOptions{SlidingExpiration: 30 * time.Second}
		assert.NoError(t, opts.Validate(fixedNow))
	})
}

func TestEntryOptions_EffectiveTTL(t *testing.T) {
	t.Run("neither bound set yields unset", func(t *testing.T) {
		_, ok := EntryOptions{}.EffectiveTTL(fixedNow)
		assert.False(t, ok)
	})

	t.Run("absolute alone", func(t *testing.T) {
		opts := EntryOptions{AbsoluteExpiration: fixedNow.Add(10 * time.Second)}
		ttl, ok := opts.EffectiveTTL(fixedNow)
		require.True(t, ok)
		assert.Equal(t, 10*time.Second, ttl)
	})

	t.Run("sliding alone", func(t *testing.T) {
		opts := EntryOptions{SlidingExpiration: 7 * time.Second}
		ttl, ok := opts.EffectiveTTL(fixedNow)
		require.True(t, ok)
		assert.Equal(t, 7*time.Second, ttl)
	})

	t.Run("min of both when sliding is shorter", func(t *testing.T) {
		opts := EntryOptions{
			AbsoluteExpiration: fixedNow.Add(30 * time.Second),
			SlidingExpiration:  5 * time.Second,
		}
		ttl, ok := opts.EffectiveTTL(fixedNow)
		require.True(t, ok)
		assert.Equal(t, 5*time.Second, ttl)
	})

	t.Run("min of both when absolute remainder is shorter", func(t *testing.T) {
		opts := EntryOptions{
			AbsoluteExpiration: fixedNow.Add(3 * time.Second),
			SlidingExpiration:  30 * time.Second,
		}
		ttl, ok := opts.EffectiveTTL(fixedNow)
		require.True(t, ok)
		assert.Equal(t, 3*time.Second, ttl)
	})
}

func TestSettings_ForFallsBackFieldByField(t *testing.T) {
	s := NewSettings(TypeSettings{}, map[string]TypeSettings{
		"cart": {Absolute: 2 * time.Minute},
	})

	resolved := s.For("cart")
	assert.Equal(t, 2*time.Minute, resolved.Absolute)
	assert.Equal(t, defaultTypeSettings.Sliding, resolved.Sliding)
	assert.Equal(t, defaultTypeSettings.LockTTL, resolved.LockTTL)
}

func TestSettings_ForUnknownTypeUsesDefaults(t *testing.T) {
	s := NewSettings(TypeSettings{}, nil)
	assert.Equal(t, defaultTypeSettings, s.For("unknown"))
}

func TestTypeSettings_ActiveAndEvictedOptions(t *testing.T) {
	ts := TypeSettings{
		Absolute:        time.Minute,
		Sliding:         10 * time.Second,
		EvictedAbsolute: 2 * time.Minute,
		EvictedSliding:  20 * time.Second,
	}
	opts := ts.ActiveOptions(fixedNow)
	assert.Equal(t, fixedNow.Add(time.Minute), opts.AbsoluteExpiration)
	assert.Equal(t, 10*time.Second, opts.SlidingExpiration)

	evicted := ts.EvictedOptions(fixedNow)
	assert.Equal(t, fixedNow.Add(2*time.Minute), evicted.AbsoluteExpiration)
	assert.Equal(t, 20*time.Second, evicted.SlidingExpiration)
}

func TestGetExpirationInSeconds(t *testing.T) {
	clk := clock.NewFixed(fixedNow)
	abs := fixedNow.Add(20 * time.Second)

	seconds, ok := GetExpirationInSeconds(clk, fixedNow, abs, EntryOptions{SlidingExpiration: 5 * time.Second})
	require.True(t, ok)
	assert.Equal(t, int64(5), seconds)

	_, ok = GetExpirationInSeconds(clk, fixedNow, time.Time{}, EntryOptions{})
	assert.False(t, ok)
}
