package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem_Now(t *testing.T) {
	before := time.Now()
	got := System{}.Now()
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestFixed_AdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFixed(start)
	assert.Equal(t, start, f.Now())

	advanced := f.Advance(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), advanced)
	assert.Equal(t, advanced, f.Now())

	pinned := start.Add(time.Hour)
	f.Set(pinned)
	assert.Equal(t, pinned, f.Now())
}
