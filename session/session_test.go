package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_SeedsVersionAtOne(t *testing.T) {
	s := New("k1", "payload")
	assert.Equal(t, "k1", s.Key)
	assert.EqualValues(t, 1, s.Version)
	assert.Equal(t, "payload", s.Payload)
	assert.True(t, s.StartedAt.IsZero())
}
