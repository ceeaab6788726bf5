package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSON_RoundTrip(t *testing.T) {
	c := NewJSON[widget]()

	in := widget{Name: "bolt", Count: 3}
	data, err := c.Encode(in)
	require.NoError(t, err)

	out, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestJSON_DecodeError(t *testing.T) {
	c := NewJSON[widget]()
	_, err := c.Decode([]byte("not json"))
	assert.Error(t, err)
}
