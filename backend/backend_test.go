package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{Address: "localhost:6379", ConnectTimeout: 0})
	if err != nil {
		t.Skip("backend not available at localhost:6379")
	}
	return c
}

const echoScript = `return ARGV[1]`

func TestClient_Eval_EvalshaThenFallback(t *testing.T) {
	c, err := NewClient(Config{Address: "localhost:6379", UseProxyOptimisation: true})
	if err != nil {
		t.Skip("backend not available at localhost:6379")
	}
	defer c.Close()

	c.Register("echo", echoScript)

	result, err := c.Eval(context.Background(), "echo", nil, []string{"hello"})
	require.NoError(t, err)
	got, err := result.AsBytes()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestClient_Eval_UnregisteredScript(t *testing.T) {
	c := newTestClient(t)
	defer c.Close()

	_, err := c.Eval(context.Background(), "nonexistent", nil, nil)
	assert.Error(t, err)
}

func TestClient_Eval_DirectBackendSkipsEvalsha(t *testing.T) {
	c, err := NewClient(Config{Address: "localhost:6379", UseProxyOptimisation: false})
	if err != nil {
		t.Skip("backend not available at localhost:6379")
	}
	defer c.Close()

	c.Register("echo", echoScript)
	result, err := c.Eval(context.Background(), "echo", nil, []string{"direct"})
	require.NoError(t, err)
	got, err := result.AsBytes()
	require.NoError(t, err)
	assert.Equal(t, "direct", string(got))
}

func TestIsNil_ReportsMissingKey(t *testing.T) {
	c := newTestClient(t)
	defer c.Close()

	cmd := c.Inner().B().Get().Key("session-tracker-test:definitely-missing").Build()
	err := c.Inner().Do(context.Background(), cmd).Error()
	require.Error(t, err)
	assert.True(t, IsNil(err))
}
