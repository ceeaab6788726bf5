// Package backend wraps the valkey-go client with the connection and
// script-dispatch machinery the Compartment Engine and Lock Coordinator
// share. It generalizes the teacher's infrastructure/valkey.Client
// (bare connection wrapper) with the precomputed script table and
// EVALSHA/EVAL fallback described in spec §4.4.
package backend

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/AzielCF/az-sessiontracker/errs"
)

// DefaultConnectTimeout mirrors the teacher's infrastructure/valkey
// default ping timeout.
const DefaultConnectTimeout = 5 * time.Second

// Config configures a Client connection.
type Config struct {
	Address        string
	Password       string
	DB             int
	ConnectTimeout time.Duration

	// UseProxyOptimisation attempts EVALSHA before falling back to the
	// full script body, for backends known to sit behind a proxy that
	// penalises repeated large script bodies. The zero value (false)
	// sends the full body every time; config.Load defaults it to true.
	UseProxyOptimisation bool
	// ProxyRetryLimit bounds how many times a NOSCRIPT-class error is
	// recovered by re-sending the full body before giving up. Defaults
	// to 1.
	ProxyRetryLimit int
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ProxyRetryLimit == 0 {
		c.ProxyRetryLimit = 1
	}
	return c
}

// script holds one precomputed script body plus its SHA-1 digest, per
// §4.4: "the engine keeps a dictionary name -> (raw-script, SHA-1
// digest) precomputed at startup."
type script struct {
	body string
	sha1 string
}

// Client is the shared, read-only-after-init connection plus script
// table the Compartment Engine and the single-node Lock Coordinator
// evaluate scripts against.
type Client struct {
	inner   valkeylib.Client
	cfg     Config
	scripts map[string]script
}

// NewClient connects to the backend, verifies reachability with a
// timed PING (failing fast, the way the teacher's
// infrastructure/valkey.NewClient does), and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, &errs.BackendError{Cause: fmt.Errorf("create backend client: %w", err)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, &errs.BackendError{Cause: fmt.Errorf("ping backend (timeout %v): %w", cfg.ConnectTimeout, err)}
	}

	return &Client{inner: inner, cfg: cfg, scripts: make(map[string]script)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Inner exposes the raw valkey-go client for command construction
// outside the script-dispatch path (e.g. the Lock Coordinator's SET NX).
func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

// Register precomputes a script's SHA-1 digest and stores it under
// name. Call once per script at startup, per §4.4.
func (c *Client) Register(name, body string) {
	sum := sha1.Sum([]byte(body))
	c.scripts[name] = script{body: body, sha1: hex.EncodeToString(sum[:])}
}

// Eval dispatches a registered script by name. When UseProxyOptimisation
// is set, EVALSHA is attempted first; a NOSCRIPT-class reply falls back
// to the full EVAL body up to ProxyRetryLimit times, re-registering
// silently (the script is already cached locally, so "re-caching" here
// means re-sending the body to the server's script cache). Direct
// backends (UseProxyOptimisation=false) always send the full body.
func (c *Client) Eval(ctx context.Context, name string, keys []string, args []string) (valkeylib.ValkeyResult, error) {
	sc, ok := c.scripts[name]
	if !ok {
		return valkeylib.ValkeyResult{}, &errs.BackendError{Cause: fmt.Errorf("script %q not registered", name)}
	}

	if !c.cfg.UseProxyOptimisation {
		return c.evalFull(ctx, sc, keys, args), nil
	}

	result := c.evalSha(ctx, sc, keys, args)
	err := result.Error()
	if err == nil || !isNoScript(err) {
		return result, nil
	}

	for attempt := 0; attempt < c.cfg.ProxyRetryLimit; attempt++ {
		logrus.WithField("script", name).Debug("session tracker: NOSCRIPT, retrying with full body")
		result = c.evalFull(ctx, sc, keys, args)
		if result.Error() == nil || !isNoScript(result.Error()) {
			return result, nil
		}
	}
	return result, nil
}

func (c *Client) evalSha(ctx context.Context, sc script, keys []string, args []string) valkeylib.ValkeyResult {
	cmd := c.inner.B().Evalsha().Sha1(sc.sha1).Numkeys(int64(len(keys))).Key(keys...).Arg(args...).Build()
	return c.inner.Do(ctx, cmd)
}

func (c *Client) evalFull(ctx context.Context, sc script, keys []string, args []string) valkeylib.ValkeyResult {
	cmd := c.inner.B().Eval().Script(sc.body).Numkeys(int64(len(keys))).Key(keys...).Arg(args...).Build()
	return c.inner.Do(ctx, cmd)
}

// isNoScript reports whether err is the backend's "script not cached"
// class of error, recovered transparently per §4.4/§7.
func isNoScript(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOSCRIPT")
}

// IsNil reports whether err is the backend's "no such key" response.
func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
