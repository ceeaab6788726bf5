package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AzielCF/az-sessiontracker/backend"
	"github.com/AzielCF/az-sessiontracker/clock"
	"github.com/AzielCF/az-sessiontracker/codec"
	"github.com/AzielCF/az-sessiontracker/engine"
	"github.com/AzielCF/az-sessiontracker/keyns"
	"github.com/AzielCF/az-sessiontracker/lock"
	"github.com/AzielCF/az-sessiontracker/policy"
	"github.com/AzielCF/az-sessiontracker/session"
)

// cartPayload is the demo session type's user-extensible Payload,
// standing in for whatever a real caller would carry.
type cartPayload struct {
	Items []string `json:"items"`
}

var demoKey string

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a start/get/finish/resume/lock walkthrough against the configured backend",
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().StringVar(&demoKey, "key", "demo-user-1", "user key to exercise")
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := backend.NewClient(backend.Config{
		Address:              cfg.Backend.Address,
		Password:             cfg.Backend.Password,
		DB:                   cfg.Backend.DB,
		ConnectTimeout:       cfg.Backend.ConnectTimeout,
		UseProxyOptimisation: cfg.Backend.UseProxyOptimisation,
		ProxyRetryLimit:      cfg.Backend.ProxyRetryLimit,
	})
	if err != nil {
		return fmt.Errorf("connect backend: %w", err)
	}
	defer client.Close()

	engine.Register(client)
	lock.Register(client)

	namer := keyns.New(cfg.Keys.Prefix, cfg.Keys.LockPrefix)
	perType := cfg.PerType
	if _, ok := perType["cart"]; !ok {
		if perType == nil {
			perType = make(map[string]policy.TypeSettings, 1)
		}
		perType["cart"] = policy.TypeSettings{
			Absolute:  2 * time.Minute,
			Sliding:   30 * time.Second,
			LockTTL:   10 * time.Second,
			LockWait:  5 * time.Second,
			LockRetry: 250 * time.Millisecond,
		}
	}
	settings := policy.NewSettings(cfg.Default, perType)
	clk := clock.System{}

	sessionCodec := codec.NewJSON[session.Session[cartPayload]]()
	eng := engine.New[session.Session[cartPayload]](client, namer, settings, sessionCodec, clk, "cart")
	coordinator := lock.NewCoordinator(client, namer, clk)

	tracker := session.NewFromEngine(eng, session.Deps{
		Namer:    namer,
		Settings: settings,
		Locker:   coordinator,
		Clock:    clk,
	}, "cart", sessionCodec)

	started, err := tracker.Start(ctx, demoKey, cartPayload{Items: []string{"widget"}})
	if err != nil {
		if existing, ok := tracker.ExistingSession(err); ok {
			logrus.WithField("key", demoKey).Info("sessiontrackerd: session already in progress, reusing it")
			started = existing
		} else {
			return fmt.Errorf("start: %w", err)
		}
	}
	logrus.WithFields(logrus.Fields{"key": started.Key, "version": started.Version}).Info("sessiontrackerd: started")

	locked, l, err := tracker.GetLocked(ctx, demoKey, 0, 0, 0)
	if err != nil {
		return fmt.Errorf("get locked: %w", err)
	}
	logrus.WithField("items", locked.Payload.Items).Info("sessiontrackerd: read under lock")
	if err := l.Release(ctx); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	locked.Payload.Items = append(locked.Payload.Items, "gadget")
	updated, err := tracker.Update(ctx, locked)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	logrus.WithField("version", updated.Version).Info("sessiontrackerd: updated")

	if err := tracker.FinishKey(ctx, demoKey); err != nil {
		return fmt.Errorf("finish: %w", err)
	}
	logrus.Info("sessiontrackerd: finished (evicted)")

	evicted, err := tracker.GetEvicted(ctx, demoKey)
	if err != nil {
		return fmt.Errorf("get evicted: %w", err)
	}
	logrus.WithField("items", evicted.Payload.Items).Info("sessiontrackerd: read from evicted compartment")

	resumed, err := tracker.Resume(ctx, demoKey)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	logrus.WithField("version", resumed.Version).Info("sessiontrackerd: resumed to active")

	return nil
}
