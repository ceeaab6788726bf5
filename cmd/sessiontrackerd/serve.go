package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AzielCF/az-sessiontracker/backend"
	"github.com/AzielCF/az-sessiontracker/engine"
	"github.com/AzielCF/az-sessiontracker/lock"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Hold a backend connection open and report periodic health, until interrupted",
	RunE:  runServe,
}

// runServe keeps a registered backend.Client alive and pings it on a
// ticker, the way the teacher's healthUsecase.StartPeriodicChecks
// reports liveness in the background for as long as the process runs.
func runServe(cmd *cobra.Command, args []string) error {
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
		return err
	}
	defer client.Close()

	engine.Register(client)
	lock.Register(client)
	logrus.WithField("address", cfg.Backend.Address).Info("sessiontrackerd: connected, serving")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := client.Inner().Do(ctx, client.Inner().B().Ping().Build()).Error(); err != nil {
				logrus.WithError(err).Warn("sessiontrackerd: health ping failed")
			}
		case sig := <-sigCh:
			logrus.WithField("signal", sig.String()).Info("sessiontrackerd: shutting down")
			return nil
		}
	}
}
