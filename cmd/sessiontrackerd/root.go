// Command sessiontrackerd is a small demo CLI exercising the module
// end to end against a running backend, the way Iron-Ham/claudio's
// internal/cmd wires cobra subcommands over a shared root command.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AzielCF/az-sessiontracker/config"
)

var cfgFile string
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sessiontrackerd",
	Short: "Distributed session tracker demo CLI",
	Long:  "sessiontrackerd exercises the session tracker's lifecycle operations against a live backend.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to a YAML config file overlay")
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		logrus.WithError(err).Fatal("sessiontrackerd: failed to load configuration")
	}
	cfg = loaded

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Log.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
