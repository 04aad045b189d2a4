// Package main provides switchctl, the operator CLI for the failover
// control plane. It works directly against the state store and topology
// file, the same way the controller daemon does.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/switchpilot/switchpilot/internal/app"
	"github.com/switchpilot/switchpilot/internal/config"
)

// Version is set at compile time via ldflags.
var Version = "dev"

var (
	plane *app.App
	log   zerolog.Logger

	rootCmd = &cobra.Command{
		Use:          "switchctl",
		Short:        "Operate blue/green failover for service teams",
		Long:         "switchctl assesses team health, applies the safety gate, and executes\nblue/green switches against the shared topology and state files.",
		Version:      Version,
		SilenceUsage: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	if plane != nil {
		_ = plane.Close()
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "log at debug level")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		level := zerolog.WarnLevel
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			level = zerolog.DebugLevel
		}
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().
			Timestamp().
			Logger()

		cfg := config.ControllerFromEnv()
		built, err := app.Build(cmd.Context(), cfg, log)
		if err != nil {
			return fmt.Errorf("initializing control plane: %w", err)
		}
		plane = built
		return nil
	}
}
