// GeoBeat - Geographic decentralization scoring for node networks.
// Copyright (c) 2025 DecentralizedGeo
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/config"
	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "geobeat",
	Short: "Geographic Decentralization Index engine",
	Long: `GeoBeat scores how geographically decentralized a node network is.

It combines physical dispersion, jurisdictional diversity and infrastructure
diversity into one Geographic Decentralization Index (GDI).

Examples:
  geobeat serve --config geobeat.yaml
  geobeat score --input nodes.csv --network ethereum --policy gdi-v0-absolute
  geobeat policies list`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "geobeat %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (GEOBEAT_* variables override it)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errScoreFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// loadConfig reads --config and the environment.
func loadConfig() (*domain.Config, error) {
	return config.Load(configPath)
}
