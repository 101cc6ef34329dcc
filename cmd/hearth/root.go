// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hearthly/hearth/internal/config"
	"github.com/hearthly/hearth/internal/logging"
	"github.com/hearthly/hearth/internal/xdg"
)

const serviceName = "hearth"

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the Hearth CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmdWithDeps(nil)
}

func newRootCmdWithDeps(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hearth",
		Short: "Hearth - family coordination backend",
		Long: `Hearth is the backend for a family coordination app. It serves the
account, session and password endpoints under /api/auth.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/hearth/config.yaml when present)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewPruneCmd(deps))
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadOptions describes the configuration sources for cmd. Without --config
// the XDG config file is used when present.
func loadOptions(cmd *cobra.Command) (config.LoadOptions, error) {
	file := configFile
	if file == "" {
		found, err := xdg.DefaultConfigFile()
		if err != nil {
			return config.LoadOptions{}, err
		}
		file = found
	}
	return config.LoadOptions{
		File:   file,
		DotEnv: envFile,
		Flags:  cmd.Flags(),
	}, nil
}

// loadConfig layers defaults, the config file, the environment and the
// command's flags, then validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the process logger described by cfg.
func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.SetDefault(serviceName, version, cfg.Log.Format, level), nil
}
