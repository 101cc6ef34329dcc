// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthly/hearth/pkg/errutil"
)

// pruner is implemented by *auth.Service.
type pruner interface {
	Prune(ctx context.Context) (sessions, attempts int64, err error)
}

// NewPruneCmd creates the prune subcommand.
func NewPruneCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired sessions and stale login attempts",
		Long: `Delete expired sessions and login attempts older than the rate-limit
window. serve does this periodically; this command runs it once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrune(cmd, deps)
		},
	}
}

func runPrune(cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	stack, err := openAuth(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	sessions, attempts, err := stack.service.Prune(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Pruned %d expired sessions and %d login attempts\n", sessions, attempts)
	return nil
}

// runCleanup prunes on every tick of interval until ctx is done. Failures
// are logged and retried on the next tick.
func runCleanup(ctx context.Context, p pruner, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions, attempts, err := p.Prune(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errutil.LogError(ctx, logger, "cleanup failed", err)
				continue
			}
			if sessions > 0 || attempts > 0 {
				logger.Info("cleanup removed expired auth records",
					"sessions", sessions,
					"login_attempts", attempts,
				)
			}
		}
	}
}
