// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/hearthly/hearth/internal/api"
	"github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/internal/observability"
	"github.com/hearthly/hearth/pkg/errutil"
)

// shutdownTimeout bounds the drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API, the metrics and health listener, and the
periodic cleanup of expired sessions and login attempts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, deps)
		},
	}
}

// runServeWithDeps runs the server until a signal arrives, ctx is cancelled
// or a listener fails.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return oops.With("operation", "load config").Wrap(err)
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	logger.Info("starting hearth",
		"version", version,
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"ratelimit_backend", cfg.RateLimit.Backend,
	)

	stack, err := openAuth(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), shutdownTimeout)
	}

	var obsServer ObservabilityServer
	var httpMetrics *observability.HTTPMetrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, stack.db.Ping, logger)
		auth.RegisterMetrics(obsServer.Registry())
		httpMetrics = observability.NewHTTPMetrics(obsServer.Registry())

		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_FAILED").With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
	}

	apiServer, err := api.NewServer(stack.service, api.Options{
		Addr:              cfg.HTTP.Addr,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		TrustProxyHeaders: cfg.HTTP.TrustProxyHeaders,
		Metrics:           httpMetrics,
	}, logger)
	if err != nil {
		return err
	}
	apiErrCh, err := apiServer.Start()
	if err != nil {
		if obsServer != nil {
			sctx, scancel := shutdownCtx()
			defer scancel()
			if stopErr := obsServer.Stop(sctx); stopErr != nil {
				logger.Warn("failed to stop observability server during cleanup", "error", stopErr)
			}
		}
		return oops.Code("SERVE_FAILED").With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api", logger)

	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		runCleanup(ctx, stack.service, cfg.Cleanup.Interval, logger)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Hearth started")
	logger.Info("hearth ready", "api_addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	sctx, scancel := shutdownCtx()
	defer scancel()

	if err := apiServer.Stop(sctx); err != nil {
		errutil.LogError(sctx, logger, "error stopping api server", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(sctx); err != nil {
			errutil.LogError(sctx, logger, "error stopping observability server", err)
		}
	}

	cancel()
	<-cleanupDone

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
