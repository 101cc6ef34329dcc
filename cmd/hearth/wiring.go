// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/internal/auth/postgres"
	authredis "github.com/hearthly/hearth/internal/auth/redis"
	"github.com/hearthly/hearth/internal/config"
	"github.com/hearthly/hearth/internal/store"
)

// authStack is the auth service with the handles it owns.
type authStack struct {
	service *auth.Service
	db      Database
	closers []func()
}

// Close releases the handles in reverse order of acquisition.
func (a *authStack) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openAuth connects to PostgreSQL, optionally migrates, selects the attempt
// log backend and builds the auth service.
func openAuth(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger) (*authStack, error) {
	opts := store.DefaultConnectOptions()
	opts.MaxRetries = cfg.Database.ConnectRetries

	db, err := deps.DatabaseConnector(ctx, cfg.Database.URL, opts, logger)
	if err != nil {
		return nil, err
	}
	stack := &authStack{db: db, closers: []func(){db.Close}}

	if cfg.Database.AutoMigrate {
		if err := migrateUp(deps, cfg.Database.URL, logger); err != nil {
			stack.Close()
			return nil, err
		}
	}

	authStore := postgres.NewStore(db)
	var attempts auth.LoginAttemptRepository = authStore

	if cfg.RateLimit.Backend == config.BackendRedis {
		client := deps.RedisClientFactory(cfg.Redis)
		stack.closers = append(stack.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("error closing redis client", "error", err)
			}
		})
		if err := client.Ping(ctx).Err(); err != nil {
			stack.Close()
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
		}
		attempts = authredis.NewAttemptLog(client, authredis.WithRetention(2*cfg.RateLimit.Window))
		logger.Info("login attempts stored in redis", "addr", cfg.Redis.Addr)
	}

	service, err := auth.NewService(authStore, auth.NewScryptHasher(),
		auth.WithConfig(cfg.AuthConfig()),
		auth.WithLogger(logger),
		auth.WithAttemptLog(attempts),
	)
	if err != nil {
		stack.Close()
		return nil, err
	}
	stack.service = service
	return stack, nil
}

// migrateUp applies pending migrations and logs the resulting version.
func migrateUp(deps *Deps, databaseURL string, logger *slog.Logger) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return err
	}
	status, err := migrator.Status()
	if err != nil {
		return err
	}
	logger.Info("database migrated", "version", status.Version, "name", status.Name)
	return nil
}
