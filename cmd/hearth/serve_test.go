// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/config"
	"github.com/hearthly/hearth/internal/observability"
	"github.com/hearthly/hearth/internal/store"
	"github.com/hearthly/hearth/pkg/errutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.URL = testDatabaseURL
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestServe_StartsAndShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	db := &fakeDatabase{}

	out, err := execute(ctx, t, testDeps(db, &fakeMigrator{}),
		"serve",
		"--database-url", testDatabaseURL,
		"--http-addr", "127.0.0.1:0",
		"--metrics-addr", "127.0.0.1:0",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Hearth started")
	assert.Equal(t, int32(1), db.closed.Load())
}

func TestServe_WithoutMetricsListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	db := &fakeDatabase{}

	deps := testDeps(db, &fakeMigrator{})
	deps.ObservabilityServerFactory = func(string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
		t.Fatal("observability server must not be created when metrics.addr is empty")
		return nil
	}

	_, err := execute(ctx, t, deps,
		"serve",
		"--database-url", testDatabaseURL,
		"--http-addr", "127.0.0.1:0",
		"--metrics-addr", "",
	)
	require.NoError(t, err)
}

func TestServe_AutoMigrate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &fakeMigrator{status: &store.Status{Version: 3, Name: "login_attempts"}}

	_, err := execute(ctx, t, testDeps(&fakeDatabase{}, m),
		"serve",
		"--database-url", testDatabaseURL,
		"--http-addr", "127.0.0.1:0",
		"--metrics-addr", "",
		"--auto-migrate",
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"up"}, m.calls)
	assert.True(t, m.closed)
}

func TestServe_ConnectFailure(t *testing.T) {
	deps := &Deps{
		DatabaseConnector: func(context.Context, string, store.ConnectOptions, *slog.Logger) (Database, error) {
			return nil, errors.New("connection refused")
		},
	}

	_, err := execute(context.Background(), t, deps,
		"serve", "--database-url", testDatabaseURL, "--http-addr", "127.0.0.1:0", "--metrics-addr", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestServe_InvalidConfig(t *testing.T) {
	_, err := execute(context.Background(), t, testDeps(&fakeDatabase{}, &fakeMigrator{}),
		"serve", "--http-addr", "127.0.0.1:0")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestOpenAuth_MigrationFailureClosesDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.AutoMigrate = true
	db := &fakeDatabase{}
	m := &fakeMigrator{upErr: errors.New("dirty database")}

	_, err := openAuth(context.Background(), cfg, testDeps(db, m).withDefaults(), slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Equal(t, int32(1), db.closed.Load())
	assert.True(t, m.closed)
}

func TestOpenAuth_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RateLimit.Backend = config.BackendRedis
	cfg.Redis.Addr = mr.Addr()
	db := &fakeDatabase{}

	stack, err := openAuth(context.Background(), cfg, testDeps(db, &fakeMigrator{}).withDefaults(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.NotNil(t, stack.service)

	stack.Close()
	assert.Equal(t, int32(1), db.closed.Load())
}

func TestOpenAuth_RedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.RateLimit.Backend = config.BackendRedis
	cfg.Redis.Addr = addr
	db := &fakeDatabase{}

	_, err = openAuth(context.Background(), cfg, testDeps(db, &fakeMigrator{}).withDefaults(), slog.New(slog.DiscardHandler))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "REDIS_CONNECT_FAILED")
	assert.Equal(t, int32(1), db.closed.Load())
}
