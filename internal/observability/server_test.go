// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/pkg/errutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func stopServer(t *testing.T, server *Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
}

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready, quietLogger())
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() { stopServer(t, server) })
	return server
}

func probe(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body["status"]
}

func TestServer_ServesMetrics(t *testing.T) {
	server := startServer(t, nil)
	NewHTTPMetrics(server.Registry()).Observe("POST /api/auth/login", http.StatusOK, 10*time.Millisecond)

	resp, err := http.Get("http://" + server.Addr() + "/metrics") //nolint:noctx // test-local address
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, want := range []string{
		"go_goroutines",
		"process_",
		`hearth_http_requests_total{route="POST /api/auth/login",status="200"} 1`,
		"hearth_http_request_duration_seconds_bucket",
	} {
		assert.Contains(t, string(body), want)
	}
}

func TestServer_Probes(t *testing.T) {
	down := func(context.Context) error { return errors.New("connection refused") }
	up := func(context.Context) error { return nil }

	tests := []struct {
		name       string
		ready      ReadinessChecker
		path       string
		wantStatus int
		wantState  string
	}{
		{"liveness ignores readiness", down, "/healthz/liveness", http.StatusOK, "ok"},
		{"readiness without checker", nil, "/healthz/readiness", http.StatusOK, "ok"},
		{"readiness when database answers", up, "/healthz/readiness", http.StatusOK, "ok"},
		{"readiness when database is down", down, "/healthz/readiness", http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, state := probe(t, NewServer("127.0.0.1:0", tt.ready, quietLogger()), tt.path)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantState, state)
		})
	}
}

func TestServer_ReadinessCheckHasDeadline(t *testing.T) {
	var deadline time.Time
	server := NewServer("127.0.0.1:0", func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}, quietLogger())

	probe(t, server, "/healthz/readiness")
	require.False(t, deadline.IsZero())
	assert.WithinDuration(t, time.Now().Add(readinessTimeout), deadline, time.Second)
}

func TestServer_AddrBeforeStart(t *testing.T) {
	assert.Empty(t, NewServer("127.0.0.1:0", nil, quietLogger()).Addr())
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)

	_, err := server.Start()
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_RUNNING")
}

func TestServer_ListenFailure(t *testing.T) {
	busy := startServer(t, nil)

	_, err := NewServer(busy.Addr(), nil, quietLogger()).Start()
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_LISTEN_FAILED")
}

func TestServer_StopWithoutStart(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, quietLogger())
	stopServer(t, server)
	stopServer(t, server)
}

func TestServer_RestartAfterStop(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, quietLogger())
	_, err := server.Start()
	require.NoError(t, err)
	stopServer(t, server)

	_, err = server.Start()
	require.NoError(t, err)
	stopServer(t, server)
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, quietLogger())
	errCh, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Stop(context.Background()) })

	_ = server.listener.Close()

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for serve error")
	}
}

func TestServer_ErrorChannelClosesOnShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, quietLogger())
	errCh, err := server.Start()
	require.NoError(t, err)
	stopServer(t, server)

	select {
	case err, ok := <-errCh:
		assert.False(t, ok, "unexpected error %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error channel to close")
	}
}

func TestHTTPMetrics_NilObserveIsNoop(t *testing.T) {
	var m *HTTPMetrics
	assert.NotPanics(t, func() { m.Observe("GET /x", http.StatusOK, time.Millisecond) })
}
