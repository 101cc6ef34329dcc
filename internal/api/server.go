// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

// Package api serves the JSON auth endpoints under /api/auth.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/internal/observability"
)

// AuthService is the part of *auth.Service the handlers call.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.AuthResult, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string, client auth.ClientInfo) (*auth.AuthResult, error)
	Authenticate(ctx context.Context, accessToken string) (*auth.Session, error)
	Logout(ctx context.Context, current *auth.Session, refreshToken string) error
	LogoutAll(ctx context.Context, current *auth.Session) (int64, error)
	Me(ctx context.Context, current *auth.Session) (*auth.Profile, error)
	VerifyEmail(ctx context.Context, token string) (*auth.Account, error)
	ResendVerification(ctx context.Context, current *auth.Session) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	Permissions(role auth.Role) []string
}

var _ AuthService = (*auth.Service)(nil)

// Options configures the API listener.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
	// Metrics is optional.
	Metrics *observability.HTTPMetrics
}

// Server is the public HTTP API.
type Server struct {
	opts       Options
	service    AuthService
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server. A nil logger uses slog.Default().
func NewServer(service AuthService, opts Options, logger *slog.Logger) (*Server, error) {
	if service == nil {
		return nil, oops.Code("API_INVALID").Errorf("auth service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:    opts,
		service: service,
		logger:  logger.With("component", "api"),
	}, nil
}

// Start begins serving on the configured address. The returned channel
// receives a serve error, if any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("API_LISTEN_FAILED").With("addr", s.opts.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires. Stopping a stopped
// server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Handler returns the routed API with request logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "POST /api/auth/register", s.handleRegister)
	s.handle(mux, "POST /api/auth/login", s.handleLogin)
	s.handle(mux, "POST /api/auth/refresh", s.handleRefresh)
	s.handle(mux, "POST /api/auth/verify-email", s.handleVerifyEmail)
	s.handle(mux, "POST /api/auth/forgot-password", s.handleForgotPassword)
	s.handle(mux, "POST /api/auth/reset-password", s.handleResetPassword)
	s.handle(mux, "GET /api/auth/password-policy", s.handlePasswordPolicy)
	s.handle(mux, "POST /api/auth/validate-password", s.handleValidatePassword)

	s.handleAuthenticated(mux, "POST /api/auth/logout", s.handleLogout)
	s.handleAuthenticated(mux, "POST /api/auth/logout-all", s.handleLogoutAll)
	s.handleAuthenticated(mux, "POST /api/auth/resend-verification", s.handleResendVerification)
	s.handleAuthenticated(mux, "GET /api/auth/me", s.handleMe)

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "route not found"})
	})

	return s.recoverer(s.requestLogger(mux))
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, h))
}

func (s *Server) handleAuthenticated(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, s.requireAuth(h)))
}
