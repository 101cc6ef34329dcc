// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hearthly/hearth/pkg/errutil"
)

const tracerName = "github.com/hearthly/hearth/internal/auth"

// maxInviteCodeAttempts bounds family creation retries on invite code collisions.
const maxInviteCodeAttempts = 5

// Config holds token lifetimes and the login rate limit.
type Config struct {
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	RateLimit            RateLimitPolicy
}

// DefaultConfig returns the default lifetimes and rate limit.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:       DefaultAccessTokenTTL,
		RefreshTokenTTL:      DefaultRefreshTokenTTL,
		VerificationTokenTTL: DefaultVerificationTokenTTL,
		ResetTokenTTL:        DefaultResetTokenTTL,
		RateLimit:            DefaultRateLimitPolicy(),
	}
}

// Service orchestrates registration, login, token rotation, logout,
// password reset and email verification.
type Service struct {
	store       Store
	attempts    LoginAttemptRepository
	hasher      CredentialHasher
	notifier    Notifier
	permissions *Permissions
	logger      *slog.Logger
	cfg         Config
	now         func() time.Time
	tracer      trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithConfig overrides token lifetimes and the rate limit.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithNotifier sets the token delivery collaborator.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithAttemptLog reads and writes login attempts somewhere other than the Store.
func WithAttemptLog(log LoginAttemptRepository) Option {
	return func(s *Service) { s.attempts = log }
}

// WithPermissions overrides the role permission table.
func WithPermissions(p *Permissions) Option {
	return func(s *Service) { s.permissions = p }
}

// WithClock replaces time.Now for expiry and window calculations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service.
// Returns an error if any required dependency is nil.
func NewService(store Store, hasher CredentialHasher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("credential hasher is required")
	}

	s := &Service{
		store:    store,
		attempts: store,
		hasher:   hasher,
		logger:   slog.Default(),
		cfg:      DefaultConfig(),
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("logger is required")
	}
	if s.attempts == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("attempt log is required")
	}
	if s.now == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("clock is required")
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(s.logger)
	}
	if s.permissions == nil {
		s.permissions = DefaultPermissions()
	}
	s.logger = s.logger.With("component", "auth")

	return s, nil
}

// ClientInfo describes the device an operation came from.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	FamilyName  string
	InviteCode  string
	AcceptTerms bool
	Client      ClientInfo
}

// LoginInput is the login request.
type LoginInput struct {
	Email    string
	Password string
	Client   ClientInfo
}

// AuthResult is returned by every operation that issues a token pair.
type AuthResult struct {
	AccessToken               string
	RefreshToken              string
	ExpiresIn                 time.Duration
	Account                   *Account
	Permissions               []string
	RequiresEmailVerification bool
}

// Profile is the caller's account as seen through their current session.
type Profile struct {
	Account     *Account
	Family      *Family // nil if the family record is missing
	Permissions []string
}

// Permissions returns the permission set of role.
func (s *Service) Permissions(role Role) []string {
	return s.permissions.For(role)
}

// Register creates an account and, unless an invite code is given, its family.
// The founder of a new family is an admin; invitees join as members.
func (s *Service) Register(ctx context.Context, in RegisterInput) (result *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer s.finish(span, "register", time.Now(), &err)

	email := NormalizeEmail(in.Email)
	if missing := missingFields("email", email, "password", in.Password); len(missing) > 0 {
		return nil, ErrMissingFields(missing...)
	}
	if !in.AcceptTerms {
		return nil, ErrTermsNotAccepted()
	}
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail()
	}
	if policy := ValidatePassword(in.Password); !policy.Valid {
		return nil, ErrWeakPassword(policy)
	}

	_, lookupErr := s.store.GetAccountByEmail(ctx, email)
	switch {
	case lookupErr == nil:
		return nil, ErrEmailExists()
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get account by email").
			Wrap(lookupErr)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	verifyToken, verifyHash, err := issueToken()
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "generate verification token").Wrap(err)
	}

	build := func(familyID ulid.ULID, role Role) (*Account, error) {
		account, err := NewAccount(email, passwordHash, in.DisplayName, familyID, role)
		if err != nil {
			return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "build account").Wrap(err)
		}
		now := s.now()
		account.CreatedAt, account.UpdatedAt = now, now
		account.Verification = &TokenGrant{Hash: verifyHash, ExpiresAt: now.Add(s.cfg.VerificationTokenTTL)}
		return account, nil
	}

	account, family, err := s.persistAccount(ctx, in, email, build)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendVerification(ctx, account, verifyToken); err != nil {
		errutil.LogError(ctx, s.logger, "failed to send verification token", err)
	}

	result, err = s.issuePair(ctx, account, in.Client)
	if err != nil {
		return nil, err
	}
	result.RequiresEmailVerification = true

	s.logger.InfoContext(ctx, "account registered",
		"account_id", account.ID.String(),
		"family_id", family.ID.String(),
		"role", string(account.Role),
	)
	return result, nil
}

// persistAccount stores the account in the invited family, or together with a
// new family of which it is the admin.
func (s *Service) persistAccount(
	ctx context.Context,
	in RegisterInput,
	email string,
	build func(familyID ulid.ULID, role Role) (*Account, error),
) (*Account, *Family, error) {
	if code := strings.ToUpper(strings.TrimSpace(in.InviteCode)); code != "" {
		family, err := s.store.GetFamilyByInviteCode(ctx, code)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil, ErrInvalidInviteCode()
			}
			return nil, nil, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "get family by invite code").
				Wrap(err)
		}
		account, err := build(family.ID, RoleMember)
		if err != nil {
			return nil, nil, err
		}
		if err := s.store.CreateAccount(ctx, account); err != nil {
			if errors.Is(err, ErrEmailTaken) {
				return nil, nil, ErrEmailExists()
			}
			return nil, nil, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "persist account").
				Wrap(err)
		}
		return account, family, nil
	}

	name := in.FamilyName
	if strings.TrimSpace(name) == "" {
		displayName := in.DisplayName
		if strings.TrimSpace(displayName) == "" {
			displayName = localPart(email)
		}
		name = DefaultFamilyName(displayName)
	}

	for attempt := 1; ; attempt++ {
		family, err := NewFamily(name)
		if err != nil {
			return nil, nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "build family").Wrap(err)
		}
		family.CreatedAt = s.now()

		account, err := build(family.ID, RoleAdmin)
		if err != nil {
			return nil, nil, err
		}

		err = s.store.CreateFamilyWithAdmin(ctx, family, account)
		switch {
		case err == nil:
			return account, family, nil
		case errors.Is(err, ErrEmailTaken):
			return nil, nil, ErrEmailExists()
		case errors.Is(err, ErrInviteCodeTaken) && attempt < maxInviteCodeAttempts:
			continue
		default:
			return nil, nil, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "persist family").
				With("attempt", attempt).
				Wrap(err)
		}
	}
}

// Login authenticates by email and password and issues a token pair.
// Unknown emails and wrong passwords produce the same error and cost the same
// hash derivation.
func (s *Service) Login(ctx context.Context, in LoginInput) (result *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer s.finish(span, "login", time.Now(), &err)

	email := NormalizeEmail(in.Email)
	if missing := missingFields("email", email, "password", in.Password); len(missing) > 0 {
		return nil, ErrMissingFields(missing...)
	}

	now := s.now()
	recent, err := s.attempts.RecentLoginAttempts(ctx, email, now.Add(-s.cfg.RateLimit.Window))
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get recent login attempts").
			Wrap(err)
	}
	if limit := EvaluateAttempts(recent, now, s.cfg.RateLimit); limit.Limited {
		s.logger.WarnContext(ctx, "login rate limited",
			"attempts", limit.Attempts,
			"retry_after", limit.RetryAfter.String(),
			"ip_address", in.Client.IPAddress,
		)
		return nil, ErrRateLimited(limit.RetryAfterMinutes())
	}

	account, lookupErr := s.store.GetAccountByEmail(ctx, email)
	targetHash := dummyPasswordHash
	accountExists := false
	switch {
	case lookupErr == nil:
		targetHash = account.PasswordHash
		accountExists = true
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by email").
			Wrap(lookupErr)
	}

	// Always verify, even for unknown emails.
	valid := s.hasher.Verify(in.Password, targetHash)

	if !accountExists || !valid {
		s.recordAttempt(ctx, email, in.Client.IPAddress, false)
		return nil, ErrInvalidCredentials()
	}

	s.recordAttempt(ctx, email, in.Client.IPAddress, true)

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeHash(ctx, account, in.Password)
	}

	return s.issuePair(ctx, account, in.Client)
}

// recordAttempt appends to the attempt log. Failures are logged, not returned.
func (s *Service) recordAttempt(ctx context.Context, email, ipAddress string, success bool) {
	attempt := &LoginAttempt{
		ID:          ulid.Make(),
		Email:       email,
		IPAddress:   ipAddress,
		Success:     success,
		AttemptedAt: s.now(),
	}
	if err := s.attempts.RecordLoginAttempt(ctx, attempt); err != nil {
		errutil.LogError(ctx, s.logger, "failed to record login attempt", err)
	}
}

// upgradeHash re-hashes a legacy password after a successful login.
// Login succeeds regardless of the outcome.
func (s *Service) upgradeHash(ctx context.Context, account *Account, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogError(ctx, s.logger, "failed to re-hash legacy password", err)
		return
	}
	if err := s.store.UpdateAccount(ctx, account.ID, AccountUpdate{PasswordHash: &newHash}); err != nil {
		errutil.LogError(ctx, s.logger, "failed to store upgraded password hash", err)
		return
	}
	account.PasswordHash = newHash
	s.logger.InfoContext(ctx, "password hash upgraded", "account_id", account.ID.String())
}

// Refresh redeems a refresh token for a new pair. The presented token is
// deleted first; only the caller whose delete removed it receives new tokens.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (result *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Refresh")
	defer s.finish(span, "refresh", time.Now(), &err)

	if refreshToken == "" {
		return nil, ErrMissingFields("refreshToken")
	}
	tokenHash := HashToken(refreshToken)

	session, err := s.store.GetSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken()
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").With("operation", "get session").Wrap(err)
	}
	if session.Type != TokenRefresh {
		return nil, ErrInvalidToken()
	}
	if session.IsExpiredAt(s.now()) {
		s.discardSession(ctx, session)
		return nil, ErrTokenExpired()
	}

	removed, err := s.store.DeleteSession(ctx, tokenHash)
	if err != nil {
		return nil, oops.Code("AUTH_REFRESH_FAILED").With("operation", "consume refresh session").Wrap(err)
	}
	if removed == 0 {
		s.logger.WarnContext(ctx, "refresh token already redeemed",
			"account_id", session.AccountID.String(),
			"session_id", session.ID.String(),
		)
		return nil, ErrInvalidToken()
	}

	account, err := s.store.GetAccountByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken()
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").With("operation", "get account").Wrap(err)
	}

	return s.issuePair(ctx, account, client)
}

// Authenticate resolves a bearer access token to its session.
// Expired sessions are deleted on sight.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, ErrInvalidToken()
	}

	session, err := s.store.GetSession(ctx, HashToken(accessToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken()
		}
		return nil, oops.Code("AUTH_AUTHENTICATE_FAILED").With("operation", "get session").Wrap(err)
	}
	if session.Type != TokenAccess {
		return nil, ErrInvalidToken()
	}
	if session.IsExpiredAt(s.now()) {
		s.discardSession(ctx, session)
		return nil, ErrTokenExpired()
	}
	return session, nil
}

// discardSession deletes an expired session. Best effort.
func (s *Service) discardSession(ctx context.Context, session *Session) {
	if _, err := s.store.DeleteSession(ctx, session.TokenHash); err != nil {
		errutil.LogError(ctx, s.logger, "failed to delete expired session", err)
	}
}

// Logout deletes the caller's current session. A refresh token belonging to
// the same account is revoked too when given.
func (s *Service) Logout(ctx context.Context, current *Session, refreshToken string) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Logout")
	defer s.finish(span, "logout", time.Now(), &err)

	if _, err := s.store.DeleteSession(ctx, current.TokenHash); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", current.ID.String()).
			Wrap(err)
	}

	if refreshToken == "" {
		return nil
	}
	refreshHash := HashToken(refreshToken)
	paired, err := s.store.GetSession(ctx, refreshHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "get refresh session").Wrap(err)
	}
	if paired.AccountID != current.AccountID || paired.Type != TokenRefresh {
		return nil
	}
	if _, err := s.store.DeleteSession(ctx, refreshHash); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "delete refresh session").Wrap(err)
	}
	return nil
}

// LogoutAll deletes every session of the caller's account on all devices.
func (s *Service) LogoutAll(ctx context.Context, current *Session) (revoked int64, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.LogoutAll")
	defer s.finish(span, "logout_all", time.Now(), &err)

	revoked, err = s.store.DeleteSessionsByAccount(ctx, current.AccountID)
	if err != nil {
		return 0, oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete sessions by account").
			With("account_id", current.AccountID.String()).
			Wrap(err)
	}
	s.logger.InfoContext(ctx, "all sessions revoked",
		"account_id", current.AccountID.String(),
		"revoked", revoked,
	)
	return revoked, nil
}

// Me returns the caller's profile. Role and permissions come from the session
// snapshot, not from the current account record.
func (s *Service) Me(ctx context.Context, current *Session) (*Profile, error) {
	account, err := s.store.GetAccountByID(ctx, current.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUserNotFound()
		}
		return nil, oops.Code("AUTH_PROFILE_FAILED").With("operation", "get account").Wrap(err)
	}
	account.Role = current.Role
	account.FamilyID = current.FamilyID

	profile := &Profile{Account: account, Permissions: s.permissions.For(current.Role)}

	family, err := s.store.GetFamily(ctx, current.FamilyID)
	switch {
	case err == nil:
		profile.Family = family
	case errors.Is(err, ErrNotFound):
		s.logger.WarnContext(ctx, "session references missing family", "family_id", current.FamilyID.String())
	default:
		return nil, oops.Code("AUTH_PROFILE_FAILED").With("operation", "get family").Wrap(err)
	}
	return profile, nil
}

// Prune deletes expired sessions and login attempts that fell out of the rate-limit window.
func (s *Service) Prune(ctx context.Context) (sessions, attempts int64, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Prune")
	defer s.finish(span, "prune", time.Now(), &err)

	now := s.now()
	sessions, err = s.store.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return 0, 0, oops.Code("AUTH_PRUNE_FAILED").With("operation", "delete expired sessions").Wrap(err)
	}
	attempts, err = s.attempts.PruneLoginAttempts(ctx, now.Add(-s.cfg.RateLimit.Window))
	if err != nil {
		return sessions, 0, oops.Code("AUTH_PRUNE_FAILED").With("operation", "prune login attempts").Wrap(err)
	}
	return sessions, attempts, nil
}

// issuePair creates and persists an access and a refresh session for account.
func (s *Service) issuePair(ctx context.Context, account *Account, client ClientInfo) (*AuthResult, error) {
	now := s.now()

	accessToken, accessHash, err := issueToken()
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").With("operation", "generate access token").Wrap(err)
	}
	refreshToken, refreshHash, err := issueToken()
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").With("operation", "generate refresh token").Wrap(err)
	}

	access, err := NewSession(account, TokenAccess, accessHash, client.UserAgent, client.IPAddress, now.Add(s.cfg.AccessTokenTTL))
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").With("operation", "build access session").Wrap(err)
	}
	refresh, err := NewSession(account, TokenRefresh, refreshHash, client.UserAgent, client.IPAddress, now.Add(s.cfg.RefreshTokenTTL))
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").With("operation", "build refresh session").Wrap(err)
	}
	access.CreatedAt, refresh.CreatedAt = now, now

	if err := s.store.CreateSession(ctx, access); err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").With("operation", "persist access session").Wrap(err)
	}
	if err := s.store.CreateSession(ctx, refresh); err != nil {
		s.discardSession(ctx, access)
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").With("operation", "persist refresh session").Wrap(err)
	}

	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    s.cfg.AccessTokenTTL,
		Account:      account,
		Permissions:  s.permissions.For(account.Role),
	}, nil
}

// finish ends a span and records metrics for an operation.
func (s *Service) finish(span trace.Span, operation string, started time.Time, errp *error) {
	err := *errp
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorCode(err))
	}
	span.End()
	recordOperation(operation, started, err)
}

// missingFields takes name/value pairs and returns the names whose value is empty.
func missingFields(pairs ...string) []string {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	return missing
}
