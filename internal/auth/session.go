// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Default token lifetimes.
const (
	DefaultAccessTokenTTL       = 15 * time.Minute
	DefaultRefreshTokenTTL      = 30 * 24 * time.Hour
	DefaultVerificationTokenTTL = 24 * time.Hour
	DefaultResetTokenTTL        = 30 * time.Minute
)

// TokenType distinguishes the two halves of an issued pair.
type TokenType string

// Session token types.
const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Session is a stored, revocable record backing one issued token.
// Role and FamilyID are snapshots taken at issuance.
type Session struct {
	ID        ulid.ULID
	TokenHash string
	AccountID ulid.ULID
	FamilyID  ulid.ULID
	Role      Role
	Type      TokenType
	UserAgent string
	IPAddress string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewSession creates a validated Session for the account.
// UserAgent and IPAddress are optional and may be empty.
func NewSession(account *Account, tokenType TokenType, tokenHash, userAgent, ipAddress string, expiresAt time.Time) (*Session, error) {
	if account == nil || account.ID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if tokenType != TokenAccess && tokenType != TokenRefresh {
		return nil, oops.Code("SESSION_INVALID_TYPE").With("type", string(tokenType)).Errorf("unknown token type")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &Session{
		ID:        ulid.Make(),
		TokenHash: tokenHash,
		AccountID: account.ID,
		FamilyID:  account.FamilyID,
		Role:      account.Role,
		Type:      tokenType,
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpiredAt returns true if the session would be expired at the given time.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// CreateSession stores a new session.
	CreateSession(ctx context.Context, session *Session) error

	// GetSession retrieves a session by its token digest.
	GetSession(ctx context.Context, tokenHash string) (*Session, error)

	// DeleteSession removes the session with the token digest and returns how many
	// rows were removed. Concurrent callers racing on the same digest see exactly
	// one of them receive 1.
	DeleteSession(ctx context.Context, tokenHash string) (int64, error)

	// DeleteSessionsByAccount removes every session of an account, both token types.
	DeleteSessionsByAccount(ctx context.Context, accountID ulid.ULID) (int64, error)

	// DeleteExpiredSessions removes sessions expired at or before the given time.
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// Store is the persistence collaborator the Service depends on.
type Store interface {
	AccountRepository
	FamilyRepository
	SessionRepository
	LoginAttemptRepository

	// CreateFamilyWithAdmin stores a new family and its founding account
	// atomically. Returns ErrInviteCodeTaken or ErrEmailTaken on conflicts;
	// on any error neither is stored.
	CreateFamilyWithAdmin(ctx context.Context, family *Family, admin *Account) error
}
