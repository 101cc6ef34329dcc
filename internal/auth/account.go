// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	emailverifier "github.com/AfterShip/email-verifier"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username derivation constraints.
const (
	MaxUsernameLength = 30
)

// Role is a family member's role. It is copied into every session at issuance.
type Role string

// Family roles.
const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleChild  Role = "child"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleChild:
		return true
	default:
		return false
	}
}

// TokenGrant is a one-time token digest with its expiry, stored on the account.
type TokenGrant struct {
	Hash      string
	ExpiresAt time.Time
}

// IsExpiredAt returns true if the grant would be expired at the given time.
// A grant is expired from its ExpiresAt instant on, like a Session.
func (g *TokenGrant) IsExpiredAt(t time.Time) bool {
	return !t.Before(g.ExpiresAt)
}

// Account is a family member's identity record.
type Account struct {
	ID            ulid.ULID
	Email         string
	Username      string
	PasswordHash  string
	DisplayName   string
	FamilyID      ulid.ULID
	Role          Role
	EmailVerified bool
	Reset         *TokenGrant // nil when no password reset is pending
	Verification  *TokenGrant // nil when no verification is pending
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewAccount creates a validated Account. The email is normalized.
func NewAccount(email, passwordHash, displayName string, familyID ulid.ULID, role Role) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if familyID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("ACCOUNT_INVALID_FAMILY").Errorf("family ID cannot be zero")
	}
	if !role.Valid() {
		return nil, oops.Code("ACCOUNT_INVALID_ROLE").With("role", string(role)).Errorf("unknown role")
	}

	username := DeriveUsername(email)
	if strings.TrimSpace(displayName) == "" {
		displayName = localPart(email)
	}

	now := time.Now()
	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		DisplayName:  strings.TrimSpace(displayName),
		FamilyID:     familyID,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// AccountUpdate lists the fields to change. Nil pointers and false flags leave a field as is.
type AccountUpdate struct {
	PasswordHash      *string
	EmailVerified     *bool
	Reset             *TokenGrant
	ClearReset        bool
	Verification      *TokenGrant
	ClearVerification bool
}

// IsEmpty reports whether the update changes nothing.
func (u AccountUpdate) IsEmpty() bool {
	return u.PasswordHash == nil && u.EmailVerified == nil &&
		u.Reset == nil && !u.ClearReset &&
		u.Verification == nil && !u.ClearVerification
}

// Apply copies the update onto a.
func (u AccountUpdate) Apply(a *Account) {
	if u.PasswordHash != nil {
		a.PasswordHash = *u.PasswordHash
	}
	if u.EmailVerified != nil {
		a.EmailVerified = *u.EmailVerified
	}
	if u.ClearReset {
		a.Reset = nil
	}
	if u.Reset != nil {
		grant := *u.Reset
		a.Reset = &grant
	}
	if u.ClearVerification {
		a.Verification = nil
	}
	if u.Verification != nil {
		grant := *u.Verification
		a.Verification = &grant
	}
	a.UpdatedAt = time.Now()
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// CreateAccount stores a new account.
	// Returns ErrEmailTaken if the email is already registered.
	CreateAccount(ctx context.Context, account *Account) error

	// GetAccountByID retrieves an account by ID.
	GetAccountByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetAccountByEmail retrieves an account by email (case-insensitive).
	// Returns ErrNotFound if no account has the given email.
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// GetAccountByResetToken retrieves the account holding a reset token digest.
	GetAccountByResetToken(ctx context.Context, tokenHash string) (*Account, error)

	// GetAccountByVerificationToken retrieves the account holding a verification token digest.
	GetAccountByVerificationToken(ctx context.Context, tokenHash string) (*Account, error)

	// UpdateAccount applies a partial update.
	UpdateAccount(ctx context.Context, id ulid.ULID, update AccountUpdate) error

	// ConsumeResetToken replaces the password of the account holding the reset
	// token digest and clears the token, provided the token is live at now.
	// Returns ErrNotFound otherwise; of several callers racing on one token,
	// exactly one succeeds.
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (ulid.ULID, error)
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	verifierOnce sync.Once
	verifier     *emailverifier.Verifier
)

// emailVerifier returns a verifier restricted to offline syntax checks.
func emailVerifier() *emailverifier.Verifier {
	verifierOnce.Do(func() {
		verifier = emailverifier.NewVerifier()
		verifier.DisableSMTPCheck()
		verifier.DisableGravatarCheck()
		verifier.DisableDomainSuggest()
		verifier.DisableAutoUpdateDisposable()
	})
	return verifier
}

// ValidEmail reports whether email is syntactically valid.
func ValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	syntax := emailVerifier().ParseAddress(email)
	return syntax.Valid && strings.Contains(syntax.Domain, ".")
}

// DeriveUsername builds a username from the local part of an email.
// Characters outside [a-z0-9_] become underscores and the result starts with a letter.
func DeriveUsername(email string) string {
	local := strings.ToLower(localPart(NormalizeEmail(email)))

	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	username := b.String()
	if username == "" || username[0] < 'a' || username[0] > 'z' {
		username = "u" + username
	}
	if len(username) > MaxUsernameLength {
		username = username[:MaxUsernameLength]
	}
	return username
}

func localPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
