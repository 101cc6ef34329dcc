// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/hearthly/hearth/internal/auth"
)

// accountsEmailConstraint is the unique index on lower(email).
const accountsEmailConstraint = "accounts_email_lower_key"

const accountColumns = `id, email, username, password_hash, display_name, family_id, role, email_verified,
	reset_token_hash, reset_expires_at, verification_token_hash, verification_expires_at,
	created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// CreateAccount stores a new account.
func (r *AccountRepository) CreateAccount(ctx context.Context, account *auth.Account) error {
	return insertAccount(ctx, r.pool, account)
}

// insertAccount runs on the pool or inside a transaction.
func insertAccount(ctx context.Context, db poolIface, account *auth.Account) error {
	resetHash, resetExpires := grantColumns(account.Reset)
	verifyHash, verifyExpires := grantColumns(account.Verification)

	_, err := db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		account.ID.String(),
		account.Email,
		account.Username,
		account.PasswordHash,
		account.DisplayName,
		account.FamilyID.String(),
		string(account.Role),
		account.EmailVerified,
		resetHash,
		resetExpires,
		verifyHash,
		verifyExpires,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, accountsEmailConstraint) {
			return oops.Code("ACCOUNT_EMAIL_TAKEN").
				With("email", account.Email).
				Wrap(auth.ErrEmailTaken)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetAccountByID retrieves an account by ID.
func (r *AccountRepository) GetAccountByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	return r.getOne(ctx, "id = $1", id.String(), "id")
}

// GetAccountByEmail retrieves an account by email, ignoring case.
func (r *AccountRepository) GetAccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return r.getOne(ctx, "lower(email) = lower($1)", email, "email")
}

// GetAccountByResetToken retrieves the account holding a reset token digest.
func (r *AccountRepository) GetAccountByResetToken(ctx context.Context, tokenHash string) (*auth.Account, error) {
	return r.getOne(ctx, "reset_token_hash = $1", tokenHash, "reset token")
}

// GetAccountByVerificationToken retrieves the account holding a verification token digest.
func (r *AccountRepository) GetAccountByVerificationToken(ctx context.Context, tokenHash string) (*auth.Account, error) {
	return r.getOne(ctx, "verification_token_hash = $1", tokenHash, "verification token")
}

func (r *AccountRepository) getOne(ctx context.Context, where string, arg any, lookup string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where, arg)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("lookup", lookup).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by "+lookup).
			Wrap(err)
	}
	return account, nil
}

// ConsumeResetToken sets a new password on the account holding the reset token
// digest and clears the token in one statement. The token must still be live at now.
func (r *AccountRepository) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (ulid.ULID, error) {
	var idStr string
	err := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET password_hash = $2, reset_token_hash = NULL, reset_expires_at = NULL, updated_at = $3
		WHERE reset_token_hash = $1 AND reset_expires_at > $3
		RETURNING id
	`, tokenHash, passwordHash, now).Scan(&idStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return ulid.ULID{}, oops.Code("ACCOUNT_NOT_FOUND").
			With("lookup", "live reset token").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return ulid.ULID{}, oops.Code("ACCOUNT_RESET_FAILED").
			With("operation", "consume reset token").
			Wrap(err)
	}
	return parseULID("account_id", idStr)
}

// UpdateAccount applies a partial update. Only the fields named by update change.
func (r *AccountRepository) UpdateAccount(ctx context.Context, id ulid.ULID, update auth.AccountUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args = []any{id.String()}
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.PasswordHash != nil {
		set("password_hash", *update.PasswordHash)
	}
	if update.EmailVerified != nil {
		set("email_verified", *update.EmailVerified)
	}
	switch {
	case update.Reset != nil:
		set("reset_token_hash", update.Reset.Hash)
		set("reset_expires_at", update.Reset.ExpiresAt)
	case update.ClearReset:
		set("reset_token_hash", nil)
		set("reset_expires_at", nil)
	}
	switch {
	case update.Verification != nil:
		set("verification_token_hash", update.Verification.Hash)
		set("verification_expires_at", update.Verification.ExpiresAt)
	case update.ClearVerification:
		set("verification_token_hash", nil)
		set("verification_expires_at", nil)
	}
	set("updated_at", time.Now())

	result, err := r.pool.Exec(ctx,
		`UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE id = $1`,
		args...)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("account_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("account_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr, familyIDStr, role    string
		account                     auth.Account
		resetHash, verifyHash       *string
		resetExpires, verifyExpires *time.Time
	)

	err := row.Scan(
		&idStr, &account.Email, &account.Username, &account.PasswordHash, &account.DisplayName,
		&familyIDStr, &role, &account.EmailVerified,
		&resetHash, &resetExpires, &verifyHash, &verifyExpires,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").With("operation", "scan account").Wrap(err)
	}

	if account.ID, err = parseULID("account_id", idStr); err != nil {
		return nil, err
	}
	if account.FamilyID, err = parseULID("family_id", familyIDStr); err != nil {
		return nil, err
	}
	account.Role = auth.Role(role)
	account.Reset = buildGrant(resetHash, resetExpires)
	account.Verification = buildGrant(verifyHash, verifyExpires)
	return &account, nil
}

func grantColumns(g *auth.TokenGrant) (hash *string, expiresAt *time.Time) {
	if g == nil {
		return nil, nil
	}
	h, e := g.Hash, g.ExpiresAt
	return &h, &e
}

func buildGrant(hash *string, expiresAt *time.Time) *auth.TokenGrant {
	if hash == nil || expiresAt == nil {
		return nil
	}
	return &auth.TokenGrant{Hash: *hash, ExpiresAt: *expiresAt}
}
