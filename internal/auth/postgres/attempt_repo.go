// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package postgres

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/hearthly/hearth/internal/auth"
)

// LoginAttemptRepository implements auth.LoginAttemptRepository using PostgreSQL.
type LoginAttemptRepository struct {
	pool poolIface
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository.
func NewLoginAttemptRepository(pool poolIface) *LoginAttemptRepository {
	return &LoginAttemptRepository{pool: pool}
}

// RecordLoginAttempt appends an attempt.
func (r *LoginAttemptRepository) RecordLoginAttempt(ctx context.Context, attempt *auth.LoginAttempt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO login_attempts (id, email, ip_address, success, attempted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, attempt.ID.String(), attempt.Email, attempt.IPAddress, attempt.Success, attempt.AttemptedAt)
	if err != nil {
		return oops.Code("LOGIN_ATTEMPT_RECORD_FAILED").
			With("operation", "insert login attempt").
			Wrap(err)
	}
	return nil
}

// RecentLoginAttempts returns attempts for email at or after since, oldest first.
func (r *LoginAttemptRepository) RecentLoginAttempts(ctx context.Context, email string, since time.Time) ([]*auth.LoginAttempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, email, ip_address, success, attempted_at
		FROM login_attempts
		WHERE email = $1 AND attempted_at >= $2
		ORDER BY attempted_at ASC
	`, email, since)
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").
			With("operation", "get recent login attempts").
			Wrap(err)
	}
	defer rows.Close()

	var attempts []*auth.LoginAttempt
	for rows.Next() {
		var (
			attempt auth.LoginAttempt
			idStr   string
		)
		if err := rows.Scan(&idStr, &attempt.Email, &attempt.IPAddress, &attempt.Success, &attempt.AttemptedAt); err != nil {
			return nil, oops.Code("LOGIN_ATTEMPT_SCAN_FAILED").
				With("operation", "scan login attempt row").
				Wrap(err)
		}
		if attempt.ID, err = parseULID("attempt_id", idStr); err != nil {
			return nil, err
		}
		attempts = append(attempts, &attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("LOGIN_ATTEMPT_ROWS_ERROR").
			With("operation", "iterate login attempt rows").
			Wrap(err)
	}
	return attempts, nil
}

// PruneLoginAttempts removes attempts older than before.
func (r *LoginAttemptRepository) PruneLoginAttempts(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM login_attempts WHERE attempted_at < $1`, before)
	if err != nil {
		return 0, oops.Code("LOGIN_ATTEMPT_PRUNE_FAILED").
			With("operation", "prune login attempts").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}
