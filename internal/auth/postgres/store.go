// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

// Package postgres implements the auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/hearthly/hearth/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool the repositories use.
// pgxmock.PgxPoolIface satisfies it in unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txPool is a poolIface that can also open transactions.
// *pgxpool.Pool and pgxmock.PgxPoolIface both satisfy it.
type txPool interface {
	poolIface
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store combines every auth repository behind one pool.
type Store struct {
	*AccountRepository
	*FamilyRepository
	*SessionRepository
	*LoginAttemptRepository

	pool txPool
}

// NewStore creates a Store whose repositories share pool.
func NewStore(pool txPool) *Store {
	return &Store{
		AccountRepository:      NewAccountRepository(pool),
		FamilyRepository:       NewFamilyRepository(pool),
		SessionRepository:      NewSessionRepository(pool),
		LoginAttemptRepository: NewLoginAttemptRepository(pool),
		pool:                   pool,
	}
}

// CreateFamilyWithAdmin stores a new family and its founding account in one
// transaction. On error neither row is kept.
func (s *Store) CreateFamilyWithAdmin(ctx context.Context, family *auth.Family, admin *auth.Account) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").With("operation", "create family with admin").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := insertFamily(ctx, tx, family); err != nil {
		return err
	}
	if err := insertAccount(ctx, tx, admin); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").With("operation", "create family with admin").Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.Store = (*Store)(nil)

// isUniqueViolation reports whether err is a unique violation on constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == constraint
}

func parseULID(field, value string) (ulid.ULID, error) {
	id, err := ulid.Parse(value)
	if err != nil {
		return ulid.ULID{}, oops.Code("AUTH_INVALID_ID").
			With("operation", "parse "+field).
			With(field, value).
			Wrap(err)
	}
	return id, nil
}
