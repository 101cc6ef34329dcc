// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/hearthly/hearth/internal/auth"
)

const familiesInviteCodeConstraint = "families_invite_code_key"

// FamilyRepository implements auth.FamilyRepository using PostgreSQL.
type FamilyRepository struct {
	pool poolIface
}

// NewFamilyRepository creates a new FamilyRepository.
func NewFamilyRepository(pool poolIface) *FamilyRepository {
	return &FamilyRepository{pool: pool}
}

// CreateFamily stores a new family.
func (r *FamilyRepository) CreateFamily(ctx context.Context, family *auth.Family) error {
	return insertFamily(ctx, r.pool, family)
}

func insertFamily(ctx context.Context, db poolIface, family *auth.Family) error {
	_, err := db.Exec(ctx, `
		INSERT INTO families (id, name, invite_code, created_at)
		VALUES ($1, $2, $3, $4)
	`, family.ID.String(), family.Name, family.InviteCode, family.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, familiesInviteCodeConstraint) {
			return oops.Code("FAMILY_INVITE_CODE_TAKEN").
				With("invite_code", family.InviteCode).
				Wrap(auth.ErrInviteCodeTaken)
		}
		return oops.Code("FAMILY_CREATE_FAILED").
			With("operation", "insert family").
			With("family_id", family.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetFamily retrieves a family by ID.
func (r *FamilyRepository) GetFamily(ctx context.Context, id ulid.ULID) (*auth.Family, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, invite_code, created_at FROM families WHERE id = $1
	`, id.String())
	return getFamily(row, "id")
}

// GetFamilyByInviteCode retrieves a family by invite code. Codes are stored uppercase.
func (r *FamilyRepository) GetFamilyByInviteCode(ctx context.Context, code string) (*auth.Family, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, invite_code, created_at FROM families WHERE invite_code = upper($1)
	`, code)
	return getFamily(row, "invite code")
}

func getFamily(row pgx.Row, lookup string) (*auth.Family, error) {
	var (
		family auth.Family
		idStr  string
	)
	err := row.Scan(&idStr, &family.Name, &family.InviteCode, &family.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("FAMILY_NOT_FOUND").With("lookup", lookup).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("FAMILY_GET_FAILED").
			With("operation", "get family by "+lookup).
			Wrap(err)
	}
	if family.ID, err = parseULID("family_id", idStr); err != nil {
		return nil, err
	}
	return &family, nil
}
