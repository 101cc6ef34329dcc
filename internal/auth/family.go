// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxFamilyNameLength bounds family display names.
const MaxFamilyNameLength = 100

// Family is the coordination unit that owns accounts.
type Family struct {
	ID         ulid.ULID
	Name       string
	InviteCode string
	CreatedAt  time.Time
}

// NewFamily creates a Family with a fresh invite code.
func NewFamily(name string) (*Family, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, oops.Code("FAMILY_INVALID_NAME").Errorf("family name cannot be empty")
	}
	if len(name) > MaxFamilyNameLength {
		name = name[:MaxFamilyNameLength]
	}

	code, err := GenerateShortCode()
	if err != nil {
		return nil, oops.Code("FAMILY_CREATE_FAILED").With("operation", "generate invite code").Wrap(err)
	}

	return &Family{
		ID:         ulid.Make(),
		Name:       name,
		InviteCode: code,
		CreatedAt:  time.Now(),
	}, nil
}

// DefaultFamilyName derives a family name from the founder's display name.
func DefaultFamilyName(displayName string) string {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return "My Family"
	}
	return displayName + "'s Family"
}

// FamilyRepository manages family persistence.
type FamilyRepository interface {
	// CreateFamily stores a new family.
	// Returns ErrInviteCodeTaken if the invite code collides.
	CreateFamily(ctx context.Context, family *Family) error

	// GetFamily retrieves a family by ID.
	GetFamily(ctx context.Context, id ulid.ULID) (*Family, error)

	// GetFamilyByInviteCode retrieves a family by its invite code (case-insensitive).
	GetFamilyByInviteCode(ctx context.Context, code string) (*Family, error)
}
