// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"sort"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// PermissionCatalog lists every permission a client can be granted.
var PermissionCatalog = []string{
	"budget:read",
	"budget:write",
	"calendar:read",
	"calendar:write",
	"chat:use",
	"family:manage",
	"family:read",
	"members:invite",
	"notes:read",
	"notes:write",
	"shopping:add",
	"shopping:read",
	"shopping:write",
	"tasks:complete",
	"tasks:read",
	"tasks:write",
}

// DefaultRolePatterns maps each role to its permission glob patterns.
// Patterns use ':' as the segment separator.
func DefaultRolePatterns() map[Role][]string {
	return map[Role][]string{
		RoleAdmin: {"*:*"},
		RoleMember: {
			"calendar:*",
			"tasks:*",
			"shopping:*",
			"notes:*",
			"budget:read",
			"chat:use",
			"family:read",
		},
		RoleChild: {
			"calendar:read",
			"tasks:read",
			"tasks:complete",
			"shopping:read",
			"shopping:add",
			"notes:read",
			"chat:use",
		},
	}
}

// Permissions resolves role patterns against the catalog.
type Permissions struct {
	byRole map[Role][]string
}

// NewPermissions compiles role patterns and expands them against PermissionCatalog.
// Returns an error if any pattern fails to compile.
func NewPermissions(patterns map[Role][]string) (*Permissions, error) {
	byRole := make(map[Role][]string, len(patterns))
	for role, pats := range patterns {
		globs := make([]glob.Glob, 0, len(pats))
		for _, p := range pats {
			g, err := glob.Compile(p, ':')
			if err != nil {
				return nil, oops.In("auth").
					Code("INVALID_PERMISSION_PATTERN").
					With("role", string(role)).
					With("pattern", p).
					Wrap(err)
			}
			globs = append(globs, g)
		}

		granted := []string{}
		for _, perm := range PermissionCatalog {
			for _, g := range globs {
				if g.Match(perm) {
					granted = append(granted, perm)
					break
				}
			}
		}
		sort.Strings(granted)
		byRole[role] = granted
	}
	return &Permissions{byRole: byRole}, nil
}

// DefaultPermissions returns Permissions for DefaultRolePatterns.
//
// Panics if the built-in patterns are invalid (code bug).
func DefaultPermissions() *Permissions {
	p, err := NewPermissions(DefaultRolePatterns())
	if err != nil {
		panic("invalid permission pattern in DefaultRolePatterns: " + err.Error())
	}
	return p
}

// For returns a copy of the permissions granted to role.
func (p *Permissions) For(role Role) []string {
	granted := p.byRole[role]
	out := make([]string, len(granted))
	copy(out, granted)
	return out
}

// Allows reports whether role holds permission.
func (p *Permissions) Allows(role Role, permission string) bool {
	granted := p.byRole[role]
	i := sort.SearchStrings(granted, permission)
	return i < len(granted) && granted[i] == permission
}
