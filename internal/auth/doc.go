// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

// Package auth implements account registration, sign-in and session lifecycle
// for Hearth families.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewAccount - normalizes the email and derives a username
//   - NewFamily - generates an invite code
//   - NewSession - snapshots role and family from the account
//
// Direct struct initialization bypasses validation and may create invalid state.
//
// # Tokens
//
// Every token handed to a client is 32 random bytes in unpadded base64url.
// Only the SHA-256 digest (HashToken) is persisted, so a leaked database does
// not yield usable credentials. Access and refresh tokens are separate
// sessions; a refresh token is single-use and redeeming it deletes it.
//
// # Errors
//
// Operations fail with oops errors whose code is one of the Code* constants
// when the failure is the caller's fault. Any other code is an internal
// failure. Repositories return ErrNotFound, ErrEmailTaken and
// ErrInviteCodeTaken, which the Service translates.
//
// # Services
//
// Service coordinates the stores, the CredentialHasher and the Notifier.
// It is created with NewService, which validates its dependencies.
package auth
