// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/samber/oops"
)

// Token sizes in random bytes.
const (
	TokenBytes     = 32 // 43 base64url characters
	ShortCodeBytes = 4  // 8 uppercase hex characters
)

// GenerateToken returns a URL-safe, unpadded base64 encoding of 32 random bytes.
// Access, refresh, reset and verification tokens all come from here; the field
// a token is stored in decides its purpose.
func GenerateToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateShortCode returns 4 random bytes as 8 uppercase hex characters.
// Collisions are possible; callers retry on conflict.
func GenerateShortCode() (string, error) {
	b := make([]byte, ShortCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", ShortCodeBytes).
			Wrap(err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// HashToken computes the SHA-256 hex digest under which a token is stored.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// issueToken generates a token and its storage digest.
func issueToken() (token, hash string, err error) {
	token, err = GenerateToken()
	if err != nil {
		return "", "", err
	}
	return token, HashToken(token), nil
}
