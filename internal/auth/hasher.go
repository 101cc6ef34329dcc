// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters. They are not encoded in the stored hash, so changing them
// invalidates every existing Salted hash.
const (
	scryptN       = 16384
	scryptR       = 8
	scryptP       = 1
	scryptSaltLen = 16
	scryptKeyLen  = 64
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// HashScheme identifies how a stored password hash was produced.
type HashScheme int

// Known hash schemes.
const (
	SchemeLegacy HashScheme = iota + 1
	SchemeSalted
)

// String returns the scheme name.
func (s HashScheme) String() string {
	switch s {
	case SchemeLegacy:
		return "legacy"
	case SchemeSalted:
		return "salted"
	default:
		return "unknown"
	}
}

// StoredHash is a parsed password hash. It is either a LegacyHash or a SaltedHash.
type StoredHash interface {
	Scheme() HashScheme
}

// LegacyHash is a reversible base64 encoding of the plaintext, kept only so
// accounts created before salted hashing can still sign in once.
type LegacyHash struct {
	Encoded string
}

// Scheme implements StoredHash.
func (LegacyHash) Scheme() HashScheme { return SchemeLegacy }

// SaltedHash is an scrypt-derived key and the salt used to derive it.
type SaltedHash struct {
	Salt []byte
	Key  []byte
}

// Scheme implements StoredHash.
func (SaltedHash) Scheme() HashScheme { return SchemeSalted }

// String encodes the hash as "hex(salt):hex(key)".
func (h SaltedHash) String() string {
	return hex.EncodeToString(h.Salt) + ":" + hex.EncodeToString(h.Key)
}

// ParseStoredHash decodes a stored hash string.
// A value without a colon is a legacy encoding; anything else must be two hex segments.
func ParseStoredHash(stored string) (StoredHash, error) {
	if stored == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("stored hash is empty")
	}

	saltHex, keyHex, found := strings.Cut(stored, ":")
	if !found {
		if _, err := base64.StdEncoding.DecodeString(stored); err != nil {
			return nil, oops.Code("AUTH_INVALID_HASH").With("scheme", SchemeLegacy.String()).Wrap(err)
		}
		return LegacyHash{Encoded: stored}, nil
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return nil, oops.Code("AUTH_INVALID_HASH").With("segment", "salt").Errorf("invalid salt encoding")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != scryptKeyLen {
		return nil, oops.Code("AUTH_INVALID_HASH").With("segment", "key").Errorf("invalid key encoding")
	}
	return SaltedHash{Salt: salt, Key: key}, nil
}

// CredentialHasher hashes and verifies passwords.
type CredentialHasher interface {
	// Hash produces a salted hash of the password.
	Hash(password string) (string, error)

	// Verify reports whether the password matches the stored hash.
	// Malformed hashes never match.
	Verify(password, stored string) bool

	// NeedsUpgrade reports whether the stored hash should be replaced on next login.
	NeedsUpgrade(stored string) bool
}

// ScryptHasher implements CredentialHasher using scrypt.
type ScryptHasher struct{}

// NewScryptHasher creates a new ScryptHasher.
func NewScryptHasher() *ScryptHasher {
	return &ScryptHasher{}
}

// Hash produces "hex(salt):hex(key)" with a fresh 16-byte salt.
func (h *ScryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, scryptSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key, err := deriveKey(password, salt)
	if err != nil {
		return "", err
	}

	return SaltedHash{Salt: salt, Key: key}.String(), nil
}

// Verify checks the password against either hash scheme in constant time.
func (h *ScryptHasher) Verify(password, stored string) bool {
	parsed, err := ParseStoredHash(stored)
	if err != nil {
		return false
	}

	switch v := parsed.(type) {
	case SaltedHash:
		computed, err := deriveKey(password, v.Salt)
		if err != nil {
			return false
		}
		return subtle.ConstantTimeCompare(computed, v.Key) == 1
	case LegacyHash:
		encoded := base64.StdEncoding.EncodeToString([]byte(password))
		return subtle.ConstantTimeCompare([]byte(encoded), []byte(v.Encoded)) == 1
	default:
		return false
	}
}

// NeedsUpgrade returns true for anything that is not a well-formed salted hash.
func (h *ScryptHasher) NeedsUpgrade(stored string) bool {
	parsed, err := ParseStoredHash(stored)
	if err != nil {
		return true
	}
	return parsed.Scheme() != SchemeSalted
}

func deriveKey(password string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, oops.Code("AUTH_KDF_FAILED").Wrap(err)
	}
	return key, nil
}

// dummyPasswordHash is verified against when no account matches the email, so
// unknown and known emails cost the same scrypt derivation.
//
//nolint:gosec // G101: not a credential, it never matches any password.
const dummyPasswordHash = "00000000000000000000000000000000:" +
	"00000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000"
