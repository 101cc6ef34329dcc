// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

// Package authtest provides an in-memory auth.Store for tests.
package authtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/hearthly/hearth/internal/auth"
)

// MemoryStore is a mutex-guarded auth.Store. Returned values are copies.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[ulid.ULID]*auth.Account
	families map[ulid.ULID]*auth.Family
	sessions map[string]*auth.Session
	attempts []*auth.LoginAttempt
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[ulid.ULID]*auth.Account),
		families: make(map[ulid.ULID]*auth.Family),
		sessions: make(map[string]*auth.Session),
	}
}

var _ auth.Store = (*MemoryStore)(nil)

// CreateAccount stores a copy of account. Emails are unique ignoring case.
func (s *MemoryStore) CreateAccount(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEmailLocked(account.Email); err != nil {
		return err
	}
	s.accounts[account.ID] = copyAccount(account)
	return nil
}

// GetAccountByID returns the account with id.
func (s *MemoryStore) GetAccountByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		return copyAccount(a), nil
	}
	return nil, notFound("account")
}

// GetAccountByEmail returns the account with email, ignoring case.
func (s *MemoryStore) GetAccountByEmail(_ context.Context, email string) (*auth.Account, error) {
	return s.findAccount(func(a *auth.Account) bool {
		return strings.EqualFold(a.Email, email)
	})
}

// GetAccountByResetToken returns the account holding the reset token digest.
func (s *MemoryStore) GetAccountByResetToken(_ context.Context, tokenHash string) (*auth.Account, error) {
	return s.findAccount(func(a *auth.Account) bool {
		return a.Reset != nil && a.Reset.Hash == tokenHash
	})
}

// GetAccountByVerificationToken returns the account holding the verification token digest.
func (s *MemoryStore) GetAccountByVerificationToken(_ context.Context, tokenHash string) (*auth.Account, error) {
	return s.findAccount(func(a *auth.Account) bool {
		return a.Verification != nil && a.Verification.Hash == tokenHash
	})
}

func (s *MemoryStore) findAccount(match func(*auth.Account) bool) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if match(a) {
			return copyAccount(a), nil
		}
	}
	return nil, notFound("account")
}

// UpdateAccount applies update to the account with id.
func (s *MemoryStore) UpdateAccount(_ context.Context, id ulid.ULID, update auth.AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return notFound("account")
	}
	update.Apply(a)
	return nil
}

// ConsumeResetToken swaps in passwordHash and clears the reset token of the
// account holding a live token with the digest.
func (s *MemoryStore) ConsumeResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (ulid.ULID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Reset == nil || a.Reset.Hash != tokenHash || a.Reset.IsExpiredAt(now) {
			continue
		}
		a.PasswordHash = passwordHash
		a.Reset = nil
		a.UpdatedAt = now
		return a.ID, nil
	}
	return ulid.ULID{}, notFound("account")
}

// CreateFamily stores a copy of family. Invite codes are unique ignoring case.
func (s *MemoryStore) CreateFamily(_ context.Context, family *auth.Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInviteCodeLocked(family.InviteCode); err != nil {
		return err
	}
	f := *family
	s.families[family.ID] = &f
	return nil
}

// CreateFamilyWithAdmin stores family and admin together, or neither.
func (s *MemoryStore) CreateFamilyWithAdmin(_ context.Context, family *auth.Family, admin *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInviteCodeLocked(family.InviteCode); err != nil {
		return err
	}
	if err := s.checkEmailLocked(admin.Email); err != nil {
		return err
	}
	f := *family
	s.families[family.ID] = &f
	s.accounts[admin.ID] = copyAccount(admin)
	return nil
}

func (s *MemoryStore) checkEmailLocked(email string) error {
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return oops.Code("ACCOUNT_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrEmailTaken)
		}
	}
	return nil
}

func (s *MemoryStore) checkInviteCodeLocked(code string) error {
	for _, f := range s.families {
		if strings.EqualFold(f.InviteCode, code) {
			return oops.Code("FAMILY_INVITE_CODE_TAKEN").With("invite_code", code).Wrap(auth.ErrInviteCodeTaken)
		}
	}
	return nil
}

// GetFamily returns the family with id.
func (s *MemoryStore) GetFamily(_ context.Context, id ulid.ULID) (*auth.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.families[id]; ok {
		out := *f
		return &out, nil
	}
	return nil, notFound("family")
}

// GetFamilyByInviteCode returns the family with code, ignoring case.
func (s *MemoryStore) GetFamilyByInviteCode(_ context.Context, code string) (*auth.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.families {
		if strings.EqualFold(f.InviteCode, code) {
			out := *f
			return &out, nil
		}
	}
	return nil, notFound("family")
}

// CreateSession stores a copy of session keyed by its token digest.
func (s *MemoryStore) CreateSession(_ context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *session
	s.sessions[session.TokenHash] = &out
	return nil
}

// GetSession returns the session with the token digest.
func (s *MemoryStore) GetSession(_ context.Context, tokenHash string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[tokenHash]; ok {
		out := *sess
		return &out, nil
	}
	return nil, notFound("session")
}

// DeleteSession removes the session with the token digest and reports 1 if it existed.
func (s *MemoryStore) DeleteSession(_ context.Context, tokenHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[tokenHash]; !ok {
		return 0, nil
	}
	delete(s.sessions, tokenHash)
	return 1, nil
}

// DeleteSessionsByAccount removes every session of the account.
func (s *MemoryStore) DeleteSessionsByAccount(_ context.Context, accountID ulid.ULID) (int64, error) {
	return s.deleteSessionsWhere(func(sess *auth.Session) bool { return sess.AccountID == accountID }), nil
}

// DeleteExpiredSessions removes sessions expired at before.
func (s *MemoryStore) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	return s.deleteSessionsWhere(func(sess *auth.Session) bool { return sess.IsExpiredAt(before) }), nil
}

func (s *MemoryStore) deleteSessionsWhere(match func(*auth.Session) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, sess := range s.sessions {
		if match(sess) {
			delete(s.sessions, hash)
			n++
		}
	}
	return n
}

// RecordLoginAttempt appends a copy of attempt.
func (s *MemoryStore) RecordLoginAttempt(_ context.Context, attempt *auth.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *attempt
	s.attempts = append(s.attempts, &out)
	return nil
}

// RecentLoginAttempts returns attempts for email at or after since, oldest first.
func (s *MemoryStore) RecentLoginAttempts(_ context.Context, email string, since time.Time) ([]*auth.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.LoginAttempt
	for _, a := range s.attempts {
		if a.Email == email && !a.AttemptedAt.Before(since) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptedAt.Before(out[j].AttemptedAt) })
	return out, nil
}

// PruneLoginAttempts removes attempts older than before.
func (s *MemoryStore) PruneLoginAttempts(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.attempts[:0]
	var n int64
	for _, a := range s.attempts {
		if a.AttemptedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	s.attempts = kept
	return n, nil
}

// SessionCount returns the number of stored sessions of the account.
func (s *MemoryStore) SessionCount(accountID ulid.ULID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.AccountID == accountID {
			n++
		}
	}
	return n
}

// FamilyCount returns the number of stored families.
func (s *MemoryStore) FamilyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.families)
}

// AttemptCount returns the number of recorded attempts for email.
func (s *MemoryStore) AttemptCount(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.Email == email {
			n++
		}
	}
	return n
}

// SetPasswordHash overwrites the stored hash of the account with email.
// Used to seed legacy hashes.
func (s *MemoryStore) SetPasswordHash(email, hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			a.PasswordHash = hash
			return true
		}
	}
	return false
}

func notFound(entity string) error {
	return oops.Code(strings.ToUpper(entity)+"_NOT_FOUND").Wrap(auth.ErrNotFound)
}

func copyAccount(a *auth.Account) *auth.Account {
	out := *a
	if a.Reset != nil {
		r := *a.Reset
		out.Reset = &r
	}
	if a.Verification != nil {
		v := *a.Verification
		out.Verification = &v
	}
	return &out
}
