// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/hearthly/hearth/internal/auth"
)

// testingT is satisfied by *testing.T.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockStore is a mock implementation of auth.Store.
type MockStore struct {
	mock.Mock
}

// NewMockStore creates a MockStore whose expectations are asserted on cleanup.
func NewMockStore(t testingT) *MockStore {
	m := &MockStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockStore) CreateAccount(ctx context.Context, account *auth.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockStore) GetAccountByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	ret := m.Called(ctx, id)
	return accountOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockStore) GetAccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	ret := m.Called(ctx, email)
	return accountOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockStore) GetAccountByResetToken(ctx context.Context, tokenHash string) (*auth.Account, error) {
	ret := m.Called(ctx, tokenHash)
	return accountOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockStore) GetAccountByVerificationToken(ctx context.Context, tokenHash string) (*auth.Account, error) {
	ret := m.Called(ctx, tokenHash)
	return accountOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockStore) UpdateAccount(ctx context.Context, id ulid.ULID, update auth.AccountUpdate) error {
	return m.Called(ctx, id, update).Error(0)
}

func (m *MockStore) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (ulid.ULID, error) {
	ret := m.Called(ctx, tokenHash, passwordHash, now)
	id, _ := ret.Get(0).(ulid.ULID)
	return id, ret.Error(1)
}

func (m *MockStore) CreateFamilyWithAdmin(ctx context.Context, family *auth.Family, admin *auth.Account) error {
	return m.Called(ctx, family, admin).Error(0)
}

func (m *MockStore) CreateFamily(ctx context.Context, family *auth.Family) error {
	return m.Called(ctx, family).Error(0)
}

func (m *MockStore) GetFamily(ctx context.Context, id ulid.ULID) (*auth.Family, error) {
	ret := m.Called(ctx, id)
	return familyOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockStore) GetFamilyByInviteCode(ctx context.Context, code string) (*auth.Family, error) {
	ret := m.Called(ctx, code)
	return familyOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockStore) CreateSession(ctx context.Context, session *auth.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockStore) GetSession(ctx context.Context, tokenHash string) (*auth.Session, error) {
	ret := m.Called(ctx, tokenHash)
	var s *auth.Session
	if v, ok := ret.Get(0).(*auth.Session); ok {
		s = v
	}
	return s, ret.Error(1)
}

func (m *MockStore) DeleteSession(ctx context.Context, tokenHash string) (int64, error) {
	ret := m.Called(ctx, tokenHash)
	return int64Of(ret.Get(0)), ret.Error(1)
}

func (m *MockStore) DeleteSessionsByAccount(ctx context.Context, accountID ulid.ULID) (int64, error) {
	ret := m.Called(ctx, accountID)
	return int64Of(ret.Get(0)), ret.Error(1)
}

func (m *MockStore) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	ret := m.Called(ctx, before)
	return int64Of(ret.Get(0)), ret.Error(1)
}

func (m *MockStore) RecordLoginAttempt(ctx context.Context, attempt *auth.LoginAttempt) error {
	return m.Called(ctx, attempt).Error(0)
}

func (m *MockStore) RecentLoginAttempts(ctx context.Context, email string, since time.Time) ([]*auth.LoginAttempt, error) {
	ret := m.Called(ctx, email, since)
	var attempts []*auth.LoginAttempt
	if v, ok := ret.Get(0).([]*auth.LoginAttempt); ok {
		attempts = v
	}
	return attempts, ret.Error(1)
}

func (m *MockStore) PruneLoginAttempts(ctx context.Context, before time.Time) (int64, error) {
	ret := m.Called(ctx, before)
	return int64Of(ret.Get(0)), ret.Error(1)
}

// MockCredentialHasher is a mock implementation of auth.CredentialHasher.
type MockCredentialHasher struct {
	mock.Mock
}

// NewMockCredentialHasher creates a MockCredentialHasher whose expectations are asserted on cleanup.
func NewMockCredentialHasher(t testingT) *MockCredentialHasher {
	m := &MockCredentialHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockCredentialHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

func (m *MockCredentialHasher) Verify(password, stored string) bool {
	return m.Called(password, stored).Bool(0)
}

func (m *MockCredentialHasher) NeedsUpgrade(stored string) bool {
	return m.Called(stored).Bool(0)
}

// MockNotifier is a mock implementation of auth.Notifier.
type MockNotifier struct {
	mock.Mock
}

// NewMockNotifier creates a MockNotifier whose expectations are asserted on cleanup.
func NewMockNotifier(t testingT) *MockNotifier {
	m := &MockNotifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockNotifier) SendVerification(ctx context.Context, account *auth.Account, token string) error {
	return m.Called(ctx, account, token).Error(0)
}

func (m *MockNotifier) SendPasswordReset(ctx context.Context, account *auth.Account, token string) error {
	return m.Called(ctx, account, token).Error(0)
}

func accountOrNil(v any) *auth.Account {
	a, _ := v.(*auth.Account)
	return a
}

func familyOrNil(v any) *auth.Family {
	f, _ := v.(*auth.Family)
	return f
}

func int64Of(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

var (
	_ auth.Store            = (*MockStore)(nil)
	_ auth.CredentialHasher = (*MockCredentialHasher)(nil)
	_ auth.Notifier         = (*MockNotifier)(nil)
)
