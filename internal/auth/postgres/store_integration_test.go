// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/internal/auth/postgres"
)

var _ = Describe("Store", func() {
	var (
		ctx    context.Context
		repo   *postgres.Store
		family *auth.Family
	)

	newAccount := func(email string) *auth.Account {
		account, err := auth.NewAccount(email, "salt:key", "Jane", family.ID, auth.RoleAdmin)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.CreateAccount(ctx, account)).To(Succeed())
		return account
	}

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)
		repo = postgres.NewStore(testPool)

		var err error
		family, err = auth.NewFamily("The Does")
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.CreateFamily(ctx, family)).To(Succeed())
	})

	Describe("families", func() {
		It("finds a family by invite code ignoring case", func() {
			got, err := repo.GetFamilyByInviteCode(ctx, family.InviteCode)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(family.ID))
		})

		It("rejects a duplicate invite code", func() {
			dup, err := auth.NewFamily("Other")
			Expect(err).NotTo(HaveOccurred())
			dup.InviteCode = family.InviteCode

			err = repo.CreateFamily(ctx, dup)
			Expect(err).To(MatchError(auth.ErrInviteCodeTaken))
		})
	})

	Describe("accounts", func() {
		It("treats email as case-insensitive", func() {
			account := newAccount("jane@example.com")

			got, err := repo.GetAccountByEmail(ctx, "JANE@Example.COM")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(account.ID))

			clash, err := auth.NewAccount("other@example.com", "salt:key", "Other", family.ID, auth.RoleMember)
			Expect(err).NotTo(HaveOccurred())
			clash.Email = "JANE@example.com"
			Expect(repo.CreateAccount(ctx, clash)).To(MatchError(auth.ErrEmailTaken))
		})

		It("stores and clears a reset grant", func() {
			account := newAccount("reset@example.com")
			grant := &auth.TokenGrant{Hash: auth.HashToken("reset-token"), ExpiresAt: time.Now().Add(time.Hour).UTC()}

			Expect(repo.UpdateAccount(ctx, account.ID, auth.AccountUpdate{Reset: grant})).To(Succeed())
			got, err := repo.GetAccountByResetToken(ctx, grant.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Reset).NotTo(BeNil())
			Expect(got.Reset.ExpiresAt).To(BeTemporally("~", grant.ExpiresAt, time.Millisecond))

			Expect(repo.UpdateAccount(ctx, account.ID, auth.AccountUpdate{ClearReset: true})).To(Succeed())
			_, err = repo.GetAccountByResetToken(ctx, grant.Hash)
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("reset token consumption", func() {
		It("lets exactly one concurrent reset win", func() {
			account := newAccount("consume@example.com")
			grant := &auth.TokenGrant{Hash: auth.HashToken("consume-token"), ExpiresAt: time.Now().Add(time.Hour).UTC()}
			Expect(repo.UpdateAccount(ctx, account.ID, auth.AccountUpdate{Reset: grant})).To(Succeed())

			var (
				wg      sync.WaitGroup
				winners atomic.Int64
			)
			for i := range 8 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := repo.ConsumeResetToken(ctx, grant.Hash, fmt.Sprintf("hash-%d", i), time.Now())
					if err == nil {
						winners.Add(1)
						return
					}
					Expect(err).To(MatchError(auth.ErrNotFound))
				}()
			}
			wg.Wait()
			Expect(winners.Load()).To(Equal(int64(1)))

			got, err := repo.GetAccountByID(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Reset).To(BeNil())
			Expect(got.PasswordHash).To(HavePrefix("hash-"))
		})

		It("refuses an expired token", func() {
			account := newAccount("stale@example.com")
			grant := &auth.TokenGrant{Hash: auth.HashToken("stale-token"), ExpiresAt: time.Now().Add(-time.Minute).UTC()}
			Expect(repo.UpdateAccount(ctx, account.ID, auth.AccountUpdate{Reset: grant})).To(Succeed())

			_, err := repo.ConsumeResetToken(ctx, grant.Hash, "new", time.Now())
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("family with admin", func() {
		It("keeps no family when the admin email is taken", func() {
			newAccount("taken@example.com")
			other, err := auth.NewFamily("Others")
			Expect(err).NotTo(HaveOccurred())
			admin, err := auth.NewAccount("TAKEN@example.com", "salt:key", "Other", other.ID, auth.RoleAdmin)
			Expect(err).NotTo(HaveOccurred())

			err = repo.CreateFamilyWithAdmin(ctx, other, admin)
			Expect(err).To(MatchError(auth.ErrEmailTaken))

			_, err = repo.GetFamily(ctx, other.ID)
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("stores both rows", func() {
			other, err := auth.NewFamily("Others")
			Expect(err).NotTo(HaveOccurred())
			admin, err := auth.NewAccount("founder@example.com", "salt:key", "Founder", other.ID, auth.RoleAdmin)
			Expect(err).NotTo(HaveOccurred())

			Expect(repo.CreateFamilyWithAdmin(ctx, other, admin)).To(Succeed())
			got, err := repo.GetAccountByEmail(ctx, "founder@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.FamilyID).To(Equal(other.ID))
		})
	})

	Describe("sessions", func() {
		It("deletes a refresh session exactly once under concurrency", func() {
			account := newAccount("race@example.com")
			session, err := auth.NewSession(account, auth.TokenRefresh, auth.HashToken("refresh"), "ua", "10.0.0.1", time.Now().Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.CreateSession(ctx, session)).To(Succeed())

			var (
				wg      sync.WaitGroup
				winners atomic.Int64
			)
			for range 8 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					n, err := repo.DeleteSession(ctx, session.TokenHash)
					Expect(err).NotTo(HaveOccurred())
					winners.Add(n)
				}()
			}
			wg.Wait()
			Expect(winners.Load()).To(Equal(int64(1)))
		})

		It("removes expired sessions and cascades account sessions", func() {
			account := newAccount("expiry@example.com")
			expired, err := auth.NewSession(account, auth.TokenAccess, auth.HashToken("old"), "", "", time.Now().Add(-time.Minute))
			Expect(err).NotTo(HaveOccurred())
			live, err := auth.NewSession(account, auth.TokenAccess, auth.HashToken("new"), "", "", time.Now().Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.CreateSession(ctx, expired)).To(Succeed())
			Expect(repo.CreateSession(ctx, live)).To(Succeed())

			n, err := repo.DeleteExpiredSessions(ctx, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))

			n, err = repo.DeleteSessionsByAccount(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))
		})
	})

	Describe("login attempts", func() {
		It("returns the window oldest first and prunes older rows", func() {
			now := time.Now().UTC()
			for i, offset := range []time.Duration{-20 * time.Minute, -10 * time.Minute, -5 * time.Minute} {
				Expect(repo.RecordLoginAttempt(ctx, &auth.LoginAttempt{
					ID:          ulid.Make(),
					Email:       "jane@example.com",
					Success:     i == 2,
					AttemptedAt: now.Add(offset),
				})).To(Succeed())
			}

			recent, err := repo.RecentLoginAttempts(ctx, "jane@example.com", now.Add(-15*time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(HaveLen(2))
			Expect(recent[0].AttemptedAt).To(BeTemporally("<", recent[1].AttemptedAt))

			pruned, err := repo.PruneLoginAttempts(ctx, now.Add(-15*time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(pruned).To(Equal(int64(1)))
		})
	})
})
