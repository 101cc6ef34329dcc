// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

//go:build integration

package integration

import (
	"context"
	"net/http"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/hearthly/hearth/internal/auth"
)

const password = "Abc12345!"

// capturingNotifier keeps the last token sent to each address.
type capturingNotifier struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
}

func (n *capturingNotifier) SendVerification(_ context.Context, account *auth.Account, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verification[account.Email] = token
	return nil
}

func (n *capturingNotifier) SendPasswordReset(_ context.Context, account *auth.Account, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset[account.Email] = token
	return nil
}

func (n *capturingNotifier) tokens(email string) (verification, reset string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verification[email], n.reset[email]
}

var outbox = &capturingNotifier{verification: map[string]string{}, reset: map[string]string{}}

func register(email string, extra map[string]any) map[string]any {
	body := map[string]any{"email": email, "password": password, "acceptTerms": true}
	for k, v := range extra {
		body[k] = v
	}
	status, resp := call(http.MethodPost, "/api/auth/register", body, "")
	Expect(status).To(Equal(http.StatusCreated), "%v", resp)
	return resp
}

func login(email, pw string) (int, map[string]any) {
	return call(http.MethodPost, "/api/auth/login", map[string]any{"email": email, "password": pw}, "")
}

var _ = Describe("Auth API against PostgreSQL", func() {
	BeforeEach(func() {
		truncateAll()
	})

	Describe("registration", func() {
		It("creates a family administered by the new account", func() {
			registered := register("jane@example.com", map[string]any{"familyName": "The Does", "displayName": "Jane"})
			Expect(registered["requiresEmailVerification"]).To(BeTrue())

			status, me := call(http.MethodGet, "/api/auth/me", nil, registered["accessToken"].(string))
			Expect(status).To(Equal(http.StatusOK))

			user := me["user"].(map[string]any)
			Expect(user["email"]).To(Equal("jane@example.com"))
			Expect(user["role"]).To(Equal(string(auth.RoleAdmin)))

			family := me["family"].(map[string]any)
			Expect(family["name"]).To(Equal("The Does"))
			Expect(family["inviteCode"]).NotTo(BeEmpty())
		})

		It("joins an existing family with its invite code", func() {
			owner := register("jane@example.com", nil)
			_, me := call(http.MethodGet, "/api/auth/me", nil, owner["accessToken"].(string))
			family := me["family"].(map[string]any)

			member := register("john@example.com", map[string]any{"inviteCode": family["inviteCode"]})
			user := member["user"].(map[string]any)
			Expect(user["familyId"]).To(Equal(family["id"]))
			Expect(user["role"]).To(Equal(string(auth.RoleMember)))
		})

		It("rejects a duplicate email regardless of case", func() {
			register("jane@example.com", nil)

			status, resp := call(http.MethodPost, "/api/auth/register",
				map[string]any{"email": "JANE@example.com", "password": password, "acceptTerms": true}, "")
			Expect(status).To(Equal(http.StatusConflict))
			Expect(resp["code"]).To(Equal(auth.CodeEmailExists))
		})
	})

	Describe("email verification", func() {
		It("marks the account verified once", func() {
			register("jane@example.com", nil)
			token, _ := outbox.tokens("jane@example.com")
			Expect(token).NotTo(BeEmpty())

			status, resp := call(http.MethodPost, "/api/auth/verify-email", map[string]any{"token": token}, "")
			Expect(status).To(Equal(http.StatusOK), "%v", resp)
			Expect(resp["user"].(map[string]any)["emailVerified"]).To(BeTrue())

			status, resp = call(http.MethodPost, "/api/auth/verify-email", map[string]any{"token": token}, "")
			Expect(status).NotTo(Equal(http.StatusOK))
			Expect(resp["code"]).NotTo(BeEmpty())
		})
	})

	Describe("sessions", func() {
		It("rotates refresh tokens exactly once", func() {
			registered := register("jane@example.com", nil)
			refresh := registered["refreshToken"].(string)

			status, rotated := call(http.MethodPost, "/api/auth/refresh", map[string]any{"refreshToken": refresh}, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(rotated["refreshToken"]).NotTo(Equal(refresh))

			status, resp := call(http.MethodPost, "/api/auth/refresh", map[string]any{"refreshToken": refresh}, "")
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(resp["code"]).To(Equal(auth.CodeInvalidToken))
		})

		It("revokes every device on logout-all", func() {
			phone := register("jane@example.com", nil)
			status, laptop := login("jane@example.com", password)
			Expect(status).To(Equal(http.StatusOK))

			status, resp := call(http.MethodPost, "/api/auth/logout-all", nil, laptop["accessToken"].(string))
			Expect(status).To(Equal(http.StatusOK))
			Expect(resp["revoked"]).To(BeEquivalentTo(4))

			for _, token := range []any{phone["accessToken"], laptop["accessToken"]} {
				status, _ := call(http.MethodGet, "/api/auth/me", nil, token.(string))
				Expect(status).To(Equal(http.StatusUnauthorized))
			}
		})
	})

	Describe("login rate limiting", func() {
		It("blocks after repeated failures and reports a retry delay", func() {
			register("jane@example.com", nil)

			for range auth.DefaultMaxLoginAttempts {
				status, _ := login("jane@example.com", "Wrong1234!")
				Expect(status).To(Equal(http.StatusUnauthorized))
			}

			status, resp := login("jane@example.com", password)
			Expect(status).To(Equal(http.StatusTooManyRequests))
			Expect(resp["code"]).To(Equal(auth.CodeRateLimited))
			Expect(resp["retryAfterMinutes"]).To(BeNumerically(">", 0))
		})
	})

	Describe("password reset", func() {
		It("replaces the password and ends existing sessions", func() {
			registered := register("jane@example.com", nil)

			status, _ := call(http.MethodPost, "/api/auth/forgot-password", map[string]any{"email": "jane@example.com"}, "")
			Expect(status).To(Equal(http.StatusOK))
			_, token := outbox.tokens("jane@example.com")
			Expect(token).NotTo(BeEmpty())

			status, resp := call(http.MethodPost, "/api/auth/reset-password",
				map[string]any{"token": token, "newPassword": "Xyz98765!"}, "")
			Expect(status).To(Equal(http.StatusOK), "%v", resp)

			status, _ = call(http.MethodGet, "/api/auth/me", nil, registered["accessToken"].(string))
			Expect(status).To(Equal(http.StatusUnauthorized))

			status, _ = login("jane@example.com", password)
			Expect(status).To(Equal(http.StatusUnauthorized))
			status, _ = login("jane@example.com", "Xyz98765!")
			Expect(status).To(Equal(http.StatusOK))
		})
	})

	Describe("pruning", func() {
		It("removes sessions that are past their expiry", func() {
			register("jane@example.com", nil)

			_, err := env.pool.Exec(env.ctx, `UPDATE sessions SET expires_at = now() - interval '1 hour'`)
			Expect(err).NotTo(HaveOccurred())

			sessions, _, err := env.service.Prune(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(BeEquivalentTo(2))

			var remaining int
			Expect(env.pool.QueryRow(env.ctx, `SELECT count(*) FROM sessions`).Scan(&remaining)).To(Succeed())
			Expect(remaining).To(BeZero())
		})
	})
})
