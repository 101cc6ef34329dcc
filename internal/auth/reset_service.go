// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/hearthly/hearth/pkg/errutil"
)

// ForgotPassword starts a password reset. The result is the same whether or
// not the email belongs to an account.
func (s *Service) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.ForgotPassword")
	defer s.finish(span, "forgot_password", time.Now(), &err)

	email = NormalizeEmail(email)
	if email == "" {
		return ErrMissingFields("email")
	}

	account, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}

	token, tokenHash, err := issueToken()
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	grant := &TokenGrant{Hash: tokenHash, ExpiresAt: s.now().Add(s.cfg.ResetTokenTTL)}
	if err := s.store.UpdateAccount(ctx, account.ID, AccountUpdate{Reset: grant}); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "store reset token").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	if err := s.notifier.SendPasswordReset(ctx, account, token); err != nil {
		errutil.LogError(ctx, s.logger, "failed to send password reset token", err)
	}
	return nil
}

// ResetPassword sets a new password using a reset token.
// The password change consumes the token, so of concurrent resets with one
// token only the first succeeds. Sessions are revoked after the new hash is
// stored.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.ResetPassword")
	defer s.finish(span, "reset_password", time.Now(), &err)

	if missing := missingFields("token", token, "password", newPassword); len(missing) > 0 {
		return ErrMissingFields(missing...)
	}
	if policy := ValidatePassword(newPassword); !policy.Valid {
		return ErrWeakPassword(policy)
	}

	tokenHash := HashToken(token)
	account, err := s.store.GetAccountByResetToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken()
		}
		return oops.Code("RESET_FAILED").
			With("operation", "get account by reset token").
			Wrap(err)
	}
	if account.Reset == nil {
		return ErrInvalidToken()
	}
	if account.Reset.IsExpiredAt(s.now()) {
		return ErrTokenExpired()
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_FAILED").With("operation", "hash password").Wrap(err)
	}

	accountID, err := s.store.ConsumeResetToken(ctx, tokenHash, newHash, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken()
		}
		return oops.Code("RESET_FAILED").
			With("operation", "consume reset token").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	revoked, err := s.store.DeleteSessionsByAccount(ctx, accountID)
	if err != nil {
		return oops.Code("RESET_FAILED").
			With("operation", "delete sessions by account").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset",
		"account_id", accountID.String(),
		"sessions_revoked", revoked,
	)
	return nil
}

// VerifyEmail marks the account holding the verification token as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (account *Account, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.VerifyEmail")
	defer s.finish(span, "verify_email", time.Now(), &err)

	if token == "" {
		return nil, ErrMissingFields("token")
	}

	account, err = s.store.GetAccountByVerificationToken(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken()
		}
		return nil, oops.Code("VERIFY_FAILED").
			With("operation", "get account by verification token").
			Wrap(err)
	}
	if account.EmailVerified {
		return nil, ErrAlreadyVerified()
	}
	if account.Verification == nil {
		return nil, ErrInvalidToken()
	}
	if account.Verification.IsExpiredAt(s.now()) {
		return nil, ErrTokenExpired()
	}

	verified := true
	update := AccountUpdate{EmailVerified: &verified, ClearVerification: true}
	if err := s.store.UpdateAccount(ctx, account.ID, update); err != nil {
		return nil, oops.Code("VERIFY_FAILED").
			With("operation", "mark verified").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	update.Apply(account)

	s.logger.InfoContext(ctx, "email verified", "account_id", account.ID.String())
	return account, nil
}

// ResendVerification issues a fresh verification token to the caller,
// replacing any pending one.
func (s *Service) ResendVerification(ctx context.Context, current *Session) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.ResendVerification")
	defer s.finish(span, "resend_verification", time.Now(), &err)

	account, err := s.store.GetAccountByID(ctx, current.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound()
		}
		return oops.Code("VERIFY_RESEND_FAILED").With("operation", "get account").Wrap(err)
	}
	if account.EmailVerified {
		return ErrAlreadyVerified()
	}

	token, tokenHash, err := issueToken()
	if err != nil {
		return oops.Code("VERIFY_RESEND_FAILED").
			With("operation", "generate verification token").
			Wrap(err)
	}

	grant := &TokenGrant{Hash: tokenHash, ExpiresAt: s.now().Add(s.cfg.VerificationTokenTTL)}
	if err := s.store.UpdateAccount(ctx, account.ID, AccountUpdate{Verification: grant}); err != nil {
		return oops.Code("VERIFY_RESEND_FAILED").
			With("operation", "store verification token").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	if err := s.notifier.SendVerification(ctx, account, token); err != nil {
		errutil.LogError(ctx, s.logger, "failed to send verification token", err)
	}
	return nil
}
