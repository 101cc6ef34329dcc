// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"errors"
	"strings"

	"github.com/samber/oops"

	"github.com/hearthly/hearth/pkg/errutil"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by stores when an account with the same email exists.
var ErrEmailTaken = errors.New("email already registered")

// ErrInviteCodeTaken is returned by stores when a family invite code collides.
var ErrInviteCodeTaken = errors.New("invite code already in use")

// Error codes surfaced to API clients.
const (
	CodeMissingFields      = "MISSING_FIELDS"
	CodeTermsNotAccepted   = "TERMS_NOT_ACCEPTED"
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodeWeakPassword       = "WEAK_PASSWORD"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeAlreadyVerified    = "ALREADY_VERIFIED"
	CodeInvalidInviteCode  = "INVALID_INVITE_CODE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrMissingFields creates an error listing the required fields that were empty.
func ErrMissingFields(fields ...string) error {
	return oops.Code(CodeMissingFields).
		With("fields", fields).
		Errorf("missing required fields: %s", strings.Join(fields, ", "))
}

// ErrTermsNotAccepted creates an error for registrations without terms acceptance.
func ErrTermsNotAccepted() error {
	return oops.Code(CodeTermsNotAccepted).Errorf("you must accept the terms of service")
}

// ErrInvalidEmail creates an error for a malformed email address.
func ErrInvalidEmail() error {
	return oops.Code(CodeInvalidEmail).Errorf("email address is not valid")
}

// ErrWeakPassword creates an error carrying the unmet policy rules and the strength band.
func ErrWeakPassword(result PolicyResult) error {
	return oops.Code(CodeWeakPassword).
		With("details", result.Errors).
		With("strength", string(result.Strength)).
		Errorf("password does not meet the requirements")
}

// ErrEmailExists creates an error for a duplicate registration.
func ErrEmailExists() error {
	return oops.Code(CodeEmailExists).Errorf("an account with this email already exists")
}

// ErrRateLimited creates an error for a login blocked by the attempt window.
func ErrRateLimited(retryAfterMinutes int) error {
	return oops.Code(CodeRateLimited).
		With("retry_after_minutes", retryAfterMinutes).
		Errorf("too many login attempts, try again in %d minutes", retryAfterMinutes)
}

// ErrInvalidCredentials creates the generic login failure. It never says which factor failed.
func ErrInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

// ErrInvalidToken creates an error for an unknown or unusable token.
func ErrInvalidToken() error {
	return oops.Code(CodeInvalidToken).Errorf("token is invalid")
}

// ErrTokenExpired creates an error for a token past its expiry.
func ErrTokenExpired() error {
	return oops.Code(CodeTokenExpired).Errorf("token has expired")
}

// ErrUserNotFound creates an error for a missing account.
func ErrUserNotFound() error {
	return oops.Code(CodeUserNotFound).Errorf("user not found")
}

// ErrAlreadyVerified creates an error for verification requests on verified accounts.
func ErrAlreadyVerified() error {
	return oops.Code(CodeAlreadyVerified).Errorf("email is already verified")
}

// ErrInvalidInviteCode creates an error for an unknown family invite code.
func ErrInvalidInviteCode() error {
	return oops.Code(CodeInvalidInviteCode).Errorf("invite code is not valid")
}

// ErrUnauthorized creates an error for a request without a usable bearer token.
func ErrUnauthorized() error {
	return oops.Code(CodeUnauthorized).Errorf("authentication required")
}

// ErrInvalidRequest creates an error for a body that could not be decoded.
// The decoder error is kept in the context, not the message.
func ErrInvalidRequest(cause error) error {
	return oops.Code(CodeInvalidRequest).
		With("cause", cause.Error()).
		Errorf("request body is not valid JSON")
}

// ErrorCode returns the oops code of err, or "" when err carries none.
func ErrorCode(err error) string {
	return errutil.Code(err)
}
