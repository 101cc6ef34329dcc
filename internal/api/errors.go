// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/samber/oops"

	"github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/pkg/errutil"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Code              string   `json:"code"`
	Message           string   `json:"message"`
	Fields            []string `json:"fields,omitempty"`
	Details           []string `json:"details,omitempty"`
	Strength          string   `json:"strength,omitempty"`
	RetryAfterMinutes int      `json:"retryAfterMinutes,omitempty"`
}

func internalError() errorResponse {
	return errorResponse{Code: auth.CodeInternal, Message: "internal server error"}
}

// statusFor maps a public error code to its HTTP status. Unknown codes are 500.
func statusFor(code string) int {
	switch code {
	case auth.CodeMissingFields, auth.CodeTermsNotAccepted, auth.CodeInvalidEmail,
		auth.CodeWeakPassword, auth.CodeInvalidInviteCode, auth.CodeInvalidRequest,
		auth.CodeAlreadyVerified:
		return http.StatusBadRequest
	case auth.CodeInvalidCredentials, auth.CodeUnauthorized, auth.CodeInvalidToken, auth.CodeTokenExpired:
		return http.StatusUnauthorized
	case auth.CodeUserNotFound:
		return http.StatusNotFound
	case auth.CodeEmailExists:
		return http.StatusConflict
	case auth.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// tokenStatusFor is statusFor for endpoints whose token arrives in the body.
// A bad one-time token there is a bad request, not a failed authentication.
func tokenStatusFor(code string) int {
	switch code {
	case auth.CodeInvalidToken, auth.CodeTokenExpired:
		return http.StatusBadRequest
	default:
		return statusFor(code)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorStatus(w, r, err, statusFor)
}

// writeErrorStatus renders err as an errorResponse. Unexpected errors are
// logged in full and reach the client as INTERNAL_ERROR.
func (s *Server) writeErrorStatus(w http.ResponseWriter, r *http.Request, err error, status func(string) int) {
	code := auth.ErrorCode(err)
	httpStatus := status(code)
	if httpStatus == http.StatusInternalServerError {
		errutil.LogError(r.Context(), s.logger.With("method", r.Method, "path", r.URL.Path), "request failed", err)
		writeJSON(w, httpStatus, internalError())
		return
	}

	body := errorResponse{Code: code, Message: err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		ctx := oopsErr.Context()
		if fields, ok := ctx["fields"].([]string); ok {
			body.Fields = fields
		}
		if details, ok := ctx["details"].([]string); ok {
			body.Details = details
		}
		if strength, ok := ctx["strength"].(string); ok {
			body.Strength = strength
		}
		if minutes, ok := ctx["retry_after_minutes"].(int); ok {
			body.RetryAfterMinutes = minutes
		}
	}

	if httpStatus == http.StatusTooManyRequests && body.RetryAfterMinutes > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterMinutes*60))
	}
	writeJSON(w, httpStatus, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(v)
}
