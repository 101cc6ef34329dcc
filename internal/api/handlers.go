// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hearthly/hearth/internal/auth"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// forgotPasswordMessage is returned for every well-formed forgot-password
// request, whether or not the email has an account.
const forgotPasswordMessage = "If an account exists for that email, a password reset link has been sent."

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	FamilyName  string `json:"familyName"`
	InviteCode  string `json:"inviteCode"`
	AcceptTerms bool   `json:"acceptTerms"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	Password    string `json:"password"`
	NewPassword string `json:"newPassword"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type userResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"displayName"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	FamilyID      string    `json:"familyId"`
	Permissions   []string  `json:"permissions"`
	CreatedAt     time.Time `json:"createdAt"`
}

type familyResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InviteCode string `json:"inviteCode,omitempty"`
}

type authResponse struct {
	AccessToken               string       `json:"accessToken"`
	RefreshToken              string       `json:"refreshToken"`
	ExpiresIn                 int64        `json:"expiresIn"`
	RequiresEmailVerification bool         `json:"requiresEmailVerification"`
	User                      userResponse `json:"user"`
}

type meResponse struct {
	User   userResponse    `json:"user"`
	Family *familyResponse `json:"family"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type logoutAllResponse struct {
	Message string `json:"message"`
	Revoked int64  `json:"revoked"`
}

type verifyEmailResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type passwordPolicyResponse struct {
	Rules   []auth.PolicyRule `json:"rules"`
	Symbols string            `json:"symbols"`
}

func newUserResponse(account *auth.Account, permissions []string) userResponse {
	if permissions == nil {
		permissions = []string{}
	}
	return userResponse{
		ID:            account.ID.String(),
		Email:         account.Email,
		Username:      account.Username,
		DisplayName:   account.DisplayName,
		Role:          string(account.Role),
		EmailVerified: account.EmailVerified,
		FamilyID:      account.FamilyID.String(),
		Permissions:   permissions,
		CreatedAt:     account.CreatedAt,
	}
}

func newAuthResponse(result *auth.AuthResult) authResponse {
	return authResponse{
		AccessToken:               result.AccessToken,
		RefreshToken:              result.RefreshToken,
		ExpiresIn:                 int64(result.ExpiresIn / time.Second),
		RequiresEmailVerification: result.RequiresEmailVerification,
		User:                      newUserResponse(result.Account, result.Permissions),
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged so
// that missing fields are reported by the service.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return auth.ErrInvalidRequest(err)
	}
	return nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.service.Register(r.Context(), auth.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		FamilyName:  req.FamilyName,
		InviteCode:  req.InviteCode,
		AcceptTerms: req.AcceptTerms,
		Client:      s.clientInfo(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAuthResponse(result))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.service.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Client:   s.clientInfo(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(result))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.service.Refresh(r.Context(), req.RefreshToken, s.clientInfo(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(result))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.service.Logout(r.Context(), session, req.RefreshToken); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	revoked, err := s.service.LogoutAll(r.Context(), session)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logoutAllResponse{Message: "logged out of all devices", Revoked: revoked})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	account, err := s.service.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		s.writeErrorStatus(w, r, err, tokenStatusFor)
		return
	}
	writeJSON(w, http.StatusOK, verifyEmailResponse{
		Message: "email verified",
		User:    newUserResponse(account, s.service.Permissions(account.Role)),
	})
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	if err := s.service.ResendVerification(r.Context(), session); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "verification email sent"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.service.ForgotPassword(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: forgotPasswordMessage})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	password := req.NewPassword
	if password == "" {
		password = req.Password
	}
	if err := s.service.ResetPassword(r.Context(), req.Token, password); err != nil {
		s.writeErrorStatus(w, r, err, tokenStatusFor)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password has been reset"})
}

func (s *Server) handlePasswordPolicy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, passwordPolicyResponse{
		Rules:   auth.PolicyRules(),
		Symbols: auth.PasswordSymbols,
	})
}

func (s *Server) handleValidatePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, auth.ValidatePassword(req.Password))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	profile, err := s.service.Me(r.Context(), session)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := meResponse{User: newUserResponse(profile.Account, profile.Permissions)}
	if profile.Family != nil {
		resp.Family = &familyResponse{
			ID:   profile.Family.ID.String(),
			Name: profile.Family.Name,
		}
		if session.Role == auth.RoleAdmin {
			resp.Family.InviteCode = profile.Family.InviteCode
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
