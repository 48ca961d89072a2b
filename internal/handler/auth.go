package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/taskhub/internal/identity"
	"github.com/yourorg/taskhub/internal/security/middleware"
	"github.com/yourorg/taskhub/internal/service"
	"github.com/yourorg/taskhub/internal/session"
)

// LoginRequest carries password sign-in credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OTPSendRequest asks for a one-time code
type OTPSendRequest struct {
	Email string `json:"email"`
}

// OTPVerifyRequest exchanges a one-time code for a session
type OTPVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// PasswordUpdateRequest sets a new password on the signed-in account
type PasswordUpdateRequest struct {
	NewPassword string `json:"newPassword"`
}

// SessionResponse is returned after a successful sign-in
type SessionResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// AuthHandler handles session establishment and teardown
type AuthHandler struct {
	gateway   *session.Gateway
	provider  identity.Provider
	directory *service.DirectoryService
	logger    *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(gateway *session.Gateway, provider identity.Provider, directory *service.DirectoryService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		gateway:   gateway,
		provider:  provider,
		directory: directory,
		logger:    logger,
	}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	sess, err := h.gateway.Establish(r.Context(), w, session.Credential{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{UserID: sess.UserID, Email: sess.Email})
}

// SendOTP handles POST /api/auth/otp/send. The response does not reveal
// whether the address has an account.
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request")
		return
	}
	if req.Email == "" {
		writeBadRequest(w, "email is required")
		return
	}

	if err := h.provider.SendOTP(r.Context(), req.Email, nil); err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
			return
		}
		h.logger.Error("failed to send one-time code", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream service unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

// VerifyOTP handles POST /api/auth/otp/verify
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request")
		return
	}
	if req.Email == "" || req.Code == "" {
		writeBadRequest(w, "email and code are required")
		return
	}

	sess, err := h.gateway.Establish(r.Context(), w, session.Credential{
		Email:   req.Email,
		OTPCode: req.Code,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{UserID: sess.UserID, Email: sess.Email})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.gateway.Destroy(r.Context(), w, r); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"loggedOut": true})
}

// UpdatePassword handles POST /api/auth/password; requires a session.
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	sc, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req PasswordUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request")
		return
	}
	if len(req.NewPassword) < 8 {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	if err := h.provider.UpdatePassword(r.Context(), sc.AccessToken, req.NewPassword); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// Me handles GET /api/auth/me; returns the caller's directory profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sc, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	profile, err := h.directory.Profile(r.Context(), sc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(profile))
}
