package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/security/middleware"
	"github.com/yourorg/taskhub/internal/service"
)

// UserResponse is the wire form of a directory profile. BusinessID is an
// empty string for unassigned users.
type UserResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	BusinessID string    `json:"businessId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// InviteRequest invites a new user by email with the chosen role
type InviteRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// RoleChangeRequest sets a user's role
type RoleChangeRequest struct {
	Role string `json:"role"`
}

// BusinessResponse is the wire form of the caller's business.
type BusinessResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// UsersHandler handles directory endpoints
type UsersHandler struct {
	directory *service.DirectoryService
	invites   *service.InviteService
	logger    *slog.Logger
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(directory *service.DirectoryService, invites *service.InviteService, logger *slog.Logger) *UsersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsersHandler{
		directory: directory,
		invites:   invites,
		logger:    logger,
	}
}

// List handles GET /api/users
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	users, err := h.directory.ListUsers(r.Context(), sc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	responses := make([]UserResponse, 0, len(users))
	for _, user := range users {
		responses = append(responses, toUserResponse(user))
	}

	writeJSON(w, http.StatusOK, responses)
}

// CurrentBusiness handles GET /api/business
func (h *UsersHandler) CurrentBusiness(w http.ResponseWriter, r *http.Request) {
	sc, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	business, err := h.directory.CurrentBusiness(r.Context(), sc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, BusinessResponse{
		ID:        business.ID,
		Name:      business.Name,
		CreatedAt: business.CreatedAt,
	})
}

// Invite handles POST /api/users/invite
func (h *UsersHandler) Invite(w http.ResponseWriter, r *http.Request) {
	sc, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request")
		return
	}
	if req.Email == "" {
		writeBadRequest(w, "email is required")
		return
	}

	role := domain.Role(req.Role)
	if !role.Valid() {
		writeBadRequest(w, "role must be admin or staff")
		return
	}

	user, err := h.invites.InviteUser(r.Context(), sc, req.Email, req.Name, role)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// ChangeRole handles PATCH /api/users/{id}/role
func (h *UsersHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	sc, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	targetID := chi.URLParam(r, "id")
	if targetID == "" {
		writeBadRequest(w, "user id is required")
		return
	}

	var req RoleChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request")
		return
	}

	role := domain.Role(req.Role)
	if !role.Valid() {
		writeBadRequest(w, "role must be admin or staff")
		return
	}

	if err := h.directory.ChangeUserRole(r.Context(), sc, targetID, role); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func toUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		Role:       string(user.Role),
		BusinessID: user.BusinessID,
		CreatedAt:  user.CreatedAt,
	}
}
