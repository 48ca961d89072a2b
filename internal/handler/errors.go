package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/featureflags"
	"github.com/yourorg/taskhub/internal/identity"
)

// FlagOpaqueTenantErrors collapses cross-tenant failures into not-found at
// the HTTP boundary, hiding whether the target exists at all. Off, the two
// stay distinct.
const FlagOpaqueTenantErrors = "OPAQUE_TENANT_ERRORS"

// writeError maps service errors onto HTTP statuses. Upstream detail never
// reaches the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	case errors.Is(err, domain.ErrNotAuthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not authorized"})
	case errors.Is(err, domain.ErrCrossTenant):
		if featureflags.Enabled(FlagOpaqueTenantErrors) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot modify users from other businesses"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, identity.ErrAccountExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "account already exists"})
	case errors.Is(err, domain.ErrUpstream):
		logger.Error("upstream failure", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream service unavailable"})
	default:
		logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}
