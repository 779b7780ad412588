// Package http provides HTTP handlers for identity registration
// and caller introspection.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/NoteLedger/internal/middleware"
	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/service"
)

// AuthService defines the interface for identity operations
// required by the HTTP handlers.
type AuthService interface {
	// Register issues a client certificate for a new device label.
	Register(ctx context.Context, label string) (models.RegisterResponse, error)
}

// AuthHandler handles HTTP requests for registration and whoami.
type AuthHandler struct {
	// AuthService performs the underlying identity operations.
	AuthService AuthService
}

// RegisterRequest represents the JSON payload for registration.
type RegisterRequest struct {
	// Login is the device label to register.
	Login string `json:"login"`
}

// Register handles registration requests.
// It expects a JSON body with a non-empty "login" field and returns the
// PEM-encoded certificate, private key and the resulting principal.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Login == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	res, err := h.AuthService.Register(r.Context(), req.Login)
	switch {
	case errors.Is(err, service.ErrInvalidLabel):
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	case errors.Is(err, service.ErrLabelTaken):
		http.Error(w, "login already registered", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "failed to issue certificate", http.StatusInternalServerError)
		return
	}

	writeJSON(w, res)
}

// WhoAmI reports the principal the backend derived from the caller's
// certificate.
func (h *AuthHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	writeJSON(w, models.WhoAmIResponse{Principal: p, Authenticated: !p.IsAnonymous()})
}
