// Package http provides HTTP routing and middleware configuration
// for the NoteLedger service.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/atinyakov/NoteLedger/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves
// the NoteLedger API. It applies JSON content-type enforcement,
// request logging, metrics and certificate-based caller identification,
// and mounts the identity, note and token endpoints under /api.
//
// Parameters:
//
//	authHandler  - handler for registration and whoami
//	noteHandler  - handler for note CRUD and search
//	tokenHandler - handler for balances, history, ledger config and transfers
//	metrics      - request and transfer metrics, served to certificate holders on /metrics (may be nil)
//	limiter      - per-principal limit on transfer routes (may be nil)
//	logger       - structured logger for request logging middleware
//
// Middleware chain (applied in order):
//  1. RequestID, Recoverer
//  2. AllowContentType("application/json"): rejects non-JSON bodies
//  3. WithRequestLogging(logger): logs incoming requests
//  4. metrics.Middleware: counts requests per route
//  5. CertAuth: derives the caller principal
func NewRouter(
	authHandler *AuthHandler,
	noteHandler *NoteHandler,
	tokenHandler *TokenHandler,
	metrics *middleware.Metrics,
	limiter *middleware.PrincipalLimiter,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	// Only allow requests with Content-Type: application/json
	r.Use(chiMiddleware.AllowContentType("application/json"))

	r.Use(middleware.WithRequestLogging(logger))
	if metrics != nil {
		r.Use(metrics.Middleware)
	}
	r.Use(middleware.CertAuth)

	if metrics != nil {
		r.With(middleware.RequireCertificate).Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Get("/whoami", authHandler.WhoAmI)

		r.Route("/notes", func(r chi.Router) {
			r.Get("/", noteHandler.List)
			r.Post("/", noteHandler.Add)
			r.Get("/search", noteHandler.Search)
			r.Put("/{id}", noteHandler.Update)
			r.Delete("/{id}", noteHandler.Delete)
		})

		r.Get("/balance", tokenHandler.Balance)
		r.Get("/transactions", tokenHandler.History)
		r.Get("/ledger/balance", tokenHandler.ExternalBalance)
		r.Get("/ledger/config", tokenHandler.LedgerConfig)
		r.Put("/ledger/config", tokenHandler.SetLedgerConfig)

		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Middleware)
			}
			r.Post("/transfers/internal", tokenHandler.InternalTransfer)
			r.Post("/transfers/external", tokenHandler.ExternalTransfer)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
