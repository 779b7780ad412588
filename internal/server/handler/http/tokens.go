package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/NoteLedger/internal/middleware"
	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/principal"
	"go.uber.org/zap"
)

// TokenService defines the ledger operations required by TokenHandler.
type TokenService interface {
	Balance(ctx context.Context, caller principal.Principal) (uint64, error)
	History(ctx context.Context, caller principal.Principal, kind *models.LedgerKind) ([]models.TransactionRecord, error)
	Transfer(ctx context.Context, caller, to principal.Principal, amount uint64) (models.TransferResult, error)
	LedgerConfig(ctx context.Context) (models.LedgerConfig, error)
	SetLedgerConfig(ctx context.Context, caller, ledgerID principal.Principal) (models.AckResult, error)
	ExternalBalance(ctx context.Context, caller principal.Principal) (models.BalanceResult, error)
	ExternalTransfer(ctx context.Context, caller, to principal.Principal, amount uint64) (models.TransferResult, error)
}

// TokenHandler serves balances, history, ledger configuration and transfers.
type TokenHandler struct {
	TokenService TokenService
	// Metrics, if set, counts transfer outcomes.
	Metrics *middleware.Metrics
	Logger  *zap.Logger
}

// Balance handles GET /api/balance.
func (h *TokenHandler) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.TokenService.Balance(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		h.internalError(w, "balance", err)
		return
	}
	writeJSON(w, models.BalanceResponse{Balance: balance})
}

// History handles GET /api/transactions with an optional ?kind= filter.
func (h *TokenHandler) History(w http.ResponseWriter, r *http.Request) {
	var kind *models.LedgerKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, err := models.ParseLedgerKind(raw)
		if err != nil {
			http.Error(w, "invalid kind", http.StatusBadRequest)
			return
		}
		kind = &k
	}

	records, err := h.TokenService.History(r.Context(), middleware.PrincipalFromContext(r.Context()), kind)
	if err != nil {
		h.internalError(w, "history", err)
		return
	}
	writeJSON(w, records)
}

// LedgerConfig handles GET /api/ledger/config.
func (h *TokenHandler) LedgerConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.TokenService.LedgerConfig(r.Context())
	if err != nil {
		h.internalError(w, "ledger config", err)
		return
	}
	writeJSON(w, cfg)
}

// SetLedgerConfig handles PUT /api/ledger/config.
func (h *TokenHandler) SetLedgerConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.LedgerConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil || !cfg.Configured() {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	ack, err := h.TokenService.SetLedgerConfig(r.Context(), middleware.PrincipalFromContext(r.Context()), *cfg.LedgerID)
	if err != nil {
		h.internalError(w, "set ledger config", err)
		return
	}
	writeJSON(w, ack)
}

// ExternalBalance handles GET /api/ledger/balance.
func (h *TokenHandler) ExternalBalance(w http.ResponseWriter, r *http.Request) {
	res, err := h.TokenService.ExternalBalance(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		h.internalError(w, "external balance", err)
		return
	}
	writeJSON(w, res)
}

// InternalTransfer handles POST /api/transfers/internal.
func (h *TokenHandler) InternalTransfer(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, models.Internal, h.TokenService.Transfer)
}

// ExternalTransfer handles POST /api/transfers/external.
func (h *TokenHandler) ExternalTransfer(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, models.External, h.TokenService.ExternalTransfer)
}

type transferFunc func(ctx context.Context, caller, to principal.Principal, amount uint64) (models.TransferResult, error)

func (h *TokenHandler) transfer(w http.ResponseWriter, r *http.Request, kind models.LedgerKind, do transferFunc) {
	var args models.TransferArgs
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil || len(args.To.Bytes()) == 0 {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	res, err := do(r.Context(), middleware.PrincipalFromContext(r.Context()), args.To, args.Amount)
	if err != nil {
		h.Metrics.ObserveTransfer(kind.String(), "error")
		h.internalError(w, "transfer", err)
		return
	}
	outcome := "ok"
	if !res.IsOk() {
		outcome = string(res.Err().Tag)
	}
	h.Metrics.ObserveTransfer(kind.String(), outcome)
	writeJSON(w, res)
}

func (h *TokenHandler) internalError(w http.ResponseWriter, op string, err error) {
	if h.Logger != nil {
		h.Logger.Error(op+" failed", zap.Error(err))
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}
