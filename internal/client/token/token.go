// Package token reconciles the internal and external ledger balances and
// executes transfers against either ledger.
//
// The backend is the only source of truth. Locally held balances are used
// for the pre-flight check of the very next transfer and nothing else;
// every successful mutation re-fetches all token state before returning.
package token

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/atinyakov/NoteLedger/internal/client/clienterr"
	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/principal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Gateway is the subset of backend calls the orchestrator needs.
type Gateway interface {
	Balance(ctx context.Context) (uint64, error)
	TransactionHistory(ctx context.Context) ([]models.TransactionRecord, error)
	// ExternalBalance and LedgerConfig are speculative: failures come back
	// as ok == false.
	ExternalBalance(ctx context.Context) (uint64, bool)
	LedgerConfig(ctx context.Context) (principal.Principal, bool)
	SetLedgerConfig(ctx context.Context, ledgerID principal.Principal) (models.AckResult, error)
	InternalTransfer(ctx context.Context, to principal.Principal, amount uint64) (models.TransferResult, error)
	ExternalTransfer(ctx context.Context, to principal.Principal, amount uint64) (models.TransferResult, error)
}

// Snapshot is the reconciled token view.
type Snapshot struct {
	Internal uint64
	// External is meaningful only when ExternalPresent is true.
	External        uint64
	ExternalPresent bool
	History         []models.TransactionRecord
	// LedgerID is meaningful only when LedgerConfigured is true.
	LedgerID         principal.Principal
	LedgerConfigured bool
}

// Orchestrator holds the token view and runs transfers.
type Orchestrator struct {
	gw  Gateway
	log *zap.Logger

	// At most one outstanding transfer and one outstanding ledger change.
	transfers *semaphore.Weighted
	configs   *semaphore.Weighted

	mu      sync.RWMutex
	state   Snapshot
	pending *models.TransferRequest
}

// New creates an orchestrator with an empty view.
func New(gw Gateway, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		gw:        gw,
		log:       log,
		transfers: semaphore.NewWeighted(1),
		configs:   semaphore.NewWeighted(1),
	}
}

// Snapshot returns a copy of the current view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := o.state
	s.History = append([]models.TransactionRecord(nil), o.state.History...)
	return s
}

// ExternalAvailable reports whether external-ledger transfers can be offered.
func (o *Orchestrator) ExternalAvailable() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.ExternalPresent
}

// CanConfigureLedger reports whether the "configure ledger" affordance
// should be offered, i.e. no external ledger id is known yet.
func (o *Orchestrator) CanConfigureLedger() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return !o.state.LedgerConfigured
}

// Pending returns the transfer request being worked on, if any.
func (o *Orchestrator) Pending() (models.TransferRequest, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.pending == nil {
		return models.TransferRequest{}, false
	}
	return *o.pending, true
}

// Refresh re-fetches all token state. The internal balance and history are
// mandatory: if either fails, FetchFailed is returned and the previous view
// stays in place. The external balance and ledger config are speculative
// and only ever resolve to present or absent.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	internal, err := o.gw.Balance(ctx)
	if err != nil {
		return fetchFailed("balance", err)
	}
	history, err := o.gw.TransactionHistory(ctx)
	if err != nil {
		return fetchFailed("transaction history", err)
	}
	external, externalOK := o.gw.ExternalBalance(ctx)
	ledgerID, ledgerOK := o.gw.LedgerConfig(ctx)

	o.mu.Lock()
	o.state = Snapshot{
		Internal:         internal,
		External:         external,
		ExternalPresent:  externalOK,
		History:          history,
		LedgerID:         ledgerID,
		LedgerConfigured: ledgerOK,
	}
	o.mu.Unlock()

	o.log.Debug("token state refreshed",
		zap.Uint64("internal", internal),
		zap.Bool("external_present", externalOK),
		zap.Int("history", len(history)),
	)
	return nil
}

// ConfigureExternalLedger points the backend at the ledger named by idText
// and refreshes on success.
func (o *Orchestrator) ConfigureExternalLedger(ctx context.Context, idText string) error {
	ledgerID, err := principal.FromText(strings.TrimSpace(idText))
	if err != nil {
		return clienterr.Wrap(clienterr.InvalidFormat, err)
	}
	if !o.configs.TryAcquire(1) {
		return clienterr.New(clienterr.Busy, "ledger configuration in progress")
	}
	defer o.configs.Release(1)

	res, err := o.gw.SetLedgerConfig(ctx, ledgerID)
	if err != nil {
		if clienterr.IsKind(err, clienterr.NotReady) {
			return err
		}
		return clienterr.Wrap(clienterr.ConfigurationRejected, err)
	}
	if !res.IsOk() {
		return clienterr.New(clienterr.ConfigurationRejected, res.Message())
	}
	o.log.Info("external ledger configured", zap.String("ledger", ledgerID.Text()))
	return o.Refresh(ctx)
}

// Transfer validates req against the current view and, when every
// pre-flight check passes, dispatches it to the ledger its kind selects.
// Pre-flight failures never reach the network. A backend Err result is
// mapped onto the taxonomy and leaves the view untouched; a success clears
// the pending request and refreshes before returning.
func (o *Orchestrator) Transfer(ctx context.Context, req models.TransferRequest) error {
	if !o.transfers.TryAcquire(1) {
		return clienterr.New(clienterr.Busy, "transfer in progress")
	}
	defer o.transfers.Release(1)

	o.mu.Lock()
	o.pending = &req
	view := o.state
	o.mu.Unlock()

	to, amount, err := preflight(req, view)
	if err != nil {
		return err
	}

	var res models.TransferResult
	switch req.Kind {
	case models.External:
		res, err = o.gw.ExternalTransfer(ctx, to, amount)
	default:
		res, err = o.gw.InternalTransfer(ctx, to, amount)
	}
	if err != nil {
		if clienterr.IsKind(err, clienterr.NotReady) {
			return err
		}
		o.log.Warn("transfer call failed", zap.Stringer("kind", req.Kind), zap.Error(err))
		return clienterr.Wrap(clienterr.TransferFailed, err)
	}
	if !res.IsOk() {
		mapped := clienterr.FromTransferError(*res.Err())
		o.log.Info("transfer rejected", zap.Stringer("kind", req.Kind), zap.Stringer("reason", mapped.Kind))
		return mapped
	}

	o.log.Info("transfer completed",
		zap.Stringer("kind", req.Kind),
		zap.String("to", to.Text()),
		zap.Uint64("amount", amount),
		zap.String("tx", res.Value()),
	)
	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
	return o.Refresh(ctx)
}

// preflight runs the client-side checks in order and stops at the first
// failure. They are advisory: the backend decides the actual outcome.
func preflight(req models.TransferRequest, view Snapshot) (principal.Principal, uint64, error) {
	recipient := strings.TrimSpace(req.Recipient)
	amountText := strings.TrimSpace(req.Amount)
	if recipient == "" {
		return principal.Principal{}, 0, clienterr.New(clienterr.InvalidPrincipalFormat, "recipient is required")
	}
	if amountText == "" {
		return principal.Principal{}, 0, clienterr.New(clienterr.InvalidAmount, "amount is required")
	}

	parsed, err := strconv.ParseInt(amountText, 10, 64)
	if err != nil || parsed <= 0 {
		return principal.Principal{}, 0, clienterr.New(clienterr.InvalidAmount, fmt.Sprintf("%q is not a positive integer", amountText))
	}
	amount := uint64(parsed)

	available := view.Internal
	if req.Kind == models.External {
		if !view.ExternalPresent {
			return principal.Principal{}, 0, clienterr.New(clienterr.ExternalLedgerUnavailable, "configure an external ledger first")
		}
		available = view.External
	}
	if amount > available {
		return principal.Principal{}, 0, clienterr.New(clienterr.InsufficientBalance,
			fmt.Sprintf("requested %d, available %d", amount, available))
	}

	to, err := principal.FromText(recipient)
	if err != nil {
		return principal.Principal{}, 0, clienterr.Wrap(clienterr.InvalidPrincipalFormat, err)
	}
	return to, amount, nil
}

func fetchFailed(what string, err error) error {
	if clienterr.IsKind(err, clienterr.NotReady) {
		return err
	}
	return &clienterr.Error{Kind: clienterr.FetchFailed, Msg: what + ": " + err.Error(), Err: err}
}
