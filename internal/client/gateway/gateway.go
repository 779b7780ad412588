// Package gateway issues typed backend calls against the actor of the
// current session. It keeps no state of its own.
package gateway

import (
	"context"
	"errors"

	"github.com/atinyakov/NoteLedger/internal/client/actor"
	"github.com/atinyakov/NoteLedger/internal/client/clienterr"
	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/principal"
	"go.uber.org/zap"
)

// ActorSource yields the actor of an authenticated, bound session.
type ActorSource interface {
	Actor() (actor.Actor, bool)
}

// Gateway wraps every backend call. Calls made without a ready session
// fail with clienterr.NotReady before anything is sent.
type Gateway struct {
	source ActorSource
	log    *zap.Logger
}

// New returns a gateway reading the actor from source.
func New(source ActorSource, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{source: source, log: log}
}

var errNotReady = clienterr.New(clienterr.NotReady, "session is not authenticated")

func (g *Gateway) ready() (actor.Actor, error) {
	a, ok := g.source.Actor()
	if !ok {
		return nil, errNotReady
	}
	return a, nil
}

// Notes lists the caller's notes.
func (g *Gateway) Notes(ctx context.Context) ([]models.Note, error) {
	a, err := g.ready()
	if err != nil {
		return nil, err
	}
	return a.Notes(ctx)
}

// AddNote stores a note and returns its id.
func (g *Gateway) AddNote(ctx context.Context, content string) (uint64, error) {
	a, err := g.ready()
	if err != nil {
		return 0, err
	}
	return a.AddNote(ctx, content)
}

// UpdateNote replaces a note's content.
func (g *Gateway) UpdateNote(ctx context.Context, id uint64, content string) error {
	a, err := g.ready()
	if err != nil {
		return err
	}
	return a.UpdateNote(ctx, id, content)
}

// DeleteNote removes a note.
func (g *Gateway) DeleteNote(ctx context.Context, id uint64) error {
	a, err := g.ready()
	if err != nil {
		return err
	}
	return a.DeleteNote(ctx, id)
}

// SearchNotes runs a content search.
func (g *Gateway) SearchNotes(ctx context.Context, query string) ([]models.Note, error) {
	a, err := g.ready()
	if err != nil {
		return nil, err
	}
	return a.SearchNotes(ctx, query)
}

// Balance returns the internal ledger balance.
func (g *Gateway) Balance(ctx context.Context) (uint64, error) {
	a, err := g.ready()
	if err != nil {
		return 0, err
	}
	return a.Balance(ctx)
}

// TransactionHistory returns the caller's transaction records.
func (g *Gateway) TransactionHistory(ctx context.Context) ([]models.TransactionRecord, error) {
	a, err := g.ready()
	if err != nil {
		return nil, err
	}
	return a.TransactionHistory(ctx)
}

// ExternalBalance is a speculative read. An unconfigured ledger, an
// unreachable ledger, a transport failure or a missing session all fold
// into ok == false; the failure is logged and never returned, because the
// absence of an external balance is itself the signal callers act on.
func (g *Gateway) ExternalBalance(ctx context.Context) (balance uint64, ok bool) {
	a, err := g.ready()
	if err != nil {
		return 0, false
	}
	res, err := a.ExternalBalance(ctx)
	if err != nil {
		g.log.Debug("external balance not available", zap.Error(err))
		return 0, false
	}
	balance, ok = res.Get()
	if !ok {
		g.log.Debug("external balance not available", zap.String("reason", res.Message()))
	}
	return balance, ok
}

// LedgerConfig is a speculative read of the configured external ledger id.
// Failures fold into ok == false, like ExternalBalance.
func (g *Gateway) LedgerConfig(ctx context.Context) (ledgerID principal.Principal, ok bool) {
	a, err := g.ready()
	if err != nil {
		return principal.Principal{}, false
	}
	cfg, err := a.LedgerConfig(ctx)
	if err != nil {
		g.log.Debug("no external ledger configured", zap.Error(err))
		return principal.Principal{}, false
	}
	if !cfg.Configured() {
		return principal.Principal{}, false
	}
	return *cfg.LedgerID, true
}

// SetLedgerConfig points the backend at an external ledger.
func (g *Gateway) SetLedgerConfig(ctx context.Context, ledgerID principal.Principal) (models.AckResult, error) {
	a, err := g.ready()
	if err != nil {
		return models.AckResult{}, err
	}
	return a.SetLedgerConfig(ctx, ledgerID)
}

// InternalTransfer moves tokens on the internal ledger.
func (g *Gateway) InternalTransfer(ctx context.Context, to principal.Principal, amount uint64) (models.TransferResult, error) {
	a, err := g.ready()
	if err != nil {
		return models.TransferResult{}, err
	}
	return a.InternalTransfer(ctx, to, amount)
}

// ExternalTransfer moves tokens through the external ledger.
func (g *Gateway) ExternalTransfer(ctx context.Context, to principal.Principal, amount uint64) (models.TransferResult, error) {
	a, err := g.ready()
	if err != nil {
		return models.TransferResult{}, err
	}
	return a.ExternalTransfer(ctx, to, amount)
}

// WhoAmI asks the backend which principal it sees.
func (g *Gateway) WhoAmI(ctx context.Context) (models.WhoAmIResponse, error) {
	a, err := g.ready()
	if err != nil {
		return models.WhoAmIResponse{}, err
	}
	return a.WhoAmI(ctx)
}

// IsNotReady reports whether err came from a call without a ready session.
func IsNotReady(err error) bool {
	return errors.Is(err, errNotReady)
}
