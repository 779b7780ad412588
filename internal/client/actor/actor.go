// Package actor provides typed remote-call stubs bound to one identity.
// An Actor issues every backend operation as a single request/response
// round trip and never retries.
package actor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/principal"
	"go.uber.org/zap"
)

// Endpoint describes where the backend lives and how to trust it.
type Endpoint struct {
	// BaseURL is the backend root, e.g. https://localhost:8080.
	BaseURL string
	// CAFile is the PEM bundle used to verify the backend certificate.
	CAFile string
	// Timeout bounds one round trip. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout is the HTTP client timeout when the endpoint sets none.
const DefaultTimeout = 10 * time.Second

// Actor is the set of backend calls available to a bound identity.
type Actor interface {
	Notes(ctx context.Context) ([]models.Note, error)
	AddNote(ctx context.Context, content string) (uint64, error)
	UpdateNote(ctx context.Context, id uint64, content string) error
	DeleteNote(ctx context.Context, id uint64) error
	SearchNotes(ctx context.Context, query string) ([]models.Note, error)

	Balance(ctx context.Context) (uint64, error)
	TransactionHistory(ctx context.Context) ([]models.TransactionRecord, error)
	ExternalBalance(ctx context.Context) (models.BalanceResult, error)
	LedgerConfig(ctx context.Context) (models.LedgerConfig, error)
	SetLedgerConfig(ctx context.Context, ledgerID principal.Principal) (models.AckResult, error)
	InternalTransfer(ctx context.Context, to principal.Principal, amount uint64) (models.TransferResult, error)
	ExternalTransfer(ctx context.Context, to principal.Principal, amount uint64) (models.TransferResult, error)

	WhoAmI(ctx context.Context) (models.WhoAmIResponse, error)
}

// API paths served by the backend.
const (
	PathNotes            = "/api/notes"
	PathNotesSearch      = "/api/notes/search"
	PathBalance          = "/api/balance"
	PathTransactions     = "/api/transactions"
	PathLedgerBalance    = "/api/ledger/balance"
	PathLedgerConfig     = "/api/ledger/config"
	PathInternalTransfer = "/api/transfers/internal"
	PathExternalTransfer = "/api/transfers/external"
	PathWhoAmI           = "/api/whoami"
	PathRegister         = "/api/register"
)

// HTTPActor implements Actor over JSON/HTTPS.
type HTTPActor struct {
	client  *http.Client
	baseURL string
	log     *zap.Logger
}

// NewHTTPActor binds an actor to an HTTP client. The client carries the
// identity (its TLS client certificate, if any).
func NewHTTPActor(client *http.Client, baseURL string, log *zap.Logger) *HTTPActor {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPActor{client: client, baseURL: baseURL, log: log}
}

// Notes lists the caller's notes.
func (a *HTTPActor) Notes(ctx context.Context) ([]models.Note, error) {
	var notes []models.Note
	err := a.call(ctx, http.MethodGet, PathNotes, nil, &notes)
	return notes, err
}

// AddNote stores a new note and returns its id.
func (a *HTTPActor) AddNote(ctx context.Context, content string) (uint64, error) {
	var res struct {
		Ok  *uint64 `json:"Ok"`
		Err *string `json:"Err"`
	}
	if err := a.call(ctx, http.MethodPost, PathNotes, map[string]string{"content": content}, &res); err != nil {
		return 0, err
	}
	if res.Err != nil {
		return 0, fmt.Errorf("add note rejected: %s", *res.Err)
	}
	if res.Ok == nil {
		return 0, fmt.Errorf("add note: %w", models.ErrUnknownShape)
	}
	return *res.Ok, nil
}

// UpdateNote replaces the content of a note.
func (a *HTTPActor) UpdateNote(ctx context.Context, id uint64, content string) error {
	path := PathNotes + "/" + strconv.FormatUint(id, 10)
	return a.call(ctx, http.MethodPut, path, map[string]string{"content": content}, nil)
}

// DeleteNote removes a note.
func (a *HTTPActor) DeleteNote(ctx context.Context, id uint64) error {
	path := PathNotes + "/" + strconv.FormatUint(id, 10)
	return a.call(ctx, http.MethodDelete, path, nil, nil)
}

// SearchNotes returns notes whose content contains query, ignoring case.
func (a *HTTPActor) SearchNotes(ctx context.Context, query string) ([]models.Note, error) {
	var notes []models.Note
	path := PathNotesSearch + "?" + url.Values{"q": {query}}.Encode()
	err := a.call(ctx, http.MethodGet, path, nil, &notes)
	return notes, err
}

// Balance returns the caller's internal ledger balance.
func (a *HTTPActor) Balance(ctx context.Context) (uint64, error) {
	var res models.BalanceResponse
	err := a.call(ctx, http.MethodGet, PathBalance, nil, &res)
	return res.Balance, err
}

// TransactionHistory returns every record the caller took part in.
func (a *HTTPActor) TransactionHistory(ctx context.Context) ([]models.TransactionRecord, error) {
	var records []models.TransactionRecord
	err := a.call(ctx, http.MethodGet, PathTransactions, nil, &records)
	return records, err
}

// ExternalBalance queries the caller's balance on the configured external ledger.
func (a *HTTPActor) ExternalBalance(ctx context.Context) (models.BalanceResult, error) {
	var res models.BalanceResult
	err := a.call(ctx, http.MethodGet, PathLedgerBalance, nil, &res)
	return res, err
}

// LedgerConfig returns the configured external ledger, if any.
func (a *HTTPActor) LedgerConfig(ctx context.Context) (models.LedgerConfig, error) {
	var cfg models.LedgerConfig
	err := a.call(ctx, http.MethodGet, PathLedgerConfig, nil, &cfg)
	return cfg, err
}

// SetLedgerConfig points the backend at an external ledger.
func (a *HTTPActor) SetLedgerConfig(ctx context.Context, ledgerID principal.Principal) (models.AckResult, error) {
	var res models.AckResult
	err := a.call(ctx, http.MethodPut, PathLedgerConfig, models.LedgerConfig{LedgerID: &ledgerID}, &res)
	return res, err
}

// InternalTransfer moves tokens on the backend's own ledger.
func (a *HTTPActor) InternalTransfer(ctx context.Context, to principal.Principal, amount uint64) (models.TransferResult, error) {
	var res models.TransferResult
	err := a.call(ctx, http.MethodPost, PathInternalTransfer, models.TransferArgs{To: to, Amount: amount}, &res)
	return res, err
}

// ExternalTransfer moves tokens through the configured external ledger.
func (a *HTTPActor) ExternalTransfer(ctx context.Context, to principal.Principal, amount uint64) (models.TransferResult, error) {
	var res models.TransferResult
	err := a.call(ctx, http.MethodPost, PathExternalTransfer, models.TransferArgs{To: to, Amount: amount}, &res)
	return res, err
}

// WhoAmI returns the principal the backend associates with this actor.
func (a *HTTPActor) WhoAmI(ctx context.Context) (models.WhoAmIResponse, error) {
	var res models.WhoAmIResponse
	err := a.call(ctx, http.MethodGet, PathWhoAmI, nil, &res)
	return res, err
}

// call performs one JSON round trip. A nil out discards the response body.
func (a *HTTPActor) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()
	a.log.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from %s: %w", path, err)
	}
	return nil
}
