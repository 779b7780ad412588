// Package ledger talks to external ICRC-style token ledgers over JSON/HTTP.
//
// Each ledger is identified by a principal and reached through a base URL
// from the server configuration. Two calls are used: icrc1_balance_of and
// icrc1_transfer.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/principal"
	"go.uber.org/zap"
)

// ErrUnknownLedger is returned for a ledger principal with no configured URL.
var ErrUnknownLedger = errors.New("unknown ledger")

// Account is an ICRC account; subaccounts are not used.
type Account struct {
	Owner      principal.Principal `json:"owner"`
	Subaccount []byte              `json:"subaccount"`
}

// TransferArgs is the icrc1_transfer request.
type TransferArgs struct {
	From          Account `json:"from"`
	To            Account `json:"to"`
	Amount        uint64  `json:"amount"`
	Fee           *uint64 `json:"fee"`
	Memo          []byte  `json:"memo"`
	CreatedAtTime *uint64 `json:"created_at_time"`
}

// Registry resolves ledger principals to endpoints and performs the calls.
type Registry struct {
	urls   map[string]string
	client *http.Client
	log    *zap.Logger
}

// NewRegistry validates entries (ledger principal text → base URL).
func NewRegistry(entries map[string]string, client *http.Client, log *zap.Logger) (*Registry, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	urls := make(map[string]string, len(entries))
	for id, base := range entries {
		p, err := principal.FromText(id)
		if err != nil {
			return nil, fmt.Errorf("ledger %q: %w", id, err)
		}
		if base == "" {
			return nil, fmt.Errorf("ledger %q: empty URL", id)
		}
		urls[p.Text()] = base
	}
	return &Registry{urls: urls, client: client, log: log}, nil
}

// Known reports whether the registry has an endpoint for ledgerID.
func (r *Registry) Known(ledgerID principal.Principal) bool {
	_, ok := r.urls[ledgerID.Text()]
	return ok
}

// BalanceOf returns owner's balance on the ledger.
func (r *Registry) BalanceOf(ctx context.Context, ledgerID, owner principal.Principal) (uint64, error) {
	var res models.BalanceResult
	if err := r.call(ctx, ledgerID, "icrc1_balance_of", Account{Owner: owner}, &res); err != nil {
		return 0, err
	}
	balance, ok := res.Get()
	if !ok {
		return 0, fmt.Errorf("icrc1_balance_of: %s", res.Message())
	}
	return balance, nil
}

// Transfer moves amount from one account to another and returns the block
// index. A rejection by the ledger is returned as a models.TransferError.
func (r *Registry) Transfer(ctx context.Context, ledgerID principal.Principal, args TransferArgs) (uint64, error) {
	var res models.TransferResult
	if err := r.call(ctx, ledgerID, "icrc1_transfer", args, &res); err != nil {
		return 0, err
	}
	if !res.IsOk() {
		return 0, *res.Err()
	}
	block, err := strconv.ParseUint(res.Value(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("icrc1_transfer: invalid block index %q", res.Value())
	}
	return block, nil
}

func (r *Registry) call(ctx context.Context, ledgerID principal.Principal, method string, in, out any) error {
	base, ok := r.urls[ledgerID.Text()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLedger, ledgerID)
	}
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/"+method, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	r.log.Debug("ledger call",
		zap.String("ledger", ledgerID.Text()),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
	)
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: status %d: %s", method, resp.StatusCode, bytes.TrimSpace(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: invalid response: %w", method, err)
	}
	return nil
}
