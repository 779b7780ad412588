// Package models defines the core data structures shared by the NoteLedger
// client and the reference backend: notes, ledger records and transfer requests.
package models

import (
	"encoding/json"
	"fmt"

	"github.com/atinyakov/NoteLedger/internal/principal"
)

// Note is a single user note. The backend owns it; clients mirror it.
type Note struct {
	// ID is the backend-assigned identifier of the note.
	ID uint64 `json:"id"`
	// Content is the note text.
	Content string `json:"content"`
}

// LedgerKind identifies which ledger a transfer or record belongs to.
type LedgerKind int

const (
	// Internal is the token ledger kept by the backend itself.
	Internal LedgerKind = iota
	// External is an optionally configured ICRC-style ledger.
	External
)

// Wire names of the ledger kinds.
const (
	internalWireName = "Internal"
	externalWireName = "ICRC"
)

// String returns the wire name of the kind.
func (k LedgerKind) String() string {
	switch k {
	case Internal:
		return internalWireName
	case External:
		return externalWireName
	default:
		return fmt.Sprintf("LedgerKind(%d)", int(k))
	}
}

// ParseLedgerKind maps a wire name (or the "internal"/"external" aliases
// accepted from user input) to a LedgerKind.
func ParseLedgerKind(s string) (LedgerKind, error) {
	switch s {
	case internalWireName, "internal":
		return Internal, nil
	case externalWireName, "icrc", "external":
		return External, nil
	default:
		return 0, fmt.Errorf("unknown ledger kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k LedgerKind) MarshalText() ([]byte, error) {
	switch k {
	case Internal, External:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown ledger kind %d", int(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *LedgerKind) UnmarshalText(b []byte) error {
	parsed, err := ParseLedgerKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// TransactionRecord is one entry of a caller's transaction history.
// Records are append-only and produced by the backend.
type TransactionRecord struct {
	// ID is the backend-assigned transaction identifier.
	ID string `json:"transaction_id"`
	// Sender is the principal that paid.
	Sender principal.Principal `json:"sender"`
	// Receiver is the principal that was paid.
	Receiver principal.Principal `json:"receiver"`
	// Amount is the number of tokens moved.
	Amount uint64 `json:"amount"`
	// Timestamp is the backend time of the transfer in nanoseconds since epoch.
	Timestamp uint64 `json:"timestamp"`
	// Kind tells which ledger carried the transfer.
	Kind LedgerKind `json:"transaction_type"`
	// BlockIndex is the external ledger block, set for external transfers only.
	BlockIndex *uint64 `json:"block_index"`
}

// TransferRequest is the raw user input for one transfer submission.
// Amount is kept as text so that validation can report malformed input.
type TransferRequest struct {
	Kind      LedgerKind
	Recipient string
	Amount    string
}

// LedgerConfig tells which external ledger, if any, the backend uses.
type LedgerConfig struct {
	LedgerID *principal.Principal `json:"ledger_id"`
}

// Configured reports whether an external ledger id is set.
func (c LedgerConfig) Configured() bool {
	return c.LedgerID != nil
}

// TransferArgs is the request body of both transfer calls.
type TransferArgs struct {
	To     principal.Principal `json:"to"`
	Amount uint64              `json:"amount"`
}

// BalanceResponse carries the internal balance of the caller.
type BalanceResponse struct {
	Balance uint64 `json:"balance"`
}

// WhoAmIResponse carries the principal the backend sees for the caller.
type WhoAmIResponse struct {
	Principal     principal.Principal `json:"principal"`
	Authenticated bool                `json:"authenticated"`
}

// RegisterResponse carries the credentials issued by the identity service.
type RegisterResponse struct {
	Cert      string `json:"cert"`
	Key       string `json:"key"`
	Principal string `json:"principal"`
}

// noteWire is the tuple form used on the wire: [id, content].
type noteWire [2]json.RawMessage

// UnmarshalJSON accepts both the object form {"id":..,"content":..} and the
// tuple form [id, content].
func (n *Note) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '[' {
		var tuple noteWire
		if err := json.Unmarshal(b, &tuple); err != nil {
			return fmt.Errorf("decode note tuple: %w", err)
		}
		if err := json.Unmarshal(tuple[0], &n.ID); err != nil {
			return fmt.Errorf("decode note id: %w", err)
		}
		return json.Unmarshal(tuple[1], &n.Content)
	}
	type plain Note
	return json.Unmarshal(b, (*plain)(n))
}
