// Package clienterr defines the error taxonomy surfaced by the NoteLedger
// client orchestrators. Callers classify failures by Kind rather than by
// concrete error type.
package clienterr

import (
	"errors"
	"fmt"

	"github.com/atinyakov/NoteLedger/internal/models"
)

// Kind classifies a client failure.
type Kind int

const (
	// Unknown is the kind of errors that did not come from this package.
	Unknown Kind = iota
	// NotReady: no authenticated, bound session.
	NotReady
	// InvalidFormat: malformed user-supplied identifier.
	InvalidFormat
	// InvalidPrincipalFormat: malformed transfer recipient.
	InvalidPrincipalFormat
	// InvalidAmount: non-numeric or non-positive transfer amount.
	InvalidAmount
	// InsufficientBalance: detected locally or reported by the backend.
	InsufficientBalance
	// ExternalLedgerUnavailable: external transfer without a reachable ledger.
	ExternalLedgerUnavailable
	// Unauthorized: backend denied the caller.
	Unauthorized
	// InvalidReceiver: backend rejected the recipient.
	InvalidReceiver
	// ConfigurationRejected: backend rejected a ledger configuration change.
	ConfigurationRejected
	// TransferFailed: transport failure or unrecognized backend error.
	TransferFailed
	// FetchFailed: a mandatory read failed.
	FetchFailed
	// RequestFailed: a note mutation failed.
	RequestFailed
	// Busy: an operation of the same class is still outstanding.
	Busy
)

var kindNames = map[Kind]string{
	Unknown:                   "Unknown",
	NotReady:                  "NotReady",
	InvalidFormat:             "InvalidFormat",
	InvalidPrincipalFormat:    "InvalidPrincipalFormat",
	InvalidAmount:             "InvalidAmount",
	InsufficientBalance:       "InsufficientBalance",
	ExternalLedgerUnavailable: "ExternalLedgerUnavailable",
	Unauthorized:              "Unauthorized",
	InvalidReceiver:           "InvalidReceiver",
	ConfigurationRejected:     "ConfigurationRejected",
	TransferFailed:            "TransferFailed",
	FetchFailed:               "FetchFailed",
	RequestFailed:             "RequestFailed",
	Busy:                      "Busy",
}

// String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified client failure.
type Error struct {
	Kind Kind
	// Msg is a human readable detail, possibly empty.
	Msg string
	// Err is the underlying cause, possibly nil.
	Err error
}

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap returns an error of the given kind carrying cause.
func Wrap(kind Kind, cause error) *Error {
	e := &Error{Kind: kind, Err: cause}
	if cause != nil {
		e.Msg = cause.Error()
	}
	return e
}

// Error implements error.
func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, New(kind, ""))
// classifies err.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FromTransferError maps a backend transfer error onto the local taxonomy.
func FromTransferError(te models.TransferError) *Error {
	switch te.Tag {
	case models.TagInsufficientBalance, models.TagInsufficientFunds:
		return &Error{Kind: InsufficientBalance, Err: te}
	case models.TagUnauthorized:
		return &Error{Kind: Unauthorized, Err: te}
	case models.TagInvalidReceiver:
		return &Error{Kind: InvalidReceiver, Err: te}
	case models.TagGenericError:
		return &Error{Kind: TransferFailed, Msg: te.Message, Err: te}
	default:
		return &Error{Kind: TransferFailed, Msg: string(te.Tag), Err: te}
	}
}
