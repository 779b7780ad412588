package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownShape is returned when a tagged result carries neither an "Ok"
// nor an "Err" variant.
var ErrUnknownShape = errors.New("unrecognized result shape")

// TransferErrorTag names one variant of the backend transfer error.
type TransferErrorTag string

// The closed set of transfer error tags the backend may report.
const (
	TagBadFee                 TransferErrorTag = "BadFee"
	TagBadBurn                TransferErrorTag = "BadBurn"
	TagInsufficientFunds      TransferErrorTag = "InsufficientFunds"
	TagTooOld                 TransferErrorTag = "TooOld"
	TagCreatedInFuture        TransferErrorTag = "CreatedInFuture"
	TagDuplicate              TransferErrorTag = "Duplicate"
	TagTemporarilyUnavailable TransferErrorTag = "TemporarilyUnavailable"
	TagGenericError           TransferErrorTag = "GenericError"
	TagInsufficientBalance    TransferErrorTag = "InsufficientBalance"
	TagUnauthorized           TransferErrorTag = "Unauthorized"
	TagInvalidReceiver        TransferErrorTag = "InvalidReceiver"
)

// TransferError is the payload of a failed transfer.
type TransferError struct {
	Tag TransferErrorTag
	// Message and Code are set for GenericError.
	Message string
	Code    uint64
	// Balance is set for InsufficientFunds.
	Balance uint64
	// Payload keeps the raw variant payload for tags without typed fields.
	Payload json.RawMessage
}

// Error implements error.
func (e TransferError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Tag, e.Message)
	}
	return string(e.Tag)
}

// GenericTransferError builds a GenericError variant.
func GenericTransferError(code uint64, message string) TransferError {
	return TransferError{Tag: TagGenericError, Code: code, Message: message}
}

type genericPayload struct {
	ErrorCode uint64 `json:"error_code"`
	Message   string `json:"message"`
}

type fundsPayload struct {
	Balance uint64 `json:"balance"`
}

// MarshalJSON encodes the error as a single-key object {"Tag": payload}.
func (e TransferError) MarshalJSON() ([]byte, error) {
	var payload any
	switch e.Tag {
	case TagGenericError:
		payload = genericPayload{ErrorCode: e.Code, Message: e.Message}
	case TagInsufficientFunds:
		payload = fundsPayload{Balance: e.Balance}
	default:
		if len(e.Payload) > 0 {
			payload = e.Payload
		}
	}
	return json.Marshal(map[TransferErrorTag]any{e.Tag: payload})
}

// UnmarshalJSON accepts {"Tag": payload} as well as a bare "Tag" string.
func (e *TransferError) UnmarshalJSON(b []byte) error {
	var bare string
	if err := json.Unmarshal(b, &bare); err == nil {
		*e = TransferError{Tag: TransferErrorTag(bare)}
		return nil
	}
	var variants map[string]json.RawMessage
	if err := json.Unmarshal(b, &variants); err != nil {
		return fmt.Errorf("decode transfer error: %w", err)
	}
	if len(variants) != 1 {
		return fmt.Errorf("decode transfer error: %w: %d variants", ErrUnknownShape, len(variants))
	}
	for tag, payload := range variants {
		*e = TransferError{Tag: TransferErrorTag(tag)}
		if isNull(payload) {
			return nil
		}
		e.Payload = payload
		switch e.Tag {
		case TagGenericError:
			var p genericPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("decode GenericError: %w", err)
			}
			e.Code, e.Message = p.ErrorCode, p.Message
		case TagInsufficientFunds:
			var p fundsPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("decode InsufficientFunds: %w", err)
			}
			e.Balance = p.Balance
		}
	}
	return nil
}

// TransferResult is the outcome of a transfer call: exactly one of a
// success value (the transaction id) or a TransferError.
type TransferResult struct {
	value string
	err   *TransferError
}

// TransferOk returns a successful result carrying the transaction id.
func TransferOk(txID string) TransferResult {
	return TransferResult{value: txID}
}

// TransferErr returns a failed result.
func TransferErr(e TransferError) TransferResult {
	return TransferResult{err: &e}
}

// IsOk reports whether the transfer succeeded.
func (r TransferResult) IsOk() bool { return r.err == nil }

// Value returns the success value; it is empty for failures and for bare
// success markers without a value.
func (r TransferResult) Value() string { return r.value }

// Err returns the error variant, or nil on success.
func (r TransferResult) Err() *TransferError { return r.err }

// MarshalJSON always uses the wrapper form.
func (r TransferResult) MarshalJSON() ([]byte, error) {
	if r.err != nil {
		return json.Marshal(map[string]any{"Err": r.err})
	}
	return json.Marshal(map[string]string{"Ok": r.value})
}

// UnmarshalJSON accepts a bare success value or an Ok/Err wrapper.
func (r *TransferResult) UnmarshalJSON(b []byte) error {
	okRaw, errRaw, err := splitTagged(b)
	if err != nil {
		return fmt.Errorf("decode transfer result: %w", err)
	}
	if errRaw != nil {
		var te TransferError
		if err := json.Unmarshal(errRaw, &te); err != nil {
			return err
		}
		*r = TransferErr(te)
		return nil
	}
	*r = TransferOk(scalarText(okRaw))
	return nil
}

// AckResult is the outcome of a call whose success carries no value, such
// as a ledger configuration change.
type AckResult struct {
	failed  bool
	message string
}

// AckOk returns a successful acknowledgement.
func AckOk() AckResult { return AckResult{} }

// AckErr returns a rejection with the backend message.
func AckErr(message string) AckResult { return AckResult{failed: true, message: message} }

// IsOk reports whether the call was accepted.
func (a AckResult) IsOk() bool { return !a.failed }

// Message returns the rejection message.
func (a AckResult) Message() string { return a.message }

// MarshalJSON uses the wrapper form.
func (a AckResult) MarshalJSON() ([]byte, error) {
	if a.failed {
		return json.Marshal(map[string]string{"Err": a.message})
	}
	return []byte(`{"Ok":null}`), nil
}

// UnmarshalJSON treats null, a bare value or {"Ok": ...} as success.
func (a *AckResult) UnmarshalJSON(b []byte) error {
	_, errRaw, err := splitTagged(b)
	if err != nil {
		return fmt.Errorf("decode ack result: %w", err)
	}
	if errRaw != nil {
		*a = AckErr(scalarText(errRaw))
		return nil
	}
	*a = AckOk()
	return nil
}

// BalanceResult is the outcome of an external balance query.
type BalanceResult struct {
	balance uint64
	failed  bool
	message string
}

// BalanceOk returns a successful balance.
func BalanceOk(v uint64) BalanceResult { return BalanceResult{balance: v} }

// BalanceErr returns a failed balance query.
func BalanceErr(message string) BalanceResult { return BalanceResult{failed: true, message: message} }

// Get returns the balance and whether the query succeeded.
func (r BalanceResult) Get() (uint64, bool) { return r.balance, !r.failed }

// Message returns the failure message.
func (r BalanceResult) Message() string { return r.message }

// MarshalJSON uses the wrapper form.
func (r BalanceResult) MarshalJSON() ([]byte, error) {
	if r.failed {
		return json.Marshal(map[string]string{"Err": r.message})
	}
	return json.Marshal(map[string]uint64{"Ok": r.balance})
}

// UnmarshalJSON accepts a bare number or an Ok/Err wrapper.
func (r *BalanceResult) UnmarshalJSON(b []byte) error {
	okRaw, errRaw, err := splitTagged(b)
	if err != nil {
		return fmt.Errorf("decode balance result: %w", err)
	}
	if errRaw != nil {
		*r = BalanceErr(scalarText(errRaw))
		return nil
	}
	v, err := strconv.ParseUint(scalarText(okRaw), 10, 64)
	if err != nil {
		return fmt.Errorf("decode balance result: %w", err)
	}
	*r = BalanceOk(v)
	return nil
}

// splitTagged separates the Ok and Err payloads of a tagged result. A value
// that is not a JSON object is a bare success and is returned as okRaw.
func splitTagged(b []byte) (okRaw, errRaw json.RawMessage, err error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil, ErrUnknownShape
	}
	if b[0] != '{' {
		return b, nil, nil
	}
	var variants map[string]json.RawMessage
	if err := json.Unmarshal(b, &variants); err != nil {
		return nil, nil, err
	}
	if raw, ok := variants["Err"]; ok {
		return nil, raw, nil
	}
	if raw, ok := variants["Ok"]; ok {
		return raw, nil, nil
	}
	return nil, nil, ErrUnknownShape
}

// scalarText renders a JSON scalar as plain text: strings are unquoted,
// null becomes empty and anything else keeps its JSON form.
func scalarText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
