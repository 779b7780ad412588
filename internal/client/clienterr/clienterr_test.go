package clienterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/atinyakov/NoteLedger/internal/models"
)

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("refresh: %w", New(FetchFailed, "balance"))
	if got := KindOf(err); got != FetchFailed {
		t.Errorf("KindOf = %v; want %v", got, FetchFailed)
	}
	if got := KindOf(errors.New("plain")); got != Unknown {
		t.Errorf("KindOf(plain) = %v; want Unknown", got)
	}
	if !errors.Is(err, New(FetchFailed, "")) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(err, New(Busy, "")) {
		t.Error("errors.Is matched a different kind")
	}
}

func TestWrap_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(TransferFailed, cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable")
	}
	if err.Error() != "TransferFailed: connection reset" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestFromTransferError(t *testing.T) {
	tests := []struct {
		in      models.TransferError
		want    Kind
		wantMsg string
	}{
		{models.TransferError{Tag: models.TagInsufficientBalance}, InsufficientBalance, ""},
		{models.TransferError{Tag: models.TagInsufficientFunds, Balance: 3}, InsufficientBalance, ""},
		{models.TransferError{Tag: models.TagUnauthorized}, Unauthorized, ""},
		{models.TransferError{Tag: models.TagInvalidReceiver}, InvalidReceiver, ""},
		{models.GenericTransferError(1, "ledger not set"), TransferFailed, "ledger not set"},
		{models.TransferError{Tag: models.TagTooOld}, TransferFailed, "TooOld"},
	}
	for _, tt := range tests {
		t.Run(string(tt.in.Tag), func(t *testing.T) {
			got := FromTransferError(tt.in)
			if got.Kind != tt.want {
				t.Errorf("kind = %v; want %v", got.Kind, tt.want)
			}
			if got.Msg != tt.wantMsg {
				t.Errorf("msg = %q; want %q", got.Msg, tt.wantMsg)
			}
		})
	}
}
