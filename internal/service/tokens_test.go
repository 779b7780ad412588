package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atinyakov/NoteLedger/internal/ledger"
	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/principal"
	"github.com/atinyakov/NoteLedger/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTokenRepo struct {
	EnsureBalanceFunc     func(ctx context.Context, owner string, grant uint64) (uint64, error)
	TransferFunc          func(ctx context.Context, rec models.TransactionRecord, grant uint64) error
	RecordTransactionFunc func(ctx context.Context, rec models.TransactionRecord) error
	HistoryFunc           func(ctx context.Context, owner string, kinds []models.LedgerKind) ([]models.TransactionRecord, error)
	LedgerIDFunc          func(ctx context.Context) (string, bool, error)
	SetLedgerIDFunc       func(ctx context.Context, id string) error
}

func (m *mockTokenRepo) EnsureBalance(ctx context.Context, owner string, grant uint64) (uint64, error) {
	return m.EnsureBalanceFunc(ctx, owner, grant)
}
func (m *mockTokenRepo) Transfer(ctx context.Context, rec models.TransactionRecord, grant uint64) error {
	return m.TransferFunc(ctx, rec, grant)
}
func (m *mockTokenRepo) RecordTransaction(ctx context.Context, rec models.TransactionRecord) error {
	return m.RecordTransactionFunc(ctx, rec)
}
func (m *mockTokenRepo) History(ctx context.Context, owner string, kinds []models.LedgerKind) ([]models.TransactionRecord, error) {
	return m.HistoryFunc(ctx, owner, kinds)
}
func (m *mockTokenRepo) LedgerID(ctx context.Context) (string, bool, error) {
	if m.LedgerIDFunc == nil {
		return "", false, nil
	}
	return m.LedgerIDFunc(ctx)
}
func (m *mockTokenRepo) SetLedgerID(ctx context.Context, id string) error {
	return m.SetLedgerIDFunc(ctx, id)
}

type mockLedger struct {
	BalanceOfFunc func(ctx context.Context, ledgerID, owner principal.Principal) (uint64, error)
	TransferFunc  func(ctx context.Context, ledgerID principal.Principal, args ledger.TransferArgs) (uint64, error)
}

func (m *mockLedger) BalanceOf(ctx context.Context, ledgerID, owner principal.Principal) (uint64, error) {
	return m.BalanceOfFunc(ctx, ledgerID, owner)
}
func (m *mockLedger) Transfer(ctx context.Context, ledgerID principal.Principal, args ledger.TransferArgs) (uint64, error) {
	return m.TransferFunc(ctx, ledgerID, args)
}

var icrc = principal.SelfAuthenticating([]byte("icrc ledger"))

func configured(ctx context.Context) (string, bool, error) { return icrc.Text(), true, nil }

func TestTokenService_Balance(t *testing.T) {
	repo := &mockTokenRepo{
		EnsureBalanceFunc: func(ctx context.Context, owner string, grant uint64) (uint64, error) {
			assert.Equal(t, alice.Text(), owner)
			assert.Equal(t, uint64(WelcomeGrant), grant)
			return 940, nil
		},
	}
	svc := NewTokenService(repo, nil, nil)

	got, err := svc.Balance(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(940), got)

	got, err = svc.Balance(context.Background(), principal.Anonymous())
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestTokenService_HistoryKinds(t *testing.T) {
	var seen [][]models.LedgerKind
	repo := &mockTokenRepo{
		HistoryFunc: func(ctx context.Context, owner string, kinds []models.LedgerKind) ([]models.TransactionRecord, error) {
			seen = append(seen, kinds)
			return []models.TransactionRecord{}, nil
		},
	}
	svc := NewTokenService(repo, nil, nil)
	ext := models.External

	_, err := svc.History(context.Background(), alice, nil)
	require.NoError(t, err)
	_, err = svc.History(context.Background(), alice, &ext)
	require.NoError(t, err)
	records, err := svc.History(context.Background(), principal.Anonymous(), nil)
	require.NoError(t, err)

	assert.Empty(t, records)
	require.Len(t, seen, 2)
	assert.Equal(t, []models.LedgerKind{models.Internal, models.External}, seen[0])
	assert.Equal(t, []models.LedgerKind{models.External}, seen[1])
}

func TestTokenService_TransferRejections(t *testing.T) {
	repo := &mockTokenRepo{
		TransferFunc: func(context.Context, models.TransactionRecord, uint64) error {
			return repository.ErrInsufficientBalance
		},
	}
	svc := NewTokenService(repo, nil, nil)

	cases := []struct {
		name     string
		caller   principal.Principal
		to       principal.Principal
		expected models.TransferErrorTag
	}{
		{"anonymous caller", principal.Anonymous(), bob, models.TagUnauthorized},
		{"anonymous receiver", alice, principal.Anonymous(), models.TagInvalidReceiver},
		{"self transfer", alice, alice, models.TagInvalidReceiver},
		{"shortfall", alice, bob, models.TagInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := svc.Transfer(context.Background(), tc.caller, tc.to, 5000)
			require.NoError(t, err)
			require.False(t, res.IsOk())
			assert.Equal(t, tc.expected, res.Err().Tag)
		})
	}
}

func TestTokenService_TransferSuccess(t *testing.T) {
	var saved models.TransactionRecord
	repo := &mockTokenRepo{
		TransferFunc: func(ctx context.Context, rec models.TransactionRecord, grant uint64) error {
			saved = rec
			return nil
		},
	}
	svc := NewTokenService(repo, nil, nil)
	svc.now = func() time.Time { return fixed }

	res, err := svc.Transfer(context.Background(), alice, bob, 60)
	require.NoError(t, err)
	require.True(t, res.IsOk())
	assert.Equal(t, saved.ID, res.Value())
	assert.NotEmpty(t, saved.ID)
	assert.True(t, saved.Sender.Equal(alice))
	assert.True(t, saved.Receiver.Equal(bob))
	assert.Equal(t, uint64(60), saved.Amount)
	assert.Equal(t, uint64(fixed.UnixNano()), saved.Timestamp)
	assert.Equal(t, models.Internal, saved.Kind)
	assert.Nil(t, saved.BlockIndex)
}

func TestTokenService_TransferStorageFailure(t *testing.T) {
	dbErr := errors.New("db down")
	repo := &mockTokenRepo{
		TransferFunc: func(context.Context, models.TransactionRecord, uint64) error { return dbErr },
	}
	_, err := NewTokenService(repo, nil, nil).Transfer(context.Background(), alice, bob, 1)
	assert.ErrorIs(t, err, dbErr)
}

func TestTokenService_LedgerConfig(t *testing.T) {
	var stored string
	repo := &mockTokenRepo{
		LedgerIDFunc: func(context.Context) (string, bool, error) { return stored, stored != "", nil },
		SetLedgerIDFunc: func(ctx context.Context, id string) error {
			stored = id
			return nil
		},
	}
	svc := NewTokenService(repo, nil, nil)
	ctx := context.Background()

	cfg, err := svc.LedgerConfig(ctx)
	require.NoError(t, err)
	assert.False(t, cfg.Configured())

	ack, err := svc.SetLedgerConfig(ctx, principal.Anonymous(), icrc)
	require.NoError(t, err)
	assert.False(t, ack.IsOk())
	assert.Equal(t, "Unauthorized", ack.Message())
	assert.Empty(t, stored)

	ack, err = svc.SetLedgerConfig(ctx, alice, icrc)
	require.NoError(t, err)
	assert.True(t, ack.IsOk())

	cfg, err = svc.LedgerConfig(ctx)
	require.NoError(t, err)
	require.True(t, cfg.Configured())
	assert.True(t, cfg.LedgerID.Equal(icrc))
}

func TestTokenService_ExternalBalance(t *testing.T) {
	ok := &mockLedger{
		BalanceOfFunc: func(ctx context.Context, ledgerID, owner principal.Principal) (uint64, error) {
			assert.True(t, ledgerID.Equal(icrc))
			return 77, nil
		},
	}
	failing := &mockLedger{
		BalanceOfFunc: func(context.Context, principal.Principal, principal.Principal) (uint64, error) {
			return 0, errors.New("connection refused")
		},
	}

	cases := []struct {
		name    string
		caller  principal.Principal
		repo    *mockTokenRepo
		ledgers LedgerClient
		balance uint64
		message string
	}{
		{"anonymous", principal.Anonymous(), &mockTokenRepo{LedgerIDFunc: configured}, ok, 0, "Authentication required"},
		{"not configured", alice, &mockTokenRepo{}, ok, 0, "ICRC ledger canister ID not set"},
		{"call failed", alice, &mockTokenRepo{LedgerIDFunc: configured}, failing, 0, "Failed to get balance: connection refused"},
		{"ok", alice, &mockTokenRepo{LedgerIDFunc: configured}, ok, 77, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := NewTokenService(tc.repo, tc.ledgers, nil).ExternalBalance(context.Background(), tc.caller)
			require.NoError(t, err)
			balance, okRes := res.Get()
			assert.Equal(t, tc.message == "", okRes)
			assert.Equal(t, tc.balance, balance)
			assert.Equal(t, tc.message, res.Message())
		})
	}
}

func TestTokenService_ExternalTransferNotConfigured(t *testing.T) {
	res, err := NewTokenService(&mockTokenRepo{}, &mockLedger{}, nil).ExternalTransfer(context.Background(), alice, bob, 5)
	require.NoError(t, err)
	require.False(t, res.IsOk())
	assert.Equal(t, models.GenericTransferError(1, "ICRC ledger canister ID not set"), *res.Err())
}

func TestTokenService_ExternalTransferCallFailed(t *testing.T) {
	lc := &mockLedger{
		TransferFunc: func(context.Context, principal.Principal, ledger.TransferArgs) (uint64, error) {
			return 0, errors.New("timeout")
		},
	}
	res, err := NewTokenService(&mockTokenRepo{LedgerIDFunc: configured}, lc, nil).ExternalTransfer(context.Background(), alice, bob, 5)
	require.NoError(t, err)
	require.False(t, res.IsOk())
	assert.Equal(t, models.TagGenericError, res.Err().Tag)
	assert.Equal(t, uint64(2), res.Err().Code)
	assert.Equal(t, "Call failed: timeout", res.Err().Message)
}

func TestTokenService_ExternalTransferLedgerRejects(t *testing.T) {
	lc := &mockLedger{
		TransferFunc: func(context.Context, principal.Principal, ledger.TransferArgs) (uint64, error) {
			return 0, models.TransferError{Tag: models.TagInsufficientFunds, Balance: 3}
		},
	}
	repo := &mockTokenRepo{
		LedgerIDFunc: configured,
		RecordTransactionFunc: func(context.Context, models.TransactionRecord) error {
			t.Error("rejected transfer must not be recorded")
			return nil
		},
	}
	res, err := NewTokenService(repo, lc, nil).ExternalTransfer(context.Background(), alice, bob, 5)
	require.NoError(t, err)
	require.False(t, res.IsOk())
	assert.Equal(t, models.TagInsufficientFunds, res.Err().Tag)
	assert.Equal(t, uint64(3), res.Err().Balance)
}

func TestTokenService_ExternalTransferRecordsBlock(t *testing.T) {
	var recorded models.TransactionRecord
	lc := &mockLedger{
		TransferFunc: func(ctx context.Context, ledgerID principal.Principal, args ledger.TransferArgs) (uint64, error) {
			assert.True(t, args.From.Owner.Equal(alice))
			assert.True(t, args.To.Owner.Equal(bob))
			assert.Equal(t, uint64(5), args.Amount)
			require.NotNil(t, args.CreatedAtTime)
			return 812, nil
		},
	}
	repo := &mockTokenRepo{
		LedgerIDFunc: configured,
		RecordTransactionFunc: func(ctx context.Context, rec models.TransactionRecord) error {
			recorded = rec
			return nil
		},
	}
	res, err := NewTokenService(repo, lc, nil).ExternalTransfer(context.Background(), alice, bob, 5)
	require.NoError(t, err)
	require.True(t, res.IsOk())
	assert.Equal(t, recorded.ID, res.Value())
	assert.Equal(t, models.External, recorded.Kind)
	require.NotNil(t, recorded.BlockIndex)
	assert.Equal(t, uint64(812), *recorded.BlockIndex)
}
