package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/NoteLedger/internal/ledger"
	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/principal"
	"github.com/atinyakov/NoteLedger/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WelcomeGrant is the internal balance every principal starts with.
const WelcomeGrant = 1000

// Generic error codes reported for external transfers.
const (
	codeLedgerNotSet = 1
	codeCallFailed   = 2
)

const ledgerNotSet = "ICRC ledger canister ID not set"

// TokenRepository defines the persistence operations needed by TokenService.
type TokenRepository interface {
	EnsureBalance(ctx context.Context, owner string, grant uint64) (uint64, error)
	Transfer(ctx context.Context, rec models.TransactionRecord, grant uint64) error
	RecordTransaction(ctx context.Context, rec models.TransactionRecord) error
	History(ctx context.Context, owner string, kinds []models.LedgerKind) ([]models.TransactionRecord, error)
	LedgerID(ctx context.Context) (string, bool, error)
	SetLedgerID(ctx context.Context, id string) error
}

// LedgerClient reaches external ledgers.
type LedgerClient interface {
	BalanceOf(ctx context.Context, ledgerID, owner principal.Principal) (uint64, error)
	Transfer(ctx context.Context, ledgerID principal.Principal, args ledger.TransferArgs) (uint64, error)
}

// TokenService implements the internal ledger and proxies the external one.
type TokenService struct {
	repo    TokenRepository
	ledgers LedgerClient
	log     *zap.Logger
	now     func() time.Time
}

// NewTokenService constructs a TokenService. ledgers may be nil, in which
// case every external call fails as if no ledger were reachable.
func NewTokenService(repo TokenRepository, ledgers LedgerClient, log *zap.Logger) *TokenService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenService{repo: repo, ledgers: ledgers, log: log, now: time.Now}
}

// Balance returns the caller's internal balance; anonymous callers have none.
func (s *TokenService) Balance(ctx context.Context, caller principal.Principal) (uint64, error) {
	if caller.IsAnonymous() {
		return 0, nil
	}
	return s.repo.EnsureBalance(ctx, caller.Text(), WelcomeGrant)
}

// History returns the caller's records. A nil kind means every ledger.
func (s *TokenService) History(ctx context.Context, caller principal.Principal, kind *models.LedgerKind) ([]models.TransactionRecord, error) {
	if caller.IsAnonymous() {
		return []models.TransactionRecord{}, nil
	}
	kinds := []models.LedgerKind{models.Internal, models.External}
	if kind != nil {
		kinds = []models.LedgerKind{*kind}
	}
	return s.repo.History(ctx, caller.Text(), kinds)
}

// Transfer moves tokens on the internal ledger. Business rejections come
// back as an Err result; the error return is for storage failures only.
func (s *TokenService) Transfer(ctx context.Context, caller, to principal.Principal, amount uint64) (models.TransferResult, error) {
	if caller.IsAnonymous() {
		return models.TransferErr(models.TransferError{Tag: models.TagUnauthorized}), nil
	}
	if to.IsAnonymous() || to.Equal(caller) {
		return models.TransferErr(models.TransferError{Tag: models.TagInvalidReceiver}), nil
	}

	rec := s.newRecord(caller, to, amount, models.Internal)
	err := s.repo.Transfer(ctx, rec, WelcomeGrant)
	if errors.Is(err, repository.ErrInsufficientBalance) {
		return models.TransferErr(models.TransferError{Tag: models.TagInsufficientBalance}), nil
	}
	if err != nil {
		return models.TransferResult{}, fmt.Errorf("transfer: %w", err)
	}
	s.log.Info("internal transfer",
		zap.String("tx", rec.ID),
		zap.String("from", caller.Text()),
		zap.String("to", to.Text()),
		zap.Uint64("amount", amount),
	)
	return models.TransferOk(rec.ID), nil
}

// LedgerConfig returns the configured external ledger.
func (s *TokenService) LedgerConfig(ctx context.Context) (models.LedgerConfig, error) {
	id, ok, err := s.repo.LedgerID(ctx)
	if err != nil || !ok {
		return models.LedgerConfig{}, err
	}
	p, err := principal.FromText(id)
	if err != nil {
		return models.LedgerConfig{}, fmt.Errorf("stored ledger id: %w", err)
	}
	return models.LedgerConfig{LedgerID: &p}, nil
}

// SetLedgerConfig points the backend at an external ledger. Only
// authenticated callers may change it.
func (s *TokenService) SetLedgerConfig(ctx context.Context, caller, ledgerID principal.Principal) (models.AckResult, error) {
	if caller.IsAnonymous() {
		return models.AckErr("Unauthorized"), nil
	}
	if err := s.repo.SetLedgerID(ctx, ledgerID.Text()); err != nil {
		return models.AckResult{}, err
	}
	s.log.Info("external ledger configured", zap.String("ledger", ledgerID.Text()), zap.String("by", caller.Text()))
	return models.AckOk(), nil
}

// ExternalBalance queries the caller's balance on the external ledger.
func (s *TokenService) ExternalBalance(ctx context.Context, caller principal.Principal) (models.BalanceResult, error) {
	if caller.IsAnonymous() {
		return models.BalanceErr(ErrAuthenticationRequired.Error()), nil
	}
	ledgerID, ok, err := s.ledgerID(ctx)
	if err != nil {
		return models.BalanceResult{}, err
	}
	if !ok || s.ledgers == nil {
		return models.BalanceErr(ledgerNotSet), nil
	}
	balance, err := s.ledgers.BalanceOf(ctx, ledgerID, caller)
	if err != nil {
		return models.BalanceErr(fmt.Sprintf("Failed to get balance: %v", err)), nil
	}
	return models.BalanceOk(balance), nil
}

// ExternalTransfer sends tokens through the external ledger and records the
// transfer with its block index.
func (s *TokenService) ExternalTransfer(ctx context.Context, caller, to principal.Principal, amount uint64) (models.TransferResult, error) {
	if caller.IsAnonymous() {
		return models.TransferErr(models.TransferError{Tag: models.TagUnauthorized}), nil
	}
	ledgerID, ok, err := s.ledgerID(ctx)
	if err != nil {
		return models.TransferResult{}, err
	}
	if !ok || s.ledgers == nil {
		return models.TransferErr(models.GenericTransferError(codeLedgerNotSet, ledgerNotSet)), nil
	}

	createdAt := uint64(s.now().UnixNano())
	block, err := s.ledgers.Transfer(ctx, ledgerID, ledger.TransferArgs{
		From:          ledger.Account{Owner: caller},
		To:            ledger.Account{Owner: to},
		Amount:        amount,
		CreatedAtTime: &createdAt,
	})
	var rejected models.TransferError
	if errors.As(err, &rejected) {
		return models.TransferErr(rejected), nil
	}
	if err != nil {
		s.log.Warn("external transfer call failed", zap.Error(err))
		return models.TransferErr(models.GenericTransferError(codeCallFailed, fmt.Sprintf("Call failed: %v", err))), nil
	}

	rec := s.newRecord(caller, to, amount, models.External)
	rec.BlockIndex = &block
	if err := s.repo.RecordTransaction(ctx, rec); err != nil {
		return models.TransferResult{}, fmt.Errorf("record external transfer: %w", err)
	}
	return models.TransferOk(rec.ID), nil
}

func (s *TokenService) ledgerID(ctx context.Context) (principal.Principal, bool, error) {
	cfg, err := s.LedgerConfig(ctx)
	if err != nil {
		return principal.Principal{}, false, err
	}
	if !cfg.Configured() {
		return principal.Principal{}, false, nil
	}
	return *cfg.LedgerID, true, nil
}

func (s *TokenService) newRecord(from, to principal.Principal, amount uint64, kind models.LedgerKind) models.TransactionRecord {
	return models.TransactionRecord{
		ID:        uuid.NewString(),
		Sender:    from,
		Receiver:  to,
		Amount:    amount,
		Timestamp: uint64(s.now().UnixNano()),
		Kind:      kind,
	}
}
