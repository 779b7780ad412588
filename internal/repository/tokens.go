package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/principal"
	"github.com/lib/pq"
)

// ErrInsufficientBalance is returned by Transfer when the sender cannot
// cover the amount. Nothing is written in that case.
var ErrInsufficientBalance = errors.New("insufficient balance")

// PostgresTokenRepository keeps internal balances, the transaction log and
// the external ledger configuration.
type PostgresTokenRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresTokenRepository creates a repository over db.
func NewPostgresTokenRepository(db *sql.DB) *PostgresTokenRepository {
	return &PostgresTokenRepository{DB: db}
}

// EnsureBalance creates the balance row with grant tokens if it does not
// exist yet and returns the current balance.
func (s *PostgresTokenRepository) EnsureBalance(ctx context.Context, owner string, grant uint64) (uint64, error) {
	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO balances (principal, amount) VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, owner, int64(grant)); err != nil {
		return 0, fmt.Errorf("EnsureBalance: %w", err)
	}
	var amount int64
	if err := s.DB.QueryRowContext(ctx, `
		SELECT amount FROM balances WHERE principal = $1
	`, owner).Scan(&amount); err != nil {
		return 0, fmt.Errorf("EnsureBalance: %w", err)
	}
	return uint64(amount), nil
}

// Transfer moves rec.Amount from rec.Sender to rec.Receiver and appends rec
// to the log, all in one transaction. Missing balance rows are created with
// grant tokens first.
func (s *PostgresTokenRepository) Transfer(ctx context.Context, rec models.TransactionRecord, grant uint64) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sender, receiver := rec.Sender.Text(), rec.Receiver.Text()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balances (principal, amount) VALUES ($1, $3), ($2, $3) ON CONFLICT DO NOTHING
	`, sender, receiver, int64(grant)); err != nil {
		return fmt.Errorf("ensure balances: %w", err)
	}

	var available int64
	if err := tx.QueryRowContext(ctx, `
		SELECT amount FROM balances WHERE principal = $1 FOR UPDATE
	`, sender).Scan(&available); err != nil {
		return fmt.Errorf("lock sender: %w", err)
	}
	if uint64(available) < rec.Amount {
		return ErrInsufficientBalance
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE balances SET amount = amount - $2 WHERE principal = $1
	`, sender, int64(rec.Amount)); err != nil {
		return fmt.Errorf("debit: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE balances SET amount = amount + $2 WHERE principal = $1
	`, receiver, int64(rec.Amount)); err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	if err := insertRecord(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecordTransaction appends a record without touching internal balances,
// as done for transfers settled on an external ledger.
func (s *PostgresTokenRepository) RecordTransaction(ctx context.Context, rec models.TransactionRecord) error {
	return insertRecord(ctx, s.DB, rec)
}

// History returns the records owner took part in, oldest first, limited to
// the given ledger kinds.
func (s *PostgresTokenRepository) History(ctx context.Context, owner string, kinds []models.LedgerKind) ([]models.TransactionRecord, error) {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, sender, receiver, amount, ts, kind, block_index FROM transactions
		WHERE (sender = $1 OR receiver = $1) AND kind = ANY($2)
		ORDER BY ts, id
	`, owner, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	defer rows.Close()

	records := []models.TransactionRecord{}
	for rows.Next() {
		var (
			rec              models.TransactionRecord
			sender, receiver string
			kind             string
			amount, ts       int64
			block            sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &sender, &receiver, &amount, &ts, &kind, &block); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if rec.Sender, err = principal.FromText(sender); err != nil {
			return nil, fmt.Errorf("scan sender: %w", err)
		}
		if rec.Receiver, err = principal.FromText(receiver); err != nil {
			return nil, fmt.Errorf("scan receiver: %w", err)
		}
		if rec.Kind, err = models.ParseLedgerKind(kind); err != nil {
			return nil, fmt.Errorf("scan kind: %w", err)
		}
		rec.Amount, rec.Timestamp = uint64(amount), uint64(ts)
		if block.Valid {
			idx := uint64(block.Int64)
			rec.BlockIndex = &idx
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LedgerID returns the configured external ledger, if any.
func (s *PostgresTokenRepository) LedgerID(ctx context.Context) (string, bool, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `SELECT ledger_id FROM ledger_config WHERE singleton`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("LedgerID: %w", err)
	}
	return id, true, nil
}

// SetLedgerID replaces the configured external ledger.
func (s *PostgresTokenRepository) SetLedgerID(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO ledger_config (singleton, ledger_id) VALUES (true, $1)
		ON CONFLICT (singleton) DO UPDATE SET ledger_id = EXCLUDED.ledger_id
	`, id)
	if err != nil {
		return fmt.Errorf("SetLedgerID: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, rec models.TransactionRecord) error {
	var block sql.NullInt64
	if rec.BlockIndex != nil {
		block = sql.NullInt64{Int64: int64(*rec.BlockIndex), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions (id, sender, receiver, amount, ts, kind, block_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.Sender.Text(), rec.Receiver.Text(), int64(rec.Amount), int64(rec.Timestamp), rec.Kind.String(), block)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
