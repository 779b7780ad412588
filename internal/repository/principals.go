// Package repository provides PostgreSQL persistence for principals, notes
// and tokens.
package repository

import (
	"context"
	"database/sql"
)

// PostgresPrincipalRepository records the principals issued a certificate.
type PostgresPrincipalRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresPrincipalRepository creates a repository over db.
func NewPostgresPrincipalRepository(db *sql.DB) *PostgresPrincipalRepository {
	return &PostgresPrincipalRepository{DB: db}
}

// LabelExists checks whether a device label is already registered.
func (s *PostgresPrincipalRepository) LabelExists(ctx context.Context, label string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM principals WHERE label = $1)`,
		label,
	).Scan(&exists)
	return exists, err
}

// RegisterPrincipal stores a newly issued principal under label.
// Registering the same principal twice is a no-op.
func (s *PostgresPrincipalRepository) RegisterPrincipal(ctx context.Context, principal, label string) error {
	_, err := s.DB.ExecContext(
		ctx,
		`INSERT INTO principals (principal, label) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		principal, label,
	)
	return err
}
