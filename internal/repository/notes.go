package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atinyakov/NoteLedger/internal/models"
)

// PostgresNoteRepository stores notes. Deleted notes are only flagged and
// purged later by the db cleaner.
type PostgresNoteRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresNoteRepository creates a repository over db.
func NewPostgresNoteRepository(db *sql.DB) *PostgresNoteRepository {
	return &PostgresNoteRepository{DB: db}
}

// ListNotes returns the owner's live notes ordered by id.
func (s *PostgresNoteRepository) ListNotes(ctx context.Context, owner string) ([]models.Note, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, content FROM notes WHERE owner = $1 AND deleted = false ORDER BY id
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("ListNotes: %w", err)
	}
	return scanNotes(rows)
}

// SearchNotes returns the owner's live notes whose content contains query,
// ignoring case.
func (s *PostgresNoteRepository) SearchNotes(ctx context.Context, owner, query string) ([]models.Note, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, content FROM notes
		WHERE owner = $1 AND deleted = false AND position(lower($2) in lower(content)) > 0
		ORDER BY id
	`, owner, query)
	if err != nil {
		return nil, fmt.Errorf("SearchNotes: %w", err)
	}
	return scanNotes(rows)
}

// AddNote inserts a note and returns its id. now is in nanoseconds.
func (s *PostgresNoteRepository) AddNote(ctx context.Context, owner, content string, now int64) (uint64, error) {
	var id uint64
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO notes (owner, content, created_at, updated_at) VALUES ($1, $2, $3, $3) RETURNING id
	`, owner, content, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("AddNote: %w", err)
	}
	return id, nil
}

// UpdateNote replaces the content of one of owner's notes. It reports
// whether a note was changed; notes of other owners are left alone.
func (s *PostgresNoteRepository) UpdateNote(ctx context.Context, owner string, id uint64, content string, now int64) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE notes SET content = $3, updated_at = $4 WHERE owner = $1 AND id = $2 AND deleted = false
	`, owner, int64(id), content, now)
	if err != nil {
		return false, fmt.Errorf("UpdateNote: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteNote flags one of owner's notes as deleted.
func (s *PostgresNoteRepository) DeleteNote(ctx context.Context, owner string, id uint64, now int64) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE notes SET deleted = true, updated_at = $3 WHERE owner = $1 AND id = $2 AND deleted = false
	`, owner, int64(id), now)
	if err != nil {
		return false, fmt.Errorf("DeleteNote: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanNotes(rows *sql.Rows) ([]models.Note, error) {
	defer rows.Close()

	notes := []models.Note{}
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.Content); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
