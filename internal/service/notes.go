package service

import (
	"context"
	"errors"
	"time"

	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/principal"
)

// ErrAuthenticationRequired is returned to anonymous callers of operations
// that need an identity.
var ErrAuthenticationRequired = errors.New("Authentication required")

// NoteRepository defines the persistence operations needed by NoteService.
type NoteRepository interface {
	ListNotes(ctx context.Context, owner string) ([]models.Note, error)
	SearchNotes(ctx context.Context, owner, query string) ([]models.Note, error)
	AddNote(ctx context.Context, owner, content string, now int64) (uint64, error)
	UpdateNote(ctx context.Context, owner string, id uint64, content string, now int64) (bool, error)
	DeleteNote(ctx context.Context, owner string, id uint64, now int64) (bool, error)
}

// NoteService scopes every note operation to the calling principal.
type NoteService struct {
	repo NoteRepository
	now  func() time.Time
}

// NewNoteService constructs a NoteService over repo.
func NewNoteService(repo NoteRepository) *NoteService {
	return &NoteService{repo: repo, now: time.Now}
}

// List returns the caller's notes.
func (s *NoteService) List(ctx context.Context, caller principal.Principal) ([]models.Note, error) {
	return s.repo.ListNotes(ctx, caller.Text())
}

// Search returns the caller's notes containing query, ignoring case.
func (s *NoteService) Search(ctx context.Context, caller principal.Principal, query string) ([]models.Note, error) {
	return s.repo.SearchNotes(ctx, caller.Text(), query)
}

// Add stores a note owned by caller. Anonymous callers cannot add notes.
func (s *NoteService) Add(ctx context.Context, caller principal.Principal, content string) (uint64, error) {
	if caller.IsAnonymous() {
		return 0, ErrAuthenticationRequired
	}
	return s.repo.AddNote(ctx, caller.Text(), content, s.now().UnixNano())
}

// Update changes one of the caller's notes. Ids that do not exist or belong
// to someone else are ignored.
func (s *NoteService) Update(ctx context.Context, caller principal.Principal, id uint64, content string) error {
	_, err := s.repo.UpdateNote(ctx, caller.Text(), id, content, s.now().UnixNano())
	return err
}

// Delete removes one of the caller's notes, with the same ownership rule as Update.
func (s *NoteService) Delete(ctx context.Context, caller principal.Principal, id uint64) error {
	_, err := s.repo.DeleteNote(ctx, caller.Text(), id, s.now().UnixNano())
	return err
}
