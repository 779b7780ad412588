// Package notes keeps the displayed note collection in line with the
// backend. Mutations never patch the local list; each one is followed by a
// full re-fetch.
package notes

import (
	"context"
	"strings"
	"sync"

	"github.com/atinyakov/NoteLedger/internal/client/clienterr"
	"github.com/atinyakov/NoteLedger/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Gateway is the subset of backend calls the orchestrator needs.
type Gateway interface {
	Notes(ctx context.Context) ([]models.Note, error)
	AddNote(ctx context.Context, content string) (uint64, error)
	UpdateNote(ctx context.Context, id uint64, content string) error
	DeleteNote(ctx context.Context, id uint64) error
	SearchNotes(ctx context.Context, query string) ([]models.Note, error)
}

// Orchestrator owns the displayed notes.
type Orchestrator struct {
	gw  Gateway
	log *zap.Logger

	mutations *semaphore.Weighted

	mu    sync.RWMutex
	notes []models.Note
	query string
}

// New creates an orchestrator with an empty collection.
func New(gw Gateway, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{gw: gw, log: log, mutations: semaphore.NewWeighted(1)}
}

// Notes returns a copy of the displayed collection.
func (o *Orchestrator) Notes() []models.Note {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]models.Note(nil), o.notes...)
}

// Query returns the active search query; empty means the full list is shown.
func (o *Orchestrator) Query() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.query
}

// Fetch replaces the displayed collection with the full list. On failure
// the previous list stays in place.
func (o *Orchestrator) Fetch(ctx context.Context) error {
	list, err := o.gw.Notes(ctx)
	if err != nil {
		return readFailed("notes", err)
	}
	o.mu.Lock()
	o.notes = list
	o.query = ""
	o.mu.Unlock()
	o.log.Debug("notes fetched", zap.Int("count", len(list)))
	return nil
}

// Search replaces the displayed collection with the notes matching query.
// A blank query goes back to the full list.
func (o *Orchestrator) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return o.Fetch(ctx)
	}
	list, err := o.gw.SearchNotes(ctx, query)
	if err != nil {
		return readFailed("search", err)
	}
	o.mu.Lock()
	o.notes = list
	o.query = query
	o.mu.Unlock()
	return nil
}

// Add stores a note. Blank content is ignored.
func (o *Orchestrator) Add(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	return o.mutate(ctx, "add", func() error {
		id, err := o.gw.AddNote(ctx, content)
		if err == nil {
			o.log.Info("note added", zap.Uint64("id", id))
		}
		return err
	})
}

// Update replaces a note's content.
func (o *Orchestrator) Update(ctx context.Context, id uint64, content string) error {
	return o.mutate(ctx, "update", func() error {
		return o.gw.UpdateNote(ctx, id, content)
	})
}

// Delete removes a note.
func (o *Orchestrator) Delete(ctx context.Context, id uint64) error {
	return o.mutate(ctx, "delete", func() error {
		return o.gw.DeleteNote(ctx, id)
	})
}

// mutate runs call and, if it succeeds, re-fetches the full list.
func (o *Orchestrator) mutate(ctx context.Context, op string, call func() error) error {
	if !o.mutations.TryAcquire(1) {
		return clienterr.New(clienterr.Busy, "note operation in progress")
	}
	defer o.mutations.Release(1)

	if err := call(); err != nil {
		if clienterr.IsKind(err, clienterr.NotReady) {
			return err
		}
		o.log.Warn("note "+op+" failed", zap.Error(err))
		return &clienterr.Error{Kind: clienterr.RequestFailed, Msg: op + " note", Err: err}
	}
	return o.Fetch(ctx)
}

func readFailed(what string, err error) error {
	if clienterr.IsKind(err, clienterr.NotReady) {
		return err
	}
	return &clienterr.Error{Kind: clienterr.FetchFailed, Msg: what + ": " + err.Error(), Err: err}
}
