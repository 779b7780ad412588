package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/atinyakov/NoteLedger/internal/middleware"
	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/principal"
	"github.com/atinyakov/NoteLedger/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NoteService defines the note operations required by NoteHandler.
type NoteService interface {
	List(ctx context.Context, caller principal.Principal) ([]models.Note, error)
	Search(ctx context.Context, caller principal.Principal, query string) ([]models.Note, error)
	Add(ctx context.Context, caller principal.Principal, content string) (uint64, error)
	Update(ctx context.Context, caller principal.Principal, id uint64, content string) error
	Delete(ctx context.Context, caller principal.Principal, id uint64) error
}

// NoteHandler serves the caller's notes.
type NoteHandler struct {
	NoteService NoteService
	Logger      *zap.Logger
}

type noteBody struct {
	Content string `json:"content"`
}

// List handles GET /api/notes.
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	notes, err := h.NoteService.List(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		h.internalError(w, "list notes", err)
		return
	}
	writeJSON(w, notes)
}

// Search handles GET /api/notes/search?q=.
func (h *NoteHandler) Search(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())
	notes, err := h.NoteService.Search(r.Context(), caller, r.URL.Query().Get("q"))
	if err != nil {
		h.internalError(w, "search notes", err)
		return
	}
	writeJSON(w, notes)
}

// Add handles POST /api/notes and answers {"Ok": id} or {"Err": message}.
func (h *NoteHandler) Add(w http.ResponseWriter, r *http.Request) {
	var body noteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	id, err := h.NoteService.Add(r.Context(), middleware.PrincipalFromContext(r.Context()), body.Content)
	if errors.Is(err, service.ErrAuthenticationRequired) {
		writeJSON(w, map[string]string{"Err": err.Error()})
		return
	}
	if err != nil {
		h.internalError(w, "add note", err)
		return
	}
	writeJSON(w, map[string]uint64{"Ok": id})
}

// Update handles PUT /api/notes/{id}.
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	var body noteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.NoteService.Update(r.Context(), middleware.PrincipalFromContext(r.Context()), id, body.Content); err != nil {
		h.internalError(w, "update note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/notes/{id}.
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	if err := h.NoteService.Delete(r.Context(), middleware.PrincipalFromContext(r.Context()), id); err != nil {
		h.internalError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NoteHandler) internalError(w http.ResponseWriter, op string, err error) {
	if h.Logger != nil {
		h.Logger.Error(op+" failed", zap.Error(err))
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func noteID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid note id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
