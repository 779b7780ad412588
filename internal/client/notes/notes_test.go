package notes

import (
	"context"
	"errors"
	"testing"

	"github.com/atinyakov/NoteLedger/internal/client/clienterr"
	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	NotesFunc  func(ctx context.Context) ([]models.Note, error)
	AddFunc    func(ctx context.Context, content string) (uint64, error)
	UpdateFunc func(ctx context.Context, id uint64, content string) error
	DeleteFunc func(ctx context.Context, id uint64) error
	SearchFunc func(ctx context.Context, query string) ([]models.Note, error)

	listCalls int
}

func (f *fakeGateway) Notes(ctx context.Context) ([]models.Note, error) {
	f.listCalls++
	return f.NotesFunc(ctx)
}

func (f *fakeGateway) AddNote(ctx context.Context, content string) (uint64, error) {
	return f.AddFunc(ctx, content)
}

func (f *fakeGateway) UpdateNote(ctx context.Context, id uint64, content string) error {
	return f.UpdateFunc(ctx, id, content)
}

func (f *fakeGateway) DeleteNote(ctx context.Context, id uint64) error {
	return f.DeleteFunc(ctx, id)
}

func (f *fakeGateway) SearchNotes(ctx context.Context, query string) ([]models.Note, error) {
	return f.SearchFunc(ctx, query)
}

// store is a tiny in-memory backend that upper-cases stored content, so a
// test can tell a re-fetched list from a locally patched one.
type store struct {
	next  uint64
	notes []models.Note
}

func (s *store) gateway() *fakeGateway {
	return &fakeGateway{
		NotesFunc: func(context.Context) ([]models.Note, error) {
			return append([]models.Note(nil), s.notes...), nil
		},
		AddFunc: func(_ context.Context, content string) (uint64, error) {
			s.notes = append(s.notes, models.Note{ID: s.next, Content: upper(content)})
			s.next++
			return s.next - 1, nil
		},
		UpdateFunc: func(_ context.Context, id uint64, content string) error {
			for i := range s.notes {
				if s.notes[i].ID == id {
					s.notes[i].Content = upper(content)
					return nil
				}
			}
			return errors.New("note not found")
		},
		DeleteFunc: func(_ context.Context, id uint64) error {
			for i := range s.notes {
				if s.notes[i].ID == id {
					s.notes = append(s.notes[:i], s.notes[i+1:]...)
					return nil
				}
			}
			return errors.New("note not found")
		},
		SearchFunc: func(_ context.Context, query string) ([]models.Note, error) {
			var out []models.Note
			for _, n := range s.notes {
				if n.Content == upper(query) {
					out = append(out, n)
				}
			}
			return out, nil
		},
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func TestAdd_RefetchesBackendState(t *testing.T) {
	s := &store{}
	gw := s.gateway()
	o := New(gw, nil)

	require.NoError(t, o.Add(context.Background(), "  buy milk "))

	assert.Equal(t, 1, gw.listCalls)
	assert.Equal(t, []models.Note{{ID: 0, Content: "BUY MILK"}}, o.Notes())
}

func TestAdd_BlankIsNoop(t *testing.T) {
	gw := &fakeGateway{
		AddFunc: func(context.Context, string) (uint64, error) {
			t.Fatal("AddNote must not be called")
			return 0, nil
		},
	}
	o := New(gw, nil)

	require.NoError(t, o.Add(context.Background(), "   "))
	assert.Equal(t, 0, gw.listCalls)
}

func TestUpdateAndDelete(t *testing.T) {
	s := &store{}
	gw := s.gateway()
	o := New(gw, nil)
	ctx := context.Background()

	require.NoError(t, o.Add(ctx, "one"))
	require.NoError(t, o.Add(ctx, "two"))
	require.NoError(t, o.Update(ctx, 1, "deux"))
	assert.Equal(t, "DEUX", o.Notes()[1].Content)

	require.NoError(t, o.Delete(ctx, 0))
	assert.Equal(t, []models.Note{{ID: 1, Content: "DEUX"}}, o.Notes())
	assert.Equal(t, 4, gw.listCalls)
}

func TestMutationFailure(t *testing.T) {
	s := &store{}
	gw := s.gateway()
	o := New(gw, nil)

	err := o.Delete(context.Background(), 42)

	assert.True(t, clienterr.IsKind(err, clienterr.RequestFailed))
	assert.Equal(t, 0, gw.listCalls, "no re-fetch after a failed mutation")
}

func TestMutation_NotReadyPassesThrough(t *testing.T) {
	notReady := clienterr.New(clienterr.NotReady, "no session")
	gw := &fakeGateway{
		UpdateFunc: func(context.Context, uint64, string) error { return notReady },
	}
	o := New(gw, nil)

	err := o.Update(context.Background(), 1, "x")
	assert.True(t, clienterr.IsKind(err, clienterr.NotReady))
}

func TestFetchFailureKeepsList(t *testing.T) {
	s := &store{}
	gw := s.gateway()
	o := New(gw, nil)
	require.NoError(t, o.Add(context.Background(), "keep"))

	gw.NotesFunc = func(context.Context) ([]models.Note, error) {
		return nil, errors.New("unreachable")
	}
	err := o.Fetch(context.Background())

	assert.True(t, clienterr.IsKind(err, clienterr.FetchFailed))
	assert.Len(t, o.Notes(), 1)
}

func TestSearch(t *testing.T) {
	s := &store{}
	gw := s.gateway()
	o := New(gw, nil)
	ctx := context.Background()
	require.NoError(t, o.Add(ctx, "alpha"))
	require.NoError(t, o.Add(ctx, "beta"))

	require.NoError(t, o.Search(ctx, " beta "))
	assert.Equal(t, "beta", o.Query())
	assert.Equal(t, []models.Note{{ID: 1, Content: "BETA"}}, o.Notes())

	calls := gw.listCalls
	require.NoError(t, o.Search(ctx, ""))
	assert.Equal(t, calls+1, gw.listCalls, "clearing the query re-fetches")
	assert.Empty(t, o.Query())
	assert.Len(t, o.Notes(), 2)
}

func TestMutation_Busy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		NotesFunc: func(context.Context) ([]models.Note, error) { return nil, nil },
		DeleteFunc: func(context.Context, uint64) error {
			close(entered)
			<-release
			return nil
		},
	}
	o := New(gw, nil)

	done := make(chan error)
	go func() { done <- o.Delete(context.Background(), 1) }()
	<-entered

	err := o.Update(context.Background(), 2, "x")
	assert.True(t, clienterr.IsKind(err, clienterr.Busy))

	close(release)
	require.NoError(t, <-done)
}
