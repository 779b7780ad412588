package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/atinyakov/NoteLedger/internal/client/actor"
	"github.com/atinyakov/NoteLedger/internal/client/clienterr"
	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/principal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type source struct{ a actor.Actor }

func (s source) Actor() (actor.Actor, bool) { return s.a, s.a != nil }

// stubActor embeds actor.Actor so each test only implements what it needs;
// any other call panics.
type stubActor struct {
	actor.Actor

	balance    models.BalanceResult
	balanceErr error
	cfg        models.LedgerConfig
	cfgErr     error
	setCalls   int
}

func (s *stubActor) ExternalBalance(context.Context) (models.BalanceResult, error) {
	return s.balance, s.balanceErr
}

func (s *stubActor) LedgerConfig(context.Context) (models.LedgerConfig, error) {
	return s.cfg, s.cfgErr
}

func (s *stubActor) SetLedgerConfig(context.Context, principal.Principal) (models.AckResult, error) {
	s.setCalls++
	return models.AckOk(), nil
}

func TestNotReady(t *testing.T) {
	g := New(source{}, nil)
	ctx := context.Background()

	_, err := g.Notes(ctx)
	assert.True(t, IsNotReady(err))
	assert.True(t, clienterr.IsKind(err, clienterr.NotReady))

	_, err = g.Balance(ctx)
	assert.True(t, IsNotReady(err))

	_, err = g.InternalTransfer(ctx, principal.Anonymous(), 1)
	assert.True(t, IsNotReady(err))

	_, err = g.SetLedgerConfig(ctx, principal.Anonymous())
	assert.True(t, IsNotReady(err))

	_, ok := g.ExternalBalance(ctx)
	assert.False(t, ok)
	_, ok = g.LedgerConfig(ctx)
	assert.False(t, ok)
}

func TestExternalBalance(t *testing.T) {
	tests := []struct {
		name   string
		stub   *stubActor
		want   uint64
		wantOK bool
	}{
		{"ok", &stubActor{balance: models.BalanceOk(77)}, 77, true},
		{"backend err", &stubActor{balance: models.BalanceErr("Ledger not configured")}, 0, false},
		{"transport err", &stubActor{balanceErr: errors.New("dial tcp: refused")}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(source{tt.stub}, nil)
			got, ok := g.ExternalBalance(context.Background())
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLedgerConfig(t *testing.T) {
	id := principal.SelfAuthenticating([]byte("ledger"))

	g := New(source{&stubActor{cfg: models.LedgerConfig{LedgerID: &id}}}, nil)
	got, ok := g.LedgerConfig(context.Background())
	require.True(t, ok)
	assert.True(t, got.Equal(id))

	g = New(source{&stubActor{}}, nil)
	_, ok = g.LedgerConfig(context.Background())
	assert.False(t, ok)

	g = New(source{&stubActor{cfgErr: errors.New("boom")}}, nil)
	_, ok = g.LedgerConfig(context.Background())
	assert.False(t, ok)
}

func TestForwardsToActor(t *testing.T) {
	stub := &stubActor{}
	g := New(source{stub}, nil)

	res, err := g.SetLedgerConfig(context.Background(), principal.Anonymous())
	require.NoError(t, err)
	assert.True(t, res.IsOk())
	assert.Equal(t, 1, stub.setCalls)
}
