// Package session owns the client's authentication state and the actor
// bound to it. It mediates login, logout and re-synchronization.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atinyakov/NoteLedger/internal/client/actor"
	"github.com/atinyakov/NoteLedger/internal/client/clienterr"
	"github.com/atinyakov/NoteLedger/internal/client/identity"
	"github.com/atinyakov/NoteLedger/internal/principal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Phase is the authentication state of the session.
type Phase int

const (
	Unauthenticated Phase = iota
	Authenticating
	Authenticated
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Unauthenticated:
		return "Unauthenticated"
	case Authenticating:
		return "Authenticating"
	case Authenticated:
		return "Authenticated"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// SyncFunc re-fetches one slice of remote state after authentication.
type SyncFunc func(ctx context.Context) error

// Snapshot is a consistent view of the session.
type Snapshot struct {
	Phase         Phase
	Principal     principal.Principal
	Authenticated bool
	Bound         bool
}

// Manager owns the identity, the actor and the authenticated flag. The
// three are always published together.
type Manager struct {
	provider     identity.Provider
	endpoint     actor.Endpoint
	returnTarget string
	log          *zap.Logger

	// ops allows a single session operation at a time.
	ops *semaphore.Weighted

	mu            sync.RWMutex
	phase         Phase
	identity      identity.Identity
	actor         actor.Actor
	authenticated bool
	syncs         []SyncFunc
}

// NewManager creates a manager in the Unauthenticated phase. returnTarget
// is handed to the provider's interactive login.
func NewManager(provider identity.Provider, endpoint actor.Endpoint, returnTarget string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		provider:     provider,
		endpoint:     endpoint,
		returnTarget: returnTarget,
		log:          log,
		ops:          semaphore.NewWeighted(1),
		identity:     identity.Anonymous(),
	}
}

// OnAuthenticated registers a re-synchronization step run, in registration
// order, every time Initialize finds an authenticated identity.
func (m *Manager) OnAuthenticated(fn SyncFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs = append(m.syncs, fn)
}

// Initialize acquires the identity and actor from the provider and, when
// the identity is authenticated, re-synchronizes all registered state.
// Without authentication it leaves an unauthenticated session and returns nil.
func (m *Manager) Initialize(ctx context.Context) error {
	if !m.ops.TryAcquire(1) {
		return clienterr.New(clienterr.Busy, "session operation in progress")
	}
	defer m.ops.Release(1)
	return m.initialize(ctx)
}

// Login runs the provider's interactive flow and re-initializes on success.
// An abandoned flow leaves the session unauthenticated and is not an error.
func (m *Manager) Login(ctx context.Context) error {
	if !m.ops.TryAcquire(1) {
		return clienterr.New(clienterr.Busy, "session operation in progress")
	}
	defer m.ops.Release(1)

	m.setPhase(Authenticating)
	if err := m.provider.Login(ctx, m.returnTarget); err != nil {
		m.restorePhase()
		if errors.Is(err, identity.ErrAbandoned) {
			m.log.Info("login abandoned")
			return nil
		}
		return fmt.Errorf("login: %w", err)
	}
	return m.initialize(ctx)
}

// Logout discards the identity and re-initializes with an anonymous actor.
func (m *Manager) Logout(ctx context.Context) error {
	if !m.ops.TryAcquire(1) {
		return clienterr.New(clienterr.Busy, "session operation in progress")
	}
	defer m.ops.Release(1)

	m.setPhase(Authenticating)
	if err := m.provider.Logout(ctx); err != nil {
		m.restorePhase()
		return fmt.Errorf("logout: %w", err)
	}
	return m.initialize(ctx)
}

// Actor returns the bound actor when the session is authenticated.
func (m *Manager) Actor() (actor.Actor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.authenticated || m.actor == nil {
		return nil, false
	}
	return m.actor, true
}

// Phase returns the current phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Snapshot returns the session state as one consistent value.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Phase:         m.phase,
		Principal:     m.identity.Principal(),
		Authenticated: m.authenticated,
		Bound:         m.actor != nil,
	}
}

func (m *Manager) initialize(ctx context.Context) error {
	m.setPhase(Authenticating)

	id, err := m.provider.CreateSession(ctx)
	if err != nil {
		m.restorePhase()
		return fmt.Errorf("create identity session: %w", err)
	}
	authenticated, err := m.provider.IsAuthenticated(ctx, id)
	if err != nil {
		m.restorePhase()
		return fmt.Errorf("check authentication: %w", err)
	}
	bound, err := m.provider.BindActor(ctx, id, m.endpoint)
	if err != nil {
		m.restorePhase()
		return fmt.Errorf("bind actor: %w", err)
	}

	m.mu.Lock()
	m.identity = id
	m.actor = bound
	m.authenticated = authenticated
	if authenticated {
		m.phase = Authenticated
	} else {
		m.phase = Unauthenticated
	}
	syncs := append([]SyncFunc(nil), m.syncs...)
	m.mu.Unlock()

	m.log.Info("session initialized",
		zap.Bool("authenticated", authenticated),
		zap.String("principal", id.Principal().Text()),
	)
	if !authenticated {
		return nil
	}

	var errs []error
	for _, fn := range syncs {
		if err := fn(ctx); err != nil {
			m.log.Warn("resync failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

// restorePhase puts the phase back in line with the authenticated flag
// after an aborted transition.
func (m *Manager) restorePhase() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.authenticated {
		m.phase = Authenticated
	} else {
		m.phase = Unauthenticated
	}
}
