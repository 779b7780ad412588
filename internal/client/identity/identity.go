// Package identity provides the client identity and binds typed actors to it.
//
// The session manager depends only on the Provider interface; CertProvider
// is the mutual-TLS implementation used by the shell, where an identity is
// a client certificate issued by the backend's certificate authority.
package identity

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"

	"github.com/atinyakov/NoteLedger/internal/client/actor"
	"github.com/atinyakov/NoteLedger/internal/principal"
)

// ErrAbandoned is returned by Login when the user leaves the interactive flow.
var ErrAbandoned = errors.New("login abandoned")

// Provider produces identities and actors bound to them.
type Provider interface {
	// CreateSession returns the identity currently held by the provider,
	// anonymous when none was obtained yet.
	CreateSession(ctx context.Context) (Identity, error)
	// IsAuthenticated reports whether id is a usable, non-anonymous identity.
	IsAuthenticated(ctx context.Context, id Identity) (bool, error)
	// Login runs the interactive authentication flow against returnTarget.
	Login(ctx context.Context, returnTarget string) error
	// Logout discards the held identity.
	Logout(ctx context.Context) error
	// BindActor returns remote-call stubs that act as id.
	BindActor(ctx context.Context, id Identity, endpoint actor.Endpoint) (actor.Actor, error)
}

// Identity is an opaque authenticated (or anonymous) caller.
type Identity struct {
	principal   principal.Principal
	certificate *tls.Certificate
	notAfter    time.Time
}

// Anonymous returns an identity with no credentials.
func Anonymous() Identity {
	return Identity{principal: principal.Anonymous()}
}

// FromCertificate builds an identity from a TLS key pair. The principal is
// derived from the certificate public key, the same way the backend does.
func FromCertificate(cert tls.Certificate) (Identity, error) {
	if len(cert.Certificate) == 0 {
		return Identity{}, errors.New("empty certificate chain")
	}
	leaf := cert.Leaf
	if leaf == nil {
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return Identity{}, err
		}
		leaf = parsed
	}
	return Identity{
		principal:   principal.SelfAuthenticating(leaf.RawSubjectPublicKeyInfo),
		certificate: &cert,
		notAfter:    leaf.NotAfter,
	}, nil
}

// Principal returns the identity's principal.
func (id Identity) Principal() principal.Principal { return id.principal }

// Certificate returns the TLS credentials, or nil for anonymous identities.
func (id Identity) Certificate() *tls.Certificate { return id.certificate }

// IsAnonymous reports whether the identity has no credentials.
func (id Identity) IsAnonymous() bool { return id.certificate == nil }

// Expired reports whether the credentials are no longer valid at now.
func (id Identity) Expired(now time.Time) bool {
	return id.certificate != nil && now.After(id.notAfter)
}
