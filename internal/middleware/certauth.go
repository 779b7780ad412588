// Package middleware provides HTTP middlewares for caller identification,
// request logging, metrics and rate limiting.
package middleware

import (
	"context"
	"net/http"

	"github.com/atinyakov/NoteLedger/internal/principal"
)

type ctxKey string

const principalKey ctxKey = "principal"

// CertAuth identifies the caller by its TLS client certificate.
//
// The principal is derived from the certificate's public key, so the same
// key always maps to the same principal. Requests without a certificate are
// served as the anonymous principal; handlers and services decide what an
// anonymous caller may do.
func CertAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := principal.Anonymous()
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			caller = principal.SelfAuthenticating(r.TLS.PeerCertificates[0].RawSubjectPublicKeyInfo)
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), caller)))
	})
}

// RequireCertificate rejects anonymous callers with 401.
func RequireCertificate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()).IsAnonymous() {
			http.Error(w, "no client certificate provided", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithPrincipal stores the caller principal in ctx.
func WithPrincipal(ctx context.Context, p principal.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the caller principal from the request
// context. Returns the anonymous principal if none was stored.
func PrincipalFromContext(ctx context.Context) principal.Principal {
	if p, ok := ctx.Value(principalKey).(principal.Principal); ok {
		return p
	}
	return principal.Anonymous()
}
