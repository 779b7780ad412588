// Package service provides the backend business logic for identities,
// notes and tokens, delegating persistence to repository interfaces.
package service

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"github.com/atinyakov/NoteLedger/internal/certgen"
	"github.com/atinyakov/NoteLedger/internal/models"
)

// ErrLabelTaken is returned when a device label is already registered.
var ErrLabelTaken = errors.New("label already registered")

// ErrInvalidLabel is returned for an empty device label.
var ErrInvalidLabel = errors.New("label is required")

// AuthRepository defines the persistence operations
// required by the authentication service.
type AuthRepository interface {
	// LabelExists returns true if the device label is already registered.
	LabelExists(ctx context.Context, label string) (bool, error)
	// RegisterPrincipal records a newly issued principal.
	RegisterPrincipal(ctx context.Context, principal, label string) error
}

// AuthService issues client certificates signed by the server CA. The
// principal of a caller is derived from the certificate key, so issuing a
// certificate is the whole registration.
type AuthService struct {
	repo   AuthRepository
	caCert *x509.Certificate
	caKey  any
}

// NewAuthService constructs a new AuthService using the provided
// repository and CA credentials.
func NewAuthService(repo AuthRepository, caCert *x509.Certificate, caKey any) *AuthService {
	return &AuthService{repo: repo, caCert: caCert, caKey: caKey}
}

// Register issues a certificate for a new device label.
func (s *AuthService) Register(ctx context.Context, label string) (models.RegisterResponse, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return models.RegisterResponse{}, ErrInvalidLabel
	}
	exists, err := s.repo.LabelExists(ctx, label)
	if err != nil {
		return models.RegisterResponse{}, fmt.Errorf("check label: %w", err)
	}
	if exists {
		return models.RegisterResponse{}, ErrLabelTaken
	}

	creds, p, err := certgen.GenerateUserCertificate(label, s.caCert, s.caKey)
	if err != nil {
		return models.RegisterResponse{}, fmt.Errorf("issue certificate: %w", err)
	}
	if err := s.repo.RegisterPrincipal(ctx, p.Text(), label); err != nil {
		return models.RegisterResponse{}, fmt.Errorf("save principal: %w", err)
	}
	return models.RegisterResponse{
		Cert:      string(creds.CertPEM),
		Key:       string(creds.KeyPEM),
		Principal: p.Text(),
	}, nil
}
