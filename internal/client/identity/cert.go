package identity

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/atinyakov/NoteLedger/internal/client/actor"
	"github.com/atinyakov/NoteLedger/internal/models"
	"go.uber.org/zap"
)

// Prompter asks the user a question during the interactive login flow.
type Prompter interface {
	Prompt(ctx context.Context, question string) (string, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context, question string) (string, error)

// Prompt implements Prompter.
func (f PromptFunc) Prompt(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// CertConfig locates the credential files of a CertProvider.
type CertConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// CertProvider keeps the identity as a client certificate on disk.
// Login obtains a certificate from the backend's registration endpoint.
type CertProvider struct {
	cfg      CertConfig
	prompter Prompter
	log      *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	current *Identity
}

// NewCertProvider creates a provider over the given files.
func NewCertProvider(cfg CertConfig, prompter Prompter, log *zap.Logger) *CertProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &CertProvider{cfg: cfg, prompter: prompter, log: log, now: time.Now}
}

// CreateSession loads the stored certificate, or returns an anonymous
// identity when there is none.
func (p *CertProvider) CreateSession(ctx context.Context) (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		return *p.current, nil
	}
	cert, err := tls.LoadX509KeyPair(p.cfg.CertFile, p.cfg.KeyFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			id := Anonymous()
			p.current = &id
			return id, nil
		}
		return Identity{}, fmt.Errorf("failed to load client cert/key: %w", err)
	}
	id, err := FromCertificate(cert)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse client cert: %w", err)
	}
	p.current = &id
	return id, nil
}

// IsAuthenticated reports whether id holds unexpired credentials.
func (p *CertProvider) IsAuthenticated(_ context.Context, id Identity) (bool, error) {
	return !id.IsAnonymous() && !id.Expired(p.now()), nil
}

// Login asks for a device label, registers it at returnTarget and stores
// the issued certificate. An empty label abandons the flow.
func (p *CertProvider) Login(ctx context.Context, returnTarget string) error {
	if p.prompter == nil {
		return ErrAbandoned
	}
	label, err := p.prompter.Prompt(ctx, "Device label: ")
	if err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return ErrAbandoned
	}

	client, err := p.registrationClient()
	if err != nil {
		return err
	}
	b, _ := json.Marshal(map[string]string{"login": label})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, returnTarget+actor.PathRegister, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("register failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", bytes.TrimSpace(data))
	}

	var issued models.RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&issued); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if _, err := tls.X509KeyPair([]byte(issued.Cert), []byte(issued.Key)); err != nil {
		return fmt.Errorf("issued credentials are unusable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.cfg.CertFile), 0700); err != nil {
		return fmt.Errorf("failed to create credentials dir: %w", err)
	}
	if err := os.WriteFile(p.cfg.CertFile, []byte(issued.Cert), 0600); err != nil {
		return fmt.Errorf("failed to save %s: %w", p.cfg.CertFile, err)
	}
	if err := os.WriteFile(p.cfg.KeyFile, []byte(issued.Key), 0600); err != nil {
		return fmt.Errorf("failed to save %s: %w", p.cfg.KeyFile, err)
	}

	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	p.log.Info("registered identity", zap.String("label", label), zap.String("principal", issued.Principal))
	return nil
}

// Logout deletes the stored certificate and key.
func (p *CertProvider) Logout(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, path := range []string{p.cfg.CertFile, p.cfg.KeyFile} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	anon := Anonymous()
	p.current = &anon
	return nil
}

// BindActor returns an HTTP actor that presents id's certificate, if any.
func (p *CertProvider) BindActor(_ context.Context, id Identity, endpoint actor.Endpoint) (actor.Actor, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	caFile := endpoint.CAFile
	if caFile == "" {
		caFile = p.cfg.CAFile
	}
	if caFile != "" {
		pool, err := loadCAPool(caFile)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	}
	if cert := id.Certificate(); cert != nil {
		tlsCfg.Certificates = []tls.Certificate{*cert}
	}

	timeout := endpoint.Timeout
	if timeout == 0 {
		timeout = actor.DefaultTimeout
	}
	client := &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
		Timeout:   timeout,
	}
	return actor.NewHTTPActor(client, endpoint.BaseURL, p.log.Named("actor")), nil
}

func (p *CertProvider) registrationClient() (*http.Client, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if p.cfg.CAFile != "" {
		pool, err := loadCAPool(p.cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
		Timeout:   actor.DefaultTimeout,
	}, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}
	return pool, nil
}
