package identity

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atinyakov/NoteLedger/internal/certgen"
	"github.com/atinyakov/NoteLedger/internal/client/actor"
	"github.com/atinyakov/NoteLedger/internal/models"
)

// registrationServer issues user certificates from a throwaway CA and
// returns the provider config trusting it.
func registrationServer(t *testing.T) (*httptest.Server, CertConfig) {
	t.Helper()
	dir := t.TempDir()
	caCert, caKey, err := certgen.EnsureCA(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key"))
	if err != nil {
		t.Fatalf("EnsureCA: %v", err)
	}

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != actor.PathRegister {
			http.NotFound(w, r)
			return
		}
		var req struct{ Login string }
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		creds, p, err := certgen.GenerateUserCertificate(req.Login, caCert, caKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(models.RegisterResponse{
			Cert: string(creds.CertPEM), Key: string(creds.KeyPEM), Principal: p.Text(),
		})
	}))
	t.Cleanup(srv.Close)

	serverCA := filepath.Join(dir, "server-ca.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	if err := os.WriteFile(serverCA, pemBytes, 0600); err != nil {
		t.Fatal(err)
	}
	return srv, CertConfig{
		CertFile: filepath.Join(dir, "creds", "client.crt"),
		KeyFile:  filepath.Join(dir, "creds", "client.key"),
		CAFile:   serverCA,
	}
}

func answer(s string) PromptFunc {
	return func(context.Context, string) (string, error) { return s, nil }
}

func TestCreateSession_NoFilesIsAnonymous(t *testing.T) {
	dir := t.TempDir()
	p := NewCertProvider(CertConfig{
		CertFile: filepath.Join(dir, "none.crt"),
		KeyFile:  filepath.Join(dir, "none.key"),
	}, nil, nil)

	id, err := p.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if !id.IsAnonymous() || !id.Principal().IsAnonymous() {
		t.Errorf("identity = %v; want anonymous", id.Principal())
	}
	if ok, _ := p.IsAuthenticated(context.Background(), id); ok {
		t.Error("anonymous identity reported as authenticated")
	}
}

func TestLoginLogout(t *testing.T) {
	srv, cfg := registrationServer(t)
	p := NewCertProvider(cfg, answer(" laptop "), nil)
	ctx := context.Background()

	if err := p.Login(ctx, srv.URL); err != nil {
		t.Fatalf("Login: %v", err)
	}
	info, err := os.Stat(cfg.KeyFile)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key permissions = %o; want 600", perm)
	}

	id, err := p.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id.IsAnonymous() {
		t.Fatal("identity still anonymous after login")
	}
	if ok, _ := p.IsAuthenticated(ctx, id); !ok {
		t.Error("fresh identity not authenticated")
	}

	p.now = func() time.Time { return time.Now().AddDate(5, 0, 0) }
	if ok, _ := p.IsAuthenticated(ctx, id); ok {
		t.Error("expired identity reported as authenticated")
	}

	if err := p.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := os.Stat(cfg.CertFile); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cert file still present: %v", err)
	}
	id, _ = p.CreateSession(ctx)
	if !id.IsAnonymous() {
		t.Error("identity not anonymous after logout")
	}
}

func TestLogin_Abandoned(t *testing.T) {
	_, cfg := registrationServer(t)

	for name, p := range map[string]*CertProvider{
		"empty label": NewCertProvider(cfg, answer("   "), nil),
		"no prompter": NewCertProvider(cfg, nil, nil),
	} {
		t.Run(name, func(t *testing.T) {
			if err := p.Login(context.Background(), "https://unused.invalid"); !errors.Is(err, ErrAbandoned) {
				t.Errorf("err = %v; want ErrAbandoned", err)
			}
		})
	}
}

func TestLogin_ServerError(t *testing.T) {
	_, cfg := registrationServer(t)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "login taken", http.StatusConflict)
	}))
	defer srv.Close()
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	if err := os.WriteFile(cfg.CAFile, pemBytes, 0600); err != nil {
		t.Fatal(err)
	}

	p := NewCertProvider(cfg, answer("laptop"), nil)
	err := p.Login(context.Background(), srv.URL)
	if err == nil || err.Error() != "server error: login taken" {
		t.Errorf("err = %v", err)
	}
}

func TestBindActor(t *testing.T) {
	_, cfg := registrationServer(t)
	p := NewCertProvider(cfg, nil, nil)

	a, err := p.BindActor(context.Background(), Anonymous(), actor.Endpoint{BaseURL: "https://localhost:8080"})
	if err != nil {
		t.Fatalf("BindActor: %v", err)
	}
	if a == nil {
		t.Fatal("nil actor")
	}

	_, err = p.BindActor(context.Background(), Anonymous(), actor.Endpoint{CAFile: "/no/such/ca.pem"})
	if err == nil {
		t.Error("expected error for missing CA bundle")
	}
}
