package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atinyakov/NoteLedger/internal/middleware"
	"github.com/atinyakov/NoteLedger/internal/models"
	"github.com/atinyakov/NoteLedger/internal/principal"
	"github.com/atinyakov/NoteLedger/internal/service"
)

// fakeAuthService implements AuthService for testing.
type fakeAuthService struct {
	response    models.RegisterResponse
	registerErr error
	gotLabel    string
}

func (f *fakeAuthService) Register(ctx context.Context, label string) (models.RegisterResponse, error) {
	f.gotLabel = label
	return f.response, f.registerErr
}

func TestAuthHandler_Register(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		service        *fakeAuthService
		expectedCode   int
		expectedSubstr string
	}{
		{
			name:           "invalid JSON",
			body:           `not a json`,
			service:        &fakeAuthService{},
			expectedCode:   http.StatusBadRequest,
			expectedSubstr: "invalid request",
		},
		{
			name:           "empty login",
			body:           `{"login":""}`,
			service:        &fakeAuthService{},
			expectedCode:   http.StatusBadRequest,
			expectedSubstr: "invalid request",
		},
		{
			name:           "blank label rejected by service",
			body:           `{"login":"   "}`,
			service:        &fakeAuthService{registerErr: service.ErrInvalidLabel},
			expectedCode:   http.StatusBadRequest,
			expectedSubstr: "invalid request",
		},
		{
			name:           "label taken",
			body:           `{"login":"bob"}`,
			service:        &fakeAuthService{registerErr: service.ErrLabelTaken},
			expectedCode:   http.StatusConflict,
			expectedSubstr: "login already registered",
		},
		{
			name:           "issue failure",
			body:           `{"login":"charlie"}`,
			service:        &fakeAuthService{registerErr: errors.New("db error")},
			expectedCode:   http.StatusInternalServerError,
			expectedSubstr: "failed to issue certificate",
		},
		{
			name: "success",
			body: `{"login":"laptop"}`,
			service: &fakeAuthService{response: models.RegisterResponse{
				Cert: "CERT", Key: "KEY", Principal: "2vxsx-fae",
			}},
			expectedCode:   http.StatusOK,
			expectedSubstr: `"principal":"2vxsx-fae"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/register", bytes.NewBufferString(tt.body))
			h := &AuthHandler{AuthService: tt.service}
			h.Register(rec, req)
			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.expectedCode {
				t.Fatalf("expected status %d, got %d", tt.expectedCode, res.StatusCode)
			}

			buf := new(bytes.Buffer)
			if _, err := buf.ReadFrom(res.Body); err != nil {
				t.Fatalf("failed to read body: %v", err)
			}
			if !bytes.Contains(buf.Bytes(), []byte(tt.expectedSubstr)) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedSubstr, buf.String())
			}
		})
	}
}

func TestAuthHandler_WhoAmI(t *testing.T) {
	tests := []struct {
		name          string
		tlsState      *tls.ConnectionState
		expected      principal.Principal
		authenticated bool
	}{
		{
			name:     "no TLS",
			tlsState: nil,
			expected: principal.Anonymous(),
		},
		{
			name:     "empty peer certs",
			tlsState: &tls.ConnectionState{},
			expected: principal.Anonymous(),
		},
		{
			name: "client certificate",
			tlsState: &tls.ConnectionState{PeerCertificates: []*x509.Certificate{
				{RawSubjectPublicKeyInfo: []byte("frank")},
			}},
			expected:      principal.SelfAuthenticating([]byte("frank")),
			authenticated: true,
		},
	}

	h := &AuthHandler{AuthService: &fakeAuthService{}}
	handler := middleware.CertAuth(http.HandlerFunc(h.WhoAmI))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/api/whoami", nil)
			req.TLS = tt.tlsState

			handler.ServeHTTP(rec, req)
			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != http.StatusOK {
				t.Fatalf("%s: expected status 200, got %d", tt.name, res.StatusCode)
			}
			var payload models.WhoAmIResponse
			if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
				t.Fatalf("failed to decode JSON: %v", err)
			}
			if !payload.Principal.Equal(tt.expected) {
				t.Errorf("principal = %s; want %s", payload.Principal, tt.expected)
			}
			if payload.Authenticated != tt.authenticated {
				t.Errorf("authenticated = %v; want %v", payload.Authenticated, tt.authenticated)
			}
		})
	}
}
