package certgen

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atinyakov/NoteLedger/internal/principal"
)

// setupTestCA writes a fresh CA into a temp dir and loads it back.
func setupTestCA(t *testing.T) (dir string, caCert *x509.Certificate, caKey any) {
	t.Helper()

	dir = t.TempDir()
	creds, err := GenerateCA()
	if err != nil {
		t.Fatalf("GenerateCA: %v", err)
	}
	certPath, keyPath := filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key")
	if err := WriteCredentials(certPath, keyPath, creds); err != nil {
		t.Fatalf("WriteCredentials: %v", err)
	}
	caCert, caKey, err = LoadCACredentials(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadCACredentials: %v", err)
	}
	return dir, caCert, caKey
}

func TestLoadCACredentials_Success(t *testing.T) {
	_, caCert, caKey := setupTestCA(t)

	if caCert.Subject.CommonName != caCommonName {
		t.Errorf("CommonName = %q; want %q", caCert.Subject.CommonName, caCommonName)
	}
	if !caCert.IsCA {
		t.Error("loaded certificate is not a CA")
	}
	if _, ok := caKey.(*ecdsa.PrivateKey); !ok {
		t.Fatalf("key type = %T; want *ecdsa.PrivateKey", caKey)
	}
}

func TestLoadCACredentials_Errors(t *testing.T) {
	dir, _, _ := setupTestCA(t)
	goodCert, goodKey := filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key")
	badFile := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(badFile, []byte("not a pem"), 0600); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name       string
		cert, key  string
		wantSubstr string
	}{
		{"missing cert", "/no/such/file.pem", goodKey, "read ca cert"},
		{"missing key", goodCert, "/no/such/key.pem", "read ca key"},
		{"bad cert PEM", badFile, goodKey, "invalid CA cert PEM"},
		{"bad key PEM", goodCert, badFile, "invalid CA key PEM"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := LoadCACredentials(tc.cert, tc.key)
			if err == nil || !strings.Contains(err.Error(), tc.wantSubstr) {
				t.Errorf("got %v; want error containing %q", err, tc.wantSubstr)
			}
		})
	}
}

func TestGenerateUserCertificate_Success(t *testing.T) {
	_, caCert, caKey := setupTestCA(t)

	creds, p, err := GenerateUserCertificate("laptop", caCert, caKey)
	if err != nil {
		t.Fatalf("GenerateUserCertificate error: %v", err)
	}
	block, _ := pem.Decode(creds.CertPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatalf("cert PEM invalid")
	}
	userCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse user cert: %v", err)
	}
	if userCert.Subject.CommonName != "laptop" {
		t.Errorf("CommonName = %q; want %q", userCert.Subject.CommonName, "laptop")
	}
	if err := userCert.CheckSignatureFrom(caCert); err != nil {
		t.Errorf("signature check failed: %v", err)
	}
	if want := principal.SelfAuthenticating(userCert.RawSubjectPublicKeyInfo); !p.Equal(want) {
		t.Errorf("principal = %v; want %v", p, want)
	}

	keyBlock, _ := pem.Decode(creds.KeyPEM)
	if keyBlock == nil || keyBlock.Type != "EC PRIVATE KEY" {
		t.Fatalf("key PEM invalid")
	}
	if _, err := x509.ParseECPrivateKey(keyBlock.Bytes); err != nil {
		t.Errorf("parse private key failed: %v", err)
	}
}

func TestGenerateUserCertificate_UnsupportedKey(t *testing.T) {
	_, caCert, _ := setupTestCA(t)
	if _, _, err := GenerateUserCertificate("x", caCert, "not a key"); err == nil {
		t.Error("expected error for unsupported CA key")
	}
}

func TestGenerateServerCertificate(t *testing.T) {
	_, caCert, caKey := setupTestCA(t)

	creds, err := GenerateServerCertificate("localhost", caCert, caKey)
	if err != nil {
		t.Fatalf("GenerateServerCertificate: %v", err)
	}
	block, _ := pem.Decode(creds.CertPEM)
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cert.DNSNames) != 1 || cert.DNSNames[0] != "localhost" {
		t.Errorf("DNSNames = %v; want [localhost]", cert.DNSNames)
	}
}

func TestEnsureCA_CreatesOnce(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := filepath.Join(dir, "certs", "ca.crt"), filepath.Join(dir, "certs", "ca.key")

	first, _, err := EnsureCA(certPath, keyPath)
	if err != nil {
		t.Fatalf("EnsureCA: %v", err)
	}
	second, _, err := EnsureCA(certPath, keyPath)
	if err != nil {
		t.Fatalf("EnsureCA second call: %v", err)
	}
	if !first.Equal(second) {
		t.Error("EnsureCA regenerated an existing CA")
	}
	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key permissions = %o; want 600", perm)
	}
}

func TestEnsureServerCertificate_KeepsExisting(t *testing.T) {
	dir, caCert, caKey := setupTestCA(t)
	certPath, keyPath := filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key")

	if err := EnsureServerCertificate(certPath, keyPath, "localhost", caCert, caKey); err != nil {
		t.Fatalf("EnsureServerCertificate: %v", err)
	}
	first, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatalf("read server cert: %v", err)
	}
	if err := EnsureServerCertificate(certPath, keyPath, "other.example", caCert, caKey); err != nil {
		t.Fatalf("EnsureServerCertificate second call: %v", err)
	}
	second, _ := os.ReadFile(certPath)
	if string(first) != string(second) {
		t.Error("existing server certificate was replaced")
	}
}
