// Package certgen runs the NoteLedger certificate authority: it bootstraps
// the CA and server credentials and issues per-device client certificates.
// A client certificate's public key is what the backend turns into the
// caller's principal.
package certgen

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/atinyakov/NoteLedger/internal/principal"
)

const (
	caValidity     = 10 * 365 * 24 * time.Hour
	leafValidity   = 365 * 24 * time.Hour
	caCommonName   = "NoteLedger CA"
	serialBitLimit = 62
)

// Credentials is a PEM-encoded certificate and private key.
type Credentials struct {
	CertPEM []byte
	KeyPEM  []byte
}

// LoadCACredentials loads a CA certificate and its private key from PEM files.
// It returns the parsed *x509.Certificate, the private key (either *ecdsa.PrivateKey or *rsa.PrivateKey),
// or an error if reading or parsing fails.
func LoadCACredentials(certPath, keyPath string) (*x509.Certificate, any, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read ca cert: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read ca key: %w", err)
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil || certBlock.Type != "CERTIFICATE" {
		return nil, nil, errors.New("invalid CA cert PEM")
	}
	caCert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse ca cert: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, nil, errors.New("invalid CA key PEM")
	}
	var caKey any
	switch keyBlock.Type {
	case "EC PRIVATE KEY":
		caKey, err = x509.ParseECPrivateKey(keyBlock.Bytes)
	case "RSA PRIVATE KEY":
		caKey, err = x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	default:
		return nil, nil, fmt.Errorf("unsupported key type: %s", keyBlock.Type)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("parse ca key: %w", err)
	}

	return caCert, caKey, nil
}

// GenerateCA creates a self-signed ECDSA P-256 certificate authority.
func GenerateCA() (Credentials, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Credentials{}, fmt.Errorf("gen ca key: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: caCommonName},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(caValidity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return Credentials{}, fmt.Errorf("create ca cert: %w", err)
	}
	return encode(der, priv)
}

// GenerateServerCertificate issues a TLS server certificate for host.
func GenerateServerCertificate(host string, caCert *x509.Certificate, caKey any) (Credentials, error) {
	creds, _, err := issue(pkix.Name{CommonName: host}, []string{host}, x509.ExtKeyUsageServerAuth, caCert, caKey)
	return creds, err
}

// GenerateUserCertificate issues a client certificate for a device label and
// returns it together with the principal derived from its public key.
func GenerateUserCertificate(label string, caCert *x509.Certificate, caKey any) (Credentials, principal.Principal, error) {
	return issue(pkix.Name{CommonName: label}, nil, x509.ExtKeyUsageClientAuth, caCert, caKey)
}

// EnsureCA loads the CA from certPath/keyPath, creating and writing a new
// one when neither file exists yet.
func EnsureCA(certPath, keyPath string) (*x509.Certificate, any, error) {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	if errors.Is(certErr, fs.ErrNotExist) && errors.Is(keyErr, fs.ErrNotExist) {
		creds, err := GenerateCA()
		if err != nil {
			return nil, nil, err
		}
		if err := WriteCredentials(certPath, keyPath, creds); err != nil {
			return nil, nil, err
		}
	}
	return LoadCACredentials(certPath, keyPath)
}

// EnsureServerCertificate issues a server certificate for host into
// certPath/keyPath unless both files already exist.
func EnsureServerCertificate(certPath, keyPath, host string, caCert *x509.Certificate, caKey any) error {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	if certErr == nil && keyErr == nil {
		return nil
	}
	creds, err := GenerateServerCertificate(host, caCert, caKey)
	if err != nil {
		return err
	}
	return WriteCredentials(certPath, keyPath, creds)
}

// WriteCredentials stores a certificate (0644) and key (0600), creating
// parent directories as needed.
func WriteCredentials(certPath, keyPath string, creds Credentials) error {
	for _, p := range []string{certPath, keyPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("create dir for %s: %w", p, err)
		}
	}
	if err := os.WriteFile(certPath, creds.CertPEM, 0644); err != nil {
		return fmt.Errorf("write %s: %w", certPath, err)
	}
	if err := os.WriteFile(keyPath, creds.KeyPEM, 0600); err != nil {
		return fmt.Errorf("write %s: %w", keyPath, err)
	}
	return nil
}

func issue(subject pkix.Name, dnsNames []string, usage x509.ExtKeyUsage, caCert *x509.Certificate, caKey any) (Credentials, principal.Principal, error) {
	signer, ok := caKey.(crypto.Signer)
	if !ok {
		return Credentials{}, principal.Principal{}, fmt.Errorf("unsupported ca key type %T", caKey)
	}
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Credentials{}, principal.Principal{}, fmt.Errorf("gen key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), serialBitLimit))
	if err != nil {
		return Credentials{}, principal.Principal{}, fmt.Errorf("gen serial: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      subject,
		DNSNames:     dnsNames,
		NotBefore:    time.Now().Add(-1 * time.Minute),
		NotAfter:     time.Now().Add(leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{usage},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, caCert, &priv.PublicKey, signer)
	if err != nil {
		return Credentials{}, principal.Principal{}, fmt.Errorf("create cert: %w", err)
	}
	spki, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return Credentials{}, principal.Principal{}, fmt.Errorf("marshal public key: %w", err)
	}
	creds, err := encode(certDER, priv)
	if err != nil {
		return Credentials{}, principal.Principal{}, err
	}
	return creds, principal.SelfAuthenticating(spki), nil
}

func encode(certDER []byte, priv *ecdsa.PrivateKey) (Credentials, error) {
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return Credentials{}, fmt.Errorf("marshal priv key: %w", err)
	}
	return Credentials{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}, nil
}
