// Package main provisions the certificate authority and server certificate
// under a certs directory, and optionally issues a client certificate for a
// device label, printing the principal derived from it.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/atinyakov/NoteLedger/internal/certgen"
)

func main() {
	dir := flag.String("dir", "certs", "directory for ca, server and client credentials")
	host := flag.String("host", "localhost", "DNS name of the server certificate")
	label := flag.String("user", "", "device label to issue a client certificate for")
	flag.Parse()

	if err := run(*dir, *host, *label, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "certgen:", err)
		os.Exit(1)
	}
}

// run creates the CA and server credentials in dir unless present. With a
// non-empty label it also writes client.crt/client.key for that label.
func run(dir, host, label string, out io.Writer) error {
	caCert, caKey, err := certgen.EnsureCA(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key"))
	if err != nil {
		return fmt.Errorf("ca: %w", err)
	}
	if err := certgen.EnsureServerCertificate(
		filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"), host, caCert, caKey,
	); err != nil {
		return fmt.Errorf("server certificate: %w", err)
	}

	if label != "" {
		creds, p, err := certgen.GenerateUserCertificate(label, caCert, caKey)
		if err != nil {
			return fmt.Errorf("client certificate: %w", err)
		}
		if err := certgen.WriteCredentials(filepath.Join(dir, "client.crt"), filepath.Join(dir, "client.key"), creds); err != nil {
			return err
		}
		fmt.Fprintf(out, "client %q has principal %s\n", label, p)
	}

	fmt.Fprintf(out, "certificates written to %s\n", dir)
	return nil
}
