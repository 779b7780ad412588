// Package config provides functionality for managing configuration options
// for the server and the client using command-line flags, environment
// variables and an optional YAML (or JSON) config file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerOptions holds the configuration values of the backend.
type ServerOptions struct {
	// Port defines the server's listening address (ip:port).
	Port string `yaml:"address"`

	// Host is the DNS name put into the generated server certificate.
	Host string `yaml:"host"`

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string `yaml:"database_dsn"`

	// CertDir holds ca.crt, ca.key, server.crt and server.key.
	CertDir string `yaml:"cert_dir"`

	// LogLevel is the zap level name.
	LogLevel string `yaml:"log_level"`

	// Ledgers maps an external ledger principal (text form) to its base URL.
	Ledgers map[string]string `yaml:"ledgers"`

	// TransferRate is the per-principal number of transfers allowed per second.
	TransferRate float64 `yaml:"transfer_rate"`

	// TransferBurst is the per-principal transfer burst size.
	TransferBurst int `yaml:"transfer_burst"`

	// PurgeInterval is how often soft-deleted notes are purged.
	PurgeInterval time.Duration `yaml:"purge_interval"`

	// PurgeRetention is how long soft-deleted notes are kept.
	PurgeRetention time.Duration `yaml:"purge_retention"`

	// Config is the path to the config file.
	Config string `yaml:"-"`
}

// ClientOptions holds the configuration values of the client shell.
type ClientOptions struct {
	// ServerURL is the backend root.
	ServerURL string `yaml:"server_url"`

	// IdentityURL is where interactive login registers new identities.
	// Empty means ServerURL.
	IdentityURL string `yaml:"identity_url"`

	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Timeout bounds one backend round trip.
	Timeout time.Duration `yaml:"timeout"`

	// LogLevel is the zap level name.
	LogLevel string `yaml:"log_level"`
}

// DefaultServer returns the server defaults.
func DefaultServer() *ServerOptions {
	return &ServerOptions{
		Port:           "localhost:8080",
		Host:           "localhost",
		CertDir:        "certs",
		LogLevel:       "Info",
		TransferRate:   1,
		TransferBurst:  5,
		PurgeInterval:  time.Hour,
		PurgeRetention: 30 * 24 * time.Hour,
		Config:         "config.yaml",
	}
}

// DefaultClient returns the client defaults.
func DefaultClient() *ClientOptions {
	return &ClientOptions{
		ServerURL: "https://localhost:8080",
		CertFile:  "certs/client.crt",
		KeyFile:   "certs/client.key",
		CAFile:    "certs/ca.crt",
		Timeout:   10 * time.Second,
		LogLevel:  "warn",
	}
}

// ParseServer parses args and environment variables into server options.
// The config file, if present, overrides flags; environment variables
// override both.
func ParseServer(name string, args []string) (*ServerOptions, error) {
	options := DefaultServer()

	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.StringVar(&options.Port, "a", options.Port, "run on ip:port server")
	flags.StringVar(&options.Host, "host", options.Host, "DNS name of the server certificate")
	flags.StringVar(&options.DatabaseDSN, "d", options.DatabaseDSN, "db address")
	flags.StringVar(&options.CertDir, "certs", options.CertDir, "directory holding CA and server certificates")
	flags.StringVar(&options.LogLevel, "l", options.LogLevel, "log level")
	flags.Float64Var(&options.TransferRate, "transfer-rate", options.TransferRate, "transfers per second per principal")
	flags.IntVar(&options.TransferBurst, "transfer-burst", options.TransferBurst, "transfer burst per principal")
	flags.StringVar(&options.Config, "config", options.Config, "path to config file")
	flags.StringVar(&options.Config, "c", options.Config, "path to config file (shorthand)")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}
	if err := LoadFile(options.Config, options); err != nil {
		return nil, err
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		options.LogLevel = level
	}
	if rate := os.Getenv("TRANSFER_RATE"); rate != "" {
		v, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return nil, fmt.Errorf("TRANSFER_RATE: %w", err)
		}
		options.TransferRate = v
	}
	return options, nil
}

// ApplyClientEnv overrides client options from NOTELEDGER_* variables.
func ApplyClientEnv(options *ClientOptions) {
	for env, field := range map[string]*string{
		"NOTELEDGER_SERVER":   &options.ServerURL,
		"NOTELEDGER_IDENTITY": &options.IdentityURL,
		"NOTELEDGER_CERT":     &options.CertFile,
		"NOTELEDGER_KEY":      &options.KeyFile,
		"NOTELEDGER_CA":       &options.CAFile,
		"NOTELEDGER_LOG":      &options.LogLevel,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// LoadFile decodes the file at path into out. A missing file is not an
// error. JSON files are accepted since JSON is valid YAML.
func LoadFile(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error while reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}
