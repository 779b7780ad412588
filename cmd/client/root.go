package main

import (
	"fmt"
	"os"

	"github.com/atinyakov/NoteLedger/internal/config"
	"github.com/atinyakov/NoteLedger/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	verbose    bool
	overrides  = config.DefaultClient()
	options    *config.ClientOptions
	log        = logger.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "noteledger",
	Short: "Notes and tokens over a mutually authenticated backend",
	Long: `NoteLedger keeps notes and an internal token balance on a backend that
identifies you by your client certificate. Tokens can also move through an
optionally configured external ledger.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		options = opts

		level := opts.LogLevel
		if verbose {
			level = "debug"
		}
		if err := log.InitDevelopment(level); err != nil {
			return err
		}
		log.Log.Debug("client configured",
			zap.String("server", opts.ServerURL),
			zap.String("cert", opts.CertFile),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Log.Sync()
	},
}

// loadOptions layers defaults, the config file, NOTELEDGER_* variables and
// explicitly set flags, later sources winning.
func loadOptions(cmd *cobra.Command) (*config.ClientOptions, error) {
	opts := config.DefaultClient()
	if err := config.LoadFile(configPath, opts); err != nil {
		return nil, err
	}
	config.ApplyClientEnv(opts)

	flags := cmd.Flags()
	if flags.Changed("server") {
		opts.ServerURL = overrides.ServerURL
	}
	if flags.Changed("identity") {
		opts.IdentityURL = overrides.IdentityURL
	}
	if flags.Changed("cert") {
		opts.CertFile = overrides.CertFile
	}
	if flags.Changed("key") {
		opts.KeyFile = overrides.KeyFile
	}
	if flags.Changed("ca") {
		opts.CAFile = overrides.CAFile
	}
	if flags.Changed("timeout") {
		opts.Timeout = overrides.Timeout
	}
	if flags.Changed("log-level") {
		opts.LogLevel = overrides.LogLevel
	}
	return opts, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "noteledger.yaml", "path to config file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&overrides.ServerURL, "server", overrides.ServerURL, "backend base URL")
	pf.StringVar(&overrides.IdentityURL, "identity", overrides.IdentityURL, "identity provider URL (defaults to the backend)")
	pf.StringVar(&overrides.CertFile, "cert", overrides.CertFile, "path to client certificate")
	pf.StringVar(&overrides.KeyFile, "key", overrides.KeyFile, "path to client key")
	pf.StringVar(&overrides.CAFile, "ca", overrides.CAFile, "path to CA certificate")
	pf.DurationVar(&overrides.Timeout, "timeout", overrides.Timeout, "backend round trip timeout")
	pf.StringVar(&overrides.LogLevel, "log-level", overrides.LogLevel, "log level")
}
