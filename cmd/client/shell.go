package main

import (
	"context"

	"github.com/atinyakov/NoteLedger/internal/client/actor"
	"github.com/atinyakov/NoteLedger/internal/client/gateway"
	"github.com/atinyakov/NoteLedger/internal/client/identity"
	"github.com/atinyakov/NoteLedger/internal/client/notes"
	"github.com/atinyakov/NoteLedger/internal/client/session"
	"github.com/atinyakov/NoteLedger/internal/client/shell"
	"github.com/atinyakov/NoteLedger/internal/client/token"
	"github.com/atinyakov/NoteLedger/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the interactive shell",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		console := shell.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout())
		manager, tokens, noteBook := wire(options, console, log.Log)
		return shell.New(console, manager, tokens, noteBook, log.Log).Run(cmd.Context())
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <label>",
	Short: "Register this device and store its certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := args[0]
		answer := identity.PromptFunc(func(context.Context, string) (string, error) { return label, nil })
		manager, _, _ := wire(options, answer, log.Log)
		if err := manager.Login(cmd.Context()); err != nil {
			return err
		}
		cmd.Printf("Registered as %s\n", manager.Snapshot().Principal)
		return nil
	},
}

// wire builds the client object graph. Token and note state are
// re-synchronized, in that order, whenever the session authenticates.
func wire(opts *config.ClientOptions, prompter identity.Prompter, log *zap.Logger) (*session.Manager, *token.Orchestrator, *notes.Orchestrator) {
	provider := identity.NewCertProvider(identity.CertConfig{
		CertFile: opts.CertFile,
		KeyFile:  opts.KeyFile,
		CAFile:   opts.CAFile,
	}, prompter, log.Named("identity"))

	endpoint := actor.Endpoint{BaseURL: opts.ServerURL, CAFile: opts.CAFile, Timeout: opts.Timeout}
	returnTarget := opts.IdentityURL
	if returnTarget == "" {
		returnTarget = opts.ServerURL
	}
	manager := session.NewManager(provider, endpoint, returnTarget, log.Named("session"))

	gw := gateway.New(manager, log.Named("gateway"))
	tokens := token.New(gw, log.Named("token"))
	noteBook := notes.New(gw, log.Named("notes"))
	manager.OnAuthenticated(tokens.Refresh)
	manager.OnAuthenticated(noteBook.Fetch)

	return manager, tokens, noteBook
}

func init() {
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(registerCmd)
}
