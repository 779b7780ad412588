// Package shell is the interactive terminal front end of the NoteLedger
// client. It turns typed commands into orchestrator calls and renders their
// state and failures as status lines.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/NoteLedger/internal/client/clienterr"
	"github.com/atinyakov/NoteLedger/internal/client/session"
	"github.com/atinyakov/NoteLedger/internal/client/token"
	"github.com/atinyakov/NoteLedger/internal/models"
	"go.uber.org/zap"
)

// Prompt is printed before every command.
const Prompt = "noteledger> "

const helpText = `Available commands:
  login                                  obtain or load an identity
  logout                                 forget the identity
  whoami                                 show the current principal
  notes                                  list notes
  add <text>                             add a note
  edit <id> <text>                       replace a note
  delete <id>                            delete a note
  search [query]                         filter notes; empty query lists all
  balance                                show internal and external balances
  history                                show transactions
  ledger <ledger-id>                     configure the external ledger
  transfer <internal|external> <to> <n>  send tokens
  help, exit`

// Session is the part of session.Manager the shell drives.
type Session interface {
	Initialize(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Snapshot() session.Snapshot
}

// Tokens is the part of token.Orchestrator the shell drives.
type Tokens interface {
	Refresh(ctx context.Context) error
	ConfigureExternalLedger(ctx context.Context, idText string) error
	Transfer(ctx context.Context, req models.TransferRequest) error
	Snapshot() token.Snapshot
	CanConfigureLedger() bool
}

// Notes is the part of notes.Orchestrator the shell drives.
type Notes interface {
	Fetch(ctx context.Context) error
	Search(ctx context.Context, query string) error
	Add(ctx context.Context, content string) error
	Update(ctx context.Context, id uint64, content string) error
	Delete(ctx context.Context, id uint64) error
	Notes() []models.Note
	Query() string
}

// Console reads lines from the user and writes output. It also answers the
// questions of the interactive login flow, so both share one input stream.
type Console struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewConsole wraps in and out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{scanner: bufio.NewScanner(in), out: out}
}

// Prompt prints question and returns the next input line.
func (c *Console) Prompt(_ context.Context, question string) (string, error) {
	fmt.Fprint(c.out, question)
	line, ok := c.readLine()
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func (c *Console) readLine() (string, bool) {
	if !c.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.scanner.Text()), true
}

func (c *Console) println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

func (c *Console) printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

// Shell is the REPL.
type Shell struct {
	console *Console
	session Session
	tokens  Tokens
	notes   Notes
	log     *zap.Logger
}

// New creates a shell over the given components.
func New(console *Console, sess Session, tokens Tokens, notes Notes, log *zap.Logger) *Shell {
	if log == nil {
		log = zap.NewNop()
	}
	return &Shell{console: console, session: sess, tokens: tokens, notes: notes, log: log}
}

// Run initializes the session and reads commands until exit, end of input
// or ctx cancellation.
func (s *Shell) Run(ctx context.Context) error {
	if err := s.session.Initialize(ctx); err != nil {
		s.report(err)
	}
	s.printSession()

	for ctx.Err() == nil {
		fmt.Fprint(s.console.out, Prompt)
		line, ok := s.console.readLine()
		if !ok {
			break
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			s.console.println("Bye")
			return nil
		}
		s.Exec(ctx, args)
	}
	return ctx.Err()
}

// Exec runs one command.
func (s *Shell) Exec(ctx context.Context, args []string) {
	switch args[0] {
	case "help":
		s.console.println(helpText)
	case "login":
		s.report(s.session.Login(ctx))
		s.printSession()
	case "logout":
		s.report(s.session.Logout(ctx))
		s.printSession()
	case "whoami":
		s.printSession()
	case "notes":
		if s.report(s.notes.Fetch(ctx)) {
			s.printNotes()
		}
	case "add":
		if len(args) < 2 {
			s.console.println("Usage: add <text>")
			return
		}
		if s.report(s.notes.Add(ctx, strings.Join(args[1:], " "))) {
			s.printNotes()
		}
	case "edit":
		id, ok := s.noteID(args, 3, "Usage: edit <id> <text>")
		if !ok {
			return
		}
		if s.report(s.notes.Update(ctx, id, strings.Join(args[2:], " "))) {
			s.printNotes()
		}
	case "delete":
		id, ok := s.noteID(args, 2, "Usage: delete <id>")
		if !ok {
			return
		}
		if s.report(s.notes.Delete(ctx, id)) {
			s.printNotes()
		}
	case "search":
		if s.report(s.notes.Search(ctx, strings.Join(args[1:], " "))) {
			s.printNotes()
		}
	case "balance":
		if s.report(s.tokens.Refresh(ctx)) {
			s.printBalances()
		}
	case "history":
		if s.report(s.tokens.Refresh(ctx)) {
			s.printHistory()
		}
	case "ledger":
		if len(args) != 2 {
			s.console.println("Usage: ledger <ledger-id>")
			return
		}
		if !s.tokens.CanConfigureLedger() {
			s.console.printf("External ledger already configured: %s\n", s.tokens.Snapshot().LedgerID)
			return
		}
		if s.report(s.tokens.ConfigureExternalLedger(ctx, args[1])) {
			s.console.println("External ledger configured")
			s.printBalances()
		}
	case "transfer":
		s.transfer(ctx, args)
	default:
		s.console.println("Unknown command. Type 'help' for a list of commands.")
	}
}

func (s *Shell) transfer(ctx context.Context, args []string) {
	if len(args) != 4 {
		s.console.println("Usage: transfer <internal|external> <to> <amount>")
		return
	}
	var kind models.LedgerKind
	switch strings.ToLower(args[1]) {
	case "internal":
		kind = models.Internal
	case "external", "icrc":
		kind = models.External
	default:
		s.console.println("Usage: transfer <internal|external> <to> <amount>")
		return
	}
	req := models.TransferRequest{Kind: kind, Recipient: args[2], Amount: args[3]}
	if s.report(s.tokens.Transfer(ctx, req)) {
		s.console.println("Transfer complete")
		s.printBalances()
	}
}

func (s *Shell) noteID(args []string, want int, usage string) (uint64, bool) {
	if len(args) < want {
		s.console.println(usage)
		return 0, false
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		s.console.println("Invalid note id")
		return 0, false
	}
	return id, true
}

// report prints the status line of err and reports whether err was nil.
func (s *Shell) report(err error) bool {
	if err == nil {
		return true
	}
	s.log.Debug("command failed", zap.Error(err))
	s.console.println(Status(err))
	return false
}

func (s *Shell) printSession() {
	snap := s.session.Snapshot()
	if !snap.Authenticated {
		s.console.printf("Not logged in (%s)\n", snap.Phase)
		return
	}
	s.console.printf("Logged in as %s\n", snap.Principal)
}

func (s *Shell) printNotes() {
	notes := s.notes.Notes()
	if q := s.notes.Query(); q != "" {
		s.console.printf("Notes matching %q:\n", q)
	}
	if len(notes) == 0 {
		s.console.println("No notes")
		return
	}
	for _, n := range notes {
		s.console.printf("%4d  %s\n", n.ID, n.Content)
	}
}

func (s *Shell) printBalances() {
	snap := s.tokens.Snapshot()
	s.console.printf("Internal balance: %d\n", snap.Internal)
	switch {
	case snap.ExternalPresent:
		s.console.printf("External balance: %d\n", snap.External)
	case snap.LedgerConfigured:
		s.console.println("External balance: unavailable")
	default:
		s.console.println("External ledger: not configured")
	}
}

func (s *Shell) printHistory() {
	history := s.tokens.Snapshot().History
	if len(history) == 0 {
		s.console.println("No transactions")
		return
	}
	for _, rec := range history {
		ts := time.Unix(0, int64(rec.Timestamp)).UTC().Format(time.RFC3339)
		line := fmt.Sprintf("%s  %-8s %s -> %s  %d", ts, rec.Kind, rec.Sender, rec.Receiver, rec.Amount)
		if rec.BlockIndex != nil {
			line += fmt.Sprintf("  block %d", *rec.BlockIndex)
		}
		s.console.println(line)
	}
}

var statusText = map[clienterr.Kind]string{
	clienterr.NotReady:                  "Please log in first",
	clienterr.InvalidFormat:             "Invalid ledger id format",
	clienterr.InvalidPrincipalFormat:    "Invalid principal format",
	clienterr.InvalidAmount:             "Invalid amount",
	clienterr.InsufficientBalance:       "Insufficient balance",
	clienterr.ExternalLedgerUnavailable: "External ledger is not available",
	clienterr.Unauthorized:              "Unauthorized",
	clienterr.InvalidReceiver:           "Invalid receiver",
	clienterr.ConfigurationRejected:     "Ledger configuration rejected",
	clienterr.TransferFailed:            "Transfer failed",
	clienterr.FetchFailed:               "Failed to fetch data",
	clienterr.RequestFailed:             "Request failed",
	clienterr.Busy:                      "Another operation is in progress",
}

// Status renders err as a one-line message for the user.
func Status(err error) string {
	var e *clienterr.Error
	if !errors.As(err, &e) {
		return "Error: " + err.Error()
	}
	text, ok := statusText[e.Kind]
	if !ok {
		return "Error: " + err.Error()
	}
	switch e.Kind {
	case clienterr.TransferFailed, clienterr.ConfigurationRejected, clienterr.FetchFailed, clienterr.RequestFailed:
		if e.Msg != "" {
			return text + ": " + e.Msg
		}
	}
	return text
}
