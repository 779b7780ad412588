// Package logger wraps the zap logger shared by the server and the client.
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Logger holds the process-wide zap logger and its adjustable level.
type Logger struct {
	Log   *zap.Logger
	level zap.AtomicLevel
}

// New returns a no-op logger; call Init to start emitting.
func New() *Logger {
	return &Logger{Log: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// Init builds a production logger at the given level ("debug", "Info", ...).
func (l *Logger) Init(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	zl, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	l.level = lvl
	l.Log = zl
	return nil
}

// InitDevelopment is Init with human-readable console output, used by the
// interactive client.
func (l *Logger) InitDevelopment(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.DisableStacktrace = true
	zl, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	l.level = lvl
	l.Log = zl
	return nil
}

// SetLevel changes the level of an initialized logger at runtime.
func (l *Logger) SetLevel(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	l.level.SetLevel(lvl.Level())
	return nil
}

// Level returns the current level name.
func (l *Logger) Level() string {
	return l.level.String()
}
