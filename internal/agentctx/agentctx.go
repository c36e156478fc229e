// Package agentctx provides the shared bootstrap every collections agent
// binary needs: a structured logger, loaded configuration, and a context
// cancelled on SIGINT/SIGTERM.
package agentctx

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/novotechno/collections/internal/config"
)

// NewLogger creates a structured logger. format is "json" or "text".
// level is one of: debug, info, warn, error.
func NewLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	var w io.Writer = os.Stdout
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// Bootstrap bundles the outcome of loading configuration and wiring a
// logger, so every cmd/ main can do `boot, err := agentctx.Load("agent-name")`
// and get on with its own flag parsing.
type Bootstrap struct {
	Config *config.Config
	Log    *slog.Logger
}

// Load reads configuration from the environment and builds the logger it
// specifies, tagging every log line with the given agent name.
func Load(agentName string) (*Bootstrap, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := NewLogger(cfg.LogFormat, cfg.LogLevel).With("agent", agentName)
	return &Bootstrap{Config: cfg, Log: log}, nil
}

// WithSignals returns a context cancelled the moment SIGINT or SIGTERM is
// received, along with its cancel func. Callers must call the returned
// stop func (typically via defer) to release the signal notification.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
