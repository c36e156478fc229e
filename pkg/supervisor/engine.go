package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/novotechno/collections/pkg/mailbox"
)

// MailboxEscalator notifies an operator mailbox recipient of an agent
// health escalation and writes a durable escalation-notice file alongside
// it, so the event survives even if the mailbox message is never read.
type MailboxEscalator struct {
	mail      *mailbox.Box
	noticeDir string
	recipient string
	log       *slog.Logger
}

// NewMailboxEscalator builds a MailboxEscalator. noticeDir is the
// directory escalation-notice JSON files are written to.
func NewMailboxEscalator(mail *mailbox.Box, noticeDir, recipient string, log *slog.Logger) *MailboxEscalator {
	if log == nil {
		log = slog.Default()
	}
	return &MailboxEscalator{mail: mail, noticeDir: noticeDir, recipient: recipient, log: log}
}

// NotifyAgentEscalation implements Escalator.
func (m *MailboxEscalator) NotifyAgentEscalation(agent string, missedHeartbeats int) {
	m.log.Error("AGENT_ESCALATION", "agent", agent, "missed_heartbeats", missedHeartbeats, "action_required", "manual intervention required")

	if err := m.writeNotice(agent, missedHeartbeats); err != nil {
		m.log.Error("writing escalation notice failed", "agent", agent, "error", err)
	}

	if m.mail == nil || m.recipient == "" {
		return
	}
	body := fmt.Sprintf("Agent %s has missed %d consecutive heartbeats and requires manual intervention.", agent, missedHeartbeats)
	if _, err := m.mail.Send(m.recipient, "AGENT_ESCALATION", "", agent, fmt.Sprintf("Agent %s escalated", agent), body); err != nil {
		m.log.Error("notifying escalation recipient failed", "agent", agent, "error", err)
	}
}

func (m *MailboxEscalator) writeNotice(agent string, missedHeartbeats int) error {
	if err := os.MkdirAll(m.noticeDir, 0o755); err != nil {
		return err
	}
	payload := map[string]any{
		"type":              "AGENT_ESCALATION",
		"agent":             agent,
		"missed_heartbeats": missedHeartbeats,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
		"action_required":   "Manual intervention required",
	}
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(m.noticeDir, fmt.Sprintf("%s-%d.json", agent, time.Now().UnixNano()))
	return os.WriteFile(path, body, 0o644)
}

// Engine periodically runs CheckAll and ReconcileAll until ctx is
// cancelled.
type Engine struct {
	checker    *Checker
	consistent *StateConsistencyChecker
	log        *slog.Logger
}

// NewEngine builds an Engine wiring a health Checker and a
// StateConsistencyChecker.
func NewEngine(checker *Checker, consistent *StateConsistencyChecker, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{checker: checker, consistent: consistent, log: log}
}

// Run checks agent health every healthInterval and reconciles state every
// reconcileInterval, blocking until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, healthInterval, reconcileInterval time.Duration) {
	e.log.Info("supervisor engine started", "health_interval", healthInterval, "reconcile_interval", reconcileInterval)

	healthTicker := time.NewTicker(healthInterval)
	reconcileTicker := time.NewTicker(reconcileInterval)
	defer healthTicker.Stop()
	defer reconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("supervisor engine stopped")
			return
		case <-healthTicker.C:
			for name, result := range e.checker.CheckAll() {
				if result.Status != "healthy" && result.Status != "unknown" {
					e.log.Warn("agent unhealthy", "agent", name, "status", result.Status)
				}
			}
		case <-reconcileTicker.C:
			report, err := e.consistent.ReconcileAll()
			if err != nil {
				e.log.Error("reconciliation failed", "error", err)
				continue
			}
			if !report.Consistent {
				e.log.Warn("state reconciliation found discrepancies",
					"state_errors", len(report.StateErrors), "ledger_passed", report.Ledger.Passed)
			}
		}
	}
}
