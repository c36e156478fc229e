package reply

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/novotechno/collections/pkg/invoicestate"
	"github.com/novotechno/collections/pkg/mailbox"
)

// Executor dispatches ReplyActions against invoice state: pausing a
// client's collections, marking an invoice paid on the client's word, or
// queuing the reply for a human to read.
type Executor struct {
	store             *invoicestate.Store
	mail              *mailbox.Box
	pausedClientsPath string
	reviewDir         string
	accountManager    string
	log               *slog.Logger
}

// NewExecutor builds an Executor. accountManager is the mailbox recipient
// notified whenever a client opts out.
func NewExecutor(store *invoicestate.Store, mail *mailbox.Box, stateDir, accountManager string, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		store:             store,
		mail:              mail,
		pausedClientsPath: filepath.Join(stateDir, "paused_clients.json"),
		reviewDir:         filepath.Join(stateDir, "review_queue"),
		accountManager:    accountManager,
		log:               log,
	}
}

// Execute runs every action, logging and continuing past individual
// failures rather than aborting the whole batch.
func (e *Executor) Execute(actions []ReplyAction) {
	for _, action := range actions {
		var err error
		switch action.Action {
		case ActionPause:
			err = e.pauseClient(action)
		case ActionMarkPaid:
			err = e.markPaidByReply(action)
		case ActionManualReview:
			err = e.queueForReview(action)
		default:
			err = fmt.Errorf("reply: unknown action %q", action.Action)
		}
		if err != nil {
			e.log.Error("executing reply action failed",
				"action", action.Action, "client", action.Client, "invoice", action.Invoice, "error", err)
		}
	}
}

func (e *Executor) pauseClient(action ReplyAction) error {
	paused, err := e.loadPausedClients()
	if err != nil {
		return err
	}
	paused[action.Client] = true
	if err := e.savePausedClients(paused); err != nil {
		return err
	}

	if err := e.store.PauseClient(action.Client); err != nil {
		return fmt.Errorf("reply: pausing invoices for %s: %w", action.Client, err)
	}

	if e.mail != nil && e.accountManager != "" {
		if _, err := e.mail.Send(e.accountManager, "client_paused", action.Invoice, action.Client,
			fmt.Sprintf("Client %s paused collections", action.Client),
			fmt.Sprintf("%s opted out of reminders (%s). Invoice: %s.", action.Client, action.Reason, action.Invoice)); err != nil {
			return err
		}
	}
	return nil
}

// IsPaused reports whether client has opted out of collection reminders.
func (e *Executor) IsPaused(client string) (bool, error) {
	paused, err := e.loadPausedClients()
	if err != nil {
		return false, err
	}
	return paused[client], nil
}

func (e *Executor) loadPausedClients() (map[string]bool, error) {
	raw, err := os.ReadFile(e.pausedClientsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]bool), nil
		}
		return nil, fmt.Errorf("reply: loading paused clients: %w", err)
	}
	var paused map[string]bool
	if err := json.Unmarshal(raw, &paused); err != nil {
		return nil, fmt.Errorf("reply: parsing paused clients: %w", err)
	}
	return paused, nil
}

func (e *Executor) savePausedClients(paused map[string]bool) error {
	if err := os.MkdirAll(filepath.Dir(e.pausedClientsPath), 0o755); err != nil {
		return fmt.Errorf("reply: creating state dir: %w", err)
	}
	body, err := json.Marshal(paused)
	if err != nil {
		return fmt.Errorf("reply: marshalling paused clients: %w", err)
	}
	return os.WriteFile(e.pausedClientsPath, body, 0o644)
}

func (e *Executor) markPaidByReply(action ReplyAction) error {
	if action.Invoice == "" || action.Invoice == "unknown" {
		return e.queueForReview(action)
	}
	_, err := e.store.MarkPaid(action.Client, action.Invoice, invoicestate.Payment{
		Method:     "client_reply",
		DetectedBy: "reply_monitor",
	})
	return err
}

func (e *Executor) queueForReview(action ReplyAction) error {
	if err := os.MkdirAll(e.reviewDir, 0o755); err != nil {
		return fmt.Errorf("reply: creating review queue dir: %w", err)
	}
	payload := map[string]any{
		"client":    action.Client,
		"invoice":   action.Invoice,
		"reason":    action.Reason,
		"queued_at": time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("reply: marshalling review entry: %w", err)
	}
	path := filepath.Join(e.reviewDir, fmt.Sprintf("%s-%d.json", action.Invoice, time.Now().UnixNano()))
	return os.WriteFile(path, body, 0o644)
}
