// Package scheduler implements C10: working out which invoices are due a
// reminder today against the canonical cadence, and sending those
// reminders within whatever rate limit and backoff budget is configured.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/novotechno/collections/internal/telemetry"
	"github.com/novotechno/collections/pkg/invoicestate"
	"github.com/novotechno/collections/pkg/ledger"
	"github.com/novotechno/collections/pkg/ratelimiter"
)

// MailSender delivers a rendered collection reminder to an invoice's
// contact email. A concrete implementation wraps whatever transport the
// deployment uses (SMTP, a provider API); the scheduler itself only deals
// in rendered subject/body text.
type MailSender interface {
	SendCollectionReminder(to, subject, body string) error
}

// PauseChecker reports whether a client has opted out of collection
// reminders.
type PauseChecker interface {
	IsPaused(client string) (bool, error)
}

// DueReminder is one invoice matched to the cadence rule it triggered
// today.
type DueReminder struct {
	Invoice     invoicestate.Invoice
	Rule        Rule
	DaysOverdue int
}

// SendResult tallies the outcome of one SendReminders call.
type SendResult struct {
	Sent        int
	Failed      int
	RateLimited int
	Skipped     int
}

// Scheduler matches unpaid invoices against the reminder cadence and
// drives sending, respecting a rate limiter and client pause state.
type Scheduler struct {
	sender  MailSender
	store   *invoicestate.Store
	ledger  *ledger.Ledger
	paused  PauseChecker
	limiter *ratelimiter.Limiter
	log     *slog.Logger
	now     func() time.Time
}

// New builds a Scheduler. paused may be nil if no client has ever opted
// out of reminders.
func New(sender MailSender, store *invoicestate.Store, led *ledger.Ledger, paused PauseChecker, limiter *ratelimiter.Limiter, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		sender:  sender,
		store:   store,
		ledger:  led,
		paused:  paused,
		limiter: limiter,
		log:     log,
		now:     time.Now,
	}
}

// GetDue returns every invoice/rule pairing that triggers today: the
// days-until-due (or days-overdue) must match a cadence rule exactly, the
// rule must not already appear in the invoice's reminder log, and the
// invoice's client must not be paused. All three conditions live here, not
// in the caller, so nothing downstream can re-fire a rule by skipping this
// check.
func (s *Scheduler) GetDue() ([]DueReminder, error) {
	unpaid, err := s.store.ListUnpaid()
	if err != nil {
		return nil, fmt.Errorf("scheduler: listing unpaid invoices: %w", err)
	}

	now := s.now()
	var due []DueReminder
	for _, inv := range unpaid {
		if s.paused != nil {
			isPaused, err := s.paused.IsPaused(inv.Client)
			if err != nil {
				s.log.Error("checking pause state failed", "client", inv.Client, "error", err)
			} else if isPaused {
				continue
			}
		}

		daysUntilDue := int(inv.DueDate.Sub(now).Hours() / 24)
		for _, rule := range DefaultRules {
			if alreadySent(inv, rule.RuleID) {
				continue
			}
			if rule.IsBeforeDue && daysUntilDue == rule.DaysBeforeDue {
				due = append(due, DueReminder{Invoice: inv, Rule: rule})
			} else if !rule.IsBeforeDue && daysUntilDue == -rule.DaysAfterDue {
				due = append(due, DueReminder{Invoice: inv, Rule: rule, DaysOverdue: rule.DaysAfterDue})
			}
		}
	}
	return due, nil
}

// alreadySent reports whether ruleID already has an entry in inv's
// reminder log, guaranteeing each rule fires at most once per invoice.
func alreadySent(inv invoicestate.Invoice, ruleID string) bool {
	for _, entry := range inv.ReminderLog {
		if entry.RuleID == ruleID {
			return true
		}
	}
	return false
}

// SendReminders sends up to batchSize due reminders, stopping the batch
// (not just the one send) the moment the rate limiter is exhausted so the
// remainder can resume on the next cadence tick.
func (s *Scheduler) SendReminders(batchSize int) (SendResult, error) {
	due, err := s.GetDue()
	if err != nil {
		return SendResult{}, err
	}

	var result SendResult
	for i, reminder := range due {
		if i >= batchSize {
			break
		}

		if s.limiter != nil && !s.limiter.TryAcquire() {
			result.RateLimited++
			telemetry.RateLimitRejectionsTotal.Inc()
			s.log.Warn("rate limit exhausted, deferring remaining reminders to next cycle")
			break
		}

		if err := s.sendOne(reminder); err != nil {
			result.Failed++
			telemetry.RemindersFailedTotal.WithLabelValues(reminder.Rule.RuleID).Inc()
			s.log.Error("sending reminder failed",
				"client", reminder.Invoice.Client, "invoice", reminder.Invoice.Number, "rule", reminder.Rule.RuleID, "error", err)
			continue
		}
		telemetry.RemindersSentTotal.WithLabelValues(reminder.Rule.RuleID).Inc()
		result.Sent++
	}
	return result, nil
}

func (s *Scheduler) sendOne(reminder DueReminder) error {
	subject, body := RenderTemplate(reminder.Rule.Template, reminder.Invoice, reminder.DaysOverdue)
	if err := s.sender.SendCollectionReminder(reminder.Invoice.ContactEmail, subject, body); err != nil {
		return fmt.Errorf("scheduler: sending: %w", err)
	}

	if err := s.store.RecordReminderSent(reminder.Invoice.Client, reminder.Invoice.Number, reminder.Rule.RuleID, "email"); err != nil {
		return fmt.Errorf("scheduler: recording reminder: %w", err)
	}

	if reminder.Rule.Escalates {
		if _, err := s.store.Escalate(reminder.Invoice.Client, reminder.Invoice.Number); err != nil {
			return fmt.Errorf("scheduler: escalating invoice: %w", err)
		}
		if s.ledger != nil {
			if err := s.ledger.Escalate(reminder.Invoice.Number, reminder.Invoice.Amount,
				"no response after final notice", ""); err != nil {
				return fmt.Errorf("scheduler: updating ledger for escalation: %w", err)
			}
		}
	}
	return nil
}
