// Command emailer runs the collections fleet's scan-send-reply cycle: it
// ingests newly dropped invoice documents, sends whatever reminders are
// due today, and processes replies to prior reminders, repeating on a
// fixed heartbeat until told to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/novotechno/collections/internal/agentctx"
	"github.com/novotechno/collections/pkg/graphmail"
	"github.com/novotechno/collections/pkg/ingest"
	"github.com/novotechno/collections/pkg/invoicestate"
	"github.com/novotechno/collections/pkg/ledger"
	"github.com/novotechno/collections/pkg/mailbox"
	"github.com/novotechno/collections/pkg/ratelimiter"
	"github.com/novotechno/collections/pkg/reply"
	"github.com/novotechno/collections/pkg/scheduler"
	"github.com/novotechno/collections/pkg/token"
)

type options struct {
	DryRun    bool     `long:"dry-run" description:"Don't actually send emails"`
	Once      bool     `long:"once" description:"Run one cycle and exit"`
	WatchDirs []string `short:"w" long:"watch-dir" description:"Directories to watch for invoices"`
	Config    string   `short:"c" long:"config" description:"Configuration file path (unused: configuration is environment-driven)"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 1
	}

	boot, err := agentctx.Load("emailer")
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ loading config: %v\n", err)
		return 1
	}
	cfg, log := boot.Config, boot.Log

	ctx, cancel := agentctx.WithSignals(context.Background())
	defer cancel()

	store, err := invoicestate.Open(cfg.StateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ opening state store: %v\n", err)
		return 1
	}
	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ opening ledger: %v\n", err)
		return 1
	}
	mail, err := mailbox.Open(cfg.QueuesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ opening mailbox: %v\n", err)
		return 1
	}

	secrets, err := agentctx.OpenSecretStore(cfg.SecretsDir, cfg.InstallSaltPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ opening secret store: %v\n", err)
		return 1
	}
	cache := token.NewCache(secrets)
	refresher := token.NewGraphRefresher(cfg.OAuthClientID, cfg.OAuthTenantID, cfg.OAuthScopes)
	escalator := &tokenEscalationLogger{log: log}
	validator := token.NewValidator(cache, refresher, escalator, log)

	sender := &graphmail.Sender{Validator: validator, Provider: "graph", Account: cfg.OAuthAccountID, DryRun: opts.DryRun}
	limiter := ratelimiter.New(cfg.RateLimitCycleCalls, cfg.RateLimitCycleWindow, cfg.RateLimitDailyCalls)

	executor := reply.NewExecutor(store, mail, cfg.StateDir, cfg.AccountManagerEmail, log)
	sched := scheduler.New(sender, store, led, executor, limiter, log)

	inboxReader := &graphmail.InboxReader{Validator: validator, Provider: "graph", Account: cfg.OAuthAccountID}
	// No sender filter: replies can arrive from any client contact address,
	// which isn't known statically, so every inbox message is parsed for intent.
	monitor := reply.NewMonitor(inboxReader, nil)

	scanner, err := ingest.NewScanner(ingest.PDFTextExtractor{}, store, cfg.KnownFilesPath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ building invoice scanner: %v\n", err)
		return 1
	}
	scanner.SetQueueDirs(cfg.ReviewQueueDir, cfg.ManualDir)

	watchDirs := opts.WatchDirs
	if len(watchDirs) == 0 {
		home, _ := os.UserHomeDir()
		watchDirs = []string{home + "/invoices"}
	}

	log.Info("emailer started", "dry_run", opts.DryRun, "watch_dirs", watchDirs)

	didWork := false
	for {
		select {
		case <-ctx.Done():
			log.Info("emailer shutting down")
			return 130
		default:
		}

		scanned, err := scanner.ScanAll(watchDirs)
		if err != nil {
			log.Error("scanning invoices failed", "error", err)
		} else if len(scanned) > 0 {
			didWork = true
			log.Info("scanned new invoices", "count", len(scanned))
			for _, inv := range scanned {
				if inv.Route == ingest.RouteAuto {
					if err := led.Add(inv.Invoice.Number, inv.Invoice.Amount, inv.Invoice.Client, inv.Invoice.DueDate.Format("2006-01-02")); err != nil {
						log.Error("adding invoice to ledger failed", "invoice", inv.Invoice.Number, "error", err)
					}
				}
			}
		}

		result, err := sched.SendReminders(cfg.ReminderBatchSize)
		if err != nil {
			log.Error("sending reminders failed", "error", err)
		} else {
			if result.Sent > 0 {
				didWork = true
				log.Info("reminders sent", "count", result.Sent)
			}
			if result.Failed > 0 {
				log.Warn("reminders failed", "count", result.Failed)
			}
			if result.RateLimited > 0 {
				log.Warn("reminders rate limited", "count", result.RateLimited)
			}
		}

		actions, err := monitor.CheckReplies()
		if err != nil {
			log.Error("checking replies failed", "error", err)
		} else if len(actions) > 0 {
			didWork = true
			log.Info("processing reply actions", "count", len(actions))
			executor.Execute(actions)
		}

		if opts.Once {
			log.Info("single run completed")
			if !didWork {
				return 2
			}
			return 0
		}

		log.Info("sleeping until next cycle", "interval", cfg.ReminderInterval)
		select {
		case <-ctx.Done():
			log.Info("emailer shutting down")
			return 130
		case <-time.After(cfg.ReminderInterval):
		}
	}
}

type tokenEscalationLogger struct {
	log interface {
		Error(msg string, args ...any)
	}
}

func (t *tokenEscalationLogger) NotifyDegraded(provider, account string, cause error) {
	t.log.Error("token provider degraded", "provider", provider, "account", account, "cause", cause)
}
