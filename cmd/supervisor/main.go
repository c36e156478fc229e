// Command supervisor checks agent health, reconciles ledger/state/queue
// consistency, and renders the fleet's HTML status dashboard, either as a
// one-shot check or a long-running daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/novotechno/collections/internal/agentctx"
	"github.com/novotechno/collections/internal/config"
	"github.com/novotechno/collections/pkg/invoicestate"
	"github.com/novotechno/collections/pkg/ledger"
	"github.com/novotechno/collections/pkg/mailbox"
	"github.com/novotechno/collections/pkg/supervisor"
)

type options struct {
	HealthCheck bool   `long:"health-check" description:"Run a single health check and exit"`
	Dashboard   bool   `long:"dashboard" description:"Generate the HTML dashboard and exit"`
	Output      string `long:"output" description:"File to write the dashboard to (default: stdout)"`
	Agents      string `long:"agents" description:"Comma-separated list of agent names to track"`
	Daemon      bool   `long:"daemon" description:"Run continuously, checking health and reconciling on an interval"`
	Interval    int    `long:"interval" description:"Daemon loop interval in seconds" default:"300"`
}

var defaultAgents = []string{"emailer", "payment-watcher"}

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

	boot, err := agentctx.Load("supervisor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ loading config: %v\n", err)
		return 1
	}
	cfg, log := boot.Config, boot.Log

	ctx, cancel := agentctx.WithSignals(context.Background())
	defer cancel()

	agents := defaultAgents
	if opts.Agents != "" {
		agents = strings.Split(opts.Agents, ",")
		for i := range agents {
			agents[i] = strings.TrimSpace(agents[i])
		}
	}

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

	escalator := supervisor.NewMailboxEscalator(mail, cfg.HeartbeatsDir, cfg.AccountManagerEmail, log)
	checker := supervisor.NewChecker(agents, nil, escalator, log)
	consistency := supervisor.NewStateConsistencyChecker(cfg.StateDir, cfg.QueuesDir, store, led)
	dashboard := supervisor.NewDashboard(cfg.StateDir, checker)

	switch {
	case opts.HealthCheck:
		return runHealthCheck(checker, consistency, log)
	case opts.Dashboard:
		return writeDashboard(dashboard, opts.Output)
	case opts.Daemon:
		return runDaemon(ctx, cfg, checker, consistency, dashboard, log, opts)
	default:
		return runOnce(dashboard, consistency, cfg.DashboardPath, log)
	}
}

func runHealthCheck(checker *supervisor.Checker, consistency *supervisor.StateConsistencyChecker, log *slog.Logger) int {
	healthy := true
	for name, result := range checker.CheckAll() {
		log.Info("agent status", "agent", name, "status", result.Status, "restarts", result.Restarts)
		if result.Status != "healthy" && result.Status != "unknown" {
			healthy = false
		}
	}

	report, err := consistency.ReconcileAll()
	if err != nil {
		log.Error("reconciliation failed", "error", err)
		return 1
	}
	if !report.Consistent || !report.QueuesHealthy {
		log.Warn("fleet consistency check failed", "state_errors", len(report.StateErrors), "ledger_passed", report.Ledger.Passed, "queues_healthy", report.QueuesHealthy)
		healthy = false
	}

	if !healthy {
		fmt.Println("UNHEALTHY")
		return 1
	}
	fmt.Println("HEALTHY")
	return 0
}

func writeDashboard(dashboard *supervisor.Dashboard, output string) int {
	html, err := dashboard.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ generating dashboard: %v\n", err)
		return 1
	}
	if output == "" {
		fmt.Println(html)
		return 0
	}
	if err := os.WriteFile(output, []byte(html), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "❌ writing dashboard to %s: %v\n", output, err)
		return 1
	}
	return 0
}

func runOnce(dashboard *supervisor.Dashboard, consistency *supervisor.StateConsistencyChecker, dashboardPath string, log *slog.Logger) int {
	html, err := dashboard.Generate()
	if err != nil {
		log.Error("generating dashboard failed", "error", err)
		return 1
	}
	if err := os.WriteFile(dashboardPath, []byte(html), 0o644); err != nil {
		log.Error("writing dashboard failed", "error", err)
		return 1
	}
	log.Info("dashboard written", "path", dashboardPath)

	report, err := consistency.ReconcileAll()
	if err != nil {
		log.Error("reconciliation failed", "error", err)
		return 1
	}
	if !report.Consistent {
		log.Warn("state reconciliation found discrepancies", "state_errors", len(report.StateErrors), "ledger_passed", report.Ledger.Passed)
		return 1
	}
	return 0
}

// runDaemon loops at opts.Interval, running a health check every
// iteration, a dashboard regeneration every 4th iteration, and a
// reconciliation pass every 2nd iteration, mirroring the cadence the
// agent fleet has always used for this binary.
func runDaemon(ctx context.Context, cfg *config.Config, checker *supervisor.Checker, consistency *supervisor.StateConsistencyChecker, dashboard *supervisor.Dashboard, log *slog.Logger, opts options) int {
	interval := time.Duration(opts.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("supervisor daemon started", "interval", interval)

	iteration := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("supervisor daemon shutting down")
			return 130
		case <-ticker.C:
			iteration++

			for name, result := range checker.CheckAll() {
				if result.Status != "healthy" && result.Status != "unknown" {
					log.Warn("agent unhealthy", "agent", name, "status", result.Status)
				}
			}

			if iteration%2 == 0 {
				report, err := consistency.ReconcileAll()
				if err != nil {
					log.Error("reconciliation failed", "error", err)
				} else if !report.Consistent {
					log.Warn("state reconciliation found discrepancies", "state_errors", len(report.StateErrors), "ledger_passed", report.Ledger.Passed)
				}
			}

			if iteration%4 == 0 {
				html, err := dashboard.Generate()
				if err != nil {
					log.Error("generating dashboard failed", "error", err)
					continue
				}
				if err := os.WriteFile(cfg.DashboardPath, []byte(html), 0o644); err != nil {
					log.Error("writing dashboard failed", "error", err)
				}
			}
		}
	}
}
