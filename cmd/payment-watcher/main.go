// Command payment-watcher watches one or more drop-folder trees for
// payment evidence (remittance advices, bank confirmations, receipts),
// matches it against unpaid invoices, and marks confident matches paid.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	flags "github.com/jessevdk/go-flags"

	"github.com/novotechno/collections/internal/agentctx"
	"github.com/novotechno/collections/pkg/invoicestate"
	"github.com/novotechno/collections/pkg/mailbox"
	"github.com/novotechno/collections/pkg/paymentdetector"
)

type options struct {
	WatchPaths []string `short:"w" long:"watch-path" description:"Directories to watch for payment evidence"`
	Once       bool     `long:"once" description:"Run briefly and exit instead of watching indefinitely"`
	Verbose    bool     `short:"v" long:"verbose" description:"Enable debug logging"`
}

const heartbeatInterval = 60 * time.Second
const onceDuration = 5 * time.Second

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

	boot, err := agentctx.Load("payment-watcher")
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ loading config: %v\n", err)
		return 1
	}
	cfg, log := boot.Config, boot.Log
	if opts.Verbose {
		log = agentctx.NewLogger(cfg.LogFormat, "debug").With("agent", "payment-watcher")
	}

	ctx, cancel := agentctx.WithSignals(context.Background())
	defer cancel()

	watchPaths := opts.WatchPaths
	if len(watchPaths) == 0 {
		home, _ := os.UserHomeDir()
		watchPaths = []string{home + "/payments"}
	}

	var validPaths []string
	for _, p := range watchPaths {
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			log.Warn("watch path does not exist, skipping", "path", p)
			continue
		}
		validPaths = append(validPaths, p)
	}
	if len(validPaths) == 0 {
		fmt.Fprintln(os.Stderr, "❌ no valid watch paths configured")
		return 1
	}

	store, err := invoicestate.Open(cfg.StateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ opening state store: %v\n", err)
		return 1
	}
	mail, err := mailbox.Open(cfg.QueuesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ opening mailbox: %v\n", err)
		return 1
	}

	detector := paymentdetector.NewDetector(store, mail, cfg.EmailerRecipient, log)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ creating filesystem watcher: %v\n", err)
		return 1
	}
	defer watcher.Close()

	paymentdetector.AddWatches(watcher, validPaths, log)

	go detector.Watch(watcher)

	log.Info("payment watcher started", "watch_paths", validPaths)

	if opts.Once {
		select {
		case <-ctx.Done():
			return 130
		case <-time.After(onceDuration):
		}
		log.Info("single run completed")
		return 0
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("payment watcher shutting down")
			return 130
		case <-ticker.C:
			unpaid, err := store.ListUnpaid()
			if err != nil {
				log.Error("listing unpaid invoices failed", "error", err)
				continue
			}
			log.Info("heartbeat", "unpaid_invoices", len(unpaid))
		}
	}
}
