package paymentdetector

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"

	"github.com/novotechno/collections/internal/telemetry"
	"github.com/novotechno/collections/pkg/invoicestate"
	"github.com/novotechno/collections/pkg/mailbox"
)

var paymentFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)pagado|paid|payment`),
	regexp.MustCompile(`(?i)confirmacion|confirmation`),
	regexp.MustCompile(`(?i)recibo|receipt`),
}

const dedupeWindow = 24 * time.Hour

// Detector watches one or more client drop-folder trees for payment
// evidence, matches it against unpaid invoices, and marks a match paid.
type Detector struct {
	store   *invoicestate.Store
	checker *Checker
	mail    *mailbox.Box
	emailer string
	log     *slog.Logger

	mu     sync.Mutex
	recent map[string]time.Time
}

// NewDetector builds a Detector. emailer is the mailbox recipient notified
// with an INVOICE_PAID message whenever a payment is processed.
func NewDetector(store *invoicestate.Store, mail *mailbox.Box, emailer string, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		store:   store,
		checker: NewChecker(store),
		mail:    mail,
		emailer: emailer,
		log:     log,
		recent:  make(map[string]time.Time),
	}
}

// IsPaymentFile reports whether path looks like payment evidence based on
// filename conventions alone.
func IsPaymentFile(path string) bool {
	lower := strings.ToLower(path)
	for _, re := range paymentFilePatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

func hashFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:]), nil
}

func (d *Detector) isDuplicate(hash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seenAt, ok := d.recent[hash]; ok && time.Since(seenAt) < dedupeWindow {
		return true
	}
	d.recent[hash] = time.Now()
	return false
}

// HandleFile processes one candidate payment file: it ignores files that
// don't look like payment evidence, skips ones seen in the last 24h, and
// otherwise matches and (on a confident match) marks the invoice paid.
func (d *Detector) HandleFile(path string) {
	if !IsPaymentFile(path) {
		return
	}

	hash, err := hashFile(path)
	if err != nil {
		d.log.Warn("could not hash payment file, falling back to path as identifier", "path", path, "error", err)
		hash = path
	}
	if d.isDuplicate(hash) {
		return
	}

	d.log.Info("payment file detected", "path", path)

	result, err := d.checker.Check(path)
	if err != nil {
		d.log.Error("checking payment file failed", "path", path, "error", err)
		return
	}
	if !result.Matched {
		d.log.Warn("payment file doesn't match any unpaid invoice", "path", path)
		return
	}

	if err := d.processMatch(path, result); err != nil {
		d.log.Error("processing matched payment failed", "path", path, "error", err)
		return
	}
	telemetry.PaymentsDetectedTotal.WithLabelValues(result.Method).Inc()

	d.log.Info("payment processed", "invoice", result.Invoice.Number, "client", result.Invoice.Client)
}

func (d *Detector) processMatch(path string, result MatchResult) error {
	_, err := d.store.MarkPaid(result.Invoice.Client, result.Invoice.Number, invoicestate.Payment{
		Method:     result.Method,
		Amount:     decimal.NewFromFloat(result.Amount),
		Reference:  path,
		DetectedBy: "payment_detector",
	})
	if err != nil {
		return fmt.Errorf("paymentdetector: marking invoice paid: %w", err)
	}

	if d.mail != nil && d.emailer != "" {
		if _, err := d.mail.Send(d.emailer, "INVOICE_PAID", result.Invoice.Number, result.Invoice.Client,
			fmt.Sprintf("Invoice %s paid", result.Invoice.Number),
			fmt.Sprintf("Payment evidence matched with confidence %.2f (source: %s).", result.Confidence, path)); err != nil {
			return fmt.Errorf("paymentdetector: notifying emailer: %w", err)
		}
	}
	return nil
}

// Watch runs an fsnotify loop over watcher's events, accepting both direct
// file creation and the common .pdf.tmp -> .pdf rename pattern some
// upload tools use, until the watcher's channels close.
func (d *Detector) Watch(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				d.HandleFile(event.Name)
				continue
			}
			if event.Op&fsnotify.Rename != 0 && strings.HasSuffix(event.Name, ".pdf") {
				d.HandleFile(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.log.Error("payment watcher error", "error", err)
		}
	}
}

// AddWatches registers every existing directory in watchPaths (and its
// immediate subdirectories, since client trees are one level deep) with
// watcher.
func AddWatches(watcher *fsnotify.Watcher, watchPaths []string, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	for _, root := range watchPaths {
		if _, err := os.Stat(root); err != nil {
			log.Warn("payment watch path does not exist", "path", root)
			continue
		}
		if err := watcher.Add(root); err != nil {
			log.Warn("failed to watch payment path", "path", root, "error", err)
			continue
		}
		log.Info("watching for payment evidence", "path", root)

		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				_ = watcher.Add(filepath.Join(root, entry.Name()))
			}
		}
	}
}
