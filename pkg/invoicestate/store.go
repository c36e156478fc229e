package invoicestate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/novotechno/collections/pkg/eventlog"
)

const stateVersion = "1.0"

// Store is the atomic, checksummed per-invoice state writer of §4.1. One
// Store owns one state_dir; all writes within it go through a per-file lock
// so two goroutines never race on the same invoice.
type Store struct {
	root  string
	log   *eventlog.Log
	locks sync.Map // string -> *sync.Mutex
}

// Open returns a Store rooted at dir, creating it if absent. It opens (or
// creates) dir/events.log as the audit trail for every write this Store
// performs.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("invoicestate: creating state dir: %w", err)
	}
	log, err := eventlog.Open(filepath.Join(dir, "events.log"))
	if err != nil {
		return nil, err
	}
	return &Store{root: dir, log: log}, nil
}

func (s *Store) pathFor(client, invoice string) string {
	return filepath.Join(s.root, client, invoice+".json")
}

// isReservedStateDir reports whether name is a state_dir subtree the store
// manages itself rather than a client name: the archive tree, and the
// review/manual queues the document scanner writes flat invoice records
// into outside of any client's control.
func isReservedStateDir(name string) bool {
	switch name {
	case "archive", "review_queue", "manual":
		return true
	default:
		return false
	}
}

func (s *Store) lockFor(path string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(path, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Write persists inv under (client, invoice), computing its checksum and
// writing via a tmp-file-then-rename sequence so readers never observe a
// partial file.
func (s *Store) Write(inv Invoice) error {
	path := s.pathFor(inv.Client, inv.Number)
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("invoicestate: creating client dir: %w", err)
	}

	data, err := toDataMap(inv)
	if err != nil {
		return err
	}
	checksum, err := checksumOf(data)
	if err != nil {
		return err
	}

	full := make(map[string]any, len(data)+3)
	for k, v := range data {
		full[k] = v
	}
	full["_checksum"] = checksum
	full["_updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	full["_version"] = stateVersion

	if err := atomicWriteJSON(path, full); err != nil {
		return err
	}

	if _, err := s.log.Append("state_update", map[string]any{
		"client":  inv.Client,
		"invoice": inv.Number,
	}); err != nil {
		return fmt.Errorf("invoicestate: logging write: %w", err)
	}
	return nil
}

// Read loads the invoice at (client, invoice), verifying its checksum. If
// verification fails it attempts recovery from a sibling .bak file before
// returning ErrCorrupted.
func (s *Store) Read(client, invoice string) (Invoice, error) {
	path := s.pathFor(client, invoice)
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	return s.readLocked(path)
}

func (s *Store) readLocked(path string) (Invoice, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, fmt.Errorf("invoicestate: reading %s: %w", path, err)
	}

	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		if recovered, ok := s.attemptRecovery(path); ok {
			return recovered, nil
		}
		return Invoice{}, fmt.Errorf("%w: parse error in %s: %v", ErrCorrupted, path, err)
	}

	storedChecksum, _ := full["_checksum"].(string)
	data := stripMeta(full)

	if storedChecksum != "" {
		computed, err := checksumOf(data)
		if err != nil {
			return Invoice{}, err
		}
		if storedChecksum != computed {
			if recovered, ok := s.attemptRecovery(path); ok {
				return recovered, nil
			}
			return Invoice{}, fmt.Errorf("%w: stored=%s computed=%s", ErrCorrupted, storedChecksum, computed)
		}
	}

	return fromDataMap(data)
}

func (s *Store) attemptRecovery(path string) (Invoice, bool) {
	backup := path + ".bak"
	raw, err := os.ReadFile(backup)
	if err != nil {
		return Invoice{}, false
	}
	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return Invoice{}, false
	}
	inv, err := fromDataMap(stripMeta(full))
	if err != nil {
		return Invoice{}, false
	}
	return inv, true
}

// CreateBackup snapshots the current state file for (client, invoice) to a
// sibling .bak, used before a risky mutation.
func (s *Store) CreateBackup(client, invoice string) error {
	path := s.pathFor(client, invoice)
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("invoicestate: reading for backup: %w", err)
	}
	return os.WriteFile(path+".bak", raw, 0o600)
}

// archivePathFor returns where (client, invoice) lands once it leaves the
// active state tree.
func (s *Store) archivePathFor(client, invoice string) string {
	return filepath.Join(s.root, "archive", client, invoice+".json")
}

// archiveAndRemove writes inv's already-updated fields to its archive file
// and removes the stale active state file at path, in that order so a
// crash mid-transition never loses the record.
func (s *Store) archiveAndRemove(path, client, invoice string, inv Invoice) error {
	archivePath := s.archivePathFor(client, invoice)
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return fmt.Errorf("invoicestate: creating archive dir: %w", err)
	}
	data, err := toDataMap(inv)
	if err != nil {
		return err
	}
	checksum, err := checksumOf(data)
	if err != nil {
		return err
	}
	data["_checksum"] = checksum
	data["_updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	data["_version"] = stateVersion
	if err := atomicWriteJSON(archivePath, data); err != nil {
		return err
	}

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("invoicestate: removing active state after archive: %w", err)
	}
	return nil
}

// MarkPaid transitions an invoice to paid and archives it. If the invoice
// has already been archived as paid by a prior call, it is a no-op that
// returns the existing archive record, per the store's idempotence
// guarantee.
func (s *Store) MarkPaid(client, invoice string, payment Payment) (Invoice, error) {
	path := s.pathFor(client, invoice)
	lock := s.lockFor(path)
	lock.Lock()

	inv, err := s.readLocked(path)
	if err != nil {
		lock.Unlock()
		if errors.Is(err, ErrNotFound) {
			if archived, aerr := s.readLocked(s.archivePathFor(client, invoice)); aerr == nil && archived.Status == StatusPaid {
				return archived, nil
			}
		}
		return Invoice{}, err
	}
	if inv.Status == StatusPaid {
		lock.Unlock()
		return inv, nil
	}

	inv.Status = StatusPaid
	inv.PaidAt = time.Now().UTC()
	inv.Payment = &payment
	lock.Unlock()

	if err := s.Write(inv); err != nil {
		return Invoice{}, err
	}
	if err := s.archiveAndRemove(path, client, invoice, inv); err != nil {
		return Invoice{}, err
	}

	if _, err := s.log.Append("paid", map[string]any{
		"client":  client,
		"invoice": invoice,
	}); err != nil {
		return Invoice{}, fmt.Errorf("invoicestate: logging payment: %w", err)
	}

	return inv, nil
}

// VerifyIntegrity checks the checksum of a single invoice's state file
// without mutating it.
func (s *Store) VerifyIntegrity(client, invoice string) IntegrityReport {
	path := s.pathFor(client, invoice)
	report := IntegrityReport{Client: client, Invoice: invoice, Path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		report.Message = fmt.Sprintf("state file not found: %s", path)
		return report
	}

	if _, err := s.Read(client, invoice); err != nil {
		report.Message = err.Error()
		return report
	}

	report.Valid = true
	report.Message = fmt.Sprintf("state file %s/%s is valid", client, invoice)
	return report
}

// ListAll walks every client directory (skipping "archive", "review_queue",
// "manual" and any dotfile-named directory) and returns an integrity report
// per invoice.
func (s *Store) ListAll() ([]IntegrityReport, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("invoicestate: listing state dir: %w", err)
	}

	var reports []IntegrityReport
	for _, clientEntry := range entries {
		if !clientEntry.IsDir() || strings.HasPrefix(clientEntry.Name(), ".") || isReservedStateDir(clientEntry.Name()) {
			continue
		}
		client := clientEntry.Name()
		clientDir := filepath.Join(s.root, client)

		files, err := os.ReadDir(clientDir)
		if err != nil {
			return nil, fmt.Errorf("invoicestate: listing client dir %s: %w", client, err)
		}
		var names []string
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".json") {
				names = append(names, f.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			invoice := strings.TrimSuffix(name, ".json")
			reports = append(reports, s.VerifyIntegrity(client, invoice))
		}
	}
	return reports, nil
}

// RecordReminderSent appends a reminder-log entry to an invoice's state
// and persists it.
func (s *Store) RecordReminderSent(client, invoice, ruleID, channel string) error {
	inv, err := s.Read(client, invoice)
	if err != nil {
		return err
	}
	inv.ReminderLog = append(inv.ReminderLog, ReminderEntry{
		RuleID:  ruleID,
		SentAt:  time.Now().UTC(),
		Channel: channel,
	})
	return s.Write(inv)
}

// Escalate transitions an invoice to StatusEscalated and archives it the
// same way MarkPaid does, so escalated invoices don't linger in the active
// tree and skew ledger/state reconciliation. A second call against an
// already-escalated invoice is a no-op returning the existing archive
// record.
func (s *Store) Escalate(client, invoice string) (Invoice, error) {
	path := s.pathFor(client, invoice)
	lock := s.lockFor(path)
	lock.Lock()

	inv, err := s.readLocked(path)
	if err != nil {
		lock.Unlock()
		if errors.Is(err, ErrNotFound) {
			if archived, aerr := s.readLocked(s.archivePathFor(client, invoice)); aerr == nil && archived.Status == StatusEscalated {
				return archived, nil
			}
		}
		return Invoice{}, err
	}
	if inv.Status == StatusEscalated {
		lock.Unlock()
		return inv, nil
	}

	inv.Status = StatusEscalated
	lock.Unlock()

	if err := s.Write(inv); err != nil {
		return Invoice{}, err
	}
	if err := s.archiveAndRemove(path, client, invoice, inv); err != nil {
		return Invoice{}, err
	}

	if _, err := s.log.Append("escalated", map[string]any{
		"client":  client,
		"invoice": invoice,
	}); err != nil {
		return Invoice{}, fmt.Errorf("invoicestate: logging escalation: %w", err)
	}
	return inv, nil
}

// PauseClient transitions every active (unpaid or pending) invoice for
// client to StatusPaused, so any other consumer reading Invoice.Status
// directly (ledger entries, the dashboard, reconciliation) sees the pause
// without needing to know about the reply executor's side file.
func (s *Store) PauseClient(client string) error {
	clientDir := filepath.Join(s.root, client)
	files, err := os.ReadDir(clientDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("invoicestate: listing client dir %s: %w", client, err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		number := strings.TrimSuffix(f.Name(), ".json")
		inv, err := s.Read(client, number)
		if err != nil {
			continue
		}
		if inv.Status != StatusUnpaid && inv.Status != StatusPending {
			continue
		}
		inv.Status = StatusPaused
		if err := s.Write(inv); err != nil {
			return fmt.Errorf("invoicestate: pausing %s/%s: %w", client, number, err)
		}
	}
	return nil
}

// ListUnpaid returns every invoice currently in StatusUnpaid or
// StatusPending across all clients, skipping any that fail to parse.
func (s *Store) ListUnpaid() ([]Invoice, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("invoicestate: listing state dir: %w", err)
	}

	var invoices []Invoice
	for _, clientEntry := range entries {
		if !clientEntry.IsDir() || strings.HasPrefix(clientEntry.Name(), ".") || isReservedStateDir(clientEntry.Name()) {
			continue
		}
		client := clientEntry.Name()
		clientDir := filepath.Join(s.root, client)

		files, err := os.ReadDir(clientDir)
		if err != nil {
			return nil, fmt.Errorf("invoicestate: listing client dir %s: %w", client, err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			number := strings.TrimSuffix(f.Name(), ".json")
			inv, err := s.Read(client, number)
			if err != nil {
				continue
			}
			if inv.Status == StatusUnpaid || inv.Status == StatusPending {
				invoices = append(invoices, inv)
			}
		}
	}
	return invoices, nil
}

func toDataMap(inv Invoice) (map[string]any, error) {
	raw, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("invoicestate: marshalling invoice: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invoicestate: decoding invoice to map: %w", err)
	}
	return data, nil
}

func fromDataMap(data map[string]any) (Invoice, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoicestate: encoding map: %w", err)
	}
	var inv Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return Invoice{}, fmt.Errorf("invoicestate: decoding into invoice: %w", err)
	}
	return inv, nil
}

func stripMeta(full map[string]any) map[string]any {
	data := make(map[string]any, len(full))
	for k, v := range full {
		if strings.HasPrefix(k, "_") {
			continue
		}
		data[k] = v
	}
	return data
}

// checksumOf hashes the canonical (sorted-key, compact) JSON encoding of
// data. encoding/json already sorts map[string]any keys, so a plain
// Marshal reproduces the canonical form.
func checksumOf(data map[string]any) (string, error) {
	canonical, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("invoicestate: computing checksum: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16], nil
}

func atomicWriteJSON(path string, data map[string]any) error {
	tmp := path + ".tmp"
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("invoicestate: marshalling state: %w", err)
	}
	body = append(body, '\n')

	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return fmt.Errorf("invoicestate: writing tmp file: %w", err)
	}
	if err := os.Chmod(tmp, 0o600); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("invoicestate: chmod tmp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("invoicestate: renaming tmp file: %w", err)
	}
	return nil
}
