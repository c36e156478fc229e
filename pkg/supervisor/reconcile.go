package supervisor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/novotechno/collections/internal/telemetry"
	"github.com/novotechno/collections/pkg/invoicestate"
	"github.com/novotechno/collections/pkg/ledger"
)

// QueueHealth reports the depth of one file-backed queue (a mailbox
// recipient's JSONL file); ReconcileReport.QueuesHealthy says whether every
// depth is under maxHealthyQueueDepth.
type QueueHealth struct {
	Name  string
	Depth int
}

const maxHealthyQueueDepth = 100

// ReconcileReport is the combined result of checking invoice-state
// consistency, ledger/state agreement, and mailbox queue depth.
type ReconcileReport struct {
	Ledger        ledger.ReconcileResult
	StateErrors   []invoicestate.IntegrityReport
	Queues        []QueueHealth
	QueuesHealthy bool
	Consistent    bool
}

// StateConsistencyChecker cross-checks invoice state, the ledger, and
// mailbox queues for drift.
type StateConsistencyChecker struct {
	stateDir   string
	mailboxDir string
	store      *invoicestate.Store
	ledger     *ledger.Ledger
}

// NewStateConsistencyChecker builds a StateConsistencyChecker rooted at
// stateDir (invoice state) and mailboxDir (per-recipient JSONL queues).
func NewStateConsistencyChecker(stateDir, mailboxDir string, store *invoicestate.Store, led *ledger.Ledger) *StateConsistencyChecker {
	return &StateConsistencyChecker{stateDir: stateDir, mailboxDir: mailboxDir, store: store, ledger: led}
}

// ReconcileAll checks invoice-state integrity, reconciles the ledger
// against state-derived totals, and reports mailbox queue depth.
func (s *StateConsistencyChecker) ReconcileAll() (ReconcileReport, error) {
	reports, err := s.store.ListAll()
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("supervisor: listing invoice state: %w", err)
	}
	var stateErrors []invoicestate.IntegrityReport
	for _, r := range reports {
		if !r.Valid {
			stateErrors = append(stateErrors, r)
		}
	}

	ledgerResult, err := s.ledger.Reconcile(s.stateDir, false)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("supervisor: reconciling ledger: %w", err)
	}
	discrepancy, _ := ledgerResult.Discrepancy.Float64()
	telemetry.ReconciliationDiscrepancy.Set(discrepancy)

	queues, err := s.checkQueueHealth()
	if err != nil {
		return ReconcileReport{}, err
	}
	healthy := true
	for _, q := range queues {
		if q.Depth >= maxHealthyQueueDepth {
			healthy = false
			break
		}
	}

	return ReconcileReport{
		Ledger:        ledgerResult,
		StateErrors:   stateErrors,
		Queues:        queues,
		QueuesHealthy: healthy,
		Consistent:    len(stateErrors) == 0 && ledgerResult.Passed,
	}, nil
}

func (s *StateConsistencyChecker) checkQueueHealth() ([]QueueHealth, error) {
	entries, err := os.ReadDir(s.mailboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("supervisor: listing mailbox dir: %w", err)
	}

	var queues []QueueHealth
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(s.mailboxDir, entry.Name())
		depth, err := countLines(path)
		if err != nil {
			continue
		}
		queues = append(queues, QueueHealth{
			Name:  strings.TrimSuffix(entry.Name(), ".jsonl"),
			Depth: depth,
		})
	}
	return queues, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
