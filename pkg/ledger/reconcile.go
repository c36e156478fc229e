package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
)

// ReconcileResult is the outcome of comparing the ledger's unpaid total
// against a live scan of state files.
type ReconcileResult struct {
	Passed       bool
	StateTotal   decimal.Decimal
	LedgerTotal  decimal.Decimal
	Discrepancy  decimal.Decimal
	StateCount   int
	AutoFixed    bool
}

type minimalState struct {
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

// isReservedStateDir reports whether name is a state_dir subtree that
// holds something other than a client's invoices: the archive tree, and
// the review/manual queues the document scanner writes unpaid-looking
// records into that were never added to the ledger.
func isReservedStateDir(name string) bool {
	switch name {
	case "archive", "review_queue", "manual":
		return true
	default:
		return false
	}
}

// Reconcile sums unpaid/pending invoices under stateDir (skipping the
// archive, review_queue and manual subtrees) and compares the total against
// the ledger's own Unpaid Total. A discrepancy under one cent passes; when it
// doesn't, autoFix sets the Summary's Unpaid Total to the state-derived
// total. The entry lines of the Unpaid section are not rewritten.
func (l *Ledger) Reconcile(stateDir string, autoFix bool) (ReconcileResult, error) {
	info, err := os.Stat(stateDir)
	if err != nil || !info.IsDir() {
		return ReconcileResult{}, fmt.Errorf("ledger: state directory not found: %s", stateDir)
	}

	stateTotal := decimal.Zero
	stateCount := 0

	entries, err := os.ReadDir(stateDir)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("ledger: listing state dir: %w", err)
	}
	for _, clientEntry := range entries {
		if !clientEntry.IsDir() || isReservedStateDir(clientEntry.Name()) {
			continue
		}
		clientDir := filepath.Join(stateDir, clientEntry.Name())
		files, err := os.ReadDir(clientDir)
		if err != nil {
			if autoFix {
				continue
			}
			return ReconcileResult{}, fmt.Errorf("ledger: reading %s: %w", clientDir, err)
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(clientDir, f.Name()))
			if err != nil {
				if autoFix {
					continue
				}
				return ReconcileResult{}, fmt.Errorf("ledger: reading %s: %w", f.Name(), err)
			}
			var st minimalState
			if err := json.Unmarshal(raw, &st); err != nil {
				if autoFix {
					continue
				}
				return ReconcileResult{}, fmt.Errorf("ledger: parsing %s: %w", f.Name(), err)
			}
			if st.Status == "unpaid" || st.Status == "pending" {
				stateTotal = stateTotal.Add(st.Amount)
				stateCount++
			}
		}
	}

	sum, err := l.Summary()
	if err != nil {
		return ReconcileResult{}, err
	}

	discrepancy := stateTotal.Sub(sum.UnpaidTotal).Abs()
	passed := discrepancy.LessThan(decimal.NewFromFloat(0.01))

	result := ReconcileResult{
		Passed:      passed,
		StateTotal:  stateTotal,
		LedgerTotal: sum.UnpaidTotal,
		Discrepancy: discrepancy,
		StateCount:  stateCount,
	}

	if autoFix && !passed {
		l.mu.Lock()
		sum.UnpaidTotal = stateTotal
		err := l.updateSummaryLocked(sum)
		l.mu.Unlock()
		if err != nil {
			return result, err
		}
		result.AutoFixed = true
	}

	return result, nil
}
