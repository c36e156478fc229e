package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/novotechno/collections/pkg/invoicestate"
	"github.com/novotechno/collections/pkg/ledger"
	"github.com/shopspring/decimal"
)

func TestReconcileAllPassesWhenConsistent(t *testing.T) {
	stateDir := t.TempDir()
	store, err := invoicestate.Open(stateDir)
	if err != nil {
		t.Fatalf("invoicestate.Open: %v", err)
	}
	if err := store.Write(invoicestate.Invoice{
		Client: "acme-corp",
		Number: "INV1001",
		Amount: decimal.NewFromFloat(500),
		Status: invoicestate.StatusUnpaid,
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ledgerPath := filepath.Join(t.TempDir(), "ledger.md")
	led, err := ledger.Open(ledgerPath)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	if err := led.Add("INV1001", decimal.NewFromFloat(500), "acme-corp", "2026-08-15"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	mailboxDir := t.TempDir()
	checker := NewStateConsistencyChecker(stateDir, mailboxDir, store, led)

	report, err := checker.ReconcileAll()
	if err != nil {
		t.Fatalf("ReconcileAll: %v", err)
	}
	if !report.Consistent {
		t.Fatalf("expected consistent report, got %+v", report)
	}
	if !report.QueuesHealthy {
		t.Fatalf("expected healthy queues with no mailbox files present")
	}
}

func TestReconcileAllReportsQueueDepth(t *testing.T) {
	stateDir := t.TempDir()
	store, err := invoicestate.Open(stateDir)
	if err != nil {
		t.Fatalf("invoicestate.Open: %v", err)
	}

	ledgerPath := filepath.Join(t.TempDir(), "ledger.md")
	led, err := ledger.Open(ledgerPath)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}

	mailboxDir := t.TempDir()
	queueFile := filepath.Join(mailboxDir, "accounts@novotechno.example.jsonl")
	content := ""
	for i := 0; i < 5; i++ {
		content += `{"message_id":"x"}` + "\n"
	}
	if err := os.WriteFile(queueFile, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	checker := NewStateConsistencyChecker(stateDir, mailboxDir, store, led)
	report, err := checker.ReconcileAll()
	if err != nil {
		t.Fatalf("ReconcileAll: %v", err)
	}
	if len(report.Queues) != 1 || report.Queues[0].Depth != 5 {
		t.Fatalf("expected queue depth 5, got %+v", report.Queues)
	}
}
