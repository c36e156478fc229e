package invoicestate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func sampleInvoice() Invoice {
	return Invoice{
		Client:       "acme-corp",
		Number:       "INV-1001",
		Amount:       decimal.NewFromFloat(1250.50),
		DueDate:      time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC),
		ContactEmail: "ap@acme-corp.example",
		Status:       StatusUnpaid,
		ScannedAt:    time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestWriteThenRead(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	inv := sampleInvoice()
	if err := store.Write(inv); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := store.Read(inv.Client, inv.Number)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.Amount.Equal(inv.Amount) {
		t.Fatalf("amount mismatch: got %s want %s", got.Amount, inv.Amount)
	}
	if got.Status != StatusUnpaid {
		t.Fatalf("expected status unpaid, got %s", got.Status)
	}
}

func TestReadMissingReturnsErrNotFound(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.Read("nobody", "INV-0"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCorruptedChecksumTriggersBackupRecovery(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	inv := sampleInvoice()
	if err := store.Write(inv); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.CreateBackup(inv.Client, inv.Number); err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	path := store.pathFor(inv.Client, inv.Number)
	corrupt := []byte(`{"invoice_number":"INV-1001","amount":"999999.00","_checksum":"0000000000000000"}`)
	if err := os.WriteFile(path, corrupt, 0o600); err != nil {
		t.Fatalf("corrupting state file: %v", err)
	}

	got, err := store.Read(inv.Client, inv.Number)
	if err != nil {
		t.Fatalf("expected recovery from backup, got error: %v", err)
	}
	if !got.Amount.Equal(inv.Amount) {
		t.Fatalf("expected recovered amount %s, got %s", inv.Amount, got.Amount)
	}
}

func TestCorruptedChecksumWithoutBackupFails(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	inv := sampleInvoice()
	if err := store.Write(inv); err != nil {
		t.Fatalf("Write: %v", err)
	}

	path := store.pathFor(inv.Client, inv.Number)
	corrupt := []byte(`{"invoice_number":"INV-1001","amount":"999999.00","_checksum":"0000000000000000"}`)
	if err := os.WriteFile(path, corrupt, 0o600); err != nil {
		t.Fatalf("corrupting state file: %v", err)
	}

	if _, err := store.Read(inv.Client, inv.Number); err == nil {
		t.Fatalf("expected an error reading a corrupted file with no backup")
	}
}

func TestMarkPaidArchivesAndRemovesActive(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	inv := sampleInvoice()
	if err := store.Write(inv); err != nil {
		t.Fatalf("Write: %v", err)
	}

	paid, err := store.MarkPaid(inv.Client, inv.Number, Payment{
		Method:    "ach",
		Amount:    inv.Amount,
		Reference: "TXN-555",
	})
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if paid.Status != StatusPaid {
		t.Fatalf("expected status paid, got %s", paid.Status)
	}

	activePath := store.pathFor(inv.Client, inv.Number)
	if _, err := os.Stat(activePath); !os.IsNotExist(err) {
		t.Fatalf("expected active state file removed after archiving")
	}

	archivePath := filepath.Join(dir, "archive", inv.Client, inv.Number+".json")
	if _, err := os.Stat(archivePath); err != nil {
		t.Fatalf("expected archive file to exist: %v", err)
	}
}

func TestMarkPaidSecondCallIsNoOp(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	inv := sampleInvoice()
	if err := store.Write(inv); err != nil {
		t.Fatalf("Write: %v", err)
	}

	first, err := store.MarkPaid(inv.Client, inv.Number, Payment{Method: "ach", Amount: inv.Amount, Reference: "TXN-555"})
	if err != nil {
		t.Fatalf("first MarkPaid: %v", err)
	}

	second, err := store.MarkPaid(inv.Client, inv.Number, Payment{Method: "wire", Amount: inv.Amount, Reference: "TXN-999"})
	if err != nil {
		t.Fatalf("second MarkPaid should be a no-op, got error: %v", err)
	}
	if second.Status != StatusPaid {
		t.Fatalf("expected second call to yield the already-paid record, got status %s", second.Status)
	}
	if second.Payment.Reference != first.Payment.Reference {
		t.Fatalf("expected second call to return the original archive record (reference %s), got %s",
			first.Payment.Reference, second.Payment.Reference)
	}
}

func TestEscalateArchivesAndRemovesActive(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	inv := sampleInvoice()
	if err := store.Write(inv); err != nil {
		t.Fatalf("Write: %v", err)
	}

	escalated, err := store.Escalate(inv.Client, inv.Number)
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if escalated.Status != StatusEscalated {
		t.Fatalf("expected status escalated, got %s", escalated.Status)
	}

	activePath := store.pathFor(inv.Client, inv.Number)
	if _, err := os.Stat(activePath); !os.IsNotExist(err) {
		t.Fatalf("expected active state file removed after escalation archiving")
	}

	archivePath := filepath.Join(dir, "archive", inv.Client, inv.Number+".json")
	if _, err := os.Stat(archivePath); err != nil {
		t.Fatalf("expected archive file to exist: %v", err)
	}

	second, err := store.Escalate(inv.Client, inv.Number)
	if err != nil {
		t.Fatalf("second Escalate should be a no-op, got error: %v", err)
	}
	if second.Status != StatusEscalated {
		t.Fatalf("expected second call to yield the already-escalated record, got status %s", second.Status)
	}
}

func TestPauseClientTransitionsActiveInvoices(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	inv := sampleInvoice()
	if err := store.Write(inv); err != nil {
		t.Fatalf("Write: %v", err)
	}
	other := sampleInvoice()
	other.Client = "globex"
	if err := store.Write(other); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := store.PauseClient(inv.Client); err != nil {
		t.Fatalf("PauseClient: %v", err)
	}

	got, err := store.Read(inv.Client, inv.Number)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Status != StatusPaused {
		t.Fatalf("expected paused client's invoice to be StatusPaused, got %s", got.Status)
	}

	unaffected, err := store.Read(other.Client, other.Number)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if unaffected.Status != StatusUnpaid {
		t.Fatalf("expected other client's invoice to be untouched, got %s", unaffected.Status)
	}
}

func TestListAllSkipsArchiveDirectory(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	inv := sampleInvoice()
	if err := store.Write(inv); err != nil {
		t.Fatalf("Write: %v", err)
	}
	second := sampleInvoice()
	second.Number = "INV-1002"
	if err := store.Write(second); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := store.MarkPaid(second.Client, second.Number, Payment{Amount: second.Amount}); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	reports, err := store.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 active report (paid invoice archived away), got %d", len(reports))
	}
	if !reports[0].Valid {
		t.Fatalf("expected valid report, got %q", reports[0].Message)
	}
}
