package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/novotechno/collections/pkg/invoicestate"
)

type stubExtractor struct {
	text string
	err  error
}

func (s stubExtractor) ExtractText(path string) (string, error) {
	return s.text, s.err
}

func TestScanAllAutoRoutesHighConfidenceDocument(t *testing.T) {
	watchRoot := t.TempDir()
	clientDir := filepath.Join(watchRoot, "acme-corp")
	if err := os.MkdirAll(clientDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	pdfPath := filepath.Join(clientDir, "invoice.pdf")
	if err := os.WriteFile(pdfPath, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	stateDir := t.TempDir()
	store, err := invoicestate.Open(stateDir)
	if err != nil {
		t.Fatalf("invoicestate.Open: %v", err)
	}

	extractor := stubExtractor{text: sampleInvoiceText}
	knownPath := filepath.Join(t.TempDir(), "known_files.json")
	scanner, err := NewScanner(extractor, store, knownPath, nil)
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	results, err := scanner.ScanAll([]string{watchRoot})
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 scanned invoice, got %d", len(results))
	}
	if results[0].Route != RouteAuto {
		t.Fatalf("expected auto route, got %s", results[0].Route)
	}

	if _, err := store.Read("acme-corp", "INV-2026-0042"); err != nil {
		t.Fatalf("expected auto-routed invoice written to state, got error: %v", err)
	}
}

func TestScanAllSkipsAlreadyKnownFiles(t *testing.T) {
	watchRoot := t.TempDir()
	clientDir := filepath.Join(watchRoot, "acme-corp")
	if err := os.MkdirAll(clientDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	pdfPath := filepath.Join(clientDir, "invoice.pdf")
	if err := os.WriteFile(pdfPath, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	stateDir := t.TempDir()
	store, err := invoicestate.Open(stateDir)
	if err != nil {
		t.Fatalf("invoicestate.Open: %v", err)
	}

	extractor := stubExtractor{text: sampleInvoiceText}
	knownPath := filepath.Join(t.TempDir(), "known_files.json")
	scanner, err := NewScanner(extractor, store, knownPath, nil)
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	if _, err := scanner.ScanAll([]string{watchRoot}); err != nil {
		t.Fatalf("ScanAll first pass: %v", err)
	}
	second, err := scanner.ScanAll([]string{watchRoot})
	if err != nil {
		t.Fatalf("ScanAll second pass: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected no results on a second scan of unchanged files, got %d", len(second))
	}
}

func TestScanAllWritesLowConfidenceDocumentToManualQueue(t *testing.T) {
	watchRoot := t.TempDir()
	clientDir := filepath.Join(watchRoot, "acme-corp")
	if err := os.MkdirAll(clientDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	pdfPath := filepath.Join(clientDir, "invoice.pdf")
	if err := os.WriteFile(pdfPath, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	stateDir := t.TempDir()
	store, err := invoicestate.Open(stateDir)
	if err != nil {
		t.Fatalf("invoicestate.Open: %v", err)
	}

	extractor := stubExtractor{text: "this document has no recognizable invoice fields at all"}
	knownPath := filepath.Join(t.TempDir(), "known_files.json")
	scanner, err := NewScanner(extractor, store, knownPath, nil)
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	manualDir := filepath.Join(t.TempDir(), "manual")
	scanner.SetQueueDirs("", manualDir)

	results, err := scanner.ScanAll([]string{watchRoot})
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(results) != 1 || results[0].Route != RouteManual {
		t.Fatalf("expected 1 manually-routed invoice, got %+v", results)
	}

	entries, err := os.ReadDir(manualDir)
	if err != nil {
		t.Fatalf("ReadDir manual queue: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 file written to manual queue, got %d", len(entries))
	}

	if _, err := store.Read("acme-corp", results[0].Invoice.Number); err == nil {
		t.Fatalf("manually-routed invoice should not be written to state")
	}
}
