package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"

	"github.com/novotechno/collections/internal/telemetry"
	"github.com/novotechno/collections/pkg/invoicestate"
)

// DocumentExtractor turns a document on disk into raw text. The fleet has
// no PDF library in its dependency set, so this stays an external
// collaborator interface; a production adapter wraps whatever PDF text
// extraction library the deployment provides.
type DocumentExtractor interface {
	ExtractText(path string) (string, error)
}

// ScannedInvoice is one successfully extracted invoice, ready for routing.
type ScannedInvoice struct {
	Client  string
	Fields  ExtractedFields
	Route   Route
	Invoice invoicestate.Invoice
}

// Scanner watches one or more client drop-folder trees for new invoice
// documents, extracts fields, and routes each by confidence.
type Scanner struct {
	extractor DocumentExtractor
	store     *invoicestate.Store
	log       *slog.Logger
	knownPath string

	reviewDir string
	manualDir string

	mu    sync.Mutex
	known map[string]bool
}

// SetQueueDirs configures where RouteReview and RouteManual invoices are
// written. Either may be left empty to skip writing that queue.
func (s *Scanner) SetQueueDirs(reviewDir, manualDir string) {
	s.reviewDir = reviewDir
	s.manualDir = manualDir
}

// NewScanner builds a Scanner. knownFilesPath persists the content-hash
// dedupe index across process restarts (the fleet's equivalent of
// ~/.cache/novotechno-collections/known_files.json).
func NewScanner(extractor DocumentExtractor, store *invoicestate.Store, knownFilesPath string, log *slog.Logger) (*Scanner, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Scanner{
		extractor: extractor,
		store:     store,
		log:       log,
		knownPath: knownFilesPath,
		known:     make(map[string]bool),
	}
	if err := s.loadKnown(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scanner) loadKnown() error {
	raw, err := os.ReadFile(s.knownPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ingest: loading known files index: %w", err)
	}
	var hashes []string
	if err := json.Unmarshal(raw, &hashes); err != nil {
		return fmt.Errorf("ingest: parsing known files index: %w", err)
	}
	for _, h := range hashes {
		s.known[h] = true
	}
	return nil
}

func (s *Scanner) saveKnown() error {
	hashes := make([]string, 0, len(s.known))
	for h := range s.known {
		hashes = append(hashes, h)
	}
	body, err := json.Marshal(hashes)
	if err != nil {
		return fmt.Errorf("ingest: marshalling known files index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.knownPath), 0o755); err != nil {
		return fmt.Errorf("ingest: creating known files dir: %w", err)
	}
	return os.WriteFile(s.knownPath, body, 0o644)
}

func hashFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:]), nil
}

// isNew reports whether path's content hash has not been seen before,
// recording it as seen if so.
func (s *Scanner) isNew(path string) (bool, error) {
	hash, err := hashFile(path)
	if err != nil {
		return false, fmt.Errorf("ingest: hashing %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[hash] {
		return false, nil
	}
	s.known[hash] = true
	if err := s.saveKnown(); err != nil {
		return false, err
	}
	return true, nil
}

// ScanAll walks every client subdirectory of each watched root once,
// processing any *.pdf file not already recorded as known.
func (s *Scanner) ScanAll(watchedDirs []string) ([]ScannedInvoice, error) {
	var results []ScannedInvoice

	for _, root := range watchedDirs {
		clientDirs, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				s.log.Warn("watched directory does not exist", "dir", root)
				continue
			}
			return results, fmt.Errorf("ingest: listing %s: %w", root, err)
		}
		for _, clientDir := range clientDirs {
			if !clientDir.IsDir() {
				continue
			}
			client := clientDir.Name()
			clientPath := filepath.Join(root, client)

			files, err := os.ReadDir(clientPath)
			if err != nil {
				return results, fmt.Errorf("ingest: listing %s: %w", clientPath, err)
			}
			for _, f := range files {
				if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".pdf") {
					continue
				}
				pdfPath := filepath.Join(clientPath, f.Name())
				isNew, err := s.isNew(pdfPath)
				if err != nil {
					return results, err
				}
				if !isNew {
					continue
				}

				scanned, err := s.processDocument(client, pdfPath)
				if err != nil {
					s.log.Error("processing invoice document failed", "path", pdfPath, "error", err)
					continue
				}
				results = append(results, scanned)
			}
		}
	}
	return results, nil
}

func (s *Scanner) processDocument(client, path string) (ScannedInvoice, error) {
	text, err := s.extractor.ExtractText(path)
	if err != nil {
		return ScannedInvoice{}, fmt.Errorf("ingest: extracting text from %s: %w", path, err)
	}

	fields := Extract(text)
	confidence := fields.Confidence()
	route := RouteByConfidence(confidence)

	amount := decimal.Zero
	if fields.Amount != "" {
		if cleaned, err := ParseAmount(fields.Amount); err == nil {
			if d, err := decimal.NewFromString(cleaned); err == nil {
				amount = d
			}
		}
	}

	number := fields.InvoiceNumber
	if number == "" {
		number = "unknown"
	}

	inv := invoicestate.Invoice{
		Client:             client,
		Number:             number,
		Amount:             amount,
		DueDate:            fields.DueDate,
		SourceDocumentPath: path,
		Confidence:         confidence,
		Status:             invoicestate.StatusUnpaid,
	}

	switch route {
	case RouteAuto:
		if err := s.store.Write(inv); err != nil {
			return ScannedInvoice{}, err
		}
	case RouteReview:
		if err := s.writeToQueue(s.reviewDir, inv); err != nil {
			s.log.Error("writing invoice to review queue failed", "path", path, "error", err)
		}
	case RouteManual:
		if err := s.writeToQueue(s.manualDir, inv); err != nil {
			s.log.Error("writing invoice to manual queue failed", "path", path, "error", err)
		}
	}
	telemetry.InvoicesScannedTotal.WithLabelValues(string(route)).Inc()

	return ScannedInvoice{Client: client, Fields: fields, Route: route, Invoice: inv}, nil
}

func (s *Scanner) writeToQueue(dir string, inv invoicestate.Invoice) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ingest: creating queue dir %s: %w", dir, err)
	}
	body, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return fmt.Errorf("ingest: marshalling invoice: %w", err)
	}
	path := filepath.Join(dir, inv.Number+".json")
	return os.WriteFile(path, body, 0o644)
}

// Watch reads events from watcher and calls handle for each created or
// renamed *.pdf file, returning once the watcher's channels are closed. It
// does not add any directory to the watcher itself.
func Watch(watcher *fsnotify.Watcher, handle func(event fsnotify.Event)) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".pdf") {
				continue
			}
			handle(event)
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
