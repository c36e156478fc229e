// Package invoicestate implements C6: the atomic, checksummed per-invoice
// state store. Every invoice the fleet tracks lives as one JSON file at
// <state_dir>/<client>/<invoice_number>.json; paid invoices move to
// <state_dir>/archive/<client>/<invoice_number>.json.
package invoicestate

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle stage of a tracked invoice.
type Status string

const (
	StatusUnpaid    Status = "unpaid"
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusEscalated Status = "escalated"
	StatusPaused    Status = "paused"
)

// ErrNotFound is returned when no state file exists for (client, invoice).
var ErrNotFound = errors.New("invoicestate: not found")

// ErrCorrupted is returned when a state file's checksum does not match its
// content and no usable .bak backup exists.
var ErrCorrupted = errors.New("invoicestate: checksum mismatch")

// ReminderEntry records one reminder send against an invoice.
type ReminderEntry struct {
	RuleID  string    `json:"rule_id"`
	SentAt  time.Time `json:"sent_at"`
	Channel string    `json:"channel"`
}

// Payment captures the evidence that resolved an invoice.
type Payment struct {
	Method     string          `json:"method,omitempty"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	DetectedBy string          `json:"detected_by,omitempty"`
}

// Invoice is the persisted record for one invoice.
type Invoice struct {
	Client             string          `json:"client"`
	Number             string          `json:"invoice_number"`
	Amount             decimal.Decimal `json:"amount"`
	DueDate            time.Time       `json:"due_date"`
	ContactEmail       string          `json:"contact_email"`
	SourceDocumentPath string          `json:"source_document_path,omitempty"`
	Confidence         float64         `json:"confidence,omitempty"`
	Status             Status          `json:"status"`
	ScannedAt          time.Time       `json:"scanned_at,omitempty"`
	PaidAt             time.Time       `json:"paid_at,omitempty"`
	Payment            *Payment        `json:"payment,omitempty"`
	ReminderLog        []ReminderEntry `json:"reminder_log,omitempty"`
}

// IntegrityReport is the result of VerifyIntegrity for one invoice.
type IntegrityReport struct {
	Client  string
	Invoice string
	Valid   bool
	Message string
	Path    string
}
