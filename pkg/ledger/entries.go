package ledger

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one invoice line parsed out of the Unpaid section.
type Entry struct {
	InvoiceNumber string
	Amount        decimal.Decimal
	ClientName    string
	DueDate       string
	ContactEmail  string
}

// Add appends invoice to the Unpaid section and increases the unpaid total.
func (l *Ledger) Add(invoiceNumber string, amount decimal.Decimal, clientName, dueDate string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	content, err := l.readLocked()
	if err != nil {
		return err
	}
	if invoiceExists(content, invoiceNumber) {
		return fmt.Errorf("%w: %s", ErrExists, invoiceNumber)
	}

	entry := fmt.Sprintf("- `%s` | $%s | %s", invoiceNumber, commaMoney(amount), clientName)
	if dueDate != "" {
		entry += " | Due: " + dueDate
	}
	entry += " | Status: unpaid"

	content, err = appendToSection(content, "## Unpaid", entry)
	if err != nil {
		return err
	}
	if err := l.writeLocked(content); err != nil {
		return err
	}

	sum, err := l.summaryLocked()
	if err != nil {
		return err
	}
	sum.UnpaidTotal = sum.UnpaidTotal.Add(amount)
	return l.updateSummaryLocked(sum)
}

// MarkPaid moves invoiceNumber from Unpaid to Paid.
func (l *Ledger) MarkPaid(invoiceNumber string, amount decimal.Decimal, paymentDate, paymentMethod string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	content, err := l.readLocked()
	if err != nil {
		return err
	}
	content, removed := removeFromSection(content, "## Unpaid", invoiceNumber)
	if !removed {
		return fmt.Errorf("%w: %s", ErrNotFound, invoiceNumber)
	}

	entry := fmt.Sprintf("- `%s` | $%s", invoiceNumber, commaMoney(amount))
	if paymentDate != "" {
		entry += " | Paid: " + paymentDate
	}
	if paymentMethod != "" {
		entry += " | Method: " + paymentMethod
	}
	entry += " | Status: paid"

	content, err = appendToSection(content, "## Paid", entry)
	if err != nil {
		return err
	}
	if err := l.writeLocked(content); err != nil {
		return err
	}

	sum, err := l.summaryLocked()
	if err != nil {
		return err
	}
	sum.UnpaidTotal = sum.UnpaidTotal.Sub(amount)
	sum.PaidTotal = sum.PaidTotal.Add(amount)
	return l.updateSummaryLocked(sum)
}

// Escalate moves invoiceNumber from Unpaid to Escalated.
func (l *Ledger) Escalate(invoiceNumber string, amount decimal.Decimal, reason, escalatedDate string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if escalatedDate == "" {
		escalatedDate = time.Now().UTC().Format("2006-01-02")
	}

	content, err := l.readLocked()
	if err != nil {
		return err
	}
	content, removed := removeFromSection(content, "## Unpaid", invoiceNumber)
	if !removed {
		return fmt.Errorf("%w: %s", ErrNotFound, invoiceNumber)
	}

	entry := fmt.Sprintf("- `%s` | $%s | %s | Escalated: %s | Status: escalated", invoiceNumber, commaMoney(amount), reason, escalatedDate)

	content, err = appendToSection(content, "## Escalated", entry)
	if err != nil {
		return err
	}
	if err := l.writeLocked(content); err != nil {
		return err
	}

	sum, err := l.summaryLocked()
	if err != nil {
		return err
	}
	sum.UnpaidTotal = sum.UnpaidTotal.Sub(amount)
	sum.EscalatedTotal = sum.EscalatedTotal.Add(amount)
	return l.updateSummaryLocked(sum)
}

// GetAllUnpaid parses every entry currently in the Unpaid section.
func (l *Ledger) GetAllUnpaid() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	content, err := l.readLocked()
	if err != nil {
		return nil, err
	}

	section, ok := sectionBody(content, "## Unpaid")
	if !ok {
		return nil, nil
	}

	var entries []Entry
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "- ") {
			continue
		}
		m := unpaidLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		dueDate := m[4]
		if dueDate == "" {
			dueDate = time.Now().UTC().Format(time.RFC3339)
		}
		entries = append(entries, Entry{
			InvoiceNumber: m[1],
			Amount:        parseMoney(m[2]),
			ClientName:    strings.TrimSpace(m[3]),
			DueDate:       dueDate,
		})
	}
	return entries, nil
}

var unpaidLineRe = regexp.MustCompile("- `([^`]+)` \\| \\$([\\d,]+\\.?\\d*) \\| ([^|]+)(?: \\| Due: ([^|]+))?")

func invoiceExists(content, invoiceNumber string) bool {
	return strings.Contains(content, "`"+invoiceNumber+"`")
}

func sectionBody(content, header string) (string, bool) {
	lines := strings.Split(content, "\n")
	start := -1
	end := len(lines)
	for i, line := range lines {
		if strings.TrimSpace(line) == header {
			start = i
			continue
		}
		if start != -1 && strings.HasPrefix(line, "## ") {
			end = i
			break
		}
	}
	if start == -1 {
		return "", false
	}
	return strings.Join(lines[start+1:end], "\n"), true
}

// appendToSection inserts entry as the first body line of the named
// section, mirroring the insertion point the originating prototype uses.
func appendToSection(content, header, entry string) (string, error) {
	lines := strings.Split(content, "\n")
	sectionIdx := -1
	nextSectionIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == header {
			sectionIdx = i
			continue
		}
		if sectionIdx != -1 && strings.HasPrefix(line, "## ") {
			nextSectionIdx = i
			break
		}
	}
	if sectionIdx == -1 {
		return "", fmt.Errorf("ledger: section %q not found", header)
	}

	insertAt := sectionIdx + 2
	if nextSectionIdx != -1 && insertAt > nextSectionIdx {
		insertAt = nextSectionIdx
	}
	if insertAt > len(lines) {
		insertAt = len(lines)
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insertAt]...)
	out = append(out, entry)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, "\n"), nil
}

// removeFromSection deletes the line referencing invoiceNumber from the
// named section, reporting whether a line was removed.
func removeFromSection(content, header, invoiceNumber string) (string, bool) {
	lines := strings.Split(content, "\n")
	sectionStart := -1
	sectionEnd := len(lines)
	for i, line := range lines {
		if strings.TrimSpace(line) == header {
			sectionStart = i
			continue
		}
		if sectionStart != -1 && strings.HasPrefix(line, "## ") {
			sectionEnd = i
			break
		}
	}
	if sectionStart == -1 {
		return content, false
	}

	marker := "`" + invoiceNumber + "`"
	for i := sectionStart + 1; i < sectionEnd; i++ {
		if strings.Contains(lines[i], marker) {
			out := make([]string, 0, len(lines)-1)
			out = append(out, lines[:i]...)
			out = append(out, lines[i+1:]...)
			return strings.Join(out, "\n"), true
		}
	}
	return content, false
}
