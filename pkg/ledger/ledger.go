// Package ledger implements C7: a human-readable Markdown ledger of every
// invoice the fleet has ever tracked, split into Unpaid / Paid / Escalated
// sections with a running Summary. It is meant to be opened in any editor
// or rendered by any Markdown viewer, not just read by this program.
package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrExists is returned by Add when the invoice number already appears
// anywhere in the ledger.
var ErrExists = errors.New("ledger: invoice already exists")

// ErrNotFound is returned by MarkPaid/Escalate when the invoice is not in
// the Unpaid section.
var ErrNotFound = errors.New("ledger: invoice not found in unpaid section")

const initialContent = `# Collections Ledger

## Unpaid

## Paid

## Escalated

## Summary
- **Unpaid Total:** $0.00
- **Paid Total:** $0.00
- **Escalated Total:** $0.00
- **Grand Total:** $0.00
`

// Summary is the running set of section totals.
type Summary struct {
	UnpaidTotal    decimal.Decimal
	PaidTotal      decimal.Decimal
	EscalatedTotal decimal.Decimal
}

// GrandTotal is the sum of all three section totals.
func (s Summary) GrandTotal() decimal.Decimal {
	return s.UnpaidTotal.Add(s.PaidTotal).Add(s.EscalatedTotal)
}

// Ledger is the Markdown collections ledger at one path.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// Open opens the ledger at path, writing the initial skeleton if it is
// absent. The Summary totals are never cached: every operation re-reads
// them from the file's own Summary section.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: creating directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(initialContent), 0o644); err != nil {
			return nil, fmt.Errorf("ledger: writing initial ledger: %w", err)
		}
	}
	return &Ledger{path: path}, nil
}

var summarySectionRe = regexp.MustCompile(`(?s)## Summary\s+(.*?)(?:\n##|\z)`)
var unpaidTotalRe = regexp.MustCompile(`Unpaid Total.*?\$([\d,]+\.?\d*)`)
var paidTotalRe = regexp.MustCompile(`Paid Total.*?\$([\d,]+\.?\d*)`)
var escalatedTotalRe = regexp.MustCompile(`Escalated Total.*?\$([\d,]+\.?\d*)`)

// Summary re-reads the ledger file and parses its Summary section.
func (l *Ledger) Summary() (Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summaryLocked()
}

func (l *Ledger) summaryLocked() (Summary, error) {
	content, err := l.readLocked()
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	match := summarySectionRe.FindStringSubmatch(content)
	if match == nil {
		return sum, nil
	}
	section := match[1]

	if m := unpaidTotalRe.FindStringSubmatch(section); m != nil {
		sum.UnpaidTotal = parseMoney(m[1])
	}
	if m := paidTotalRe.FindStringSubmatch(section); m != nil {
		sum.PaidTotal = parseMoney(m[1])
	}
	if m := escalatedTotalRe.FindStringSubmatch(section); m != nil {
		sum.EscalatedTotal = parseMoney(m[1])
	}
	return sum, nil
}

func parseMoney(s string) decimal.Decimal {
	cleaned := strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (l *Ledger) readLocked() (string, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return "", fmt.Errorf("ledger: reading %s: %w", l.path, err)
	}
	return string(raw), nil
}

func (l *Ledger) writeLocked(content string) error {
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("ledger: writing tmp file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ledger: renaming tmp file: %w", err)
	}
	return nil
}

func (l *Ledger) updateSummaryLocked(sum Summary) error {
	content, err := l.readLocked()
	if err != nil {
		return err
	}

	grand := sum.GrandTotal()
	newSection := fmt.Sprintf(
		"## Summary\n- **Unpaid Total:** $%s\n- **Paid Total:** $%s\n- **Escalated Total:** $%s\n- **Grand Total:** $%s\n",
		commaMoney(sum.UnpaidTotal), commaMoney(sum.PaidTotal), commaMoney(sum.EscalatedTotal), commaMoney(grand),
	)

	if loc := summarySectionRe.FindStringIndex(content); loc != nil {
		content = content[:loc[0]] + newSection + content[loc[1]:]
	} else {
		content = strings.TrimRight(content, "\n") + "\n\n" + newSection
	}

	return l.writeLocked(content)
}

func commaMoney(d decimal.Decimal) string {
	neg := d.Sign() < 0
	if neg {
		d = d.Neg()
	}
	whole := d.Truncate(0).String()
	frac := d.Sub(d.Truncate(0)).Abs()
	cents := frac.Mul(decimal.NewFromInt(100)).Round(0).String()
	if len(cents) < 2 {
		cents = strings.Repeat("0", 2-len(cents)) + cents
	}

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	out := grouped.String() + "." + cents
	if neg {
		out = "-" + out
	}
	return out
}
