// Package ingest implements C9: invoice drop-folder watching, confidence
// weighted field extraction, and confidence-based routing to auto-create,
// human review, or manual entry.
package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// weightedPattern pairs an extraction regex with the confidence it earns
// when it matches. Earlier patterns in a list are tried first; the first
// match wins.
type weightedPattern struct {
	re         *regexp.Regexp
	confidence float64
}

var invoiceNumberPatterns = []weightedPattern{
	{regexp.MustCompile(`(?i)invoice\s*#?\s*:?\s*([A-Z0-9-]+)`), 1.0},
	{regexp.MustCompile(`(?i)factura\s*#?\s*:?\s*([A-Z0-9-]+)`), 1.0},
	{regexp.MustCompile(`(?i)INV-?([A-Z0-9-]+)`), 0.90},
	{regexp.MustCompile(`([A-Z]{2,}-\d{4,})`), 0.85},
}

var amountPatterns = []weightedPattern{
	{regexp.MustCompile(`(?i)total[:\s]*\$?([0-9,]+\.?\d*)`), 1.0},
	{regexp.MustCompile(`(?i)monto[:\s]*\$?([0-9,]+\.?\d*)`), 1.0},
	{regexp.MustCompile(`(?i)balance\s+due[:\s]*\$?([0-9,]+\.?\d*)`), 0.95},
	{regexp.MustCompile(`([0-9,]+\.\d{2})\s*(?:USD|COP|EUR)?`), 0.90},
}

var datePatterns = []weightedPattern{
	{regexp.MustCompile(`(?i)due\s*date[:\s]*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`), 1.0},
	{regexp.MustCompile(`(?i)fecha\s*de\s*vencimiento[:\s]*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`), 1.0},
	{regexp.MustCompile(`(\d{1,2}\s+[A-Za-z]+\s+\d{4})`), 0.85},
	{regexp.MustCompile(`(\d{4}-\d{1,2}-\d{1,2})`), 0.90},
}

var clientNamePatterns = []weightedPattern{
	{regexp.MustCompile(`(?is)bill\s+to\s*:?\s*\n(.+?)(?:\n|$)`), 0.95},
	{regexp.MustCompile(`(?is)client\s*:?\s*\n(.+?)(?:\n|$)`), 0.95},
	{regexp.MustCompile(`(?is)to\s*:?\s*\n(.+?)(?:\n|$)`), 0.90},
}

// fieldWeights give each extracted field's contribution to overall
// confidence, normalized to sum to 1.0 across the fields that were found.
var fieldWeights = normalizeWeights(map[string]float64{
	"invoice_number": 0.30,
	"client_name":    0.25,
	"amount":         0.30,
	"due_date":       0.25,
	"items":          0.10,
})

func normalizeWeights(w map[string]float64) map[string]float64 {
	var total float64
	for _, v := range w {
		total += v
	}
	if total == 0 {
		return w
	}
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v / total
	}
	return out
}

// ExtractedFields is the field-level result of extracting from raw document
// text, before confidence aggregation.
type ExtractedFields struct {
	InvoiceNumber       string
	InvoiceNumberConf   float64
	ClientName          string
	ClientNameConf      float64
	Amount              string
	AmountConf          float64
	DueDateRaw          string
	DueDate             time.Time
	DueDateConf         float64
}

func extractField(text string, patterns []weightedPattern) (string, float64) {
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1]), p.confidence
		}
	}
	return "", 0
}

func extractClientName(text string) (string, float64) {
	if value, conf := extractField(text, clientNamePatterns); value != "" {
		return strings.Split(value, "\n")[0], conf
	}

	lines := strings.Split(text, "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}
	skip := []string{"invoice", "factura", "date", "fecha", "total"}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) <= 3 {
			continue
		}
		lower := strings.ToLower(line)
		found := false
		for _, kw := range skip {
			if strings.Contains(lower, kw) {
				found = true
				break
			}
		}
		if !found {
			return line, 0.75
		}
	}
	return "", 0
}

var dateLayouts = []string{
	"01/02/2006", "02/01/2006", "01-02-2006", "02-01-2006",
	"2006-01-02", "2 January 2006", "2006", "Jan 2, 2006",
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Extract runs every field extractor against text and returns the raw
// field-level results.
func Extract(text string) ExtractedFields {
	var f ExtractedFields

	f.InvoiceNumber, f.InvoiceNumberConf = extractField(text, invoiceNumberPatterns)
	f.ClientName, f.ClientNameConf = extractClientName(text)
	f.Amount, f.AmountConf = extractField(text, amountPatterns)

	dateRaw, dateConf := extractField(text, datePatterns)
	f.DueDateRaw = dateRaw
	if dateRaw != "" {
		if t, ok := parseDate(dateRaw); ok {
			f.DueDate = t
			f.DueDateConf = dateConf
		}
	}

	return f
}

// Confidence computes the weighted-average overall confidence across the
// fields that were actually found, per §4.6's formula.
func (f ExtractedFields) Confidence() float64 {
	breakdown := map[string]float64{
		"invoice_number": boolConf(f.InvoiceNumber != "", f.InvoiceNumberConf),
		"client_name":    boolConf(f.ClientName != "", f.ClientNameConf),
		"amount":         boolConf(f.Amount != "", f.AmountConf),
		"due_date":       boolConf(!f.DueDate.IsZero(), f.DueDateConf),
	}

	var weightedSum, totalWeight float64
	for field, conf := range breakdown {
		if conf <= 0 {
			continue
		}
		weight, ok := fieldWeights[field]
		if !ok {
			continue
		}
		weightedSum += conf * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

func boolConf(found bool, conf float64) float64 {
	if !found {
		return 0
	}
	return conf
}

// ParseAmount converts an extracted amount string like "1,250.50" into a
// plain decimal string suitable for decimal.NewFromString.
func ParseAmount(raw string) (string, error) {
	cleaned := strings.NewReplacer(",", "", "$", "").Replace(raw)
	if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
		return "", fmt.Errorf("ingest: invalid amount %q: %w", raw, err)
	}
	return cleaned, nil
}
