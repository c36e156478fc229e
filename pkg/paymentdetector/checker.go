// Package paymentdetector implements C12: watching a client's drop-folder
// tree for payment evidence (remittance receipts, bank confirmations),
// matching each file against the unpaid invoices it could settle, and
// marking the match paid once the evidence is convincing enough.
package paymentdetector

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/novotechno/collections/pkg/invoicestate"
)

// ExtractedPayment is what a payment-evidence filename and path yield
// before it has been matched against any invoice.
type ExtractedPayment struct {
	Amount        float64
	HasAmount     bool
	Client        string
	InvoiceNumber string
	Method        string
}

var methodKeywords = []struct {
	needle string
	method string
}{
	{"bancolombia", "bancolombia"},
	{"davivienda", "davivienda"},
	{"transfer", "transfer"},
	{"pago", "pago"},
	{"payment", "payment"},
}

var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$?([0-9,]+\.\d{2})`),
	regexp.MustCompile(`\$?([0-9,]+)`),
}

var invoiceNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:factura|invoice|pagare|inv)[\s_-]*([A-Z0-9-]+)`),
	regexp.MustCompile(`(?i)([A-Z]{2,3}[0-9]{3,6})`),
}

var clientDirMarkers = map[string]bool{"clients": true, "clientes": true}

// ExtractPaymentData pulls a method, amount, invoice number, and client
// name out of a payment file's path, relying entirely on filename and
// directory-structure conventions rather than file content.
func ExtractPaymentData(path string) ExtractedPayment {
	var data ExtractedPayment
	data.Method = "unknown"

	lower := strings.ToLower(path)
	for _, m := range methodKeywords {
		if strings.Contains(lower, m.needle) {
			data.Method = m.method
			break
		}
	}

	name := filepath.Base(path)
	for _, re := range amountPatterns {
		if m := re.FindStringSubmatch(name); m != nil {
			cleaned := strings.ReplaceAll(m[1], ",", "")
			if amount, err := strconv.ParseFloat(cleaned, 64); err == nil {
				data.Amount = amount
				data.HasAmount = true
				break
			}
		}
	}

	for _, re := range invoiceNumberPatterns {
		if m := re.FindStringSubmatch(name); m != nil {
			data.InvoiceNumber = m[1]
			break
		}
	}

	parts := strings.Split(filepath.ToSlash(path), "/")
	for i, part := range parts {
		if clientDirMarkers[strings.ToLower(part)] && i+1 < len(parts) {
			data.Client = parts[i+1]
			break
		}
	}

	return data
}

// FindMatchingInvoice looks for an unpaid invoice that the extracted
// payment data could settle. An invoice-number match takes precedence
// over a client-plus-amount-within-tolerance match.
func FindMatchingInvoice(unpaid []invoicestate.Invoice, data ExtractedPayment) (invoicestate.Invoice, bool) {
	if data.InvoiceNumber != "" {
		for _, inv := range unpaid {
			if strings.EqualFold(inv.Number, data.InvoiceNumber) {
				return inv, true
			}
		}
	}

	if data.HasAmount && data.Client != "" {
		for _, inv := range unpaid {
			if !strings.EqualFold(inv.Client, data.Client) {
				continue
			}
			invoiceAmount, _ := inv.Amount.Float64()
			if invoiceAmount <= 0 {
				continue
			}
			diffPercent := (invoiceAmount - data.Amount) / invoiceAmount
			if diffPercent < 0 {
				diffPercent = -diffPercent
			}
			if diffPercent <= 0.05 {
				return inv, true
			}
		}
	}

	return invoicestate.Invoice{}, false
}

// VerifyAmount scores how well a payment amount matches the invoice it
// was matched to: exact match scores highest, underpayment scores above
// overpayment, and anything else scores zero.
func VerifyAmount(paymentAmount, invoiceAmount float64) float64 {
	diff := paymentAmount - invoiceAmount
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff < 0.01:
		return 1.0
	case paymentAmount < invoiceAmount:
		return 0.95
	case paymentAmount > invoiceAmount:
		return 0.90
	default:
		return 0.0
	}
}

// Checker matches payment-evidence files against a Store's unpaid
// invoices.
type Checker struct {
	store *invoicestate.Store
}

// NewChecker builds a Checker backed by store.
func NewChecker(store *invoicestate.Store) *Checker {
	return &Checker{store: store}
}

// MatchResult is the outcome of checking one payment file.
type MatchResult struct {
	Matched    bool
	Invoice    invoicestate.Invoice
	Confidence float64
	Amount     float64
	Method     string
}

// Check extracts payment data from path and attempts to match it to an
// unpaid invoice.
func (c *Checker) Check(path string) (MatchResult, error) {
	data := ExtractPaymentData(path)

	unpaid, err := c.store.ListUnpaid()
	if err != nil {
		return MatchResult{}, err
	}

	inv, ok := FindMatchingInvoice(unpaid, data)
	if !ok {
		return MatchResult{Matched: false, Amount: data.Amount, Method: data.Method}, nil
	}

	invoiceAmount, _ := inv.Amount.Float64()
	confidence := VerifyAmount(data.Amount, invoiceAmount)

	return MatchResult{
		Matched:    true,
		Invoice:    inv,
		Confidence: confidence,
		Amount:     data.Amount,
		Method:     data.Method,
	}, nil
}
