package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// export is the JSON shape ExportJSON writes out.
type export struct {
	ExportDate string              `json:"export_date"`
	Summary    exportSummary       `json:"summary"`
	Sections   map[string][]string `json:"sections"`
}

type exportSummary struct {
	UnpaidTotal    string `json:"unpaid_total"`
	PaidTotal      string `json:"paid_total"`
	EscalatedTotal string `json:"escalated_total"`
	GrandTotal     string `json:"grand_total"`
}

// ExportJSON renders the ledger's current sections and summary as JSON at
// outputPath, for tooling that would rather not parse Markdown.
func (l *Ledger) ExportJSON(outputPath string) error {
	l.mu.Lock()
	content, err := l.readLocked()
	l.mu.Unlock()
	if err != nil {
		return err
	}

	sum, err := l.Summary()
	if err != nil {
		return err
	}

	sections := make(map[string][]string)
	var current string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "## "):
			current = strings.ToLower(strings.TrimPrefix(trimmed, "## "))
			sections[current] = nil
		case strings.HasPrefix(trimmed, "- ") && current != "":
			sections[current] = append(sections[current], strings.TrimPrefix(trimmed, "- "))
		}
	}

	doc := export{
		ExportDate: time.Now().UTC().Format(time.RFC3339),
		Summary: exportSummary{
			UnpaidTotal:    sum.UnpaidTotal.StringFixed(2),
			PaidTotal:      sum.PaidTotal.StringFixed(2),
			EscalatedTotal: sum.EscalatedTotal.StringFixed(2),
			GrandTotal:     sum.GrandTotal().StringFixed(2),
		},
		Sections: sections,
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: marshalling export: %w", err)
	}
	if err := os.WriteFile(outputPath, body, 0o644); err != nil {
		return fmt.Errorf("ledger: writing export: %w", err)
	}
	return nil
}
