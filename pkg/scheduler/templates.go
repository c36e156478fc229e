package scheduler

import (
	"fmt"
	"strings"

	"github.com/novotechno/collections/pkg/invoicestate"
)

var templateSubjects = map[string]string{
	"reminder_3d":  "Invoice {invoice_number} due in 3 days",
	"reminder_due": "Invoice {invoice_number} is due today",
	"overdue_5d":   "Invoice {invoice_number} is now overdue",
	"overdue_7d":   "Invoice {invoice_number} overdue reminder",
	"final_notice": "FINAL NOTICE: Invoice {invoice_number}",
	"escalation":   "Invoice {invoice_number} escalated for collection",
}

var templateBodies = map[string]string{
	"reminder_3d":  "Hi {client_name}, a friendly reminder that invoice {invoice_number} for ${amount} is due on {due_date}.",
	"reminder_due": "Hi {client_name}, invoice {invoice_number} for ${amount} is due today, {due_date}.",
	"overdue_5d":   "Hi {client_name}, invoice {invoice_number} for ${amount} was due on {due_date} and is now {days_overdue} days overdue.",
	"overdue_7d":   "Hi {client_name}, invoice {invoice_number} for ${amount} remains unpaid, {days_overdue} days past its {due_date} due date.",
	"final_notice": "Hi {client_name}, this is a final notice: invoice {invoice_number} for ${amount} is {days_overdue} days overdue and requires immediate attention.",
	"escalation":   "Invoice {invoice_number} for {client_name} (${amount}, {days_overdue} days overdue) has been escalated for manual collection.",
}

// RenderTemplate substitutes placeholders in a reminder template with
// values drawn from inv.
func RenderTemplate(templateID string, inv invoicestate.Invoice, daysOverdue int) (subject, body string) {
	replacer := strings.NewReplacer(
		"{client_name}", inv.Client,
		"{invoice_number}", inv.Number,
		"{amount}", inv.Amount.StringFixed(2),
		"{due_date}", inv.DueDate.Format("2006-01-02"),
		"{days_overdue}", fmt.Sprintf("%d", daysOverdue),
	)
	return replacer.Replace(templateSubjects[templateID]), replacer.Replace(templateBodies[templateID])
}
