package scheduler

// Rule describes one reminder cadence point relative to an invoice's due
// date. IsBeforeDue selects whether DaysBeforeDue or DaysAfterDue applies;
// the other is left zero.
type Rule struct {
	RuleID        string
	DaysBeforeDue int
	DaysAfterDue  int
	IsBeforeDue   bool
	Template      string
	Escalates     bool
}

// DefaultRules is the canonical cadence: two reminders (three days before
// and on the due date), two overdue nudges, a final notice, and an
// escalation that hands the invoice to a human.
var DefaultRules = []Rule{
	{RuleID: "reminder_1", DaysBeforeDue: 3, IsBeforeDue: true, Template: "reminder_3d"},
	{RuleID: "reminder_2", DaysBeforeDue: 0, IsBeforeDue: true, Template: "reminder_due"},
	{RuleID: "overdue_1", DaysAfterDue: 5, Template: "overdue_5d"},
	{RuleID: "overdue_2", DaysAfterDue: 7, Template: "overdue_7d"},
	{RuleID: "final_notice", DaysAfterDue: 10, Template: "final_notice"},
	{RuleID: "escalation", DaysAfterDue: 14, Template: "escalation", Escalates: true},
}
