package supervisor

import (
	"bytes"
	"encoding/json"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StateSummary tallies invoice state across status buckets for the
// dashboard's collection-status table.
type StateSummary struct {
	UnpaidCount    int
	UnpaidTotal    decimal.Decimal
	PaidCount      int
	PaidTotal      decimal.Decimal
	EscalatedCount int
	EscalatedTotal decimal.Decimal
	ReviewCount    int
}

// stateFile is the subset of an invoicestate.Invoice JSON record the
// dashboard needs; it is decoded independently so the dashboard never
// needs a *invoicestate.Store to summarize state on disk.
type stateFile struct {
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

// summarizeState walks every non-archived *.json file under stateDir and
// tallies it into a StateSummary.
func summarizeState(stateDir string) StateSummary {
	var summary StateSummary

	filepath.WalkDir(stateDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.Contains(path, string(filepath.Separator)+"archive"+string(filepath.Separator)) {
			return nil
		}
		if filepath.Ext(path) != ".json" {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var sf stateFile
		if err := json.Unmarshal(raw, &sf); err != nil {
			return nil
		}
		switch sf.Status {
		case "unpaid":
			summary.UnpaidCount++
			summary.UnpaidTotal = summary.UnpaidTotal.Add(sf.Amount)
		case "paid":
			summary.PaidCount++
			summary.PaidTotal = summary.PaidTotal.Add(sf.Amount)
		case "escalated":
			summary.EscalatedCount++
			summary.EscalatedTotal = summary.EscalatedTotal.Add(sf.Amount)
		case "pending":
			summary.ReviewCount++
		}
		return nil
	})

	return summary
}

// dashboardView is the template data for the rendered HTML page.
type dashboardView struct {
	GeneratedAt string
	AllHealthy  bool
	Agents      []dashboardAgentRow
	State       StateSummary
}

type dashboardAgentRow struct {
	Name          string
	Status        string
	LastHeartbeat string
	Restarts      int
	RecentErrors  []string
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>Collections Fleet Dashboard</title>
	<style>
		body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 20px; background-color: #f5f5f5; }
		.container { max-width: 1200px; margin: 0 auto; background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
		.status-healthy { color: #28a745; font-weight: bold; }
		.status-unhealthy { color: #dc3545; font-weight: bold; }
		.status-unknown { color: #ffc107; font-weight: bold; }
		.status-escalated { color: #6f42c1; font-weight: bold; }
		.status-restarting { color: #17a2b8; font-weight: bold; }
		table { border-collapse: collapse; width: 100%; margin-bottom: 20px; }
		th, td { border: 1px solid #ddd; padding: 12px; text-align: left; }
		th { background-color: #4CAF50; color: white; }
		tr:nth-child(even) { background-color: #f2f2f2; }
		.metric { font-size: 28px; font-weight: bold; color: #333; }
		.metric-card { background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 10px 0; }
		h1 { color: #333; border-bottom: 3px solid #4CAF50; padding-bottom: 10px; }
		h2 { color: #555; margin-top: 30px; }
		.header { display: flex; justify-content: space-between; align-items: center; }
		.timestamp { color: #666; font-size: 14px; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header">
			<h1>Collections Fleet Dashboard</h1>
			<div class="timestamp">Generated: {{.GeneratedAt}} UTC</div>
		</div>

		<div class="metric-card">
			<div class="metric-label">System Status</div>
			<div class="metric">{{if .AllHealthy}}Healthy{{else}}Issues Detected{{end}}</div>
		</div>

		<h2>Agent Health</h2>
		<table>
			<tr><th>Agent</th><th>Status</th><th>Last Heartbeat</th><th>Restarts</th></tr>
			{{range .Agents}}
			<tr>
				<td><strong>{{.Name}}</strong></td>
				<td class="status-{{.Status}}">{{.Status}}</td>
				<td>{{.LastHeartbeat}}</td>
				<td>{{.Restarts}}</td>
			</tr>
			{{end}}
		</table>

		<h2>Collection Status</h2>
		<table>
			<tr><th>Status</th><th>Count</th><th>Total Amount</th></tr>
			<tr><td>Unpaid</td><td class="metric">{{.State.UnpaidCount}}</td><td class="metric">{{.State.UnpaidTotal}}</td></tr>
			<tr><td>Paid</td><td class="metric">{{.State.PaidCount}}</td><td class="metric">{{.State.PaidTotal}}</td></tr>
			<tr><td>Escalated</td><td class="metric">{{.State.EscalatedCount}}</td><td class="metric">{{.State.EscalatedTotal}}</td></tr>
			<tr><td>In Review</td><td class="metric">{{.State.ReviewCount}}</td><td>-</td></tr>
		</table>
	</div>
</body>
</html>
`))

// Dashboard renders an HTML status page summarizing agent health and
// invoice state, grounded on C13's health checker and the on-disk state
// store.
type Dashboard struct {
	stateDir string
	checker  *Checker
	now      func() time.Time
}

// NewDashboard builds a Dashboard reading invoice state under stateDir and
// agent health from checker.
func NewDashboard(stateDir string, checker *Checker) *Dashboard {
	return &Dashboard{stateDir: stateDir, checker: checker, now: time.Now}
}

// Generate renders the dashboard to an HTML string.
func (d *Dashboard) Generate() (string, error) {
	results := d.checker.CheckAll()

	view := dashboardView{
		GeneratedAt: d.now().UTC().Format("2006-01-02 15:04:05"),
		AllHealthy:  true,
		State:       summarizeState(d.stateDir),
	}

	for _, r := range results {
		if r.Status != "healthy" {
			view.AllHealthy = false
		}
		lastHeartbeat := "N/A"
		if !r.LastHeartbeat.IsZero() {
			lastHeartbeat = r.LastHeartbeat.UTC().Format("2006-01-02 15:04:05")
		}
		row := dashboardAgentRow{
			Name:          r.Name,
			Status:        r.Status,
			LastHeartbeat: lastHeartbeat,
			Restarts:      r.Restarts,
		}
		for _, e := range r.Errors {
			row.RecentErrors = append(row.RecentErrors, e.Reason)
		}
		view.Agents = append(view.Agents, row)
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
