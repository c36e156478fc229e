package telemetry

import "github.com/prometheus/client_golang/prometheus"

var RemindersSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "collections",
		Subsystem: "reminders",
		Name:      "sent_total",
		Help:      "Total number of collection reminders sent, by cadence rule.",
	},
	[]string{"rule"},
)

var RemindersFailedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "collections",
		Subsystem: "reminders",
		Name:      "failed_total",
		Help:      "Total number of collection reminders that failed to send, by cadence rule.",
	},
	[]string{"rule"},
)

var RateLimitRejectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "collections",
		Subsystem: "ratelimiter",
		Name:      "rejections_total",
		Help:      "Total number of reminder sends deferred because the rate limit was exhausted.",
	},
)

var InvoicesScannedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "collections",
		Subsystem: "ingest",
		Name:      "invoices_scanned_total",
		Help:      "Total number of invoice documents scanned, by routing outcome.",
	},
	[]string{"route"},
)

var PaymentsDetectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "collections",
		Subsystem: "payments",
		Name:      "detected_total",
		Help:      "Total number of payment-evidence files matched to an invoice, by detection method.",
	},
	[]string{"method"},
)

var ReconciliationDiscrepancy = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "collections",
		Subsystem: "ledger",
		Name:      "reconciliation_discrepancy",
		Help:      "Absolute difference between ledger and state-derived unpaid totals from the last reconciliation.",
	},
)

var AgentsEscalatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "collections",
		Subsystem: "supervisor",
		Name:      "agents_escalated_total",
		Help:      "Total number of agent health escalations raised, by agent.",
	},
	[]string{"agent"},
)

var TokenRefreshesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "collections",
		Subsystem: "token",
		Name:      "refreshes_total",
		Help:      "Total number of OAuth2 token refresh attempts, by provider and outcome.",
	},
	[]string{"provider", "outcome"},
)

// All returns every collections-fleet metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		RemindersSentTotal,
		RemindersFailedTotal,
		RateLimitRejectionsTotal,
		InvoicesScannedTotal,
		PaymentsDetectedTotal,
		ReconciliationDiscrepancy,
		AgentsEscalatedTotal,
		TokenRefreshesTotal,
	}
}
