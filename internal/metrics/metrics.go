package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftrelay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "giftrelay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftrelay_ledger_entries_total",
			Help: "Balance transactions written, by kind",
		},
		[]string{"kind"},
	)

	LedgerCoinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftrelay_ledger_coins_total",
			Help: "Absolute coin volume moved through the ledger, by kind",
		},
		[]string{"kind"},
	)

	ExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftrelay_exchanges_total",
			Help: "Gift exchange attempts, by outcome",
		},
		[]string{"outcome"},
	)

	TaskTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftrelay_task_transitions_total",
			Help: "Gift task state transitions",
		},
		[]string{"from", "to"},
	)

	ClaimConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "giftrelay_claim_conflicts_total",
			Help: "Claim attempts that lost the race for a task",
		},
	)

	SignatureRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftrelay_signature_rejections_total",
			Help: "Worker requests rejected by signature verification",
		},
		[]string{"reason"},
	)

	ReclaimSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftrelay_reclaim_sweeps_total",
			Help: "Stuck task sweeps, by result",
		},
		[]string{"result"},
	)

	ReclaimedTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftrelay_reclaimed_tasks_total",
			Help: "Tasks touched by the reclaimer, by action",
		},
		[]string{"action"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordLedgerEntry(kind string, delta int64) {
	if delta < 0 {
		delta = -delta
	}
	LedgerEntriesTotal.WithLabelValues(kind).Inc()
	LedgerCoinsTotal.WithLabelValues(kind).Add(float64(delta))
}

func RecordExchange(outcome string) {
	ExchangesTotal.WithLabelValues(outcome).Inc()
}

func RecordTransition(from, to string) {
	TaskTransitionsTotal.WithLabelValues(from, to).Inc()
}

func RecordClaimConflict() {
	ClaimConflictsTotal.Inc()
}

func RecordSignatureRejection(reason string) {
	SignatureRejectionsTotal.WithLabelValues(reason).Inc()
}

func RecordSweep(result string) {
	ReclaimSweepsTotal.WithLabelValues(result).Inc()
}

func RecordReclaim(action string, n int) {
	ReclaimedTasksTotal.WithLabelValues(action).Add(float64(n))
}
