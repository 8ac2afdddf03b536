package sync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for sync requests. Consumers cannot distinguish failure
// causes from the returned table, so the distinction lives here.
const (
	outcomeCooldownHit   = "cooldown_hit"
	outcomeUpToDate      = "up_to_date"
	outcomeNoNewData     = "no_new_data"
	outcomeRefreshed     = "refreshed"
	outcomeFullFetch     = "full_fetch"
	outcomeRecovered     = "recovered"
	outcomeRefreshFailed = "refresh_failed"
	outcomeEmpty         = "empty"
)

// Metrics collects the engine's observability counters.
type Metrics struct {
	syncRequests   *prometheus.CounterVec
	loaderCalls    *prometheus.CounterVec
	loaderDuration *prometheus.HistogramVec
	archiveOps     *prometheus.CounterVec
}

// NewMetrics creates the engine metrics and registers them when a registerer
// is given
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		syncRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedvault_sync_requests_total",
				Help: "Sync engine requests by dataset and outcome",
			},
			[]string{"dataset", "outcome"},
		),
		loaderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedvault_loader_calls_total",
				Help: "Outbound loader fetches by dataset and status",
			},
			[]string{"dataset", "status"},
		),
		loaderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedvault_loader_duration_seconds",
				Help:    "Loader fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"dataset"},
		),
		archiveOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedvault_archive_ops_total",
				Help: "Archive mirror operations by op and status",
			},
			[]string{"op", "status"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.syncRequests, m.loaderCalls, m.loaderDuration, m.archiveOps)
	}
	return m
}

func (m *Metrics) observeOutcome(dataset, outcome string) {
	m.syncRequests.WithLabelValues(dataset, outcome).Inc()
}

func (m *Metrics) observeLoaderCall(dataset string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.loaderCalls.WithLabelValues(dataset, status).Inc()
	m.loaderDuration.WithLabelValues(dataset).Observe(d.Seconds())
}

func (m *Metrics) observeArchiveOp(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.archiveOps.WithLabelValues(op, status).Inc()
}
