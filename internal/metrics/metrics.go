package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Ledger
	EntriesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Ledger entries appended, by kind",
		},
		[]string{"kind"},
	)
	TransfersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_transfers_total",
			Help: "Completed peer-to-peer transfers",
		},
	)
	OperationsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_failed_total",
			Help: "Failed ledger operations, by operation",
		},
		[]string{"op"},
	)
	SweepWriteoffs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_expiry_writeoffs_total",
			Help: "Expiry write-off entries materialized by the sweep",
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

// Handler serves the /metrics endpoint.
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(EntriesAppended)
	prometheus.MustRegister(TransfersTotal)
	prometheus.MustRegister(OperationsFailed)
	prometheus.MustRegister(SweepWriteoffs)
	prometheus.MustRegister(WorkerQueueDepth)
}
