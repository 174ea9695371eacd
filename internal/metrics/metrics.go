// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels besides the failure kinds.
const (
	OutcomeCompleted = "COMPLETED"
	OutcomeReplay    = "REPLAY"
)

var (
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transfers_total",
		Help: "Transfer attempts, labeled by outcome (COMPLETED, REPLAY or failure kind)",
	}, []string{"outcome"})

	TransferDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_transfer_duration_seconds",
		Help:    "Latency of ProcessTransfer, including lock waits",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}, []string{"outcome"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_notifications_total",
		Help: "Transfer-completed notifications, labeled by sink and result",
	}, []string{"sink", "result"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"})
)
