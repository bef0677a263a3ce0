package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	transferDuration       *prometheus.HistogramVec
	transferCounter        *prometheus.CounterVec
	transferConflicts      *prometheus.CounterVec
	transferRetries        *prometheus.CounterVec
	outboxCounter          *prometheus.CounterVec
	outboxBacklogGauge     *prometheus.GaugeVec
	notificationCounter    *prometheus.CounterVec
	ledgerImbalanceCounter *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transferDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_transfer_duration_seconds",
			Help:    "Transfer latency including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy", "result"})

		transferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transfers_total",
			Help: "Transfer outcomes by strategy",
		}, []string{"strategy", "result"})

		transferConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transfer_conflicts_total",
			Help: "Optimistic version conflicts by account role",
		}, []string{"party"})

		transferRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transfer_retries_total",
			Help: "Transfer attempts retried after contention",
		}, []string{"reason"})

		outboxCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_outbox_events_total",
			Help: "Outbox dispatch outcomes",
		}, []string{"event_type", "result"})

		outboxBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_outbox_backlog",
			Help: "Outbox events by status",
		}, []string{"status"})

		notificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_notifications_total",
			Help: "Notification delivery outcomes",
		}, []string{"result"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of times balances diverged from transfer history",
		}, []string{"scope"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			transferDuration,
			transferCounter,
			transferConflicts,
			transferRetries,
			outboxCounter,
			outboxBacklogGauge,
			notificationCounter,
			ledgerImbalanceCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func ObserveTransfer(strategy, result string, duration time.Duration) {
	if transferCounter == nil {
		return
	}
	transferCounter.WithLabelValues(strategy, result).Inc()
	transferDuration.WithLabelValues(strategy, result).Observe(duration.Seconds())
}

func IncrementTransferConflict(party string) {
	if transferConflicts == nil {
		return
	}
	transferConflicts.WithLabelValues(party).Inc()
}

func IncrementTransferRetry(reason string) {
	if transferRetries == nil {
		return
	}
	transferRetries.WithLabelValues(reason).Inc()
}

func IncrementOutboxEvent(eventType, result string) {
	if outboxCounter == nil {
		return
	}
	outboxCounter.WithLabelValues(eventType, result).Inc()
}

func SetOutboxBacklog(status string, size int64) {
	if outboxBacklogGauge == nil {
		return
	}
	outboxBacklogGauge.WithLabelValues(status).Set(float64(size))
}

func IncrementNotification(result string) {
	if notificationCounter == nil {
		return
	}
	notificationCounter.WithLabelValues(result).Inc()
}

func IncrementLedgerImbalance(scope string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(scope).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
