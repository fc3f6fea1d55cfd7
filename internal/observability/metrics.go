// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Watch metrics
	TicksProcessed          prometheus.Counter
	TicksRejected           *prometheus.CounterVec
	CandlesClosed           prometheus.Counter
	SignalsEmitted          *prometheus.CounterVec
	RangeResets             *prometheus.CounterVec
	DuplicateRecordsSkipped prometheus.Counter

	// Feed metrics
	FeedPollErrors prometheus.Counter
	RPCCallLatency *prometheus.HistogramVec

	// Consumer metrics
	SignalsObserved    prometheus.Counter
	ActionsExecuted    *prometheus.CounterVec
	ConsumerNoops      *prometheus.CounterVec
	SettlementFailures prometheus.Counter
	SettlementLatency  prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastTickTimestamp        prometheus.Gauge
	LastCandleCloseTimestamp prometheus.Gauge
	LastConsumedTimestamp    prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "range_watch"
	}

	return &Metrics{
		// Watch metrics
		TicksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "ticks_processed_total",
			Help:      "Total number of feed ticks ingested",
		}),
		TicksRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "ticks_rejected_total",
			Help:      "Total number of ticks rejected by reason",
		}, []string{"reason"}),
		CandlesClosed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "candles_closed_total",
			Help:      "Total number of candles finalized",
		}),
		SignalsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "signals_emitted_total",
			Help:      "Total number of signal records emitted by status",
		}, []string{"status"}),
		RangeResets: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "range_resets_total",
			Help:      "Total number of range resets by kind",
		}, []string{"kind"}),
		DuplicateRecordsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "duplicate_records_skipped_total",
			Help:      "Total number of duplicate-key inserts skipped after restart",
		}),

		// Feed metrics
		FeedPollErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "poll_errors_total",
			Help:      "Total number of failed feed polls",
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Consumer metrics
		SignalsObserved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "signals_observed_total",
			Help:      "Total number of signal records observed by the consumer",
		}),
		ActionsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "actions_executed_total",
			Help:      "Total number of executed trading actions by type",
		}, []string{"action"}),
		ConsumerNoops: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "noops_total",
			Help:      "Total number of consumer no-ops by reason",
		}, []string{"reason"}),
		SettlementFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "settlement_failures_total",
			Help:      "Total number of failed settlement attempts",
		}),
		SettlementLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "settlement_latency_seconds",
			Help:      "Settlement call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastTickTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_tick_timestamp",
			Help:      "Unix timestamp (ms) of the last ingested tick",
		}),
		LastCandleCloseTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_candle_close_timestamp",
			Help:      "Unix timestamp (ms) of the last finalized candle bucket",
		}),
		LastConsumedTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_consumed_signal_timestamp",
			Help:      "Unix timestamp (ms) of the last signal record consumed",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTick increments the processed ticks counter and updates the health gauge.
func RecordTick(timestampMs int64) {
	DefaultMetrics.TicksProcessed.Inc()
	DefaultMetrics.LastTickTimestamp.Set(float64(timestampMs))
}

// RecordTickRejected records a rejected tick by reason.
func RecordTickRejected(reason string) {
	DefaultMetrics.TicksRejected.WithLabelValues(reason).Inc()
}

// RecordCandleClosed increments the closed candles counter and updates the health gauge.
func RecordCandleClosed(bucketStartMs int64) {
	DefaultMetrics.CandlesClosed.Inc()
	DefaultMetrics.LastCandleCloseTimestamp.Set(float64(bucketStartMs))
}

// RecordSignal records an emitted signal record by status.
func RecordSignal(status string) {
	DefaultMetrics.SignalsEmitted.WithLabelValues(status).Inc()
}

// RecordReset records a range reset by kind.
func RecordReset(kind string) {
	DefaultMetrics.RangeResets.WithLabelValues(kind).Inc()
}

// RecordDuplicateSkip increments the duplicate-insert skip counter.
func RecordDuplicateSkip() {
	DefaultMetrics.DuplicateRecordsSkipped.Inc()
}

// RecordFeedPollError increments the feed poll error counter.
func RecordFeedPollError() {
	DefaultMetrics.FeedPollErrors.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordSignalObserved increments the consumer observed counter.
func RecordSignalObserved() {
	DefaultMetrics.SignalsObserved.Inc()
}

// RecordAction records an executed action and updates the health gauge.
func RecordAction(action string, signalTimeMs int64) {
	DefaultMetrics.ActionsExecuted.WithLabelValues(action).Inc()
	DefaultMetrics.LastConsumedTimestamp.Set(float64(signalTimeMs))
}

// RecordConsumerNoop records a consumer no-op by reason.
func RecordConsumerNoop(reason string) {
	DefaultMetrics.ConsumerNoops.WithLabelValues(reason).Inc()
}

// RecordSettlement records a settlement attempt's latency and outcome.
func RecordSettlement(seconds float64, err error) {
	DefaultMetrics.SettlementLatency.Observe(seconds)
	if err != nil {
		DefaultMetrics.SettlementFailures.Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
