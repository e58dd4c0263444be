package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "ledgersync_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	snapshotsTotal       *prometheus.CounterVec
	recomputeLatency     prometheus.Histogram
	discardedDeliveries  prometheus.Counter
	subscriptionErrors   prometheus.Counter
	malformedRecords     *prometheus.CounterVec
	activeSubscriptions  prometheus.Gauge
	queuedSubscriptions  prometheus.Gauge
	depositsTotal        *prometheus.CounterVec
	depositLatency       *prometheus.HistogramVec
	notificationFailures prometheus.Counter
)

// Init registers the engine metrics with the default registry. Helpers are
// no-ops until Init has run, so library users that do not export metrics pay nothing.
func Init() {
	registerOnce.Do(func() {
		snapshotsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "snapshots_total",
				Help: "Snapshots applied to ledger views by resulting status",
			},
			[]string{"status"},
		)
		recomputeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "recompute_latency_seconds",
			Help:    "Time spent ordering and folding one snapshot",
			Buckets: prometheus.DefBuckets,
		})
		discardedDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "discarded_deliveries_total",
			Help: "Snapshot or error deliveries dropped because their subscription was no longer live",
		})
		subscriptionErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "subscription_errors_total",
			Help: "Errors delivered by the document store to live subscriptions",
		})
		malformedRecords = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "malformed_records_total",
				Help: "Record fields that could not be interpreted, by field",
			},
			[]string{"field"},
		)
		activeSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "active_subscriptions",
			Help: "Subscriptions established against the document store",
		})
		queuedSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "queued_subscriptions",
			Help: "Subscriptions waiting for the session identity",
		})
		depositsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "deposits_total",
				Help: "Deposit writes by result",
			},
			[]string{"result"},
		)
		depositLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "deposit_latency_seconds",
				Help:    "Deposit append latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		notificationFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "notification_failures_total",
			Help: "Operator notifications that could not be delivered",
		})

		prometheus.MustRegister(
			snapshotsTotal,
			recomputeLatency,
			discardedDeliveries,
			subscriptionErrors,
			malformedRecords,
			activeSubscriptions,
			queuedSubscriptions,
			depositsTotal,
			depositLatency,
			notificationFailures,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSnapshot records one applied delivery and how long the recompute took.
func ObserveSnapshot(status string, duration time.Duration) {
	if snapshotsTotal != nil {
		snapshotsTotal.WithLabelValues(status).Inc()
	}
	if recomputeLatency != nil && duration > 0 {
		recomputeLatency.Observe(duration.Seconds())
	}
}

func IncDiscardedDelivery() {
	if discardedDeliveries != nil {
		discardedDeliveries.Inc()
	}
}

func IncSubscriptionError() {
	if subscriptionErrors != nil {
		subscriptionErrors.Inc()
	}
}

func MalformedRecord(field string) {
	if field == "" {
		field = "unknown"
	}
	if malformedRecords != nil {
		malformedRecords.WithLabelValues(field).Inc()
	}
}

// SubscriptionEstablished and SubscriptionReleased move the active gauge.
func SubscriptionEstablished() {
	if activeSubscriptions != nil {
		activeSubscriptions.Inc()
	}
}

func SubscriptionReleased() {
	if activeSubscriptions != nil {
		activeSubscriptions.Dec()
	}
}

func AddQueuedSubscriptions(delta int) {
	if queuedSubscriptions != nil {
		queuedSubscriptions.Add(float64(delta))
	}
}

// ObserveDeposit records a deposit append and its latency.
func ObserveDeposit(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if depositsTotal != nil {
		depositsTotal.WithLabelValues(result).Inc()
	}
	if depositLatency != nil {
		depositLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

func IncNotificationFailure() {
	if notificationFailures != nil {
		notificationFailures.Inc()
	}
}
