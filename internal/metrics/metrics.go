package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hermes"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Per-descriptor agent results.
const (
	ResultForwarded     = "forwarded"
	ResultIgnored       = "ignored"
	ResultSkipped       = "skipped"
	ResultFetchFailed   = "fetch_failed"
	ResultForwardFailed = "forward_failed"
)

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "File-ready notifications received by agents, partitioned by outcome.",
		},
		[]string{"agent", "category", "outcome"},
	)

	filesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_files_total",
			Help:      "File descriptors handled by agents, partitioned by result.",
		},
		[]string{"agent", "category", "result"},
	)

	subscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_total",
			Help:      "Subscription registrations, partitioned by outcome.",
		},
		[]string{"agent", "category", "outcome"},
	)

	eventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Events received by the correlation engine, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	correlationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlations_total",
			Help:      "Correlations recorded, partitioned by rule.",
		},
		[]string{"rule"},
	)

	correlationScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "correlation_score",
			Help:      "Distribution of recorded correlation scores.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	derivedFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "derived_files_total",
			Help:      "Derived file uploads, partitioned by network function and outcome.",
		},
		[]string{"function", "outcome"},
	)

	persistFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Events that could not be written to the event store.",
		},
	)

	receiveDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "receive_seconds",
			Help:      "Correlation engine receive latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

// Register attaches hermes collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		notificationsTotal,
		filesTotal,
		subscriptionsTotal,
		eventsReceivedTotal,
		correlationsTotal,
		correlationScore,
		derivedFilesTotal,
		persistFailuresTotal,
		receiveDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func normaliseOutcome(outcome string) string {
	if outcome != OutcomeError {
		return OutcomeSuccess
	}
	return OutcomeError
}

// ObserveNotification counts one inbound notification.
func ObserveNotification(agent, category, outcome string) {
	notificationsTotal.WithLabelValues(agent, category, normaliseOutcome(outcome)).Inc()
}

// ObserveFile counts one processed file descriptor.
func ObserveFile(agent, category, result string) {
	filesTotal.WithLabelValues(agent, category, result).Inc()
}

// ObserveSubscription counts one subscription attempt sequence.
func ObserveSubscription(agent, category, outcome string) {
	subscriptionsTotal.WithLabelValues(agent, category, normaliseOutcome(outcome)).Inc()
}

// ObserveReceive records an engine receive duration and outcome label.
func ObserveReceive(duration time.Duration, outcome string) {
	eventsReceivedTotal.WithLabelValues(normaliseOutcome(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	receiveDurationSeconds.Observe(duration.Seconds())
}

// ObserveCorrelation records one recorded correlation.
func ObserveCorrelation(rule string, score float64) {
	correlationsTotal.WithLabelValues(rule).Inc()
	correlationScore.Observe(score)
}

// ObserveDerivedFile records one derived file upload attempt.
func ObserveDerivedFile(function, outcome string) {
	derivedFilesTotal.WithLabelValues(function, normaliseOutcome(outcome)).Inc()
}

// ObservePersistFailure counts one failed event insert.
func ObservePersistFailure() {
	persistFailuresTotal.Inc()
}
