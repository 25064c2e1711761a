package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	operationsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "posync",
			Name:      "operations_enqueued_total",
			Help:      "Write operations recorded for later replay.",
		},
	)

	operationsReplayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posync",
			Name:      "operations_replayed_total",
			Help:      "Pending operations successfully replayed, by endpoint.",
		},
		[]string{"endpoint"},
	)

	operationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "posync",
			Name:      "operations_dropped_total",
			Help:      "Pending operations dropped after exhausting the retry limit.",
		},
	)

	syncPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "posync",
			Name:      "sync_pass_duration_seconds",
			Help:      "Duration of a full reconciliation pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "posync",
			Name:      "queue_depth",
			Help:      "Number of pending operations in the durable queue.",
		},
	)

	connectivityOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "posync",
			Name:      "connectivity_online",
			Help:      "1 when the remote backend is reachable, 0 otherwise.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			operationsEnqueued,
			operationsReplayed,
			operationsDropped,
			syncPassDuration,
			queueDepth,
			connectivityOnline,
		)
	})
}

func IncEnqueued() {
	operationsEnqueued.Inc()
}

func IncReplayed(endpoint string) {
	operationsReplayed.WithLabelValues(endpoint).Inc()
}

func IncDropped() {
	operationsDropped.Inc()
}

func ObservePassDuration(seconds float64) {
	syncPassDuration.Observe(seconds)
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func SetOnline(online bool) {
	if online {
		connectivityOnline.Set(1)
		return
	}
	connectivityOnline.Set(0)
}
