package syncer

import "github.com/prometheus/client_golang/prometheus"

var (
	passCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stepscape",
		Subsystem: "syncer",
		Name:      "passes_total",
		Help:      "Number of completed background sync passes that found work.",
	})

	passDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stepscape",
		Subsystem: "syncer",
		Name:      "pass_duration_seconds",
		Help:      "Time spent syncing unsynced records in one pass.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(passCounter, passDuration)
}
