package provider

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	degradedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stepscape",
		Subsystem: "provider",
		Name:      "fetches_degraded_total",
		Help:      "Number of provider fetches downgraded to an empty result.",
	})

	fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stepscape",
		Subsystem: "provider",
		Name:      "fetch_duration_seconds",
		Help:      "Time spent fetching step intervals from the provider.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(degradedCounter, fetchDuration)
}

func recordDegradedFetch() {
	degradedCounter.Inc()
}

type fetchTimer struct {
	start time.Time
}

func startFetchTimer() fetchTimer {
	return fetchTimer{start: time.Now()}
}

func (t fetchTimer) done() {
	fetchDuration.Observe(time.Since(t.start).Seconds())
}
