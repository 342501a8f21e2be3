// Package observability registers shared Prometheus instrumentation.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ingestedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stepscape",
		Subsystem: "ingest",
		Name:      "records_ingested_total",
		Help:      "Number of step records newly stored in the local log store.",
	})
	syncedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stepscape",
		Subsystem: "sync",
		Name:      "records_synced_total",
		Help:      "Number of step records confirmed upserted to the remote store.",
	})
	lastSyncedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stepscape",
		Subsystem: "sync",
		Name:      "last_record_synced_timestamp_seconds",
		Help:      "Unix timestamp of the most recent record transitioned to synced.",
	})
)

func init() {
	prometheus.MustRegister(ingestedCounter, syncedCounter, lastSyncedGauge)
}

// RecordIngested counts records newly stored by an ingest pass.
func RecordIngested(count int) {
	if count <= 0 {
		return
	}
	ingestedCounter.Add(float64(count))
}

// RecordSynced updates the sync watermark after a confirmed remote upsert.
func RecordSynced(ts time.Time) {
	syncedCounter.Inc()
	if ts.IsZero() {
		return
	}
	lastSyncedGauge.Set(float64(ts.Unix()))
}
