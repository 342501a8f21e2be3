package api

import (
	"errors"
	"time"

	"github.com/samebrave/StepScape/internal/aggregate"
	"github.com/samebrave/StepScape/internal/domain"
)

// TodayResponse carries the live total for the current calendar day.
type TodayResponse struct {
	Date       string `json:"date"`
	TotalSteps int    `json:"total_steps"`
}

// DayResponse carries the intraday cumulative line.
type DayResponse struct {
	Points []aggregate.Point `json:"points"`
}

// AggregateResponse carries labeled buckets, oldest first.
type AggregateResponse struct {
	Granularity string             `json:"granularity"`
	Buckets     []aggregate.Bucket `json:"buckets"`
}

// TotalResponse carries the stored total for a requested calendar day.
type TotalResponse struct {
	Date       string `json:"date"`
	TotalSteps int    `json:"total_steps"`
}

// SyncResponse reports how many records this invocation confirmed synced.
type SyncResponse struct {
	Synced int `json:"synced"`
}

// StepLogView exposes one stored record.
type StepLogView struct {
	Timestamp  time.Time `json:"timestamp"`
	BucketDate time.Time `json:"bucket_date"`
	Steps      int       `json:"steps"`
	Synced     bool      `json:"synced"`
}

// LogsResponse packages list results.
type LogsResponse struct {
	Items []StepLogView `json:"items"`
}

// SaveLogRequest is the payload for POST /v1/steps/logs.
type SaveLogRequest struct {
	Timestamp time.Time `json:"timestamp"`
	Steps     int       `json:"steps"`
}

// Validate ensures request correctness.
func (r SaveLogRequest) Validate() error {
	if r.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if r.Steps < 0 {
		return errors.New("steps must be >= 0")
	}
	return nil
}

func toStepLogView(record domain.StepRecord) StepLogView {
	return StepLogView{
		Timestamp:  record.Timestamp,
		BucketDate: record.BucketDate,
		Steps:      record.Steps,
		Synced:     record.Synced,
	}
}
