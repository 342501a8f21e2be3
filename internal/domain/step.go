// Package domain defines the step-log data model and the ingestion and
// reconciliation logic built on top of it.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStorage wraps local persistence failures. Read paths return it only
	// when the store itself is broken, never for empty results.
	ErrStorage = errors.New("step log storage failure")
	// ErrRemoteSync indicates a single record failed to upsert remotely.
	ErrRemoteSync = errors.New("remote sync failure")
)

// StepInterval is a contiguous time span with a step count as reported by
// the health-data provider. Intervals for the same day are not guaranteed
// sorted or non-overlapping.
type StepInterval struct {
	Start time.Time
	End   time.Time
	Count int
}

// StepRecord is the canonical per-interval row kept in the local log store.
// (UserID, Timestamp) uniquely identifies a record.
type StepRecord struct {
	Timestamp  time.Time // exact interval start time, primary key per user
	BucketDate time.Time // local-zone midnight of Timestamp, denormalized for day queries
	Steps      int
	UserID     string
	Synced     bool
}

// RemoteStepLog is the document shape written to the remote per-user
// collection. Epoch milliseconds match what the mobile clients store.
type RemoteStepLog struct {
	Timestamp   int64  `json:"timestamp"`
	BucketDate  int64  `json:"date"`
	Steps       int    `json:"steps"`
	DisplayName string `json:"user_name"`
	SyncedAt    int64  `json:"synced_at"`
}

// LogStore captures the persistence operations of the local log store.
// Implementations must scope every query and mutation by user.
type LogStore interface {
	// InsertIfNew inserts each record only when no record with the same
	// (user, timestamp) key exists, and reports how many were actually
	// stored. Safe to repeat with overlapping input.
	InsertIfNew(ctx context.Context, records []StepRecord) (int, error)
	// InsertOrReplace unconditionally upserts a single record by key.
	InsertOrReplace(ctx context.Context, record StepRecord) error
	QueryByDay(ctx context.Context, userID string, bucketDate time.Time) ([]StepRecord, error)
	QueryRange(ctx context.Context, userID string, startBucket, endBucket time.Time) ([]StepRecord, error)
	// SumForDay returns 0 when no rows match.
	SumForDay(ctx context.Context, userID string, bucketDate time.Time) (int, error)
	UnsyncedFor(ctx context.Context, userID string) ([]StepRecord, error)
	// MarkSynced flips the synced flag; a missing key is a no-op.
	MarkSynced(ctx context.Context, userID string, timestamp time.Time) error
	RecentLogs(ctx context.Context, userID string, limit int) ([]StepRecord, error)
	AllLogs(ctx context.Context, userID string) ([]StepRecord, error)
}

// IntervalProvider fetches raw step intervals for an inclusive date range.
// Provider unavailability is downgraded to an empty result by the adapter,
// so the method carries no error: the caller cannot distinguish "no data"
// from "source unreachable" at this boundary.
type IntervalProvider interface {
	FetchIntervals(ctx context.Context, userID string, from, to time.Time) []StepInterval
}

// RemoteStore upserts a single record into the per-user remote collection.
// The key is the decimal epoch-millis form of the record timestamp, so
// retrying the same record always targets the same remote document.
type RemoteStore interface {
	Upsert(ctx context.Context, userID, key string, doc RemoteStepLog) error
}

// EventPublisher emits change events for downstream consumers. Publishing
// is best-effort; failures never fail the originating operation.
type EventPublisher interface {
	StepsIngested(ctx context.Context, userID string, records []StepRecord) error
	StepsSynced(ctx context.Context, userID string, count int) error
}

// StartOfDay truncates an instant to midnight of its calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// RecordFromInterval maps a provider interval onto an unsynced StepRecord.
func RecordFromInterval(userID string, interval StepInterval, loc *time.Location) StepRecord {
	return StepRecord{
		Timestamp:  interval.Start,
		BucketDate: StartOfDay(interval.Start, loc),
		Steps:      interval.Count,
		UserID:     userID,
		Synced:     false,
	}
}
