package domain

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/samebrave/StepScape/internal/observability"
)

// Service bridges provider data into durable, deduplicated local records and
// pushes unsynced records to the remote store.
type Service struct {
	store    LogStore
	provider IntervalProvider
	remote   RemoteStore
	events   EventPublisher
	zone     *time.Location
	now      func() time.Time
	logger   *log.Logger
	// displayName resolves the name written onto remote documents. The
	// default mirrors the mobile client's fallback.
	displayName func(userID string) string
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger overrides the logger used to report per-record sync failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPublisher attaches a change-event publisher.
func WithPublisher(events EventPublisher) Option {
	return func(s *Service) {
		s.events = events
	}
}

// WithDisplayNameResolver overrides how remote display names are resolved.
func WithDisplayNameResolver(resolve func(userID string) string) Option {
	return func(s *Service) {
		s.displayName = resolve
	}
}

// NewService constructs a Service.
func NewService(store LogStore, provider IntervalProvider, remote RemoteStore, zone *time.Location, opts ...Option) *Service {
	s := &Service{
		store:       store,
		provider:    provider,
		remote:      remote,
		zone:        zone,
		now:         time.Now,
		logger:      log.New(log.Writer(), "[ingest] ", log.LstdFlags),
		displayName: func(string) string { return "Unknown" },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Zone returns the calendar zone all bucket dates are computed in.
func (s *Service) Zone() *time.Location {
	return s.zone
}

// IngestDay fetches the day's intervals, persists any that are new, and
// returns the live provider total for the day. When the provider yields
// nothing the total falls back to the sum already resident in the store.
func (s *Service) IngestDay(ctx context.Context, userID string, date time.Time) (int, error) {
	day := StartOfDay(date, s.zone)
	intervals := s.provider.FetchIntervals(ctx, userID, day, day)
	if len(intervals) == 0 {
		return s.store.SumForDay(ctx, userID, day)
	}

	if err := s.persistIntervals(ctx, userID, intervals); err != nil {
		return 0, err
	}

	total := 0
	for _, interval := range intervals {
		total += interval.Count
	}
	return total, nil
}

// IngestRange fetches intervals for the inclusive date range in one provider
// call, persists any that are new, and returns the fetched set so callers
// can bucket it without a second fetch.
func (s *Service) IngestRange(ctx context.Context, userID string, from, to time.Time) ([]StepInterval, error) {
	intervals := s.provider.FetchIntervals(ctx, userID, StartOfDay(from, s.zone), StartOfDay(to, s.zone))
	if len(intervals) == 0 {
		return nil, nil
	}
	if err := s.persistIntervals(ctx, userID, intervals); err != nil {
		return nil, err
	}
	return intervals, nil
}

func (s *Service) persistIntervals(ctx context.Context, userID string, intervals []StepInterval) error {
	records := make([]StepRecord, 0, len(intervals))
	for _, interval := range intervals {
		records = append(records, RecordFromInterval(userID, interval, s.zone))
	}

	inserted, err := s.store.InsertIfNew(ctx, records)
	if err != nil {
		return err
	}
	if inserted == 0 {
		return nil
	}
	observability.RecordIngested(inserted)

	if s.events != nil {
		if err := s.events.StepsIngested(ctx, userID, records); err != nil {
			s.logger.Printf("publish ingested event failed (user=%s): %v", userID, err)
		}
	}
	return nil
}

// SyncUnsynced pushes every unsynced record for the user to the remote
// store, one record at a time. Records that fail remain unsynced and are
// retried on the next pass; the return value counts only this invocation's
// confirmed successes.
func (s *Service) SyncUnsynced(ctx context.Context, userID string) (int, error) {
	unsynced, err := s.store.UnsyncedFor(ctx, userID)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, record := range unsynced {
		if err := ctx.Err(); err != nil {
			return synced, err
		}

		key := strconv.FormatInt(record.Timestamp.UnixMilli(), 10)
		doc := RemoteStepLog{
			Timestamp:   record.Timestamp.UnixMilli(),
			BucketDate:  record.BucketDate.UnixMilli(),
			Steps:       record.Steps,
			DisplayName: s.displayName(userID),
			SyncedAt:    s.now().UnixMilli(),
		}

		if err := s.remote.Upsert(ctx, userID, key, doc); err != nil {
			s.logger.Printf("remote upsert failed (user=%s, key=%s): %v", userID, key, err)
			continue
		}

		if err := s.store.MarkSynced(ctx, userID, record.Timestamp); err != nil {
			// The remote document exists; the flag flip is retried on the
			// next pass and the upsert is idempotent.
			s.logger.Printf("mark synced failed (user=%s, key=%s): %v", userID, key, err)
		}
		synced++
		observability.RecordSynced(s.now())
	}

	if synced > 0 && s.events != nil {
		if err := s.events.StepsSynced(ctx, userID, synced); err != nil {
			s.logger.Printf("publish synced event failed (user=%s): %v", userID, err)
		}
	}
	return synced, nil
}

// SaveLog stores a single record, overwriting any existing record with the
// same key. Used for explicit manual entries only.
func (s *Service) SaveLog(ctx context.Context, record StepRecord) error {
	record.BucketDate = StartOfDay(record.Timestamp, s.zone)
	return s.store.InsertOrReplace(ctx, record)
}

// TotalForDate sums the stored steps for the record's calendar day.
func (s *Service) TotalForDate(ctx context.Context, userID string, date time.Time) (int, error) {
	return s.store.SumForDay(ctx, userID, StartOfDay(date, s.zone))
}

// RecentLogs returns the newest records first, capped at limit.
func (s *Service) RecentLogs(ctx context.Context, userID string, limit int) ([]StepRecord, error) {
	return s.store.RecentLogs(ctx, userID, limit)
}

// AllLogs returns every record for the user, newest first.
func (s *Service) AllLogs(ctx context.Context, userID string) ([]StepRecord, error) {
	return s.store.AllLogs(ctx, userID)
}
