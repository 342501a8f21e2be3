package domain

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2025, time.November, 3, 9, 30, 0, 0, time.UTC)

func testService(store *fakeStore, provider *fakeProvider, remote *fakeRemote, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return testDay })}, opts...)
	return NewService(store, provider, remote, time.UTC, opts...)
}

func TestIngestDayIsIdempotent(t *testing.T) {
	provider := &fakeProvider{intervals: []StepInterval{
		{Start: testDay.Add(-time.Hour), End: testDay.Add(-55 * time.Minute), Count: 50},
		{Start: testDay.Add(-55 * time.Minute), End: testDay.Add(-50 * time.Minute), Count: 30},
	}}
	store := newFakeStore()
	service := testService(store, provider, &fakeRemote{})

	total, err := service.IngestDay(context.Background(), "user-1", testDay)
	require.NoError(t, err)
	require.Equal(t, 80, total)
	require.Len(t, store.records, 2)

	// Re-ingesting identical provider output must not duplicate records.
	total, err = service.IngestDay(context.Background(), "user-1", testDay)
	require.NoError(t, err)
	require.Equal(t, 80, total)
	require.Len(t, store.records, 2)
	require.Equal(t, 2, provider.calls)
}

func TestIngestDayMapsIntervalsToRecords(t *testing.T) {
	start := time.Date(2025, time.November, 3, 14, 20, 0, 0, time.UTC)
	provider := &fakeProvider{intervals: []StepInterval{
		{Start: start, End: start.Add(5 * time.Minute), Count: 120},
	}}
	store := newFakeStore()
	service := testService(store, provider, &fakeRemote{})

	_, err := service.IngestDay(context.Background(), "user-1", testDay)
	require.NoError(t, err)

	records := store.sortedRecords()
	require.Len(t, records, 1)
	require.Equal(t, start, records[0].Timestamp)
	require.Equal(t, time.Date(2025, time.November, 3, 0, 0, 0, 0, time.UTC), records[0].BucketDate)
	require.Equal(t, 120, records[0].Steps)
	require.Equal(t, "user-1", records[0].UserID)
	require.False(t, records[0].Synced)
}

func TestIngestDayFallsBackToStoreWhenProviderEmpty(t *testing.T) {
	store := newFakeStore()
	store.seed(StepRecord{
		Timestamp:  testDay.Add(-2 * time.Hour),
		BucketDate: StartOfDay(testDay, time.UTC),
		Steps:      1234,
		UserID:     "user-1",
	})
	service := testService(store, &fakeProvider{}, &fakeRemote{})

	total, err := service.IngestDay(context.Background(), "user-1", testDay)
	require.NoError(t, err)
	require.Equal(t, 1234, total)
	require.Zero(t, store.insertBatches, "nothing to persist when the provider yields no data")
}

func TestIngestDayPropagatesStorageError(t *testing.T) {
	provider := &fakeProvider{intervals: []StepInterval{
		{Start: testDay, End: testDay.Add(time.Minute), Count: 10},
	}}
	store := newFakeStore()
	store.failInsert = errors.New("disk on fire")
	service := testService(store, provider, &fakeRemote{})

	_, err := service.IngestDay(context.Background(), "user-1", testDay)
	require.ErrorIs(t, err, store.failInsert)
}

func TestIngestRangeReturnsFetchedIntervals(t *testing.T) {
	provider := &fakeProvider{intervals: []StepInterval{
		{Start: testDay.AddDate(0, 0, -3), End: testDay.AddDate(0, 0, -3).Add(time.Minute), Count: 7},
		{Start: testDay, End: testDay.Add(time.Minute), Count: 9},
	}}
	store := newFakeStore()
	service := testService(store, provider, &fakeRemote{})

	from := testDay.AddDate(0, 0, -6)
	intervals, err := service.IngestRange(context.Background(), "user-1", from, testDay)
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	require.Equal(t, 1, provider.calls, "one fetch per window")
	require.Len(t, store.records, 2, "range browsing backfills the store")
	require.Equal(t, StartOfDay(from, time.UTC), provider.lastFrom)
	require.Equal(t, StartOfDay(testDay, time.UTC), provider.lastTo)
}

func TestSyncUnsyncedPartialFailure(t *testing.T) {
	store := newFakeStore()
	var timestamps []time.Time
	for i := 0; i < 3; i++ {
		ts := testDay.Add(time.Duration(i) * time.Minute)
		timestamps = append(timestamps, ts)
		store.seed(StepRecord{
			Timestamp:  ts,
			BucketDate: StartOfDay(ts, time.UTC),
			Steps:      10 * (i + 1),
			UserID:     "user-1",
		})
	}

	remote := &fakeRemote{failKeys: map[string]bool{
		millisKey(timestamps[1]): true,
	}}
	service := testService(store, &fakeProvider{}, remote)

	synced, err := service.SyncUnsynced(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 2, synced)

	unsynced, err := store.UnsyncedFor(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	require.Equal(t, timestamps[1], unsynced[0].Timestamp)

	// The retry pass attempts only the record that failed.
	remote.failKeys = nil
	remote.upserts = nil
	synced, err = service.SyncUnsynced(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, synced)
	require.Equal(t, []string{millisKey(timestamps[1])}, remote.upserts)
}

func TestSyncUnsyncedSecondRunSyncsNothing(t *testing.T) {
	store := newFakeStore()
	store.seed(StepRecord{
		Timestamp:  testDay,
		BucketDate: StartOfDay(testDay, time.UTC),
		Steps:      42,
		UserID:     "user-1",
	})
	remote := &fakeRemote{}
	service := testService(store, &fakeProvider{}, remote)

	synced, err := service.SyncUnsynced(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, synced)

	synced, err = service.SyncUnsynced(context.Background(), "user-1")
	require.NoError(t, err)
	require.Zero(t, synced)
	require.Len(t, remote.upserts, 1, "already-synced records are never re-sent")
}

func TestSyncUnsyncedDocumentShape(t *testing.T) {
	store := newFakeStore()
	ts := time.Date(2025, time.November, 3, 7, 15, 0, 0, time.UTC)
	store.seed(StepRecord{
		Timestamp:  ts,
		BucketDate: StartOfDay(ts, time.UTC),
		Steps:      500,
		UserID:     "user-1",
	})
	remote := &fakeRemote{}
	service := testService(store, &fakeProvider{}, remote,
		WithDisplayNameResolver(func(string) string { return "Samet" }))

	_, err := service.SyncUnsynced(context.Background(), "user-1")
	require.NoError(t, err)

	require.Equal(t, []string{millisKey(ts)}, remote.upserts)
	doc := remote.docs[millisKey(ts)]
	require.Equal(t, ts.UnixMilli(), doc.Timestamp)
	require.Equal(t, StartOfDay(ts, time.UTC).UnixMilli(), doc.BucketDate)
	require.Equal(t, 500, doc.Steps)
	require.Equal(t, "Samet", doc.DisplayName)
	require.Equal(t, testDay.UnixMilli(), doc.SyncedAt)
}

func TestSyncUnsyncedStopsOnCancelledContext(t *testing.T) {
	store := newFakeStore()
	store.seed(StepRecord{
		Timestamp:  testDay,
		BucketDate: StartOfDay(testDay, time.UTC),
		Steps:      1,
		UserID:     "user-1",
	})
	service := testService(store, &fakeProvider{}, &fakeRemote{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	synced, err := service.SyncUnsynced(ctx, "user-1")
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, synced)
}

func TestSaveLogDerivesBucketDate(t *testing.T) {
	store := newFakeStore()
	service := testService(store, &fakeProvider{}, &fakeRemote{})

	ts := time.Date(2025, time.November, 3, 22, 45, 0, 0, time.UTC)
	require.NoError(t, service.SaveLog(context.Background(), StepRecord{
		Timestamp: ts,
		Steps:     300,
		UserID:    "user-1",
	}))

	records := store.sortedRecords()
	require.Len(t, records, 1)
	require.Equal(t, time.Date(2025, time.November, 3, 0, 0, 0, 0, time.UTC), records[0].BucketDate)
}

func TestIngestPublishesEvents(t *testing.T) {
	provider := &fakeProvider{intervals: []StepInterval{
		{Start: testDay, End: testDay.Add(time.Minute), Count: 10},
	}}
	store := newFakeStore()
	publisher := &fakePublisher{}
	service := testService(store, provider, &fakeRemote{}, WithPublisher(publisher))

	_, err := service.IngestDay(context.Background(), "user-1", testDay)
	require.NoError(t, err)
	require.Equal(t, 1, publisher.ingested)

	_, err = service.SyncUnsynced(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, publisher.synced)
}

func TestIngestPublishesNothingWhenNoNewRecordsStored(t *testing.T) {
	provider := &fakeProvider{intervals: []StepInterval{
		{Start: testDay, End: testDay.Add(time.Minute), Count: 10},
	}}
	store := newFakeStore()
	publisher := &fakePublisher{}
	service := testService(store, provider, &fakeRemote{}, WithPublisher(publisher))

	_, err := service.IngestDay(context.Background(), "user-1", testDay)
	require.NoError(t, err)
	require.Equal(t, 1, publisher.ingested)

	// Re-ingesting identical provider output stores nothing, so no event.
	_, err = service.IngestDay(context.Background(), "user-1", testDay)
	require.NoError(t, err)
	require.Equal(t, 1, publisher.ingested)
}

func TestPublishFailureDoesNotFailIngest(t *testing.T) {
	provider := &fakeProvider{intervals: []StepInterval{
		{Start: testDay, End: testDay.Add(time.Minute), Count: 10},
	}}
	publisher := &fakePublisher{err: errors.New("broker down")}
	service := testService(newFakeStore(), provider, &fakeRemote{}, WithPublisher(publisher))

	total, err := service.IngestDay(context.Background(), "user-1", testDay)
	require.NoError(t, err)
	require.Equal(t, 10, total)
}

func millisKey(ts time.Time) string {
	return strconv.FormatInt(ts.UnixMilli(), 10)
}

type fakeProvider struct {
	intervals []StepInterval
	calls     int
	lastFrom  time.Time
	lastTo    time.Time
}

func (p *fakeProvider) FetchIntervals(_ context.Context, _ string, from, to time.Time) []StepInterval {
	p.calls++
	p.lastFrom = from
	p.lastTo = to
	return p.intervals
}

type fakeRemote struct {
	failKeys map[string]bool
	upserts  []string
	docs     map[string]RemoteStepLog
}

func (r *fakeRemote) Upsert(_ context.Context, _ string, key string, doc RemoteStepLog) error {
	if r.failKeys[key] {
		return ErrRemoteSync
	}
	if r.docs == nil {
		r.docs = make(map[string]RemoteStepLog)
	}
	r.upserts = append(r.upserts, key)
	r.docs[key] = doc
	return nil
}

type fakePublisher struct {
	ingested int
	synced   int
	err      error
}

func (p *fakePublisher) StepsIngested(context.Context, string, []StepRecord) error {
	p.ingested++
	return p.err
}

func (p *fakePublisher) StepsSynced(context.Context, string, int) error {
	p.synced++
	return p.err
}

type fakeStore struct {
	records       map[string]StepRecord
	insertBatches int
	failInsert    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]StepRecord)}
}

func (s *fakeStore) key(userID string, ts time.Time) string {
	return userID + "|" + millisKey(ts)
}

func (s *fakeStore) seed(record StepRecord) {
	s.records[s.key(record.UserID, record.Timestamp)] = record
}

func (s *fakeStore) sortedRecords() []StepRecord {
	out := make([]StepRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *fakeStore) InsertIfNew(_ context.Context, records []StepRecord) (int, error) {
	if s.failInsert != nil {
		return 0, s.failInsert
	}
	s.insertBatches++
	inserted := 0
	for _, record := range records {
		key := s.key(record.UserID, record.Timestamp)
		if _, exists := s.records[key]; exists {
			continue
		}
		s.records[key] = record
		inserted++
	}
	return inserted, nil
}

func (s *fakeStore) InsertOrReplace(_ context.Context, record StepRecord) error {
	if s.failInsert != nil {
		return s.failInsert
	}
	s.records[s.key(record.UserID, record.Timestamp)] = record
	return nil
}

func (s *fakeStore) QueryByDay(_ context.Context, userID string, bucketDate time.Time) ([]StepRecord, error) {
	out := make([]StepRecord, 0)
	for _, record := range s.sortedRecords() {
		if record.UserID == userID && record.BucketDate.Equal(bucketDate) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *fakeStore) QueryRange(_ context.Context, userID string, startBucket, endBucket time.Time) ([]StepRecord, error) {
	out := make([]StepRecord, 0)
	for _, record := range s.sortedRecords() {
		if record.UserID != userID {
			continue
		}
		if record.BucketDate.Before(startBucket) || record.BucketDate.After(endBucket) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *fakeStore) SumForDay(_ context.Context, userID string, bucketDate time.Time) (int, error) {
	total := 0
	for _, record := range s.records {
		if record.UserID == userID && record.BucketDate.Equal(bucketDate) {
			total += record.Steps
		}
	}
	return total, nil
}

func (s *fakeStore) UnsyncedFor(_ context.Context, userID string) ([]StepRecord, error) {
	out := make([]StepRecord, 0)
	for _, record := range s.sortedRecords() {
		if record.UserID == userID && !record.Synced {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkSynced(_ context.Context, userID string, timestamp time.Time) error {
	key := s.key(userID, timestamp)
	record, ok := s.records[key]
	if !ok {
		return nil
	}
	record.Synced = true
	s.records[key] = record
	return nil
}

func (s *fakeStore) RecentLogs(_ context.Context, userID string, limit int) ([]StepRecord, error) {
	all, _ := s.AllLogs(context.Background(), userID)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *fakeStore) AllLogs(_ context.Context, userID string) ([]StepRecord, error) {
	sorted := s.sortedRecords()
	out := make([]StepRecord, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].UserID == userID {
			out = append(out, sorted[i])
		}
	}
	return out, nil
}
