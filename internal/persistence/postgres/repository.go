// Package postgres provides the pgx-backed local log store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samebrave/StepScape/internal/domain"
)

// Repository persists step records in Postgres and notifies watchers of
// per-user log changes.
type Repository struct {
	pool   *pgxpool.Pool
	logger *log.Logger

	mu       sync.Mutex
	watchers map[string][]*watcher
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:     pool,
		logger:   log.New(log.Writer(), "[store] ", log.LstdFlags),
		watchers: make(map[string][]*watcher),
	}
}

const selectColumns = `ts, bucket_date, steps, user_id, synced`

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStorage, op, err)
}

// InsertIfNew inserts each record unless its (user, timestamp) key already
// exists, and reports how many rows were actually stored. Existing rows are
// left untouched, so repeated calls with overlapping batches never
// double-count an interval.
func (r *Repository) InsertIfNew(ctx context.Context, records []domain.StepRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, storageErr("begin insert-if-new", err)
	}
	defer tx.Rollback(ctx)

	const stmt = `INSERT INTO step_logs (user_id, ts, bucket_date, steps, synced)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (user_id, ts) DO NOTHING`

	inserted := 0
	for _, record := range records {
		tag, err := tx.Exec(ctx, stmt,
			record.UserID,
			record.Timestamp,
			record.BucketDate,
			record.Steps,
			record.Synced,
		)
		if err != nil {
			return 0, storageErr("insert step log", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, storageErr("commit insert-if-new", err)
	}

	if inserted > 0 {
		for _, userID := range distinctUsers(records) {
			r.notify(ctx, userID)
		}
	}
	return inserted, nil
}

// InsertOrReplace unconditionally upserts a single record by key.
func (r *Repository) InsertOrReplace(ctx context.Context, record domain.StepRecord) error {
	const stmt = `INSERT INTO step_logs (user_id, ts, bucket_date, steps, synced)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (user_id, ts) DO UPDATE
        SET bucket_date = EXCLUDED.bucket_date, steps = EXCLUDED.steps, synced = EXCLUDED.synced`

	if _, err := r.pool.Exec(ctx, stmt,
		record.UserID,
		record.Timestamp,
		record.BucketDate,
		record.Steps,
		record.Synced,
	); err != nil {
		return storageErr("upsert step log", err)
	}

	r.notify(ctx, record.UserID)
	return nil
}

// QueryByDay returns the day's records ordered by timestamp ascending.
func (r *Repository) QueryByDay(ctx context.Context, userID string, bucketDate time.Time) ([]domain.StepRecord, error) {
	const query = `SELECT ` + selectColumns + ` FROM step_logs
        WHERE user_id=$1 AND bucket_date=$2 ORDER BY ts ASC`
	return r.queryRecords(ctx, "query by day", query, userID, bucketDate)
}

// QueryRange returns records with bucket dates in the inclusive range,
// ordered by timestamp ascending.
func (r *Repository) QueryRange(ctx context.Context, userID string, startBucket, endBucket time.Time) ([]domain.StepRecord, error) {
	const query = `SELECT ` + selectColumns + ` FROM step_logs
        WHERE user_id=$1 AND bucket_date >= $2 AND bucket_date <= $3 ORDER BY ts ASC`
	return r.queryRecords(ctx, "query range", query, userID, startBucket, endBucket)
}

// SumForDay returns the stored total for the day, 0 when no rows match.
func (r *Repository) SumForDay(ctx context.Context, userID string, bucketDate time.Time) (int, error) {
	const query = `SELECT COALESCE(SUM(steps), 0) FROM step_logs
        WHERE user_id=$1 AND bucket_date=$2`

	var total int
	if err := r.pool.QueryRow(ctx, query, userID, bucketDate).Scan(&total); err != nil {
		return 0, storageErr("sum for day", err)
	}
	return total, nil
}

// UnsyncedFor returns every record not yet confirmed upserted remotely.
func (r *Repository) UnsyncedFor(ctx context.Context, userID string) ([]domain.StepRecord, error) {
	const query = `SELECT ` + selectColumns + ` FROM step_logs
        WHERE user_id=$1 AND NOT synced ORDER BY ts ASC`
	return r.queryRecords(ctx, "query unsynced", query, userID)
}

// MarkSynced flips the synced flag for the record. A missing key is a
// no-op; the flag is never reset to false.
func (r *Repository) MarkSynced(ctx context.Context, userID string, timestamp time.Time) error {
	const stmt = `UPDATE step_logs SET synced = TRUE WHERE user_id=$1 AND ts=$2`
	if _, err := r.pool.Exec(ctx, stmt, userID, timestamp); err != nil {
		return storageErr("mark synced", err)
	}
	r.notify(ctx, userID)
	return nil
}

// RecentLogs returns the newest records first, capped at limit.
func (r *Repository) RecentLogs(ctx context.Context, userID string, limit int) ([]domain.StepRecord, error) {
	const query = `SELECT ` + selectColumns + ` FROM step_logs
        WHERE user_id=$1 ORDER BY ts DESC LIMIT $2`
	return r.queryRecords(ctx, "query recent", query, userID, limit)
}

// AllLogs returns every record for the user, newest first.
func (r *Repository) AllLogs(ctx context.Context, userID string) ([]domain.StepRecord, error) {
	const query = `SELECT ` + selectColumns + ` FROM step_logs
        WHERE user_id=$1 ORDER BY ts DESC`
	return r.queryRecords(ctx, "query all", query, userID)
}

// UsersWithUnsynced lists users that currently hold unsynced records; the
// background sync worker drives its passes off this.
func (r *Repository) UsersWithUnsynced(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT user_id FROM step_logs WHERE NOT synced`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, storageErr("query unsynced users", err)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, storageErr("scan unsynced user", err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate unsynced users", err)
	}
	return users, nil
}

func (r *Repository) queryRecords(ctx context.Context, op, query string, args ...interface{}) ([]domain.StepRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	records := make([]domain.StepRecord, 0)
	for rows.Next() {
		var record domain.StepRecord
		if err := rows.Scan(&record.Timestamp, &record.BucketDate, &record.Steps, &record.UserID, &record.Synced); err != nil {
			return nil, storageErr(op, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return records, nil
}

func distinctUsers(records []domain.StepRecord) []string {
	seen := make(map[string]struct{}, 1)
	users := make([]string, 0, 1)
	for _, record := range records {
		if _, ok := seen[record.UserID]; ok {
			continue
		}
		seen[record.UserID] = struct{}{}
		users = append(users, record.UserID)
	}
	return users
}

var errNotFound = errors.New("step log not found")

// Get fetches a single record by key, mainly for tests and tooling.
func (r *Repository) Get(ctx context.Context, userID string, timestamp time.Time) (*domain.StepRecord, error) {
	const query = `SELECT ` + selectColumns + ` FROM step_logs WHERE user_id=$1 AND ts=$2`

	var record domain.StepRecord
	err := r.pool.QueryRow(ctx, query, userID, timestamp).
		Scan(&record.Timestamp, &record.BucketDate, &record.Steps, &record.UserID, &record.Synced)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, storageErr("get step log", err)
	}
	return &record, nil
}

// IsNotFound reports whether err marks an absent record.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}
