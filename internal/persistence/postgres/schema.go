package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; the service applies it on startup rather than
// shipping a separate migration tool.
const schema = `
CREATE TABLE IF NOT EXISTS step_logs (
    user_id     TEXT        NOT NULL,
    ts          TIMESTAMPTZ NOT NULL,
    bucket_date TIMESTAMPTZ NOT NULL,
    steps       INTEGER     NOT NULL CHECK (steps >= 0),
    synced      BOOLEAN     NOT NULL DEFAULT FALSE,
    PRIMARY KEY (user_id, ts)
);

CREATE INDEX IF NOT EXISTS step_logs_bucket_idx ON step_logs (user_id, bucket_date);
CREATE INDEX IF NOT EXISTS step_logs_unsynced_idx ON step_logs (user_id) WHERE NOT synced;
`

// Migrate creates the step_logs table and its indexes if absent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return storageErr("apply schema", err)
	}
	return nil
}
