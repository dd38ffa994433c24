package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Connect returns a live pool for dsn or an error after a 5s connect
// timeout.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("database url is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return pgxpool.Connect(ctx, dsn)
}

const schema = `
CREATE TABLE IF NOT EXISTS studio_job_claims (
  job_id     TEXT PRIMARY KEY,
  owner      TEXT NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS studio_jobs_dispatched (
  job_id        TEXT PRIMARY KEY,
  dispatched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS studio_active_jobs (
  workspace_key TEXT PRIMARY KEY,
  job_id        TEXT NOT NULL,
  job_type      TEXT NOT NULL,
  project_id    TEXT NOT NULL,
  room_id       TEXT NOT NULL DEFAULT '',
  model         TEXT NOT NULL DEFAULT '',
  started_at    TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the tracker tables when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
