// File: internal/infra/db/postgres/job_tracker.go
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/repository"
	"architect-studio/internal/infra/metrics"
)

var _ repository.JobTracker = (*JobTracker)(nil)

// dispatchedRetention bounds how long a dispatched marker is kept.
const dispatchedRetention = 24 * time.Hour

// JobTracker keeps claims, dispatch markers and active jobs in Postgres so
// several studio processes can share one database.
type JobTracker struct {
	pool *pgxpool.Pool
	tm   *TxManager
	log  *zerolog.Logger
}

func NewJobTracker(pool *pgxpool.Pool, log *zerolog.Logger) *JobTracker {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &JobTracker{pool: pool, tm: NewTxManager(pool), log: log}
}

func (t *JobTracker) Claim(ctx context.Context, jobID, owner string, ttl time.Duration) (bool, error) {
	// The conditional upsert wins when the row is free, expired or ours.
	const q = `
INSERT INTO studio_job_claims (job_id, owner, expires_at)
VALUES ($1, $2, now() + make_interval(secs => $3))
ON CONFLICT (job_id) DO UPDATE SET
  owner = EXCLUDED.owner,
  expires_at = EXCLUDED.expires_at
WHERE studio_job_claims.owner = EXCLUDED.owner
   OR studio_job_claims.expires_at <= now();`

	n, err := execCount(ctx, t.pool, q, jobID, owner, ttl.Seconds())
	if err != nil {
		metrics.IncTrackerRequest("postgres", "claim", "error")
		return false, err
	}
	won := n == 1
	if won {
		metrics.IncTrackerRequest("postgres", "claim", "won")
	} else {
		metrics.IncTrackerRequest("postgres", "claim", "held")
	}
	return won, nil
}

func (t *JobTracker) Release(ctx context.Context, jobID, owner string) error {
	_, err := t.pool.Exec(ctx, `DELETE FROM studio_job_claims WHERE job_id = $1 AND owner = $2;`, jobID, owner)
	if err != nil {
		metrics.IncTrackerRequest("postgres", "release", "error")
		return err
	}
	metrics.IncTrackerRequest("postgres", "release", "ok")
	return nil
}

func (t *JobTracker) MarkDispatched(ctx context.Context, jobID string) (bool, error) {
	var first bool
	err := t.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM studio_jobs_dispatched WHERE dispatched_at < now() - make_interval(secs => $1);`,
			dispatchedRetention.Seconds()); err != nil {
			return err
		}
		n, err := execCount(ctx, tx,
			`INSERT INTO studio_jobs_dispatched (job_id) VALUES ($1) ON CONFLICT (job_id) DO NOTHING;`, jobID)
		if err != nil {
			return err
		}
		first = n == 1
		return nil
	})
	if err != nil {
		metrics.IncTrackerRequest("postgres", "mark_dispatched", "error")
		return false, err
	}
	if first {
		metrics.IncTrackerRequest("postgres", "mark_dispatched", "first")
	} else {
		metrics.IncTrackerRequest("postgres", "mark_dispatched", "duplicate")
	}
	return first, nil
}

func (t *JobTracker) SaveActive(ctx context.Context, job model.TrackedJob) error {
	const q = `
INSERT INTO studio_active_jobs (workspace_key, job_id, job_type, project_id, room_id, model, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (workspace_key) DO UPDATE SET
  job_id = EXCLUDED.job_id,
  job_type = EXCLUDED.job_type,
  model = EXCLUDED.model,
  started_at = EXCLUDED.started_at;`

	started := job.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := t.pool.Exec(ctx, q,
		job.Workspace.Key(), job.ID, string(job.Type), job.Workspace.ProjectID, job.Workspace.RoomID, job.Model, started)
	if err != nil {
		metrics.IncTrackerRequest("postgres", "save_active", "error")
		return err
	}
	metrics.IncTrackerRequest("postgres", "save_active", "ok")
	return nil
}

// DeleteActive leaves the row alone when the workspace already tracks a
// newer job.
func (t *JobTracker) DeleteActive(ctx context.Context, ref model.WorkspaceRef, jobID string) error {
	_, err := t.pool.Exec(ctx, `DELETE FROM studio_active_jobs WHERE workspace_key = $1 AND job_id = $2;`, ref.Key(), jobID)
	if err != nil {
		metrics.IncTrackerRequest("postgres", "delete_active", "error")
		return err
	}
	metrics.IncTrackerRequest("postgres", "delete_active", "ok")
	return nil
}

func (t *JobTracker) ListActive(ctx context.Context) ([]model.TrackedJob, error) {
	rows, err := t.pool.Query(ctx, `
SELECT job_id, job_type, project_id, room_id, model, started_at
FROM studio_active_jobs
ORDER BY workspace_key;`)
	if err != nil {
		metrics.IncTrackerRequest("postgres", "list_active", "error")
		return nil, err
	}
	defer rows.Close()

	var out []model.TrackedJob
	for rows.Next() {
		var j model.TrackedJob
		var jobType string
		if err := rows.Scan(&j.ID, &jobType, &j.Workspace.ProjectID, &j.Workspace.RoomID, &j.Model, &j.StartedAt); err != nil {
			metrics.IncTrackerRequest("postgres", "list_active", "error")
			return nil, err
		}
		j.Type = model.JobType(jobType)
		if !j.Type.Valid() {
			t.log.Warn().Str("job_id", j.ID).Str("type", jobType).Msg("skipping active job with unknown type")
			continue
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		metrics.IncTrackerRequest("postgres", "list_active", "error")
		return nil, err
	}
	metrics.IncTrackerRequest("postgres", "list_active", "ok")
	return out, nil
}
