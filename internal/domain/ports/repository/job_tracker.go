package repository

import (
	"context"
	"time"

	"architect-studio/internal/domain/model"
)

// JobTracker records which jobs are being observed so that a job id has at
// most one active poller, a terminal snapshot is reconciled once, and
// observation can resume after a restart.
type JobTracker interface {
	// Claim takes the observer slot for jobID. It returns false when another
	// owner holds a live claim.
	Claim(ctx context.Context, jobID, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, jobID, owner string) error

	// MarkDispatched returns true only for the first caller per job id.
	MarkDispatched(ctx context.Context, jobID string) (bool, error)

	SaveActive(ctx context.Context, job model.TrackedJob) error
	DeleteActive(ctx context.Context, ref model.WorkspaceRef, jobID string) error
	ListActive(ctx context.Context) ([]model.TrackedJob, error)
}
