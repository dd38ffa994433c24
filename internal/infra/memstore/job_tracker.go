// Package memstore keeps job tracking state in process memory. It is the
// tracker used when no Redis URL is configured.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/repository"
	"architect-studio/internal/infra/metrics"
)

var _ repository.JobTracker = (*JobTracker)(nil)

type claim struct {
	owner   string
	expires time.Time
}

type JobTracker struct {
	mu         sync.Mutex
	claims     map[string]claim
	dispatched map[string]struct{}
	active     map[string]model.TrackedJob
	now        func() time.Time
}

func NewJobTracker() *JobTracker {
	return &JobTracker{
		claims:     make(map[string]claim),
		dispatched: make(map[string]struct{}),
		active:     make(map[string]model.TrackedJob),
		now:        time.Now,
	}
}

func (t *JobTracker) Claim(_ context.Context, jobID, owner string, ttl time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if c, ok := t.claims[jobID]; ok && c.owner != owner && now.Before(c.expires) {
		metrics.IncTrackerRequest("memory", "claim", "held")
		return false, nil
	}
	t.claims[jobID] = claim{owner: owner, expires: now.Add(ttl)}
	metrics.IncTrackerRequest("memory", "claim", "won")
	return true, nil
}

func (t *JobTracker) Release(_ context.Context, jobID, owner string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.claims[jobID]; ok && c.owner == owner {
		delete(t.claims, jobID)
	}
	metrics.IncTrackerRequest("memory", "release", "ok")
	return nil
}

func (t *JobTracker) MarkDispatched(_ context.Context, jobID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.dispatched[jobID]; ok {
		metrics.IncTrackerRequest("memory", "mark_dispatched", "duplicate")
		return false, nil
	}
	t.dispatched[jobID] = struct{}{}
	metrics.IncTrackerRequest("memory", "mark_dispatched", "first")
	return true, nil
}

func (t *JobTracker) SaveActive(_ context.Context, job model.TrackedJob) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[job.Workspace.Key()] = job
	return nil
}

// DeleteActive is a no-op when the workspace already tracks a newer job.
func (t *JobTracker) DeleteActive(_ context.Context, ref model.WorkspaceRef, jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.active[ref.Key()]; ok && j.ID == jobID {
		delete(t.active, ref.Key())
	}
	return nil
}

func (t *JobTracker) ListActive(_ context.Context) ([]model.TrackedJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.TrackedJob, 0, len(t.active))
	for _, j := range t.active {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Workspace.Key() < out[k].Workspace.Key() })
	return out, nil
}
