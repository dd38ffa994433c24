package redis

import (
	"context"
	"encoding/json"
	"time"

	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/repository"
	"architect-studio/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

var _ repository.JobTracker = (*JobTracker)(nil)

// dispatchedTTL bounds how long a reconciled job id is remembered.
const dispatchedTTL = 24 * time.Hour

// Removes the workspace's active entry only if it still names the job.
var luaDeleteActive = redis.NewScript(`
local v = redis.call("HGET", KEYS[1], ARGV[1])
if v and cjson.decode(v).jobId == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0`)

// JobTracker shares job claims and the active-job table between processes.
// Keys:
//
//	<prefix>:claim:<jobID>       owner, with TTL
//	<prefix>:dispatched:<jobID>  set once on reconciliation
//	<prefix>:active              hash of workspace key -> TrackedJob JSON
type JobTracker struct {
	client *Client
	prefix string
	log    *zerolog.Logger
}

func NewJobTracker(client *Client, prefix string, log *zerolog.Logger) *JobTracker {
	if prefix == "" {
		prefix = "studio"
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &JobTracker{client: client, prefix: prefix, log: log}
}

func (t *JobTracker) claimKey(jobID string) string      { return t.prefix + ":claim:" + jobID }
func (t *JobTracker) dispatchedKey(jobID string) string { return t.prefix + ":dispatched:" + jobID }
func (t *JobTracker) activeKey() string                 { return t.prefix + ":active" }

func (t *JobTracker) Claim(ctx context.Context, jobID, owner string, ttl time.Duration) (bool, error) {
	ok, err := t.client.claim(ctx, t.claimKey(jobID), owner, ttl)
	switch {
	case err != nil:
		metrics.IncTrackerRequest("redis", "claim", "error")
		return false, err
	case ok:
		metrics.IncTrackerRequest("redis", "claim", "won")
	default:
		metrics.IncTrackerRequest("redis", "claim", "held")
	}
	return ok, nil
}

func (t *JobTracker) Release(ctx context.Context, jobID, owner string) error {
	if err := t.client.unlock(ctx, t.claimKey(jobID), owner); err != nil {
		metrics.IncTrackerRequest("redis", "release", "error")
		return err
	}
	metrics.IncTrackerRequest("redis", "release", "ok")
	return nil
}

func (t *JobTracker) MarkDispatched(ctx context.Context, jobID string) (bool, error) {
	first, err := t.client.SetNX(ctx, t.dispatchedKey(jobID), time.Now().UTC().Format(time.RFC3339), dispatchedTTL)
	if err != nil {
		metrics.IncTrackerRequest("redis", "mark_dispatched", "error")
		return false, err
	}
	if first {
		metrics.IncTrackerRequest("redis", "mark_dispatched", "first")
	} else {
		metrics.IncTrackerRequest("redis", "mark_dispatched", "duplicate")
	}
	return first, nil
}

func (t *JobTracker) SaveActive(ctx context.Context, job model.TrackedJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := t.client.HSet(ctx, t.activeKey(), job.Workspace.Key(), data); err != nil {
		metrics.IncTrackerRequest("redis", "save_active", "error")
		return err
	}
	metrics.IncTrackerRequest("redis", "save_active", "ok")
	return nil
}

func (t *JobTracker) DeleteActive(ctx context.Context, ref model.WorkspaceRef, jobID string) error {
	_, err := luaDeleteActive.Run(ctx, t.client.cli, []string{t.activeKey()}, ref.Key(), jobID).Result()
	if err != nil && err != redis.Nil {
		metrics.IncTrackerRequest("redis", "delete_active", "error")
		return err
	}
	metrics.IncTrackerRequest("redis", "delete_active", "ok")
	return nil
}

func (t *JobTracker) ListActive(ctx context.Context) ([]model.TrackedJob, error) {
	all, err := t.client.HGetAll(ctx, t.activeKey())
	if err != nil {
		metrics.IncTrackerRequest("redis", "list_active", "error")
		return nil, err
	}
	metrics.IncTrackerRequest("redis", "list_active", "ok")
	out := make([]model.TrackedJob, 0, len(all))
	for key, raw := range all {
		var job model.TrackedJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			t.log.Warn().Err(err).Str("workspace", key).Msg("skipping unreadable active job")
			continue
		}
		out = append(out, job)
	}
	return out, nil
}
