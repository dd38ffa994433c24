package usecase

import (
	"context"
	"sync"
	"time"

	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/adapter"
	"architect-studio/internal/infra/metrics"
	"architect-studio/internal/infra/scheduler"

	"github.com/rs/zerolog"
)

const DefaultPollInterval = 3 * time.Second

// SnapshotFunc receives every job snapshot the poller fetches, in order.
type SnapshotFunc func(job *model.Job)

// JobPoller repeatedly fetches one job's status until it is terminal. It
// knows nothing about what the job means; the owner decides that in its
// SnapshotFunc.
type JobPoller struct {
	jobs     adapter.JobAPI
	interval time.Duration
	log      *zerolog.Logger

	mu     sync.Mutex
	gen    uint64
	task   *scheduler.Task
	jobID  string
	latest *model.Job
}

func NewJobPoller(jobs adapter.JobAPI, interval time.Duration, log *zerolog.Logger) *JobPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &JobPoller{jobs: jobs, interval: interval, log: log}
}

// Start clears any running timer, fetches jobID once immediately and then
// on every interval. An empty jobID just stops the poller.
func (p *JobPoller) Start(ctx context.Context, jobID string, onSnapshot SnapshotFunc) {
	p.Stop()
	if jobID == "" {
		return
	}

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.jobID = jobID
	p.latest = nil
	task := scheduler.NewTask("poll:"+jobID, p.interval, func(ctx context.Context) bool {
		return p.tick(ctx, gen, jobID, onSnapshot)
	}, scheduler.WithImmediate(), scheduler.WithLogger(p.log))
	p.task = task
	p.mu.Unlock()

	metrics.PollerStarted()
	task.Start(ctx)
	done := task.Done()
	go func() {
		<-done
		metrics.PollerStopped()
	}()
	p.log.Debug().Str("job_id", jobID).Dur("interval", p.interval).Msg("polling started")
}

func (p *JobPoller) tick(ctx context.Context, gen uint64, jobID string, onSnapshot SnapshotFunc) bool {
	job, err := p.jobs.GetJob(ctx, jobID)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		// No retry: a transport failure just ends observation.
		metrics.IncPoll("transport_error")
		p.log.Warn().Err(err).Str("job_id", jobID).Msg("job status fetch failed; polling stopped")
		return false
	}
	if job == nil {
		metrics.IncPoll("transport_error")
		p.log.Warn().Str("job_id", jobID).Msg("empty job snapshot; polling stopped")
		return false
	}
	if job.ID == "" {
		job.ID = jobID
	}
	metrics.IncPoll(string(job.Status))

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return false
	}
	p.latest = job
	p.mu.Unlock()

	if onSnapshot != nil {
		onSnapshot(job)
	}
	if job.Terminal() {
		p.log.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("polling finished")
		return false
	}
	return true
}

// Stop halts polling. No SnapshotFunc call is in progress or will start
// once Stop returns. It must not be called from inside the SnapshotFunc.
func (p *JobPoller) Stop() {
	p.mu.Lock()
	task := p.task
	p.task = nil
	p.gen++
	p.mu.Unlock()
	if task != nil {
		task.Stop()
	}
}

// Latest returns the most recent snapshot of the current job, or nil.
func (p *JobPoller) Latest() *model.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return nil
	}
	cp := *p.latest
	return &cp
}

func (p *JobPoller) JobID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobID
}

// Active reports whether status requests are still being issued.
func (p *JobPoller) Active() bool {
	p.mu.Lock()
	task := p.task
	p.mu.Unlock()
	return task != nil && task.Running()
}

// Done is closed when the current polling run ends.
func (p *JobPoller) Done() <-chan struct{} {
	p.mu.Lock()
	task := p.task
	p.mu.Unlock()
	if task == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return task.Done()
}
