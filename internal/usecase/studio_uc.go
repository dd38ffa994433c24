// File: internal/usecase/studio_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"architect-studio/internal/domain"
	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/adapter"
	"architect-studio/internal/domain/ports/repository"
	"architect-studio/internal/infra/logging"
	"architect-studio/internal/infra/metrics"
	"architect-studio/internal/infra/scheduler"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ StudioUseCase = (*studioUC)(nil)

type StudioUseCase interface {
	// Workspace returns the state for ref, creating it on first use.
	Workspace(ref model.WorkspaceRef) *model.Workspace
	Workspaces() []*model.Workspace

	// Generate submits a job and starts observing it. It returns the job id.
	Generate(ctx context.Context, p GenerateParams) (string, error)
	// Track starts observing a job submitted elsewhere.
	Track(ctx context.Context, job model.TrackedJob) error
	SendChat(ctx context.Context, ref model.WorkspaceRef, content string, imageURLs []string) (*ChatResult, error)
	// Preflight checks a report's inputs without submitting a job.
	Preflight(ctx context.Context, ref model.WorkspaceRef, t model.JobType) (*model.Preflight, error)
	// Resume re-attaches to jobs recorded as active by a previous process.
	Resume(ctx context.Context) (int, error)
	Close()
}

type GenerateParams struct {
	Workspace          model.WorkspaceRef
	Type               model.JobType
	Prompt             string
	ReferenceImageURLs []string
	Model              string
	Download           bool
}

type StudioOptions struct {
	PollInterval time.Duration
	// StallTimeout is how long a poller may be stopped without a terminal
	// snapshot before the job is failed locally.
	StallTimeout time.Duration
	ClaimTTL     time.Duration
	MaxWait      map[model.JobType]time.Duration
	ETATick      time.Duration
	// Owner identifies this process in job claims; random when empty.
	Owner string
}

func (o *StudioOptions) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = 30 * time.Second
	}
	if o.ClaimTTL <= 0 {
		o.ClaimTTL = 2 * time.Minute
	}
	if o.ETATick <= 0 {
		o.ETATick = time.Second
	}
	if o.Owner == "" {
		o.Owner = uuid.NewString()
	}
}

// slot holds the per-workspace observers. Each workspace has at most one
// poller, so a newer job always replaces the older observation.
type slot struct {
	ws          *model.Workspace
	poller      *JobPoller
	eta         *scheduler.Task
	etaJob      string
	watchdog    *scheduler.Task
	watchdogJob string
}

type studioUC struct {
	api        adapter.StudioAPI
	dispatcher *JobDispatcher
	streamer   *ChatStreamer
	eta        *ETAEstimator
	tracker    repository.JobTracker
	notifier   adapter.Notifier
	opts       StudioOptions
	log        *zerolog.Logger
	now        func() time.Time

	// Observers run under the use case's lifetime, not the caller's request.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	slots map[string]*slot
}

func NewStudioUseCase(
	api adapter.StudioAPI,
	dispatcher *JobDispatcher,
	streamer *ChatStreamer,
	eta *ETAEstimator,
	tracker repository.JobTracker,
	notifier adapter.Notifier,
	opts StudioOptions,
	log *zerolog.Logger,
) *studioUC {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	if eta == nil {
		eta = NewETAEstimator(nil, DefaultProgressCap)
	}
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &studioUC{
		api:        api,
		dispatcher: dispatcher,
		streamer:   streamer,
		eta:        eta,
		tracker:    tracker,
		notifier:   notifier,
		opts:       opts,
		log:        log,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		slots:      make(map[string]*slot),
	}
}

func (s *studioUC) Workspace(ref model.WorkspaceRef) *model.Workspace {
	return s.slot(ref).ws
}

func (s *studioUC) slot(ref model.WorkspaceRef) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ref.Key()
	if sl, ok := s.slots[key]; ok {
		return sl
	}
	sl := &slot{
		ws:     model.NewWorkspace(ref),
		poller: NewJobPoller(s.api, s.opts.PollInterval, s.log),
	}
	s.slots[key] = sl
	return sl
}

func (s *studioUC) Workspaces() []*model.Workspace {
	s.mu.Lock()
	out := make([]*model.Workspace, 0, len(s.slots))
	for _, sl := range s.slots {
		out = append(out, sl.ws)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Key() < out[j].Ref.Key() })
	return out
}

func (s *studioUC) Generate(ctx context.Context, p GenerateParams) (string, error) {
	if err := p.Workspace.Validate(); err != nil {
		return "", err
	}
	if !p.Type.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownJobType, p.Type)
	}
	switch p.Type {
	case model.JobTypeImage2D, model.JobTypeModel3D, model.JobTypeArtifact:
		if p.Workspace.IsProject() {
			return "", fmt.Errorf("%w: %s needs a room", domain.ErrInvalidArgument, p.Type)
		}
	case model.JobTypeTechnicalInfoReport:
		// Technical info is always a project-level document.
		p.Workspace.RoomID = ""
	}
	if p.Type == model.JobTypeImage2D && strings.TrimSpace(p.Prompt) == "" {
		return "", fmt.Errorf("%w: prompt is required", domain.ErrInvalidArgument)
	}
	if p.Type == model.JobTypeModel3D && p.Model == "" {
		p.Model = model.Model3DQuality
	}

	ctx = logging.WithWorkspace(ctx, p.Workspace.Key())
	log := logging.With(ctx, s.log)
	sl := s.slot(p.Workspace)
	ws := sl.ws

	if err := ws.BeginJob(p.Type); err != nil {
		return "", err
	}
	metrics.IncPipeline(workspaceKind(ws.Ref), model.PipelineFor(p.Type).String())
	if p.Download {
		ws.RequestDownload(p.Type)
	}
	var snap *model.ProgressSnapshot
	if p.Type == model.JobTypeModel3D {
		snap = s.eta.Begin("", model.ClassForModel(p.Model))
		ws.SetProgressSnapshot(snap)
	}

	jobID, err := s.api.Submit(ctx, adapter.GenerationRequest{
		Type:               p.Type,
		Workspace:          p.Workspace,
		Prompt:             p.Prompt,
		ReferenceImageURLs: p.ReferenceImageURLs,
		Model:              p.Model,
	})
	if err != nil {
		ws.ResetPipeline()
		ws.TakeDownloadRequest(p.Type)
		metrics.IncSubmission(string(p.Type), "error")
		metrics.IncPipeline(workspaceKind(ws.Ref), model.PipelineIdle.String())
		log.Error().Err(err).Str("type", string(p.Type)).Msg("submission failed")
		s.notify(ctx, adapter.Notice{
			Level:     adapter.NoticeError,
			Workspace: p.Workspace,
			JobType:   p.Type,
			Message:   fmt.Sprintf("Could not start %s: %v", jobLabel(p.Type), err),
		})
		return "", fmt.Errorf("submit %s: %w", p.Type, err)
	}
	metrics.IncSubmission(string(p.Type), "ok")
	log.Info().Str("job_id", jobID).Str("type", string(p.Type)).Msg("job submitted")

	started := s.now()
	if snap != nil {
		snap.JobID = jobID
		started = snap.StartedAt
		ws.SetProgressSnapshot(snap)
	}
	err = s.Track(ctx, model.TrackedJob{
		ID:        jobID,
		Type:      p.Type,
		Workspace: p.Workspace,
		Model:     p.Model,
		StartedAt: started,
	})
	if err != nil && !errors.Is(err, domain.ErrJobClaimed) {
		// Nothing observes the job, so nothing would ever clear the pipeline.
		if ws.ReleaseJob(jobID) {
			metrics.IncPipeline(workspaceKind(ws.Ref), model.PipelineIdle.String())
		}
		ws.TakeDownloadRequest(p.Type)
		log.Error().Err(err).Str("job_id", jobID).Msg("submitted job not tracked")
		s.notify(ctx, adapter.Notice{
			Level:     adapter.NoticeError,
			Workspace: p.Workspace,
			JobID:     jobID,
			JobType:   p.Type,
			Message:   fmt.Sprintf("Started %s but could not follow it: %v", jobLabel(p.Type), err),
		})
	}
	return jobID, err
}

func (s *studioUC) Track(ctx context.Context, job model.TrackedJob) error {
	if strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidArgument)
	}
	if !job.Type.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownJobType, job.Type)
	}
	if err := job.Workspace.Validate(); err != nil {
		return err
	}
	if s.ctx.Err() != nil {
		return context.Canceled
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = s.now()
	}
	ctx = logging.WithJobID(logging.WithWorkspace(ctx, job.Workspace.Key()), job.ID)
	log := logging.With(ctx, s.log)
	sl := s.slot(job.Workspace)
	ws := sl.ws

	if s.tracker != nil {
		ok, err := s.tracker.Claim(ctx, job.ID, s.opts.Owner, s.opts.ClaimTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("job claim failed; observing anyway")
		case !ok:
			if ws.Tracked() == nil {
				ws.ResetPipeline()
			}
			log.Info().Msg("job is observed by another process")
			return domain.ErrJobClaimed
		}
	}

	if prev := ws.Tracked(); prev != nil && prev.ID != job.ID {
		log.Info().Str("replaced_job_id", prev.ID).Msg("newer job replaces tracked job")
		s.stopETA(sl, prev.ID)
		s.stopWatchdog(sl, prev.ID)
		s.releaseClaim(prev.ID)
		s.notify(ctx, adapter.Notice{
			Level:     adapter.NoticeInfo,
			Workspace: job.Workspace,
			JobID:     prev.ID,
			JobType:   prev.Type,
			Message: fmt.Sprintf("The earlier %s is no longer being followed here; a newer %s replaced it.",
				jobLabel(prev.Type), jobLabel(job.Type)),
		})
	}
	ws.Track(job)
	metrics.IncPipeline(workspaceKind(ws.Ref), model.PipelineFor(job.Type).String())

	if s.tracker != nil {
		if err := s.tracker.SaveActive(ctx, job); err != nil {
			log.Warn().Err(err).Msg("save active job failed")
		}
	}

	if job.Type == model.JobTypeModel3D {
		if snap := ws.ProgressSnapshot(); snap == nil || snap.JobID != job.ID {
			snap = s.eta.Begin(job.ID, model.ClassForModel(job.Model))
			snap.StartedAt = job.StartedAt
			ws.SetProgressSnapshot(snap)
		}
		s.startETA(sl, job)
	}

	sl.poller.Start(s.ctx, job.ID, func(snap *model.Job) {
		if snap.Terminal() {
			s.finish(sl, job, snap)
		}
	})
	s.startWatchdog(sl, job)
	return nil
}

// finish runs the terminal path for job exactly once per process; the
// dispatcher's claim makes a second caller a no-op.
func (s *studioUC) finish(sl *slot, job model.TrackedJob, snap *model.Job) {
	if s.ctx.Err() != nil {
		return
	}
	ctx := logging.WithJobID(logging.WithWorkspace(s.ctx, job.Workspace.Key()), job.ID)
	log := logging.With(ctx, s.log)

	cp := *snap
	if cp.ID == "" {
		cp.ID = job.ID
	}
	if cp.Type == "" {
		cp.Type = job.Type
	}

	if p := sl.ws.ProgressSnapshot(); p != nil && p.JobID == job.ID {
		sl.ws.SetProgress(s.eta.Estimate(p, s.eta.Now(), cp.Status == model.JobStatusCompleted))
	}
	s.stopETA(sl, job.ID)

	dispatched, err := s.dispatcher.Dispatch(ctx, sl.ws, &cp)
	if err != nil {
		log.Error().Err(err).Msg("dispatch failed")
	}
	if dispatched && s.tracker != nil {
		if err := s.tracker.DeleteActive(ctx, job.Workspace, job.ID); err != nil {
			log.Warn().Err(err).Msg("delete active job failed")
		}
		s.releaseClaim(job.ID)
	}
	s.stopWatchdog(sl, job.ID)
}

func (s *studioUC) startETA(sl *slot, job model.TrackedJob) {
	task := scheduler.NewTask("eta:"+job.ID, s.opts.ETATick, func(ctx context.Context) bool {
		snap := sl.ws.ProgressSnapshot()
		if snap == nil || snap.JobID != job.ID {
			return false
		}
		sl.ws.SetProgress(s.eta.Estimate(snap, s.eta.Now(), false))
		return true
	}, scheduler.WithImmediate(), scheduler.WithLogger(s.log))

	s.mu.Lock()
	prev := sl.eta
	sl.eta, sl.etaJob = task, job.ID
	s.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
	task.Start(s.ctx)
}

// stopETA cancels the ticker only while it still belongs to jobID.
func (s *studioUC) stopETA(sl *slot, jobID string) {
	s.mu.Lock()
	var task *scheduler.Task
	if sl.etaJob == jobID {
		task = sl.eta
		sl.eta, sl.etaJob = nil, ""
	}
	s.mu.Unlock()
	if task != nil {
		task.Cancel()
	}
}

// startWatchdog fails the job locally when its poller stopped without a
// terminal snapshot for longer than StallTimeout, or when the job outlived
// its type's MaxWait.
func (s *studioUC) startWatchdog(sl *slot, job model.TrackedJob) {
	interval := s.opts.StallTimeout / 3
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	if interval > 5*time.Second {
		interval = 5 * time.Second
	}

	var stoppedSince time.Time
	var lastRenew time.Time
	task := scheduler.NewTask("watchdog:"+job.ID, interval, func(ctx context.Context) bool {
		t := sl.ws.Tracked()
		if t == nil || t.ID != job.ID {
			return false
		}
		now := s.now()

		if maxWait := s.opts.MaxWait[job.Type]; maxWait > 0 && now.Sub(job.StartedAt) > maxWait {
			s.stopPollerFor(sl, job.ID)
			s.log.Warn().Err(domain.ErrJobTimedOut).Str("job_id", job.ID).Dur("max_wait", maxWait).Msg("failing job locally")
			s.finish(sl, job, localFailure(job, fmt.Sprintf("%s did not finish within %s.", jobLabel(job.Type), maxWait)))
			return false
		}

		if sl.poller.JobID() == job.ID && sl.poller.Active() {
			stoppedSince = time.Time{}
			if s.tracker != nil && now.Sub(lastRenew) >= s.opts.ClaimTTL/2 {
				lastRenew = now
				if _, err := s.tracker.Claim(ctx, job.ID, s.opts.Owner, s.opts.ClaimTTL); err != nil {
					s.log.Debug().Err(err).Str("job_id", job.ID).Msg("claim renewal failed")
				}
			}
			return true
		}
		if latest := sl.poller.Latest(); latest.Terminal() && latest.ID == job.ID {
			// The poller's own callback is finishing the job.
			return true
		}
		if stoppedSince.IsZero() {
			stoppedSince = now
			return true
		}
		if now.Sub(stoppedSince) < s.opts.StallTimeout {
			return true
		}
		s.log.Warn().Err(domain.ErrJobStalled).Str("job_id", job.ID).Dur("stopped_for", now.Sub(stoppedSince)).Msg("failing job locally")
		s.finish(sl, job, localFailure(job, fmt.Sprintf("Lost contact with the %s job. Please try again.", jobLabel(job.Type))))
		return false
	}, scheduler.WithLogger(s.log))

	s.mu.Lock()
	prev := sl.watchdog
	sl.watchdog, sl.watchdogJob = task, job.ID
	s.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
	task.Start(s.ctx)
}

func (s *studioUC) stopWatchdog(sl *slot, jobID string) {
	s.mu.Lock()
	var task *scheduler.Task
	if sl.watchdogJob == jobID {
		task = sl.watchdog
		sl.watchdog, sl.watchdogJob = nil, ""
	}
	s.mu.Unlock()
	if task != nil {
		task.Cancel()
	}
}

func (s *studioUC) stopPollerFor(sl *slot, jobID string) {
	if sl.poller.JobID() == jobID {
		sl.poller.Stop()
	}
}

func (s *studioUC) releaseClaim(jobID string) {
	if s.tracker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.tracker.Release(ctx, jobID, s.opts.Owner); err != nil {
		s.log.Debug().Err(err).Str("job_id", jobID).Msg("release claim failed")
	}
}

func (s *studioUC) SendChat(ctx context.Context, ref model.WorkspaceRef, content string, imageURLs []string) (*ChatResult, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	ctx = logging.WithWorkspace(ctx, ref.Key())
	sl := s.slot(ref)
	res, err := s.streamer.Send(ctx, sl.ws, content, imageURLs, s.onAction)
	if err != nil {
		return res, err
	}
	// generate_2d is a request for the client to submit; do it once the
	// reply is complete so the transcript settles first.
	for _, a := range res.Actions {
		if a.Type != ActionGenerate2D {
			continue
		}
		prompt := strings.TrimSpace(a.Args.Prompt)
		if prompt == "" {
			prompt = content
		}
		if _, gerr := s.Generate(ctx, GenerateParams{
			Workspace:          ref,
			Type:               model.JobTypeImage2D,
			Prompt:             prompt,
			ReferenceImageURLs: imageURLs,
		}); gerr != nil {
			logging.With(ctx, s.log).Warn().Err(gerr).Msg("assistant-requested render not started")
		}
	}
	return res, nil
}

func (s *studioUC) Preflight(ctx context.Context, ref model.WorkspaceRef, t model.JobType) (*model.Preflight, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	switch t {
	case model.JobTypeZoningReport:
	case model.JobTypeTechnicalInfoReport:
		ref.RoomID = ""
	default:
		return nil, fmt.Errorf("%w: %s has no readiness check", domain.ErrInvalidArgument, t)
	}
	ctx = logging.WithWorkspace(ctx, ref.Key())
	p, err := s.api.Preflight(ctx, t, ref)
	if err != nil {
		return nil, fmt.Errorf("preflight %s: %w", t, err)
	}
	logging.With(ctx, s.log).Debug().Str("type", string(t)).Int("missing", len(p.MissingQuestions)).Str("outcome", p.Outcome()).Msg("preflight checked")
	return p, nil
}

// onAction starts observing jobs the server announces mid-stream.
func (s *studioUC) onAction(ctx context.Context, ws *model.Workspace, a ChatAction) {
	if a.Type != ActionGenerationStarted || a.JobID == "" {
		return
	}
	jt := a.JobType
	if !jt.Valid() {
		if parsed, ok := model.ParseJobType(string(jt)); ok {
			jt = parsed
		}
	}
	err := s.Track(ctx, model.TrackedJob{ID: a.JobID, Type: jt, Workspace: ws.Ref, Model: a.Args.Model})
	if err != nil {
		logging.With(ctx, s.log).Warn().Err(err).Str("job_id", a.JobID).Msg("announced job not tracked")
	}
}

func (s *studioUC) Resume(ctx context.Context) (int, error) {
	if s.tracker == nil {
		return 0, nil
	}
	jobs, err := s.tracker.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active jobs: %w", err)
	}
	n := 0
	for _, j := range jobs {
		if err := s.Track(ctx, j); err != nil {
			s.log.Warn().Err(err).Str("job_id", j.ID).Msg("resume skipped job")
			continue
		}
		n++
	}
	s.log.Info().Int("resumed", n).Int("recorded", len(jobs)).Msg("resumed active jobs")
	return n, nil
}

// Close stops every observer. Active jobs stay recorded so a later process
// can resume them; claims are released.
func (s *studioUC) Close() {
	s.cancel()
	s.mu.Lock()
	slots := make([]*slot, 0, len(s.slots))
	for _, sl := range s.slots {
		slots = append(slots, sl)
	}
	s.mu.Unlock()

	for _, sl := range slots {
		sl.poller.Stop()
		s.mu.Lock()
		eta, wd := sl.eta, sl.watchdog
		sl.eta, sl.etaJob, sl.watchdog, sl.watchdogJob = nil, "", nil, ""
		s.mu.Unlock()
		if eta != nil {
			eta.Stop()
		}
		if wd != nil {
			wd.Stop()
		}
		if t := sl.ws.Tracked(); t != nil {
			s.releaseClaim(t.ID)
		}
	}
}

func (s *studioUC) notify(ctx context.Context, n adapter.Notice) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn().Err(err).Msg("notify failed")
	}
}

func localFailure(job model.TrackedJob, msg string) *model.Job {
	return &model.Job{
		ID:        job.ID,
		Type:      job.Type,
		Status:    model.JobStatusFailed,
		RoomID:    job.Workspace.RoomID,
		ProjectID: job.Workspace.ProjectID,
		Output:    &model.JobOutput{Error: msg},
	}
}

func jobLabel(t model.JobType) string {
	switch t {
	case model.JobTypeImage2D:
		return "image generation"
	case model.JobTypeModel3D:
		return "3D generation"
	case model.JobTypeArtifact:
		return "artifact generation"
	case model.JobTypeZoningReport:
		return "zoning report"
	case model.JobTypeTechnicalInfoReport:
		return "technical info report"
	}
	return string(t)
}
