// File: internal/usecase/job_dispatcher.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"architect-studio/internal/domain"
	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/adapter"
	"architect-studio/internal/domain/ports/repository"
	"architect-studio/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// JobHandlers reconciles workspace state after a job completes. There is one
// method per job type, so adding a type breaks every implementation until
// it is handled.
type JobHandlers interface {
	Image2DCompleted(ctx context.Context, ws *model.Workspace, job *model.Job) error
	Model3DCompleted(ctx context.Context, ws *model.Workspace, job *model.Job) error
	ArtifactCompleted(ctx context.Context, ws *model.Workspace, job *model.Job) error
	ZoningReportCompleted(ctx context.Context, ws *model.Workspace, job *model.Job) error
	TechnicalInfoReportCompleted(ctx context.Context, ws *model.Workspace, job *model.Job) error
}

// TaskRunner runs side work off the dispatch path.
type TaskRunner interface {
	Submit(task func(ctx context.Context) error) error
}

// JobDispatcher routes a terminal snapshot to the reconciliation for its
// type, exactly once per job id, then returns the workspace to idle.
type JobDispatcher struct {
	handlers JobHandlers
	tracker  repository.JobTracker
	notifier adapter.Notifier
	log      *zerolog.Logger
	now      func() time.Time
}

func NewJobDispatcher(handlers JobHandlers, tracker repository.JobTracker, notifier adapter.Notifier, log *zerolog.Logger) *JobDispatcher {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &JobDispatcher{handlers: handlers, tracker: tracker, notifier: notifier, log: log, now: time.Now}
}

// Dispatch reconciles a terminal job. It reports false without touching the
// workspace when the job was already dispatched or is no longer the one the
// workspace tracks.
func (d *JobDispatcher) Dispatch(ctx context.Context, ws *model.Workspace, job *model.Job) (bool, error) {
	if job == nil || !job.Terminal() {
		return false, domain.ErrNotTerminal
	}
	snap := *job
	tracked := ws.Tracked()
	if tracked != nil && tracked.ID == snap.ID && snap.Type == "" {
		snap.Type = tracked.Type
	}

	if !ws.ClaimJob(snap.ID) {
		metrics.IncDispatch(string(snap.Type), "duplicate")
		d.log.Debug().Str("job_id", snap.ID).Msg("dispatch skipped: job not tracked")
		return false, nil
	}

	first := true
	if d.tracker != nil {
		ok, err := d.tracker.MarkDispatched(ctx, snap.ID)
		if err != nil {
			// The in-memory claim already guarantees once-per-process.
			d.log.Warn().Err(err).Str("job_id", snap.ID).Msg("mark dispatched failed")
		} else {
			first = ok
		}
	}

	var err error
	if first {
		err = d.reconcile(ctx, ws, &snap)
	} else {
		metrics.IncDispatch(string(snap.Type), "duplicate")
		d.log.Info().Str("job_id", snap.ID).Msg("job already reconciled elsewhere")
	}

	// A job tracked while this one was reconciling keeps the pipeline.
	if ws.ReleaseJob(snap.ID) {
		metrics.IncPipeline(workspaceKind(ws.Ref), model.PipelineIdle.String())
	}
	if first {
		metrics.IncDispatch(string(snap.Type), string(snap.Status))
		if tracked != nil && !tracked.StartedAt.IsZero() {
			metrics.ObserveJobDuration(string(snap.Type), string(snap.Status), d.now().Sub(tracked.StartedAt).Seconds())
		}
	}
	return first, err
}

func (d *JobDispatcher) reconcile(ctx context.Context, ws *model.Workspace, job *model.Job) error {
	if job.Status == model.JobStatusFailed {
		msg := job.ErrorMessage()
		if msg == "" {
			msg = model.FailureFallback(job.Type)
		}
		d.log.Warn().Str("job_id", job.ID).Str("type", string(job.Type)).Str("error", msg).Msg("job failed")
		d.notify(ctx, ws, job, adapter.NoticeError, msg)
		return nil
	}

	var err error
	switch job.Type {
	case model.JobTypeImage2D:
		err = d.handlers.Image2DCompleted(ctx, ws, job)
	case model.JobTypeModel3D:
		err = d.handlers.Model3DCompleted(ctx, ws, job)
	case model.JobTypeArtifact:
		err = d.handlers.ArtifactCompleted(ctx, ws, job)
	case model.JobTypeZoningReport:
		err = d.handlers.ZoningReportCompleted(ctx, ws, job)
	case model.JobTypeTechnicalInfoReport:
		err = d.handlers.TechnicalInfoReportCompleted(ctx, ws, job)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownJobType, job.Type)
		d.log.Error().Str("job_id", job.ID).Str("type", string(job.Type)).Msg("completed job has unknown type")
		d.notify(ctx, ws, job, adapter.NoticeError, "A generation finished with an unrecognised type and was ignored.")
		return err
	}
	if err != nil {
		d.log.Error().Err(err).Str("job_id", job.ID).Str("type", string(job.Type)).Msg("reconciliation failed")
		d.notify(ctx, ws, job, adapter.NoticeError, completionText(ws, job)+" Refreshing the workspace failed: "+err.Error())
		return err
	}
	d.notify(ctx, ws, job, adapter.NoticeInfo, completionText(ws, job))
	return nil
}

func (d *JobDispatcher) notify(ctx context.Context, ws *model.Workspace, job *model.Job, level adapter.NoticeLevel, msg string) {
	if d.notifier == nil {
		return
	}
	n := adapter.Notice{Level: level, Workspace: ws.Ref, JobID: job.ID, JobType: job.Type, Message: msg}
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.log.Warn().Err(err).Str("job_id", job.ID).Msg("notify failed")
	}
}

func completionText(ws *model.Workspace, job *model.Job) string {
	switch job.Type {
	case model.JobTypeImage2D:
		n := len(job.ResultURLs())
		if n == 1 {
			return "1 new design image is ready."
		}
		return fmt.Sprintf("%d new design images are ready.", n)
	case model.JobTypeModel3D:
		if r := ws.Room(); r != nil && r.WorldLabs != nil {
			if u := r.WorldLabs.ViewerURL(); u != "" {
				return "3D scene is ready: " + u
			}
		}
		return "3D scene is ready."
	case model.JobTypeArtifact:
		return "Technical artifact is ready."
	case model.JobTypeZoningReport:
		return withSummary("Zoning report is ready.", job)
	case model.JobTypeTechnicalInfoReport:
		return withSummary("Technical info report is ready.", job)
	}
	return "Generation finished."
}

func withSummary(s string, job *model.Job) string {
	if job.Output != nil && job.Output.Summary != "" {
		return s + " " + job.Output.Summary
	}
	return s
}

func workspaceKind(ref model.WorkspaceRef) string {
	if ref.IsProject() {
		return "project"
	}
	return "room"
}
