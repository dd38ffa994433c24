// File: internal/usecase/reconciler.go
package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/adapter"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ JobHandlers = (*Reconciler)(nil)

// Reconciler is the default JobHandlers: it refetches whatever document a
// completed job wrote and stores it on the workspace. Downloads run on the
// TaskRunner so a slow file never holds up the pipeline.
type Reconciler struct {
	api       adapter.ResourceAPI
	downloads adapter.Downloader
	runner    TaskRunner
	notifier  adapter.Notifier
	log       *zerolog.Logger
}

func NewReconciler(api adapter.ResourceAPI, downloads adapter.Downloader, runner TaskRunner, notifier adapter.Notifier, log *zerolog.Logger) *Reconciler {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Reconciler{api: api, downloads: downloads, runner: runner, notifier: notifier, log: log}
}

func (r *Reconciler) Image2DCompleted(ctx context.Context, ws *model.Workspace, job *model.Job) error {
	added := ws.AppendImages(job.ResultURLs()...)
	r.log.Debug().Str("job_id", job.ID).Int("added", added).Msg("images appended")
	if ws.Ref.IsProject() {
		return nil
	}
	// The server posts a message announcing the images; pull it in.
	msgs, err := r.api.ListMessages(ctx, ws.Ref.ProjectID, ws.Ref.RoomID)
	if err != nil {
		return fmt.Errorf("refresh transcript: %w", err)
	}
	ws.MergeTranscript(msgs)
	return nil
}

func (r *Reconciler) Model3DCompleted(ctx context.Context, ws *model.Workspace, job *model.Job) error {
	ws.SetView(model.View3D)
	room, err := r.api.GetRoom(ctx, ws.Ref.ProjectID, ws.Ref.RoomID)
	if err != nil {
		return fmt.Errorf("refresh room: %w", err)
	}
	ws.SetRoom(room)
	if !ws.TakeDownloadRequest(model.JobTypeModel3D) {
		return nil
	}
	ref := ws.Ref
	r.download(ctx, ws, job, func(ctx context.Context) (string, error) {
		return saveSceneExport(ctx, r.api, r.downloads, ref, room)
	})
	return nil
}

func (r *Reconciler) ArtifactCompleted(ctx context.Context, ws *model.Workspace, job *model.Job) error {
	room, err := r.api.GetRoom(ctx, ws.Ref.ProjectID, ws.Ref.RoomID)
	if err != nil {
		return fmt.Errorf("refresh room: %w", err)
	}
	ws.SetRoom(room)
	if !ws.TakeDownloadRequest(model.JobTypeArtifact) {
		return nil
	}
	content := room.ArtifactContent
	if strings.TrimSpace(content) == "" {
		return errors.New("artifact has no content to download")
	}
	name := fileName(room.Name, room.ID, "artifact.md")
	r.download(ctx, ws, job, func(ctx context.Context) (string, error) {
		return r.downloads.FromBytes(ctx, []byte(content), name)
	})
	return nil
}

func (r *Reconciler) ZoningReportCompleted(ctx context.Context, ws *model.Workspace, job *model.Job) error {
	return r.reportCompleted(ctx, ws, job, "zoning-report.pdf")
}

func (r *Reconciler) TechnicalInfoReportCompleted(ctx context.Context, ws *model.Workspace, job *model.Job) error {
	return r.reportCompleted(ctx, ws, job, "technical-info-report.pdf")
}

func (r *Reconciler) reportCompleted(ctx context.Context, ws *model.Workspace, job *model.Job, suffix string) error {
	project, err := r.api.GetProject(ctx, ws.Ref.ProjectID)
	if err != nil {
		return fmt.Errorf("refresh project: %w", err)
	}
	ws.SetProject(project)
	// Report PDFs are always saved; this only clears the request flag.
	ws.TakeDownloadRequest(job.Type)

	rec := project.Report(job.Type)
	if rec == nil {
		return nil
	}
	name := fileName(project.Name, project.ID, suffix)
	switch {
	case isHTTPURL(rec.ReportPDFURL):
		url := rec.ReportPDFURL
		r.download(ctx, ws, job, func(ctx context.Context) (string, error) {
			return r.downloads.FromURL(ctx, url, name)
		})
	case rec.ReportPDFBase64 != "":
		data, err := base64.StdEncoding.DecodeString(rec.ReportPDFBase64)
		if err != nil {
			return fmt.Errorf("decode report pdf: %w", err)
		}
		r.download(ctx, ws, job, func(ctx context.Context) (string, error) {
			return r.downloads.FromBytes(ctx, data, name)
		})
	default:
		// Non-http fallback locator and no inline copy: nothing to fetch.
		r.log.Debug().Str("job_id", job.ID).Str("locator", rec.ReportPDFURL).Msg("report has no downloadable pdf")
	}
	return nil
}

// download runs fetch on the runner and reports the outcome as a notice.
// Without a runner, or when it rejects the task, the fetch runs inline.
func (r *Reconciler) download(ctx context.Context, ws *model.Workspace, job *model.Job, fetch func(context.Context) (string, error)) {
	if r.downloads == nil {
		return
	}
	ref, jobID, jobType := ws.Ref, job.ID, job.Type
	task := func(ctx context.Context) error {
		path, err := fetch(ctx)
		n := adapter.Notice{Workspace: ref, JobID: jobID, JobType: jobType}
		if err != nil {
			r.log.Error().Err(err).Str("job_id", jobID).Msg("download failed")
			n.Level, n.Message = adapter.NoticeError, "Download failed: "+err.Error()
		} else {
			r.log.Info().Str("job_id", jobID).Str("path", path).Msg("download saved")
			n.Level, n.Message = adapter.NoticeInfo, "Saved "+path
		}
		if r.notifier != nil {
			if nerr := r.notifier.Notify(ctx, n); nerr != nil {
				r.log.Warn().Err(nerr).Msg("notify failed")
			}
		}
		return err
	}
	if r.runner != nil {
		err := r.runner.Submit(task)
		if err == nil {
			return
		}
		r.log.Warn().Err(err).Str("job_id", jobID).Msg("runner rejected download; running inline")
	}
	_ = task(ctx)
}

func isHTTPURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func fileName(name, id, suffix string) string {
	base := slug.Make(name)
	if base == "" {
		base = slug.Make(id)
	}
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
