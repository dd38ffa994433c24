package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"architect-studio/internal/config"
	"architect-studio/internal/domain"
	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/adapter"
	"architect-studio/internal/domain/ports/repository"
	"architect-studio/internal/infra/adapters/auth"
	"architect-studio/internal/infra/adapters/download"
	"architect-studio/internal/infra/adapters/notify"
	"architect-studio/internal/infra/adapters/studioapi"
	"architect-studio/internal/infra/adapters/telegram"
	"architect-studio/internal/infra/db/postgres"
	"architect-studio/internal/infra/logging"
	"architect-studio/internal/infra/memstore"
	"architect-studio/internal/infra/metrics"
	red "architect-studio/internal/infra/redis"
	"architect-studio/internal/infra/worker"
	"architect-studio/internal/usecase"
)

// app is the wired process: configuration, adapters and the studio use case.
type app struct {
	cfg    *config.Config
	log    *zerolog.Logger
	api      *studioapi.Client
	studio   usecase.StudioUseCase
	exporter *usecase.SceneExporter

	closers []func()
}

// newApp wires the full stack. out receives user notices; pass nil when the
// command prints results itself.
func newApp(ctx context.Context, out io.Writer) (*app, error) {
	cfg, err := config.LoadConfig(cfgPath, devMode)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(buildVersion, buildCommit)

	a := &app{cfg: cfg, log: log}

	tokens, err := tokenSource(cfg, log)
	if err != nil {
		return nil, err
	}
	api, err := studioapi.New(cfg.API.BaseURL, tokens, cfg.API.Timeout, log)
	if err != nil {
		return nil, err
	}
	a.api = api

	tracker, err := a.jobTracker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	sinks := []adapter.Notifier{notify.NewLogNotifier(log)}
	if out != nil {
		sinks = append(sinks, &printNotifier{out: out})
	}
	if cfg.Telegram.Token != "" {
		tg, err := telegram.NewNotifier(cfg.Telegram, log)
		if err != nil {
			log.Warn().Err(err).Msg("telegram notifier disabled")
		} else {
			sinks = append(sinks, tg)
		}
	}
	notifier := notify.NewFanout(sinks...)

	pool := worker.NewPool(cfg.Workers, log)
	pool.Start(context.Background())
	a.closers = append(a.closers, pool.Stop)

	downloads := download.NewDir(cfg.Download.Dir, cfg.API.Timeout, log)
	a.exporter = usecase.NewSceneExporter(api, downloads, log)
	reconciler := usecase.NewReconciler(api, downloads, pool, notifier, log)
	dispatcher := usecase.NewJobDispatcher(reconciler, tracker, notifier, log)
	streamer := usecase.NewChatStreamer(api, notifier, log)
	eta := usecase.NewETAEstimator(map[model.ModelClass]time.Duration{
		model.ModelClassFast:    cfg.ETA.Fast,
		model.ModelClassQuality: cfg.ETA.Quality,
	}, cfg.ETA.CapPercent)

	studio := usecase.NewStudioUseCase(api, dispatcher, streamer, eta, tracker, notifier, usecase.StudioOptions{
		PollInterval: cfg.Poll.Interval,
		StallTimeout: cfg.Poll.StallTimeout,
		ClaimTTL:     cfg.Poll.ClaimTTL,
		MaxWait:      maxWait(cfg.Poll.MaxWait),
		ETATick:      cfg.ETA.Tick,
	}, log)
	a.studio = studio
	// Observers stop before the pool drains so no reconcile task is lost.
	a.closers = append([]func(){studio.Close}, a.closers...)
	return a, nil
}

// jobTracker prefers redis, then postgres, then process memory.
func (a *app) jobTracker(ctx context.Context) (repository.JobTracker, error) {
	if a.cfg.Redis.URL == "" && a.cfg.Database.URL != "" {
		pool, err := postgres.Connect(ctx, a.cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		a.log.Debug().Msg("job tracker: postgres")
		return postgres.NewJobTracker(pool, a.log), nil
	}
	if a.cfg.Redis.URL == "" {
		a.log.Debug().Msg("job tracker: in-memory")
		return memstore.NewJobTracker(), nil
	}
	client, err := red.NewClient(ctx, &a.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.log.Debug().Str("prefix", a.cfg.Redis.Prefix).Msg("job tracker: redis")
	return red.NewJobTracker(client, a.cfg.Redis.Prefix, a.log), nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		c()
	}
	a.closers = nil
}

func tokenSource(cfg *config.Config, log *zerolog.Logger) (adapter.TokenSource, error) {
	if cfg.Auth.TokenFile != "" {
		return auth.NewFileToken(cfg.Auth.TokenFile), nil
	}
	if cfg.Auth.Token == "" {
		return nil, fmt.Errorf("%w: set auth.token, auth.token_file or %s", domain.ErrCredentialMissing, config.TokenEnv)
	}
	if exp, ok := auth.ExpiresAt(cfg.Auth.Token); ok {
		log.Debug().
			Str("token", logging.Redact(cfg.Auth.Token, cfg.Runtime.Dev)).
			Time("expires_at", exp).
			Msg("using static credential")
	}
	return auth.NewStaticToken(cfg.Auth.Token), nil
}

func maxWait(in map[string]time.Duration) map[model.JobType]time.Duration {
	out := make(map[model.JobType]time.Duration, len(in))
	for k, v := range in {
		if jt, ok := model.ParseJobType(k); ok {
			out[jt] = v
		}
	}
	return out
}

// workspaceRef reads the --project/--room flags.
func workspaceRef() (model.WorkspaceRef, error) {
	ref := model.WorkspaceRef{ProjectID: strings.TrimSpace(projectID), RoomID: strings.TrimSpace(roomID)}
	if err := ref.Validate(); err != nil {
		return ref, fmt.Errorf("%w: --project is required", err)
	}
	return ref, nil
}

// printNotifier echoes notices on the command's output.
type printNotifier struct {
	out io.Writer
}

func (p *printNotifier) Notify(_ context.Context, n adapter.Notice) error {
	prefix := "•"
	if n.Level == adapter.NoticeError {
		prefix = "!"
	}
	_, err := fmt.Fprintf(p.out, "%s %s\n", prefix, n.Message)
	return err
}
