// File: internal/infra/adapters/notify/log.go
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"architect-studio/internal/domain/ports/adapter"
	"architect-studio/internal/infra/metrics"
)

var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notices to the structured log. It is the default sink
// when no chat channel is configured.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(log *zerolog.Logger) *LogNotifier {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, notice adapter.Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := n.log.Info()
	if notice.Level == adapter.NoticeError {
		ev = n.log.Warn()
	}
	ev = ev.Str("workspace", notice.Workspace.Key())
	if notice.JobID != "" {
		ev = ev.Str("job_id", notice.JobID).Str("job_type", string(notice.JobType))
	}
	ev.Msg(notice.Message)
	metrics.IncNotice("log", string(notice.Level), "ok")
	return nil
}
