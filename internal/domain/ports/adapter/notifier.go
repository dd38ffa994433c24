package adapter

import (
	"context"

	"architect-studio/internal/domain/model"
)

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a single user-facing message.
type Notice struct {
	Level     NoticeLevel
	Workspace model.WorkspaceRef
	JobID     string
	JobType   model.JobType
	Message   string
}

type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}
