package adapter

import (
	"context"
	"io"

	"architect-studio/internal/domain/model"
)

// GenerationRequest carries the parameters of one submission endpoint.
// Fields irrelevant to Type are ignored.
type GenerationRequest struct {
	Type               model.JobType
	Workspace          model.WorkspaceRef
	Prompt             string
	ReferenceImageURLs []string
	Model              string
}

type ChatRequest struct {
	ProjectID string
	RoomID    string
	Content   string
	ImageURLs []string
}

// JobAPI submits generation work and reads job snapshots.
type JobAPI interface {
	Submit(ctx context.Context, req GenerationRequest) (jobID string, err error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
}

// ChatAPI opens the token-streamed reply for one chat message. The caller
// owns the returned body.
type ChatAPI interface {
	StreamChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error)
}

// ResourceAPI reads the document store the studio server fronts.
type ResourceAPI interface {
	GetRoom(ctx context.Context, projectID, roomID string) (*model.Room, error)
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
	ListMessages(ctx context.Context, projectID, roomID string) ([]model.ChatMessage, error)
	// Preflight asks whether a report job of type t has what it needs.
	Preflight(ctx context.Context, t model.JobType, ref model.WorkspaceRef) (*model.Preflight, error)
	GetExport(ctx context.Context, projectID, roomID string) (*model.SceneExport, error)
	// ExportBundle returns the zipped 3D assets of a room.
	ExportBundle(ctx context.Context, projectID, roomID string) ([]byte, error)
}

// StudioAPI is the full server surface.
type StudioAPI interface {
	JobAPI
	ChatAPI
	ResourceAPI
}
