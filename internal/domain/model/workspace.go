package model

import (
	"strings"
	"sync"
	"time"

	"architect-studio/internal/domain"
)

const projectScopeKey = "_project"

// WorkspaceRef identifies a room, or a whole project when RoomID is empty.
type WorkspaceRef struct {
	ProjectID string `json:"projectId"`
	RoomID    string `json:"roomId,omitempty"`
}

func (r WorkspaceRef) Key() string {
	if r.RoomID == "" {
		return r.ProjectID + "/" + projectScopeKey
	}
	return r.ProjectID + "/" + r.RoomID
}

func (r WorkspaceRef) IsProject() bool { return r.RoomID == "" }

func (r WorkspaceRef) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return domain.ErrInvalidArgument
	}
	return nil
}

// ParseWorkspaceKey is the inverse of WorkspaceRef.Key.
func ParseWorkspaceKey(key string) (WorkspaceRef, bool) {
	project, room, ok := strings.Cut(key, "/")
	if !ok || project == "" || room == "" {
		return WorkspaceRef{}, false
	}
	if room == projectScopeKey {
		room = ""
	}
	return WorkspaceRef{ProjectID: project, RoomID: room}, true
}

type View string

const (
	ViewChat View = "chat"
	View3D   View = "3d"
)

// TrackedJob is the workspace's association with its in-flight job.
type TrackedJob struct {
	ID        string       `json:"jobId"`
	Type      JobType      `json:"type"`
	Workspace WorkspaceRef `json:"workspace"`
	Model     string       `json:"model,omitempty"`
	StartedAt time.Time    `json:"startedAt"`
}

type exchange struct {
	userID      string
	assistantID string
}

// Workspace is the per-room (or per-project) state the orchestration
// components share. Every method takes the lock and applies a minimal diff,
// so concurrent writers never lose each other's updates.
type Workspace struct {
	Ref WorkspaceRef

	mu        sync.Mutex
	images    []string
	seen      map[string]struct{}
	messages  []ChatMessage
	inflight  *exchange
	pipeline  PipelineStatus
	tracked   *TrackedJob
	snapshot  *ProgressSnapshot
	progress  *Progress
	view      View
	room      *Room
	project   *Project
	downloads map[JobType]bool
	updatedAt time.Time
}

func NewWorkspace(ref WorkspaceRef) *Workspace {
	return &Workspace{
		Ref:       ref,
		seen:      make(map[string]struct{}),
		view:      ViewChat,
		downloads: make(map[JobType]bool),
		updatedAt: time.Now(),
	}
}

func (w *Workspace) touch() { w.updatedAt = time.Now() }

// ---- images ----

func (w *Workspace) Images() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.images...)
}

// AppendImages adds URLs not already present and returns how many were new.
func (w *Workspace) AppendImages(urls ...string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendImagesLocked(urls)
}

func (w *Workspace) appendImagesLocked(urls []string) int {
	added := 0
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := w.seen[u]; ok {
			continue
		}
		w.seen[u] = struct{}{}
		w.images = append(w.images, u)
		added++
	}
	if added > 0 {
		w.touch()
	}
	return added
}

// ---- transcript ----

func (w *Workspace) Messages() []ChatMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ChatMessage, len(w.messages))
	for i, m := range w.messages {
		m.ImageURLs = append([]string(nil), m.ImageURLs...)
		out[i] = m
	}
	return out
}

func (w *Workspace) Streaming() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight != nil
}

// BeginExchange optimistically appends the user's message and an empty
// assistant placeholder, returning the placeholder's temporary id.
func (w *Workspace) BeginExchange(content string, imageURLs []string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight != nil {
		return "", domain.ErrStreamActive
	}
	now := time.Now()
	user := ChatMessage{
		ID:        NewTempID(),
		Role:      RoleUser,
		Content:   content,
		ImageURLs: append([]string(nil), imageURLs...),
		CreatedAt: now,
		Pending:   true,
	}
	placeholder := ChatMessage{
		ID:        NewTempID(),
		Role:      RoleAssistant,
		CreatedAt: now,
		Pending:   true,
	}
	w.messages = append(w.messages, user, placeholder)
	w.inflight = &exchange{userID: user.ID, assistantID: placeholder.ID}
	w.touch()
	return placeholder.ID, nil
}

// streamTarget returns the index of id if it is the in-flight placeholder and
// still the most recent assistant message.
func (w *Workspace) streamTarget(id string) int {
	if w.inflight == nil || w.inflight.assistantID != id {
		return -1
	}
	for i := len(w.messages) - 1; i >= 0; i-- {
		if w.messages[i].Role != RoleAssistant {
			continue
		}
		if w.messages[i].ID == id {
			return i
		}
		return -1
	}
	return -1
}

// AppendDelta concatenates text onto the streaming assistant message.
func (w *Workspace) AppendDelta(id, text string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.streamTarget(id)
	if i < 0 {
		return false
	}
	w.messages[i].Content += text
	w.touch()
	return true
}

// Rebind swaps the temporary id for the server's durable id in place.
// Accumulated content is untouched.
func (w *Workspace) Rebind(id, durableID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if durableID == "" {
		return false
	}
	i := w.streamTarget(id)
	if i < 0 {
		return false
	}
	w.messages[i].ID = durableID
	w.messages[i].Pending = false
	w.inflight.assistantID = durableID
	w.touch()
	return true
}

// Rollback removes the in-flight assistant message. The user's own message
// stays in the transcript.
func (w *Workspace) Rollback(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.streamTarget(id)
	if i < 0 {
		return false
	}
	w.messages = append(w.messages[:i], w.messages[i+1:]...)
	w.touch()
	return true
}

// AssistantContent returns the current content of message id.
func (w *Workspace) AssistantContent(id string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range w.messages {
		if m.ID == id {
			return m.Content, true
		}
	}
	return "", false
}

// EndExchange releases the stream slot; no further deltas are accepted.
func (w *Workspace) EndExchange() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inflight = nil
}

// MergeTranscript replaces durable history with the server's copy while
// keeping the in-flight exchange intact. Image URLs attached to server
// messages are absorbed into the image collection.
func (w *Workspace) MergeTranscript(server []ChatMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var local []ChatMessage
	skip := make(map[string]struct{})
	if w.inflight != nil {
		for _, m := range w.messages {
			if m.ID == w.inflight.userID || m.ID == w.inflight.assistantID {
				local = append(local, m)
				skip[m.ID] = struct{}{}
			}
		}
		// The server stores the user's message before it starts replying.
		if n := len(server); n > 0 && len(local) > 0 && local[0].Role == RoleUser {
			for i := n - 1; i >= 0; i-- {
				if server[i].Role != RoleUser {
					continue
				}
				if server[i].Content == local[0].Content {
					local = local[1:]
				}
				break
			}
		}
	}

	merged := make([]ChatMessage, 0, len(server)+len(local))
	for _, m := range server {
		if _, ok := skip[m.ID]; ok {
			continue
		}
		m.Pending = false
		merged = append(merged, m)
		w.appendImagesLocked(m.ImageURLs)
	}
	w.messages = append(merged, local...)
	w.touch()
}

// ---- pipeline & tracked job ----

func (w *Workspace) Pipeline() PipelineStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pipeline
}

// BeginJob sets the pipeline status optimistically before submission.
func (w *Workspace) BeginJob(t JobType) error {
	status := PipelineFor(t)
	if status.Idle() {
		return domain.ErrUnknownJobType
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pipeline.Idle() {
		return domain.ErrPipelineBusy
	}
	w.pipeline = status
	w.touch()
	return nil
}

// Track associates the workspace with a submitted job. Progress belonging
// to any other job is dropped.
func (w *Workspace) Track(job TrackedJob) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := job
	w.tracked = &cp
	w.pipeline = PipelineFor(job.Type)
	if w.snapshot != nil && w.snapshot.JobID != job.ID {
		w.snapshot = nil
		w.progress = nil
	}
	w.touch()
}

func (w *Workspace) Tracked() *TrackedJob {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tracked == nil {
		return nil
	}
	cp := *w.tracked
	return &cp
}

// ClaimJob clears the association with jobID and reports whether this
// caller was the one to clear it. Only one caller can win per job.
func (w *Workspace) ClaimJob(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tracked == nil || w.tracked.ID != jobID {
		return false
	}
	w.tracked = nil
	w.touch()
	return true
}

// ReleaseJob returns the workspace to idle after jobID was reconciled. It
// reports false and leaves everything alone when a different job has been
// tracked since.
func (w *Workspace) ReleaseJob(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tracked != nil && w.tracked.ID != jobID {
		return false
	}
	w.pipeline = PipelineIdle
	w.tracked = nil
	w.snapshot = nil
	w.progress = nil
	w.touch()
	return true
}

// ResetPipeline returns the workspace to idle and drops progress state.
func (w *Workspace) ResetPipeline() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pipeline = PipelineIdle
	w.tracked = nil
	w.snapshot = nil
	w.progress = nil
	w.touch()
}

// ---- progress ----

func (w *Workspace) SetProgressSnapshot(s *ProgressSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snapshot = s
	w.progress = nil
}

func (w *Workspace) ProgressSnapshot() *ProgressSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.snapshot == nil {
		return nil
	}
	cp := *w.snapshot
	return &cp
}

// SetProgress publishes a computed value; ignored once the snapshot is gone.
func (w *Workspace) SetProgress(p Progress) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.snapshot == nil {
		return
	}
	w.progress = &p
}

func (w *Workspace) Progress() (Progress, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.progress == nil {
		return Progress{}, false
	}
	return *w.progress, true
}

// ---- view & resources ----

func (w *Workspace) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

func (w *Workspace) SetView(v View) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.view = v
	w.touch()
}

func (w *Workspace) Room() *Room {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.room
}

func (w *Workspace) SetRoom(r *Room) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.room = r
	w.touch()
}

func (w *Workspace) Project() *Project {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.project
}

func (w *Workspace) SetProject(p *Project) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.project = p
	w.touch()
}

// ---- downloads ----

func (w *Workspace) RequestDownload(t JobType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.downloads[t] = true
}

// TakeDownloadRequest consumes a pending request so it fires at most once.
func (w *Workspace) TakeDownloadRequest(t JobType) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.downloads[t] {
		return false
	}
	delete(w.downloads, t)
	return true
}

// ---- read model ----

type WorkspaceState struct {
	Key       string        `json:"key"`
	ProjectID string        `json:"projectId"`
	RoomID    string        `json:"roomId,omitempty"`
	Pipeline  string        `json:"pipeline"`
	View      View          `json:"view"`
	Images    []string      `json:"images"`
	Messages  []ChatMessage `json:"messages"`
	Streaming bool          `json:"streaming"`
	Job       *TrackedJob   `json:"job,omitempty"`
	Progress  *Progress     `json:"progress,omitempty"`
	Room      *Room         `json:"room,omitempty"`
	Project   *Project      `json:"project,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func (w *Workspace) State() WorkspaceState {
	msgs := w.Messages()
	w.mu.Lock()
	defer w.mu.Unlock()
	st := WorkspaceState{
		Key:       w.Ref.Key(),
		ProjectID: w.Ref.ProjectID,
		RoomID:    w.Ref.RoomID,
		Pipeline:  w.pipeline.String(),
		View:      w.view,
		Images:    append([]string{}, w.images...),
		Messages:  msgs,
		Streaming: w.inflight != nil,
		Room:      w.room,
		Project:   w.project,
		UpdatedAt: w.updatedAt,
	}
	if w.tracked != nil {
		cp := *w.tracked
		st.Job = &cp
	}
	if w.progress != nil {
		cp := *w.progress
		st.Progress = &cp
	}
	return st
}
