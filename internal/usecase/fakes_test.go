//go:build !integration

package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"architect-studio/internal/domain"
	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/adapter"
)

// ---- Fakes ----

var _ adapter.StudioAPI = (*fakeAPI)(nil)

type fakeAPI struct {
	mu sync.Mutex

	submitErr error
	submitted []adapter.GenerationRequest
	nextIDs   []string

	// jobs scripts the snapshots GetJob returns; the last one repeats.
	jobs   map[string][]model.Job
	getErr map[string]error
	polls  map[string]int

	room        *model.Room
	roomFetches int
	roomErr     error
	// roomGate, when set, holds GetRoom until closed; roomEntered is
	// signalled as each call arrives.
	roomGate    chan struct{}
	roomEntered chan struct{}
	project     *model.Project
	messages    []model.ChatMessage
	listCalls   int

	preflight   *model.Preflight
	preflights  []model.WorkspaceRef
	export      *model.SceneExport
	exportCalls int
	bundle      []byte

	chatErr  error
	chatBody func() io.ReadCloser
	chats    []adapter.ChatRequest
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		jobs:   make(map[string][]model.Job),
		getErr: make(map[string]error),
		polls:  make(map[string]int),
	}
}

func (f *fakeAPI) script(jobID string, snaps ...model.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range snaps {
		if snaps[i].ID == "" {
			snaps[i].ID = jobID
		}
	}
	f.jobs[jobID] = snaps
}

func (f *fakeAPI) Submit(ctx context.Context, req adapter.GenerationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	if len(f.nextIDs) == 0 {
		return fmt.Sprintf("job-%d", len(f.submitted)), nil
	}
	id := f.nextIDs[0]
	f.nextIDs = f.nextIDs[1:]
	return id, nil
}

func (f *fakeAPI) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[jobID]++
	if err := f.getErr[jobID]; err != nil {
		return nil, err
	}
	seq := f.jobs[jobID]
	if len(seq) == 0 {
		return &model.Job{ID: jobID, Status: model.JobStatusPending}, nil
	}
	i := f.polls[jobID] - 1
	if i >= len(seq) {
		i = len(seq) - 1
	}
	j := seq[i]
	return &j, nil
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roomFetches
}

func (f *fakeAPI) pollCount(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[jobID]
}

func (f *fakeAPI) totalPolls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.polls {
		n += v
	}
	return n
}

func (f *fakeAPI) StreamChat(ctx context.Context, req adapter.ChatRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, req)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return f.chatBody(), nil
}

func (f *fakeAPI) GetRoom(ctx context.Context, projectID, roomID string) (*model.Room, error) {
	f.mu.Lock()
	gate, entered := f.roomGate, f.roomEntered
	f.mu.Unlock()
	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomFetches++
	if f.roomErr != nil {
		return nil, f.roomErr
	}
	if f.room == nil {
		return &model.Room{ID: roomID, ProjectID: projectID}, nil
	}
	cp := *f.room
	return &cp, nil
}

func (f *fakeAPI) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.project == nil {
		return &model.Project{ID: projectID}, nil
	}
	cp := *f.project
	return &cp, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, projectID, roomID string) ([]model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]model.ChatMessage(nil), f.messages...), nil
}

func (f *fakeAPI) Preflight(ctx context.Context, t model.JobType, ref model.WorkspaceRef) (*model.Preflight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preflights = append(f.preflights, ref)
	if f.preflight == nil {
		return &model.Preflight{}, nil
	}
	cp := *f.preflight
	return &cp, nil
}

func (f *fakeAPI) GetExport(ctx context.Context, projectID, roomID string) (*model.SceneExport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exportCalls++
	if f.export == nil {
		return nil, fmt.Errorf("scene export: %w", domain.ErrNotFound)
	}
	cp := *f.export
	return &cp, nil
}

func (f *fakeAPI) ExportBundle(ctx context.Context, projectID, roomID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bundle == nil {
		return nil, fmt.Errorf("export bundle: %w", domain.ErrNotFound)
	}
	return append([]byte(nil), f.bundle...), nil
}

// chunkReader hands out scripted chunks, then err (or EOF).
type chunkReader struct {
	chunks []string
	err    error
	closed bool
}

func stream(err error, chunks ...string) func() io.ReadCloser {
	return func() io.ReadCloser { return &chunkReader{chunks: append([]string(nil), chunks...), err: err} }
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	c := r.chunks[0]
	n := copy(p, c)
	if n < len(c) {
		r.chunks[0] = c[n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error { r.closed = true; return nil }

type fakeNotifier struct {
	mu      sync.Mutex
	notices []adapter.Notice
}

func (n *fakeNotifier) Notify(ctx context.Context, notice adapter.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func (n *fakeNotifier) all() []adapter.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]adapter.Notice(nil), n.notices...)
}

func (n *fakeNotifier) has(level adapter.NoticeLevel, substr string) bool {
	for _, x := range n.all() {
		if x.Level == level && strings.Contains(x.Message, substr) {
			return true
		}
	}
	return false
}

type download struct {
	URL  string
	Name string
	Data []byte
}

type fakeDownloader struct {
	mu    sync.Mutex
	calls []download
	err   error
}

func (d *fakeDownloader) FromURL(ctx context.Context, url, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, download{URL: url, Name: name})
	if d.err != nil {
		return "", d.err
	}
	return "/tmp/" + name, nil
}

func (d *fakeDownloader) FromBytes(ctx context.Context, data []byte, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, download{Name: name, Data: append([]byte(nil), data...)})
	if d.err != nil {
		return "", d.err
	}
	return "/tmp/" + name, nil
}

func (d *fakeDownloader) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// inlineRunner runs tasks on the caller's goroutine.
type inlineRunner struct{}

func (inlineRunner) Submit(task func(ctx context.Context) error) error {
	_ = task(context.Background())
	return nil
}

var errBoom = errors.New("boom")

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func completed(urls ...string) model.Job {
	return model.Job{Status: model.JobStatusCompleted, Output: &model.JobOutput{ResultURLs: urls}}
}

func processing() model.Job { return model.Job{Status: model.JobStatusProcessing} }

var roomRef = model.WorkspaceRef{ProjectID: "p1", RoomID: "r1"}
