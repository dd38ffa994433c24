//go:build !integration

package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"architect-studio/internal/domain/model"
)

type snapshotLog struct {
	mu    sync.Mutex
	snaps []model.Job
}

func (l *snapshotLog) record(j *model.Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, *j)
}

func (l *snapshotLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.snaps)
}

func (l *snapshotLog) last() model.Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snaps[len(l.snaps)-1]
}

func TestJobPoller_StopsOnTerminalSnapshot(t *testing.T) {
	api := newFakeAPI()
	api.script("j1", processing(), completed("https://img/1.png"))
	p := NewJobPoller(api, 5*time.Millisecond, nil)
	var log snapshotLog

	p.Start(context.Background(), "j1", log.record)
	<-p.Done()

	if got := api.pollCount("j1"); got != 2 {
		t.Fatalf("polls = %d, want 2", got)
	}
	if log.len() != 2 || log.last().Status != model.JobStatusCompleted {
		t.Fatalf("snapshots = %+v", log.snaps)
	}
	time.Sleep(30 * time.Millisecond)
	if got := api.pollCount("j1"); got != 2 {
		t.Fatalf("status requested after terminal snapshot: %d polls", got)
	}
	if p.Active() {
		t.Fatalf("poller should be inactive")
	}
	if l := p.Latest(); l == nil || !l.Terminal() {
		t.Fatalf("latest = %+v", l)
	}
}

func TestJobPoller_FirstFetchIsImmediate(t *testing.T) {
	api := newFakeAPI()
	api.script("j1", processing())
	p := NewJobPoller(api, time.Hour, nil)
	defer p.Stop()
	p.Start(context.Background(), "j1", nil)
	waitFor(t, "first fetch", func() bool { return api.pollCount("j1") == 1 })
}

func TestJobPoller_TransportErrorStopsSilently(t *testing.T) {
	api := newFakeAPI()
	api.getErr["j1"] = errBoom
	p := NewJobPoller(api, 5*time.Millisecond, nil)
	var log snapshotLog

	p.Start(context.Background(), "j1", log.record)
	<-p.Done()
	time.Sleep(20 * time.Millisecond)

	if got := api.pollCount("j1"); got != 1 {
		t.Fatalf("polls = %d, want 1 (no retry)", got)
	}
	if log.len() != 0 {
		t.Fatalf("no snapshot should be delivered on error")
	}
}

func TestJobPoller_StopSuppressesFurtherCallbacks(t *testing.T) {
	api := newFakeAPI()
	api.script("j1", processing())
	p := NewJobPoller(api, 2*time.Millisecond, nil)
	var log snapshotLog

	p.Start(context.Background(), "j1", log.record)
	waitFor(t, "a few snapshots", func() bool { return log.len() >= 2 })
	p.Stop()
	n := log.len()
	time.Sleep(20 * time.Millisecond)
	if log.len() != n {
		t.Fatalf("callbacks after Stop: %d -> %d", n, log.len())
	}
}

func TestJobPoller_RestartReplacesJob(t *testing.T) {
	api := newFakeAPI()
	api.script("old", processing())
	api.script("new", processing())
	p := NewJobPoller(api, 2*time.Millisecond, nil)
	defer p.Stop()

	var oldLog, newLog snapshotLog
	p.Start(context.Background(), "old", oldLog.record)
	waitFor(t, "old polled", func() bool { return oldLog.len() >= 1 })
	p.Start(context.Background(), "new", newLog.record)
	n := oldLog.len()
	waitFor(t, "new polled", func() bool { return newLog.len() >= 3 })

	if oldLog.len() != n {
		t.Fatalf("old job still observed after restart")
	}
	if p.JobID() != "new" {
		t.Fatalf("job id = %q", p.JobID())
	}
}

func TestJobPoller_EmptyIDMeansIdle(t *testing.T) {
	api := newFakeAPI()
	p := NewJobPoller(api, time.Millisecond, nil)
	p.Start(context.Background(), "", nil)
	time.Sleep(5 * time.Millisecond)
	if api.totalPolls() != 0 || p.Active() {
		t.Fatalf("empty id must not poll")
	}
}

func TestJobPoller_ContextCancelStops(t *testing.T) {
	api := newFakeAPI()
	api.script("j1", processing())
	p := NewJobPoller(api, 2*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx, "j1", nil)
	waitFor(t, "polling", func() bool { return api.pollCount("j1") >= 1 })
	cancel()
	<-p.Done()
	n := api.pollCount("j1")
	time.Sleep(10 * time.Millisecond)
	if api.pollCount("j1") != n {
		t.Fatalf("polling continued after cancel")
	}
}
