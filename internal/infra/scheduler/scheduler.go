package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Func is one scheduled run. Returning false ends the task.
type Func func(ctx context.Context) bool

// Task runs a Func on a fixed interval until the Func asks to stop, the
// parent context is cancelled, or Stop is called. It is a handle: the owner
// keeps it and stops it on teardown.
type Task struct {
	name      string
	interval  time.Duration
	fn        Func
	immediate bool
	log       *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Task)

// WithImmediate runs the Func once right away instead of waiting a full
// interval for the first tick.
func WithImmediate() Option { return func(t *Task) { t.immediate = true } }

func WithLogger(l *zerolog.Logger) Option { return func(t *Task) { t.log = l } }

// NewTask constructs a task. If interval <= 0 it defaults to 1 second.
func NewTask(name string, interval time.Duration, fn Func, opts ...Option) *Task {
	if interval <= 0 {
		interval = time.Second
	}
	nop := zerolog.Nop()
	t := &Task{name: name, interval: interval, fn: fn, log: &nop}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start begins the loop in a background goroutine. Calling Start on a
// running task has no effect.
func (t *Task) Start(parent context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		select {
		case <-t.done:
			// finished on its own; allow a restart
			t.cancel()
		default:
			return
		}
	}
	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(ctx, t.done)
}

func (t *Task) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	t.log.Trace().Str("task", t.name).Dur("interval", t.interval).Msg("task started")
	if t.immediate && !t.run(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			t.log.Trace().Str("task", t.name).Msg("task cancelled")
			return
		case <-ticker.C:
			if !t.run(ctx) {
				return
			}
		}
	}
}

func (t *Task) run(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if !t.fn(ctx) {
		t.log.Trace().Str("task", t.name).Msg("task finished")
		return false
	}
	return ctx.Err() == nil
}

// Stop cancels the task and waits for the loop to exit, so no Func run is in
// progress once it returns. It is idempotent. It must not be called from
// inside the task's own Func; return false there instead.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Cancel asks the loop to exit without waiting for it. Unlike Stop it is
// safe to call from any Func, including the task's own.
func (t *Task) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the current run of the loop ends, for any reason.
// It returns a closed channel if the task was never started.
func (t *Task) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.done
}

// Running reports whether the loop is still active.
func (t *Task) Running() bool {
	select {
	case <-t.Done():
		return false
	default:
		return true
	}
}
