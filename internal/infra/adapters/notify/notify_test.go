//go:build !integration

package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/adapter"
)

type recordingSink struct {
	got []adapter.Notice
	err error
}

func (r *recordingSink) Notify(ctx context.Context, n adapter.Notice) error {
	r.got = append(r.got, n)
	return r.err
}

var notice = adapter.Notice{
	Level:     adapter.NoticeInfo,
	Workspace: model.WorkspaceRef{ProjectID: "p1", RoomID: "r1"},
	JobID:     "j1",
	JobType:   model.JobTypeModel3D,
	Message:   "3D scene is ready",
}

func TestLogNotifier(t *testing.T) {
	t.Run("should write the notice with workspace and job fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := zerolog.New(&buf)
		if err := NewLogNotifier(&l).Notify(context.Background(), notice); err != nil {
			t.Fatalf("notify: %v", err)
		}
		out := buf.String()
		for _, want := range []string{`"message":"3D scene is ready"`, `"job_id":"j1"`, `"workspace":"p1/r1"`, `"level":"info"`} {
			if !strings.Contains(out, want) {
				t.Errorf("log line %s missing %s", out, want)
			}
		}
	})

	t.Run("should log errors at warn level", func(t *testing.T) {
		var buf bytes.Buffer
		l := zerolog.New(&buf)
		n := notice
		n.Level = adapter.NoticeError
		_ = NewLogNotifier(&l).Notify(context.Background(), n)
		if !strings.Contains(buf.String(), `"level":"warn"`) {
			t.Errorf("log line = %s", buf.String())
		}
	})

	t.Run("should respect a cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := NewLogNotifier(nil).Notify(ctx, notice); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestFanout(t *testing.T) {
	t.Run("should deliver to every sink even when one fails", func(t *testing.T) {
		bad := &recordingSink{err: errors.New("offline")}
		good := &recordingSink{}
		f := NewFanout(bad, nil, good)
		if len(f) != 2 {
			t.Fatalf("nil sinks must be dropped, got %d", len(f))
		}
		err := f.Notify(context.Background(), notice)
		if err == nil || !strings.Contains(err.Error(), "offline") {
			t.Errorf("expected joined error, got %v", err)
		}
		if len(good.got) != 1 || len(bad.got) != 1 {
			t.Errorf("deliveries = %d/%d", len(bad.got), len(good.got))
		}
	})
}
