//go:build !integration

package usecase

import (
	"testing"
	"time"

	"architect-studio/internal/domain/model"
)

func TestETAEstimator_CapsAndFlagsOverdue(t *testing.T) {
	e := NewETAEstimator(map[model.ModelClass]time.Duration{model.ModelClassFast: 60 * time.Second}, 95)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return t0 }
	snap := e.Begin("j1", model.ModelClassFast)

	half := e.Estimate(snap, t0.Add(30*time.Second), false)
	if half.Percent != 50 || half.Remaining != 30*time.Second || half.Overdue {
		t.Fatalf("at 30s: %+v", half)
	}

	late := e.Estimate(snap, t0.Add(90*time.Second), false)
	if late.Percent != 95 {
		t.Fatalf("percent = %v, want capped at 95", late.Percent)
	}
	if !late.Overdue || late.Remaining != 0 {
		t.Fatalf("at 90s: %+v", late)
	}

	done := e.Estimate(snap, t0.Add(90*time.Second), true)
	if done.Percent != 100 || !done.Done {
		t.Fatalf("done: %+v", done)
	}
}

func TestETAEstimator_NeverReaches100BeforeDone(t *testing.T) {
	e := NewETAEstimator(nil, 0)
	t0 := time.Now()
	snap := &model.ProgressSnapshot{StartedAt: t0, EstimatedTotal: time.Minute}
	for _, d := range []time.Duration{0, time.Second, 57 * time.Second, time.Minute, time.Hour} {
		p := e.Estimate(snap, t0.Add(d), false)
		if p.Percent >= 100 || p.Percent > DefaultProgressCap {
			t.Fatalf("elapsed %s: percent %v", d, p.Percent)
		}
	}
}

func TestETAEstimator_ClassDurations(t *testing.T) {
	e := NewETAEstimator(nil, 95)
	if got := e.Begin("", model.ClassForModel(model.Model3DFast)).EstimatedTotal; got != 45*time.Second {
		t.Fatalf("fast = %s", got)
	}
	if got := e.Begin("", model.ClassForModel(model.Model3DQuality)).EstimatedTotal; got != 10*time.Minute {
		t.Fatalf("quality = %s", got)
	}
}
