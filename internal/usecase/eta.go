package usecase

import (
	"time"

	"architect-studio/internal/domain/model"
)

const DefaultProgressCap = 95.0

// DefaultDurations is the static model-class table used for display only.
var DefaultDurations = map[model.ModelClass]time.Duration{
	model.ModelClassFast:    45 * time.Second,
	model.ModelClassQuality: 10 * time.Minute,
}

// ETAEstimator turns elapsed wall-clock time into an approximate progress
// figure for jobs whose server reports nothing but done or failed.
type ETAEstimator struct {
	durations map[model.ModelClass]time.Duration
	cap       float64
	now       func() time.Time
}

func NewETAEstimator(durations map[model.ModelClass]time.Duration, capPercent float64) *ETAEstimator {
	table := make(map[model.ModelClass]time.Duration, len(DefaultDurations))
	for k, v := range DefaultDurations {
		table[k] = v
	}
	for k, v := range durations {
		if v > 0 {
			table[k] = v
		}
	}
	if capPercent <= 0 || capPercent >= 100 {
		capPercent = DefaultProgressCap
	}
	return &ETAEstimator{durations: table, cap: capPercent, now: time.Now}
}

func (e *ETAEstimator) Duration(class model.ModelClass) time.Duration {
	if d, ok := e.durations[class]; ok {
		return d
	}
	return e.durations[model.ModelClassQuality]
}

// Begin captures the start of a job of the given class.
func (e *ETAEstimator) Begin(jobID string, class model.ModelClass) *model.ProgressSnapshot {
	return &model.ProgressSnapshot{
		JobID:          jobID,
		ModelClass:     class,
		StartedAt:      e.now(),
		EstimatedTotal: e.Duration(class),
	}
}

// Estimate computes the display value at now. Until done, the percentage is
// capped below 100 because the estimate is a heuristic.
func (e *ETAEstimator) Estimate(s *model.ProgressSnapshot, now time.Time, done bool) model.Progress {
	if s == nil {
		return model.Progress{}
	}
	elapsed := now.Sub(s.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if done {
		return model.Progress{Percent: 100, Elapsed: elapsed, Done: true}
	}

	p := model.Progress{Elapsed: elapsed}
	if s.EstimatedTotal <= 0 {
		p.Percent = e.cap
		return p
	}
	p.Percent = float64(elapsed) / float64(s.EstimatedTotal) * 100
	if p.Percent > e.cap {
		p.Percent = e.cap
	}
	p.Remaining = s.EstimatedTotal - elapsed
	if p.Remaining < 0 {
		p.Remaining = 0
	}
	p.Overdue = elapsed > s.EstimatedTotal
	return p
}

// Now exposes the estimator's clock so tickers share it.
func (e *ETAEstimator) Now() time.Time { return e.now() }
