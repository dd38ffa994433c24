package notify

import (
	"context"
	"errors"

	"architect-studio/internal/domain/ports/adapter"
)

var _ adapter.Notifier = Fanout(nil)

// Fanout delivers every notice to all sinks. A failing sink does not stop
// the others; the errors are joined.
type Fanout []adapter.Notifier

func NewFanout(sinks ...adapter.Notifier) Fanout {
	out := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f Fanout) Notify(ctx context.Context, notice adapter.Notice) error {
	var errs []error
	for _, s := range f {
		if err := s.Notify(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
