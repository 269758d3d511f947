// Package stats records accepted ratings outside the scheduler snapshot.
//
// Recording is best-effort: callers log a failed Record and carry on, the
// snapshot stays the source of truth for scheduling.
package stats

import (
	"context"
	"errors"

	"github.com/conorfennell/knolqueue/internal/domain"
)

// Recorder receives one event per accepted rating.
type Recorder interface {
	Record(ctx context.Context, ev domain.ReviewEvent) error
}

// Appender is implemented by durable review journals such as storage.DB.
type Appender interface {
	AppendReview(ctx context.Context, ev domain.ReviewEvent) error
}

// Journal adapts an Appender to a Recorder.
type Journal struct {
	Appender Appender
}

func (j Journal) Record(ctx context.Context, ev domain.ReviewEvent) error {
	if j.Appender == nil {
		return nil
	}
	return j.Appender.AppendReview(ctx, ev)
}

// Multi fans an event out to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, ev domain.ReviewEvent) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, domain.ReviewEvent) error { return nil }
