package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval. Errors are logged and the schedule continues.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	// Name labels the job in logs.
	Name         string
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// RunAtStart fires one tick before waiting for the first interval.
	RunAtStart bool
}

// Scheduler drives periodic execution of background jobs.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Name == "" {
		opts.Name = "job"
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Str("job", opts.Name).Logger(),
	}
}

// Run blocks, invoking tick at each interval until ctx is cancelled. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	if s.opts.RunAtStart {
		s.fire(ctx, tick, time.Now().UTC())
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			timer.Stop()
		}

		s.fire(ctx, tick, s.tickTime(next))
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc, at time.Time) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Debug().Time("at", at).Msg("executing scheduled tick")
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) tickTime(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
