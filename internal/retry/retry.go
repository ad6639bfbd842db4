package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

type Class int

const (
	Retryable Class = iota
	Fatal
)

type Policy struct {
	MaxAttempts int           // e.g. 3
	BaseDelay   time.Duration // e.g. 1s
	MaxDelay    time.Duration // e.g. 30s
	Jitter      time.Duration

	// Classify decides whether an error is retryable.
	// If nil, any non-nil error is retried.
	Classify func(error) Class

	// OnRetry is an optional logging hook.
	OnRetry func(attempt int, wait time.Duration, err error)

	// Sleep waits between attempts; tests swap it out.
	Sleep func(ctx context.Context, d time.Duration) error
}

// OnlyOn retries errors matching any of targets and treats the rest as fatal.
func OnlyOn(targets ...error) func(error) Class {
	return func(err error) Class {
		for _, target := range targets {
			if errors.Is(err, target) {
				return Retryable
			}
		}
		return Fatal
	}
}

func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Sleep == nil {
		p.Sleep = sleep
	}
	classify := p.Classify
	if classify == nil {
		classify = func(error) Class { return Retryable }
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if classify(err) == Fatal || attempt == p.MaxAttempts {
			break
		}

		// exponential backoff with cap + jitter
		wait := p.BaseDelay << (attempt - 1)
		if wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		if p.Jitter > 0 {
			wait += time.Duration(rand.Int63n(int64(p.Jitter)))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if err := p.Sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("retry: exhausted with no error")
	}
	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
