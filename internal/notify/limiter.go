package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRatePerSecond is the provider's global send cap.
const DefaultRatePerSecond = 30

// Limiter gates outgoing sends. Wait blocks until a send may proceed.
type Limiter interface {
	Wait(ctx context.Context) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// WindowLimiter allows limit sends per window within one process.
// All consumers share one instance.
type WindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
	sleep  SleepFunc

	mu    sync.Mutex
	count int
	start time.Time
}

// NewWindowLimiter builds a process-local limiter. now and sleep may be nil.
func NewWindowLimiter(limit int, window time.Duration, now func() time.Time, sleep SleepFunc) *WindowLimiter {
	if limit <= 0 {
		limit = DefaultRatePerSecond
	}
	if window <= 0 {
		window = time.Second
	}
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = sleepCtx
	}
	return &WindowLimiter{limit: limit, window: window, now: now, sleep: sleep, start: now()}
}

// Wait implements Limiter. The lock is held while waiting so callers queue up in order.
func (l *WindowLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := l.now().Sub(l.start)
	if elapsed >= l.window {
		l.count, l.start = 0, l.now()
		elapsed = 0
	}
	if l.count >= l.limit {
		if err := l.sleep(ctx, l.window-elapsed); err != nil {
			return err
		}
		l.count, l.start = 0, l.now()
	}
	l.count++
	return nil
}

// RedisLimiter shares the budget across processes with one counter per second.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	now    func() time.Time
	sleep  SleepFunc
}

// NewRedisLimiter builds a centralized limiter. now and sleep may be nil.
func NewRedisLimiter(client redis.UniversalClient, keyPrefix string, limit int, now func() time.Time, sleep SleepFunc) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultRatePerSecond
	}
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = sleepCtx
	}
	return &RedisLimiter{
		client: client,
		prefix: keyPrefix + "notify_rate:",
		limit:  int64(limit),
		now:    now,
		sleep:  sleep,
	}
}

// Wait implements Limiter.
func (l *RedisLimiter) Wait(ctx context.Context) error {
	for {
		now := l.now()
		sec := now.Unix()
		key := fmt.Sprintf("%s%d", l.prefix, sec)

		var incr *redis.IntCmd
		_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, 2*time.Second)
			return nil
		})
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		if incr.Val() <= l.limit {
			return nil
		}

		if err := l.sleep(ctx, time.Unix(sec+1, 0).Sub(now)); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	_ Limiter = (*WindowLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
)
