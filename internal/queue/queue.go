package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"token-alerts/internal/domain"
)

const (
	KeyWebhook      = "webhook_queue"
	KeyRetry        = "retry_queue"
	KeyFailed       = "failed_events"
	KeyNotification = "notification_queue"
)

// Outcome reports where a failed job went.
type Outcome int

const (
	OutcomeRetry Outcome = iota
	OutcomeDead
)

func (o Outcome) String() string {
	if o == OutcomeDead {
		return "dead"
	}
	return "retry"
}

// Stats is a snapshot of the queue depths.
type Stats struct {
	Queue         int64 `json:"queue_size"`
	Retry         int64 `json:"retry_queue_size"`
	Failed        int64 `json:"failed_events"`
	Notifications int64 `json:"notification_queue_size"`
}

// Options tune the retry contract.
type Options struct {
	KeyPrefix  string
	MaxRetries int
	RetryDelay time.Duration
	PopTimeout time.Duration
	Now        func() time.Time
}

// Queue is the durable job queue with its retry set and dead-letter list.
// Every call maps to a single-key Redis primitive.
type Queue struct {
	client redis.UniversalClient
	opts   Options
	logger zerolog.Logger

	webhookKey      string
	retryKey        string
	failedKey       string
	notificationKey string
}

// New wires a Redis client into a Queue.
func New(client redis.UniversalClient, opts Options, logger zerolog.Logger) *Queue {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Minute
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		client:          client,
		opts:            opts,
		logger:          logger.With().Str("component", "queue").Logger(),
		webhookKey:      opts.KeyPrefix + KeyWebhook,
		retryKey:        opts.KeyPrefix + KeyRetry,
		failedKey:       opts.KeyPrefix + KeyFailed,
		notificationKey: opts.KeyPrefix + KeyNotification,
	}
}

// Backoff returns base * 2^(retryCount-1).
func Backoff(base time.Duration, retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	return base * time.Duration(1<<(retryCount-1))
}

// Ping checks connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Enqueue appends jobs to the tail of the webhook queue in one RPUSH.
func (q *Queue) Enqueue(ctx context.Context, jobs ...domain.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(jobs))
	for _, job := range jobs {
		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job %s: %w", job.EventID, err)
		}
		values = append(values, payload)
	}
	if err := q.client.RPush(ctx, q.webhookKey, values...).Err(); err != nil {
		return fmt.Errorf("enqueue jobs: %w", err)
	}
	return nil
}

// Dequeue blocks up to PopTimeout for the next job. It returns nil, nil on timeout.
// Payloads that cannot be decoded are moved to the dead-letter list as-is.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Job, error) {
	res, err := q.client.BLPop(ctx, q.opts.PopTimeout, q.webhookKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("dequeue job: unexpected reply length %d", len(res))
	}

	var job domain.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil || job.EventID == "" {
		q.logger.Error().Err(err).Str("payload", res[1]).Msg("malformed job moved to dead letters")
		if pushErr := q.client.RPush(ctx, q.failedKey, res[1]).Err(); pushErr != nil {
			return nil, fmt.Errorf("dead-letter malformed job: %w", pushErr)
		}
		return nil, nil
	}
	return &job, nil
}

// Fail records a failed attempt and either schedules a retry or dead-letters the job.
func (q *Queue) Fail(ctx context.Context, job domain.Job, cause error) (Outcome, error) {
	now := q.opts.Now().UTC()
	job.RetryCount++
	if cause != nil {
		job.LastError = cause.Error()
	}
	job.LastRetryAt = &now

	payload, err := json.Marshal(job)
	if err != nil {
		return OutcomeDead, fmt.Errorf("marshal job %s: %w", job.EventID, err)
	}

	if job.RetryCount <= q.opts.MaxRetries {
		readyAt := now.Add(Backoff(q.opts.RetryDelay, job.RetryCount))
		z := redis.Z{Score: float64(readyAt.Unix()), Member: payload}
		if err := q.client.ZAdd(ctx, q.retryKey, z).Err(); err != nil {
			return OutcomeRetry, fmt.Errorf("schedule retry: %w", err)
		}
		q.logger.Info().Str("event_id", job.EventID).
			Int("retry_count", job.RetryCount).
			Time("ready_at", readyAt).
			Msg("job scheduled for retry")
		return OutcomeRetry, nil
	}

	if err := q.client.RPush(ctx, q.failedKey, payload).Err(); err != nil {
		return OutcomeDead, fmt.Errorf("dead-letter job: %w", err)
	}
	q.logger.Error().Str("event_id", job.EventID).
		Int("retry_count", job.RetryCount).
		Str("last_error", job.LastError).
		Msg("job exhausted retries")
	return OutcomeDead, nil
}

// PromoteDue moves every retry entry whose ready_at has passed back onto the webhook queue.
// Only the members that were read are removed, so entries added meanwhile stay put.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	max := strconv.FormatInt(q.opts.Now().Unix(), 10)
	due, err := q.client.ZRangeByScore(ctx, q.retryKey, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("read due retries: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	values := make([]interface{}, len(due))
	for i, member := range due {
		values[i] = member
	}
	if err := q.client.RPush(ctx, q.webhookKey, values...).Err(); err != nil {
		return 0, fmt.Errorf("requeue due retries: %w", err)
	}
	if err := q.client.ZRem(ctx, q.retryKey, values...).Err(); err != nil {
		return len(due), fmt.Errorf("remove promoted retries: %w", err)
	}
	q.logger.Debug().Int("count", len(due)).Msg("promoted due retries")
	return len(due), nil
}

// Stats reads the depth of all four structures.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	queued := pipe.LLen(ctx, q.webhookKey)
	retry := pipe.ZCard(ctx, q.retryKey)
	failed := pipe.LLen(ctx, q.failedKey)
	notifications := pipe.LLen(ctx, q.notificationKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("read queue stats: %w", err)
	}
	return Stats{
		Queue:         queued.Val(),
		Retry:         retry.Val(),
		Failed:        failed.Val(),
		Notifications: notifications.Val(),
	}, nil
}

// DeadLetter is a parked job; Job is nil when the raw payload could not be decoded.
type DeadLetter struct {
	Raw string
	Job *domain.Job
}

// DeadLetters lists up to limit entries from the head of the dead-letter list.
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]DeadLetter, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := q.client.LRange(ctx, q.failedKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	out := make([]DeadLetter, 0, len(raw))
	for _, entry := range raw {
		letter := DeadLetter{Raw: entry}
		var job domain.Job
		if err := json.Unmarshal([]byte(entry), &job); err == nil && job.EventID != "" {
			letter.Job = &job
		}
		out = append(out, letter)
	}
	return out, nil
}

// ReplayDeadLetters moves up to limit decodable dead letters back onto the webhook queue.
// RetryCount is kept, so a replayed job that fails again goes straight back to the dead letters.
func (q *Queue) ReplayDeadLetters(ctx context.Context, limit int) (replayed int, skipped int, err error) {
	depth, err := q.client.LLen(ctx, q.failedKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("count dead letters: %w", err)
	}
	if int64(limit) > depth {
		limit = int(depth)
	}
	for i := 0; i < limit; i++ {
		entry, popErr := q.client.LPop(ctx, q.failedKey).Result()
		if popErr != nil {
			if errors.Is(popErr, redis.Nil) {
				return replayed, skipped, nil
			}
			return replayed, skipped, fmt.Errorf("pop dead letter: %w", popErr)
		}

		var job domain.Job
		if jsonErr := json.Unmarshal([]byte(entry), &job); jsonErr != nil || job.EventID == "" {
			skipped++
			if pushErr := q.client.RPush(ctx, q.failedKey, entry).Err(); pushErr != nil {
				return replayed, skipped, fmt.Errorf("park malformed dead letter: %w", pushErr)
			}
			continue
		}

		if pushErr := q.client.RPush(ctx, q.webhookKey, entry).Err(); pushErr != nil {
			// put it back where it was
			_ = q.client.LPush(ctx, q.failedKey, entry).Err()
			return replayed, skipped, fmt.Errorf("replay dead letter %s: %w", job.EventID, pushErr)
		}
		replayed++
		q.logger.Info().Str("event_id", job.EventID).Int("retry_count", job.RetryCount).Msg("dead letter replayed")
	}
	return replayed, skipped, nil
}
