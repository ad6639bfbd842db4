package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"token-alerts/internal/domain"
	"token-alerts/internal/queue"
)

// JobQueue is the part of the durable queue the worker loop drives.
type JobQueue interface {
	PromoteDue(ctx context.Context) (int, error)
	Dequeue(ctx context.Context) (*domain.Job, error)
	Fail(ctx context.Context, job domain.Job, cause error) (queue.Outcome, error)
	Enqueue(ctx context.Context, jobs ...domain.Job) error
}

// WorkerOptions tune the consumer loop.
type WorkerOptions struct {
	// ErrorPause is how long the loop waits after a queue error.
	ErrorPause time.Duration
}

// Worker is the long-running consumer loop of one process.
type Worker struct {
	queue     JobQueue
	processor *Processor
	opts      WorkerOptions
	logger    zerolog.Logger
}

// NewWorker wires a queue and a processor into a Worker.
func NewWorker(q JobQueue, p *Processor, opts WorkerOptions, logger zerolog.Logger) *Worker {
	if opts.ErrorPause <= 0 {
		opts.ErrorPause = time.Second
	}
	return &Worker{
		queue:     q,
		processor: p,
		opts:      opts,
		logger:    logger.With().Str("component", "worker").Logger(),
	}
}

// Run blocks until ctx is cancelled. A job that is already being processed
// when ctx is cancelled runs to completion.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("worker started")
	defer w.logger.Info().Msg("worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := w.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error().Err(err).Dur("pause", w.opts.ErrorPause).Msg("worker loop error")
			if !pause(ctx, w.opts.ErrorPause) {
				return nil
			}
		}
	}
}

// Step promotes due retries, then takes and processes at most one job.
// handled is false when the queue stayed empty for the pop timeout.
func (w *Worker) Step(ctx context.Context) (handled bool, err error) {
	if n, err := w.queue.PromoteDue(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("promote due retries failed")
	} else if n > 0 {
		w.logger.Info().Int("count", n).Msg("retries promoted")
	}

	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	// the job must not be torn down half way by shutdown
	jobCtx := context.WithoutCancel(ctx)
	started := time.Now()
	res := w.processor.Process(jobCtx, *job)

	log := w.logger.With().
		Str("event_id", job.EventID).
		Str("event_type", string(job.EventType)).
		Int("retry_count", job.RetryCount).
		Dur("took", time.Since(started)).
		Logger()

	switch res.Status {
	case StatusProcessed:
		log.Info().Str("reason", res.Reason).Msg("job processed")
	case StatusSkipped:
		log.Info().Str("reason", res.Reason).Msg("job skipped")
	case StatusFailed:
		cause := res.Err
		if cause == nil {
			cause = errors.New(res.Reason)
		}
		outcome, err := w.queue.Fail(jobCtx, *job, cause)
		if err != nil {
			return true, w.salvage(jobCtx, log, *job, cause, err)
		}
		log.Warn().Err(cause).Str("outcome", outcome.String()).Msg("job failed")
	}
	return true, nil
}

// salvage runs when the failure could not be recorded. The job has already left
// the work queue, so it is logged in full and pushed back onto the tail.
func (w *Worker) salvage(ctx context.Context, log zerolog.Logger, job domain.Job, cause, failErr error) error {
	job.RetryCount++
	job.LastError = cause.Error()
	now := time.Now().UTC()
	job.LastRetryAt = &now

	ev := log.Error().Err(failErr).Str("cause", job.LastError)
	if payload, err := json.Marshal(job); err == nil {
		ev = ev.RawJSON("job", payload)
	}
	ev.Msg("record job failure failed")

	if err := w.queue.Enqueue(ctx, job); err != nil {
		log.Error().Err(err).Msg("re-enqueue after failed bookkeeping failed; job only survives in this log")
		return fmt.Errorf("record failure of %s: %w", job.EventID, errors.Join(failErr, err))
	}
	log.Warn().Int("retry_count", job.RetryCount).Msg("job re-enqueued after failed bookkeeping")
	return fmt.Errorf("record failure of %s: %w", job.EventID, failErr)
}

func pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
