package notify

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"token-alerts/internal/domain"
)

// MessageSource is the notification queue.
type MessageSource interface {
	PopNotification(ctx context.Context) (*domain.NotificationMessage, error)
	RequeueNotifications(ctx context.Context, msgs ...domain.NotificationMessage) error
}

// SubscriberSource lists the current subscribers.
type SubscriberSource interface {
	Scan(ctx context.Context) ([]domain.Subscriber, error)
}

// FanoutOptions tune the producer and consumers.
type FanoutOptions struct {
	Consumers  int
	BufferSize int
	ErrorPause time.Duration
}

// Counters is a snapshot of fanout activity since start.
type Counters struct {
	Received int64
	Sent     int64
	Dropped  int64
	Filtered int64
}

// Fanout moves notifications from the queue to matching subscribers.
type Fanout struct {
	source  MessageSource
	subs    SubscriberSource
	sender  Sender
	limiter Limiter
	opts    FanoutOptions
	logger  zerolog.Logger

	received atomic.Int64
	sent     atomic.Int64
	dropped  atomic.Int64
	filtered atomic.Int64
}

// NewFanout wires the fanout stage.
func NewFanout(source MessageSource, subs SubscriberSource, sender Sender, limiter Limiter, opts FanoutOptions, logger zerolog.Logger) *Fanout {
	if opts.Consumers <= 0 {
		opts.Consumers = 3
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}
	if opts.ErrorPause <= 0 {
		opts.ErrorPause = time.Second
	}
	return &Fanout{
		source:  source,
		subs:    subs,
		sender:  sender,
		limiter: limiter,
		opts:    opts,
		logger:  logger.With().Str("component", "fanout").Logger(),
	}
}

// Counters returns the activity counters.
func (f *Fanout) Counters() Counters {
	return Counters{
		Received: f.received.Load(),
		Sent:     f.sent.Load(),
		Dropped:  f.dropped.Load(),
		Filtered: f.filtered.Load(),
	}
}

// Run blocks until ctx is cancelled. Buffered messages that no consumer
// picked up are pushed back to the head of the queue before returning.
func (f *Fanout) Run(ctx context.Context) error {
	buf := make(chan domain.NotificationMessage, f.opts.BufferSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(buf)
		f.produce(gctx, buf)
		return nil
	})
	for i := 0; i < f.opts.Consumers; i++ {
		i := i
		g.Go(func() error {
			f.consume(gctx, i, buf)
			return nil
		})
	}
	f.logger.Info().Int("consumers", f.opts.Consumers).Int("buffer", f.opts.BufferSize).Msg("fanout started")

	err := g.Wait()

	var leftover []domain.NotificationMessage
	for msg := range buf {
		leftover = append(leftover, msg)
	}
	f.requeue(leftover...)
	f.logger.Info().Int("requeued", len(leftover)).Msg("fanout stopped")
	return err
}

func (f *Fanout) produce(ctx context.Context, buf chan<- domain.NotificationMessage) {
	for ctx.Err() == nil {
		msg, err := f.source.PopNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Error().Err(err).Msg("pop notification failed")
			if sleepCtx(ctx, f.opts.ErrorPause) != nil {
				return
			}
			continue
		}
		if msg == nil {
			continue
		}
		f.received.Add(1)

		select {
		case buf <- *msg:
		case <-ctx.Done():
			f.requeue(*msg)
			return
		}
	}
}

func (f *Fanout) consume(ctx context.Context, id int, buf <-chan domain.NotificationMessage) {
	log := f.logger.With().Int("consumer", id).Logger()
	for {
		// shutdown wins over pending work; the rest is requeued
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-buf:
			if !ok {
				return
			}
			f.deliver(context.WithoutCancel(ctx), msg, log)
		}
	}
}

// deliver sends msg to every subscriber whose filter matches. Send failures
// are logged and dropped.
func (f *Fanout) deliver(ctx context.Context, msg domain.NotificationMessage, log zerolog.Logger) {
	subs, err := f.subs.Scan(ctx)
	if err != nil {
		f.dropped.Add(1)
		log.Error().Err(err).Str("token", msg.Token.Address).Msg("cannot read subscribers, notification dropped")
		return
	}

	for _, sub := range subs {
		if !ApplyFilters(sub.Filter, msg) {
			f.filtered.Add(1)
			continue
		}
		if err := f.limiter.Wait(ctx); err != nil {
			log.Error().Err(err).Msg("rate limiter unavailable, notification dropped")
			f.dropped.Add(1)
			return
		}

		text := Format(sub.Filter.DisplayPreference, msg)
		if err := f.sender.Send(ctx, sub.ChatID, text); err != nil {
			f.dropped.Add(1)
			log.Error().Err(err).
				Str("subscriber", sub.ID).
				Str("token", msg.Token.Address).
				Msg("notification dropped")
			continue
		}
		f.sent.Add(1)
		log.Debug().
			Str("subscriber", sub.ID).
			Str("event_type", string(msg.EventType)).
			Str("token", msg.Token.Address).
			Msg("notification sent")
	}
}

func (f *Fanout) requeue(msgs ...domain.NotificationMessage) {
	if len(msgs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.source.RequeueNotifications(ctx, msgs...); err != nil {
		f.logger.Error().Err(err).Int("count", len(msgs)).Msg("requeue notifications failed")
	}
}
