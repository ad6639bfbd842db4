package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"token-alerts/internal/chain"
	"token-alerts/internal/config"
	"token-alerts/internal/enrich"
	"token-alerts/internal/notify"
	"token-alerts/internal/queue"
	"token-alerts/internal/scheduler"
	"token-alerts/internal/storage"
	"token-alerts/internal/storage/memory"
	"token-alerts/internal/version"
	"token-alerts/internal/webhook"
	"token-alerts/internal/worker"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// stores groups the persistence interfaces. pg is nil when running on the in-memory store.
type stores struct {
	tokens      storage.TokenStore
	stats       storage.StatsStore
	subscribers storage.SubscriberStore
	locker      storage.AdvisoryLocker
	pg          *storage.Store
	close       func()
}

func (a *App) openStore(ctx context.Context) (*stores, error) {
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory store")
		mem := memory.NewStore()
		return &stores{tokens: mem, stats: mem, subscribers: mem, locker: mem, close: func() {}}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}
	store := storage.NewStore(pool)
	return &stores{
		tokens:      store,
		stats:       store,
		subscribers: store,
		locker:      store,
		pg:          store,
		close:       store.Close,
	}, nil
}

func (a *App) openPostgres(ctx context.Context) (*storage.Store, error) {
	if a.Config.Database.DSN == "" {
		return nil, errors.New("database.dsn not configured")
	}
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}
	return storage.NewStore(pool), nil
}

func (a *App) openRedis(ctx context.Context) (*redis.Client, error) {
	return queue.NewClient(ctx, a.Config.Redis)
}

func (a *App) newQueue(client redis.UniversalClient) *queue.Queue {
	return queue.New(client, queue.Options{
		KeyPrefix:  a.Config.Redis.KeyPrefix,
		MaxRetries: a.Config.Queue.MaxRetries,
		RetryDelay: a.Config.Queue.RetryDelay,
		PopTimeout: a.Config.Queue.PopTimeout,
	}, a.Logger)
}

func (a *App) newClassifier() *webhook.Classifier {
	cfg := a.Config.Webhook
	return webhook.NewClassifier(webhook.ClassifierOptions{
		LockABIName:               cfg.LockABIName,
		LockSelector:              cfg.LockSelector,
		OwnershipTransferredTopic: cfg.OwnershipTransferredTopic,
		PairCreatedTopic:          cfg.PairCreatedTopic,
		BurnAddresses:             cfg.BurnAddresses,
	})
}

func (a *App) newGateway(q webhook.JobQueue) *webhook.Gateway {
	cfg := a.Config.Webhook
	if cfg.Secret == "" && !a.Config.DevMode {
		a.Logger.Warn().Msg("webhook.secret is empty; every signed request will be rejected")
	}
	return webhook.NewGateway(webhook.Options{
		Path:        cfg.Path,
		Secret:      cfg.Secret,
		DevMode:     a.Config.DevMode,
		QuoteTokens: cfg.QuoteTokens,
		Classifier:  a.newClassifier(),
	}, q, a.Logger)
}

func (a *App) newWorker(q *queue.Queue, st *stores) (*worker.Worker, func(), error) {
	cfg := a.Config
	policy, err := worker.NewReverifyPolicy(cfg.Enrich.ReverifyOn)
	if err != nil {
		return nil, nil, err
	}

	inspector := chain.NewRPCInspector(chain.RPCOptions{
		URLs:    cfg.Chain.RPCURLs,
		Timeout: cfg.Chain.RequestTimeout,
	}, a.Logger)

	processor := worker.NewProcessor(worker.Deps{
		Inspector: inspector,
		Source: enrich.NewEtherscan(enrich.EtherscanOptions{
			BaseURL: cfg.Enrich.Etherscan.BaseURL,
			APIKey:  cfg.Enrich.Etherscan.APIKey,
			Timeout: cfg.Enrich.Etherscan.RequestTimeout,
		}, a.Logger),
		Auditor: enrich.NewGoPlus(enrich.GoPlusOptions{
			BaseURL:     cfg.Enrich.GoPlus.BaseURL,
			AccessToken: cfg.Enrich.GoPlus.AccessToken,
			Timeout:     cfg.Enrich.GoPlus.RequestTimeout,
		}, a.Logger),
		Classifier: enrich.NewKeywordClassifier(),
		Tokens:     st.tokens,
		Stats:      st.stats,
		Notifier:   q,
	}, worker.Options{
		Reverify:           policy,
		BurnAddresses:      cfg.Webhook.BurnAddresses,
		RateLimitAttempts:  cfg.Enrich.RateLimitAttempts,
		RateLimitBaseDelay: cfg.Enrich.RateLimitBaseDelay,
	}, a.Logger)

	w := worker.NewWorker(q, processor, worker.WorkerOptions{ErrorPause: cfg.Queue.ErrorPause}, a.Logger)
	return w, inspector.Close, nil
}

// newSender builds the transport. limiter meters Telegram retries and may be nil.
func (a *App) newSender(limiter notify.Limiter) notify.Sender {
	cfg := a.Config.Notify
	if cfg.Telegram.BotToken == "" {
		a.Logger.Warn().Msg("notify.telegram.bot_token not configured; notifications are only logged")
		return &logSender{logger: a.Logger}
	}
	return notify.NewTelegramSender(notify.TelegramOptions{
		BotToken:  cfg.Telegram.BotToken,
		BaseURL:   cfg.Telegram.APIBase,
		Timeout:   cfg.Telegram.RequestTimeout,
		Attempts:  cfg.SendAttempts,
		BaseDelay: cfg.SendBaseDelay,
		Limiter:   limiter,
	}, a.Logger)
}

func (a *App) newLimiter(client redis.UniversalClient) notify.Limiter {
	cfg := a.Config.Notify
	if cfg.Limiter == "local" {
		return notify.NewWindowLimiter(cfg.RatePerSecond, time.Second, nil, nil)
	}
	return notify.NewRedisLimiter(client, a.Config.Redis.KeyPrefix, cfg.RatePerSecond, nil, nil)
}

// Serve runs the webhook gateway alone.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := a.openRedis(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	return a.serve(ctx, a.newQueue(client))
}

// Work runs the enrichment worker loop alone.
func (a *App) Work(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := a.openRedis(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	return a.work(ctx, a.newQueue(client), st)
}

// Notify runs the notification fanout alone.
func (a *App) Notify(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := a.openRedis(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	return a.notify(ctx, client, a.newQueue(client), st)
}

// Run starts the gateway, the worker and the fanout in one process.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := a.openRedis(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	q := a.newQueue(client)
	a.Logger.Info().Str("build", version.String()).Msg("starting token alert pipeline")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.serve(gctx, q) })
	g.Go(func() error { return a.work(gctx, q, st) })
	g.Go(func() error { return a.notify(gctx, client, q, st) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("pipeline terminated with error")
		return err
	}
	a.Logger.Info().Msg("token alert pipeline stopped")
	return nil
}

func (a *App) serve(ctx context.Context, q *queue.Queue) error {
	return a.newGateway(q).Serve(ctx, a.Config.Webhook.ListenAddr, a.Config.Webhook.ReadTimeout)
}

func (a *App) work(ctx context.Context, q *queue.Queue, st *stores) error {
	w, closeWorker, err := a.newWorker(q, st)
	if err != nil {
		return err
	}
	defer closeWorker()
	return w.Run(ctx)
}

func (a *App) notify(ctx context.Context, client redis.UniversalClient, q *queue.Queue, st *stores) error {
	cfg := a.Config.Notify
	cache := notify.NewSubscriberCache(client, a.Config.Redis.KeyPrefix, a.Logger)
	limiter := a.newLimiter(client)
	fanout := notify.NewFanout(q, cache, a.newSender(limiter), limiter, notify.FanoutOptions{
		Consumers:  cfg.Consumers,
		BufferSize: cfg.BufferSize,
		ErrorPause: a.Config.Queue.ErrorPause,
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fanout.Run(gctx) })

	if st.pg != nil && cfg.CacheRefresh > 0 {
		refresher := notify.NewRefresher(cache, st.subscribers, st.locker, cfg.CacheLockKey, a.Logger)
		sched := scheduler.New(a.cacheRefreshSchedule(), a.Logger)
		g.Go(func() error {
			return sched.Run(gctx, func(ctx context.Context, _ time.Time) error {
				_, err := refresher.Refresh(ctx)
				return err
			})
		})
	} else {
		a.Logger.Warn().Msg("subscriber cache refresh disabled; using the cache as-is")
	}

	if cfg.StateLogInterval > 0 {
		sched := scheduler.New(a.stateLogSchedule(), a.Logger)
		g.Go(func() error {
			return sched.Run(gctx, func(ctx context.Context, at time.Time) error {
				return a.logState(ctx, at, q, cache, fanout)
			})
		})
	}

	return g.Wait()
}

// cacheRefreshSchedule reloads once at startup (after the optional delay), then every CacheRefresh.
func (a *App) cacheRefreshSchedule() scheduler.Options {
	cfg := a.Config.Notify
	return scheduler.Options{
		Name:         "subscriber_cache",
		Interval:     cfg.CacheRefresh,
		StartupDelay: cfg.CacheStartupDelay,
		RunAtStart:   true,
	}
}

// stateLogSchedule ticks on wall-clock boundaries so every process reports the same buckets.
func (a *App) stateLogSchedule() scheduler.Options {
	return scheduler.Options{
		Name:         "state_log",
		Interval:     a.Config.Notify.StateLogInterval,
		AlignToStart: true,
	}
}

func (a *App) logState(ctx context.Context, at time.Time, q *queue.Queue, cache *notify.SubscriberCache, fanout *notify.Fanout) error {
	stats, err := q.Stats(ctx)
	if err != nil {
		return err
	}
	subscribers, err := cache.Count(ctx)
	if err != nil {
		return err
	}
	c := fanout.Counters()
	a.Logger.Info().
		Time("bucket", at).
		Int64("queue", stats.Queue).
		Int64("retry", stats.Retry).
		Int64("failed", stats.Failed).
		Int64("notifications", stats.Notifications).
		Int("subscribers", subscribers).
		Int64("received", c.Received).
		Int64("sent", c.Sent).
		Int64("dropped", c.Dropped).
		Int64("filtered", c.Filtered).
		Msg("pipeline state")
	return nil
}

// logSender stands in for Telegram when no bot token is configured.
type logSender struct {
	logger zerolog.Logger
}

func (s *logSender) Send(_ context.Context, chatID, text string) error {
	s.logger.Info().Str("chat_id", chatID).Str("text", text).Msg("notification (not sent)")
	return nil
}

// ExportOptions hold parameters for exporting ingestion counters.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	ChatID     string
	EventType  string
	Preference string
}
