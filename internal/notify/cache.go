package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"token-alerts/internal/domain"
	"token-alerts/internal/storage"
)

const (
	userKeyPrefix = "user:"
	fieldFilters  = "filters"

	// fieldTelegramID is the layout the dashboard and bot write.
	fieldTelegramID = "telegram_id"
	// fieldChatID is read when telegram_id is missing.
	fieldChatID = "chat_id"
	scanBatch   = 200
)

// SubscriberCache keeps subscriber filters as Redis hashes user:<id>.
type SubscriberCache struct {
	client redis.UniversalClient
	prefix string
	logger zerolog.Logger
}

// NewSubscriberCache wires a Redis client into a cache.
func NewSubscriberCache(client redis.UniversalClient, keyPrefix string, logger zerolog.Logger) *SubscriberCache {
	return &SubscriberCache{
		client: client,
		prefix: keyPrefix + userKeyPrefix,
		logger: logger.With().Str("component", "subscriber_cache").Logger(),
	}
}

func (c *SubscriberCache) key(id string) string {
	return c.prefix + id
}

// Load replaces the cached set with subs. Entries not in subs are removed.
func (c *SubscriberCache) Load(ctx context.Context, subs []domain.Subscriber) error {
	keep := make(map[string]struct{}, len(subs))
	for _, sub := range subs {
		keep[c.key(sub.ID)] = struct{}{}
	}
	existing, err := c.keys(ctx)
	if err != nil {
		return err
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range existing {
			if _, ok := keep[key]; !ok {
				pipe.Del(ctx, key)
			}
		}
		for _, sub := range subs {
			filters, err := json.Marshal(sub.Filter)
			if err != nil {
				return fmt.Errorf("encode filters of %s: %w", sub.ID, err)
			}
			key := c.key(sub.ID)
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, fieldFilters, string(filters), fieldTelegramID, sub.ChatID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load subscriber cache: %w", err)
	}
	return nil
}

// Scan returns every cached subscriber that has a chat id and readable filters.
func (c *SubscriberCache) Scan(ctx context.Context) ([]domain.Subscriber, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return nil, err
	}

	subs := make([]domain.Subscriber, 0, len(keys))
	for _, key := range keys {
		fields, err := c.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		chatID := chatIDOf(fields)
		if chatID == "" {
			continue
		}
		sub := domain.Subscriber{ID: strings.TrimPrefix(key, c.prefix), ChatID: chatID}
		if raw := fields[fieldFilters]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &sub.Filter); err != nil {
				// unreadable filters never match
				c.logger.Error().Err(err).Str("key", key).Msg("skipping subscriber with malformed filters")
				continue
			}
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func chatIDOf(fields map[string]string) string {
	for _, name := range []string{fieldTelegramID, fieldChatID} {
		v := strings.TrimSpace(fields[name])
		// the bot stores a missing id as the literal None
		if v != "" && v != "None" {
			return v
		}
	}
	return ""
}

// Count returns the number of cached subscribers.
func (c *SubscriberCache) Count(ctx context.Context) (int, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Clear removes every cached subscriber and returns how many were removed.
func (c *SubscriberCache) Clear(ctx context.Context) (int, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("clear subscriber cache: %w", err)
	}
	return len(keys), nil
}

func (c *SubscriberCache) keys(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan subscriber cache: %w", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Refresher reloads the cache from the subscriber store. Only the process
// holding the advisory lock reloads; the others keep using the shared cache.
type Refresher struct {
	cache   *SubscriberCache
	store   storage.SubscriberStore
	locker  storage.AdvisoryLocker
	lockKey int64
	logger  zerolog.Logger
}

// NewRefresher builds a Refresher. locker may be nil to reload unconditionally.
func NewRefresher(cache *SubscriberCache, store storage.SubscriberStore, locker storage.AdvisoryLocker, lockKey int64, logger zerolog.Logger) *Refresher {
	return &Refresher{
		cache:   cache,
		store:   store,
		locker:  locker,
		lockKey: lockKey,
		logger:  logger.With().Str("component", "cache_refresh").Logger(),
	}
}

// Refresh reloads the cache. It reports whether this call did the reload.
func (r *Refresher) Refresh(ctx context.Context) (bool, error) {
	if r.locker != nil {
		unlock, acquired, err := r.locker.TryAdvisoryLock(ctx, r.lockKey)
		if err != nil {
			return false, fmt.Errorf("acquire refresh lock: %w", err)
		}
		if !acquired {
			r.logger.Debug().Msg("another notifier is refreshing the cache")
			return false, nil
		}
		defer unlock()
	}

	subs, err := r.store.ListSubscribers(ctx)
	if err != nil {
		return false, fmt.Errorf("list subscribers: %w", err)
	}
	if err := r.cache.Load(ctx, subs); err != nil {
		return false, err
	}
	r.logger.Info().Int("subscribers", len(subs)).Msg("subscriber cache refreshed")
	return true, nil
}
