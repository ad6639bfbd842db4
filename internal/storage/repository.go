package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"token-alerts/internal/domain"
)

const (
	recordIngestionSQL = `INSERT INTO ingestion_stats (bucket_ts, total, scams, risky)
    VALUES ($1, 1, $2, $3)
    ON CONFLICT (bucket_ts) DO UPDATE
    SET total = ingestion_stats.total + 1,
        scams = ingestion_stats.scams + EXCLUDED.scams,
        risky = ingestion_stats.risky + EXCLUDED.risky;`

	listIngestionStatsSQL = `SELECT bucket_ts, total, scams, risky
    FROM ingestion_stats
    WHERE bucket_ts >= $1
      AND bucket_ts < $2
    ORDER BY bucket_ts;`

	listSubscribersSQL = `SELECT id, chat_id, filters
    FROM subscribers
    WHERE active
    ORDER BY id;`

	upsertSubscriberSQL = `INSERT INTO subscribers (id, chat_id, filters)
    VALUES ($1, $2, $3)
    ON CONFLICT (id) DO UPDATE
    SET chat_id    = EXCLUDED.chat_id,
        filters    = EXCLUDED.filters,
        active     = TRUE,
        updated_at = now();`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// TokenStore persists the token aggregate.
type TokenStore interface {
	GetToken(ctx context.Context, key domain.TokenKey) (domain.Token, error)
	GetTokenByPair(ctx context.Context, pair, blockchain string) (domain.Token, error)
	// UpsertToken merges t into the stored record and returns the result.
	UpsertToken(ctx context.Context, t domain.Token) (domain.Token, error)
	MarkRenounced(ctx context.Context, key domain.TokenKey) error
}

// StatsStore keeps the ingestion counters.
type StatsStore interface {
	RecordIngestion(ctx context.Context, at time.Time, risk domain.RiskLevel) error
	ListIngestionStats(ctx context.Context, from, to time.Time) ([]IngestionStat, error)
}

// SubscriberStore is the source of truth for subscriber filters.
type SubscriberStore interface {
	ListSubscribers(ctx context.Context) ([]domain.Subscriber, error)
	UpsertSubscriber(ctx context.Context, sub domain.Subscriber) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL implementation of every store interface.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock dies with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// RecordIngestion bumps the hourly counters for one stored token.
func (s *Store) RecordIngestion(ctx context.Context, at time.Time, risk domain.RiskLevel) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	scams, risky := riskCounters(risk)
	if _, err := pool.Exec(ctx, recordIngestionSQL, StatBucket(at), scams, risky); err != nil {
		return fmt.Errorf("record ingestion: %w", err)
	}
	return nil
}

// ListIngestionStats lists hourly buckets in [from, to).
func (s *Store) ListIngestionStats(ctx context.Context, from, to time.Time) ([]IngestionStat, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listIngestionStatsSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("list ingestion stats: %w", err)
	}
	defer rows.Close()

	stats := make([]IngestionStat, 0)
	for rows.Next() {
		var st IngestionStat
		if err := rows.Scan(&st.Bucket, &st.Total, &st.Scams, &st.Risky); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return stats, nil
}

// ListSubscribers returns all active subscribers.
func (s *Store) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listSubscribersSQL)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Subscriber, 0)
	for rows.Next() {
		var (
			sub     domain.Subscriber
			filters []byte
		)
		if err := rows.Scan(&sub.ID, &sub.ChatID, &filters); err != nil {
			return nil, err
		}
		if len(filters) > 0 {
			if err := json.Unmarshal(filters, &sub.Filter); err != nil {
				return nil, fmt.Errorf("decode filters of subscriber %s: %w", sub.ID, err)
			}
		}
		subs = append(subs, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subs, nil
}

// UpsertSubscriber creates or replaces a subscriber and reactivates it.
func (s *Store) UpsertSubscriber(ctx context.Context, sub domain.Subscriber) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	filters, err := json.Marshal(sub.Filter)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	if _, err := pool.Exec(ctx, upsertSubscriberSQL, sub.ID, sub.ChatID, filters); err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	return nil
}

var (
	_ TokenStore      = (*Store)(nil)
	_ StatsStore      = (*Store)(nil)
	_ SubscriberStore = (*Store)(nil)
	_ AdvisoryLocker  = (*Store)(nil)
)
