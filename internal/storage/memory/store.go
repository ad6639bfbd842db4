package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"token-alerts/internal/domain"
	"token-alerts/internal/storage"
)

// Store is an in-memory implementation of the storage interfaces.
// It is used when no database is configured and in tests.
type Store struct {
	mu          sync.RWMutex
	tokens      map[domain.TokenKey]*domain.Token
	stats       map[time.Time]*storage.IngestionStat
	subscribers map[string]domain.Subscriber
	locks       map[int64]bool
	nextID      int64
	now         func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tokens:      make(map[domain.TokenKey]*domain.Token),
		stats:       make(map[time.Time]*storage.IngestionStat),
		subscribers: make(map[string]domain.Subscriber),
		locks:       make(map[int64]bool),
		now:         time.Now,
	}
}

// GetToken retrieves a token by natural key. Returns ErrNotFound if not exists.
func (s *Store) GetToken(_ context.Context, key domain.TokenKey) (domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[key]
	if !ok {
		return domain.Token{}, storage.ErrNotFound
	}
	return *t, nil
}

// GetTokenByPair retrieves the token linked to pair. Returns ErrNotFound if none is.
func (s *Store) GetTokenByPair(_ context.Context, pair, blockchain string) (domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Token
	for key, t := range s.tokens {
		if key.Blockchain != blockchain || !strings.EqualFold(t.DexPair, pair) {
			continue
		}
		if found == nil || t.UpdatedAt.After(found.UpdatedAt) {
			found = t
		}
	}
	if found == nil {
		return domain.Token{}, storage.ErrNotFound
	}
	return *found, nil
}

// UpsertToken merges t into the stored record.
func (s *Store) UpsertToken(_ context.Context, t domain.Token) (domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.Key()
	now := s.now().UTC()
	stored, exists := s.tokens[key]
	if exists && stored.IsScam {
		return domain.Token{}, storage.ErrScamTerminal
	}

	merged := t
	if exists {
		merged = domain.MergeToken(*stored, t)
	} else {
		merged.SourceCodeID, merged.AuditID, merged.InformationID = nil, nil, nil
		merged.CreatedAt = now
	}
	if merged.SourceCodeID == nil && t.Verified() && t.SourceCode != "" {
		merged.SourceCodeID = s.newID()
	}
	if merged.InformationID == nil && t.Socials.Any() {
		merged.InformationID = s.newID()
	}
	if merged.AuditID == nil && t.Audit != nil {
		merged.AuditID = s.newID()
	}
	merged.UpdatedAt = now
	merged.Audit = nil
	merged.SourceCode = ""

	s.tokens[key] = &merged

	out := merged
	out.Audit = t.Audit
	out.SourceCode = t.SourceCode
	return out, nil
}

// MarkRenounced sets the sticky renounced flag.
func (s *Store) MarkRenounced(_ context.Context, key domain.TokenKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[key]
	if !ok || t.IsScam {
		return storage.ErrNotFound
	}
	t.IsRenounced = true
	t.UpdatedAt = s.now().UTC()
	return nil
}

// RecordIngestion bumps the hourly counters.
func (s *Store) RecordIngestion(_ context.Context, at time.Time, risk domain.RiskLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := storage.StatBucket(at)
	st, ok := s.stats[bucket]
	if !ok {
		st = &storage.IngestionStat{Bucket: bucket}
		s.stats[bucket] = st
	}
	st.Total++
	switch risk {
	case domain.RiskHigh:
		st.Scams++
	case domain.RiskMedium:
		st.Risky++
	}
	return nil
}

// ListIngestionStats lists buckets in [from, to) ordered by time.
func (s *Store) ListIngestionStats(_ context.Context, from, to time.Time) ([]storage.IngestionStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.IngestionStat, 0, len(s.stats))
	for bucket, st := range s.stats {
		if bucket.Before(from) || !bucket.Before(to) {
			continue
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	return out, nil
}

// ListSubscribers returns all subscribers ordered by id.
func (s *Store) ListSubscribers(_ context.Context) ([]domain.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertSubscriber creates or replaces a subscriber.
func (s *Store) UpsertSubscriber(_ context.Context, sub domain.Subscriber) error {
	if sub.ID == "" {
		return errors.New("memory: subscriber id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[sub.ID] = sub
	return nil
}

// TryAdvisoryLock is a process-local stand-in for the postgres advisory lock.
func (s *Store) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locks[key] {
		return nil, false, nil
	}
	s.locks[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.locks, key)
			s.mu.Unlock()
		})
	}, true, nil
}

func (s *Store) newID() *int64 {
	s.nextID++
	id := s.nextID
	return &id
}

var (
	_ storage.TokenStore      = (*Store)(nil)
	_ storage.StatsStore      = (*Store)(nil)
	_ storage.SubscriberStore = (*Store)(nil)
	_ storage.AdvisoryLocker  = (*Store)(nil)
)
