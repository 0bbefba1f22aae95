package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCacheMiss is returned when no fresh entry exists for a key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry is returned when a stored value cannot be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores API responses in Redis. Redis expiry follows the entry's
// Expires field, so stale entries disappear on their own.
type Manager struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewManager creates a manager on top of redisClient, which must not be nil.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("cache: nil redis client")
	}
	return &Manager{
		redis:  redisClient,
		logger: log.With().Str("component", "cache").Logger(),
	}
}

// Get returns the entry stored under key. Missing and expired entries
// both yield ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	k := key.String()
	raw, err := m.redis.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	case err != nil:
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("read %s: %w", k, err)
	}

	entry := new(CacheEntry)
	if err := json.Unmarshal(raw, entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, k, err)
	}
	if entry.IsExpired() {
		// Redis normally expires the key first; clock skew can leave it behind.
		if err := m.Delete(ctx, key); err != nil {
			m.logger.Debug().Err(err).Str("key", k).Msg("Failed to drop expired entry")
		}
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	m.logger.Debug().Str("key", k).Dur("ttl", entry.TTL()).Msg("Cache hit")
	return entry, nil
}

// Set stores entry under key until entry.Expires. Entries that are already
// expired are not written.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache: nil entry")
	}
	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("encode cache entry: %w", err)
	}

	k := key.String()
	if err := m.redis.Set(ctx, k, raw, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("write %s: %w", k, err)
	}
	m.logger.Debug().Str("key", k).Dur("ttl", ttl).Msg("Cached response")
	return nil
}

// Delete removes the entry stored under key.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	k := key.String()
	if err := m.redis.Del(ctx, k).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("delete %s: %w", k, err)
	}
	return nil
}

// DeleteSubject removes every entry cached for subject, across endpoints
// and query parameters, and returns how many keys were removed.
func (m *Manager) DeleteSubject(ctx context.Context, subject string) (int, error) {
	if subject == "" {
		return 0, nil
	}

	pattern := KeyPrefix + ":*:sub=" + subject
	removed := 0
	iter := m.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := m.redis.Del(ctx, iter.Val()).Err(); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			return removed, fmt.Errorf("delete %s: %w", iter.Val(), err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return removed, fmt.Errorf("scan %s: %w", pattern, err)
	}

	m.logger.Debug().Str("subject", subject).Int("keys", removed).Msg("Dropped cached responses")
	return removed, nil
}
