package cache

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// DefaultConnectTimeout bounds the construction-time PING.
	DefaultConnectTimeout = 5 * time.Second

	// scanBatch is the COUNT hint for SCAN and the DEL batch size.
	scanBatch = 100
)

// Config holds the cache settings.
type Config struct {
	Enabled  bool
	TTL      time.Duration
	RedisURL string // e.g. "redis://localhost:6379/0"
}

// Manager handles caching operations with Redis backend.
// A disabled manager answers every call with a miss or a failed write.
type Manager struct {
	redis   *redis.Client
	ttl     time.Duration
	enabled bool
	logger  zerolog.Logger
}

// NewManager connects to Redis when cfg.Enabled is set. An unparsable URL
// or a failed PING is not fatal: it is logged, and the returned manager
// stays disabled for its lifetime.
func NewManager(ctx context.Context, cfg Config, logger zerolog.Logger) *Manager {
	m := &Manager{ttl: cfg.TTL, logger: logger}
	if !cfg.Enabled {
		return m
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid Redis URL, caching disabled")
		CacheDisabled.Inc()
		return m
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis cache connection failed, caching disabled")
		CacheDisabled.Inc()
		_ = client.Close()
		return m
	}

	logger.Debug().Str("addr", opts.Addr).Dur("ttl", cfg.TTL).Msg("Redis cache connected")
	m.redis = client
	m.enabled = true
	return m
}

// NewManagerWithClient wraps an existing Redis client without probing it.
// The manager owns the client afterwards; Close closes it.
func NewManagerWithClient(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis:   redisClient,
		ttl:     ttl,
		enabled: true,
		logger:  logger,
	}
}

// Enabled reports whether the manager talks to Redis.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// TTL returns the expiry applied by Set.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Get returns the cached value for a fingerprint. The second result is
// false on a miss, when disabled, or when Redis fails.
func (m *Manager) Get(ctx context.Context, fingerprint string) (string, bool) {
	if !m.enabled {
		return "", false
	}

	value, err := m.redis.Get(ctx, Key(fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return "", false
		}
		CacheErrors.WithLabelValues("get").Inc()
		m.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Redis cache get error")
		return "", false
	}

	CacheHits.Inc()
	return value, true
}

// Set stores value under the fingerprint with the configured TTL.
// It reports whether the write succeeded.
func (m *Manager) Set(ctx context.Context, fingerprint, value string) bool {
	if !m.enabled {
		return false
	}

	if err := m.redis.SetEx(ctx, Key(fingerprint), value, m.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		m.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Redis cache set error")
		return false
	}

	m.logger.Debug().Str("fingerprint", fingerprint).Dur("ttl", m.ttl).Msg("Cached response")
	return true
}

// Clear removes one entry. Removing an absent key succeeds.
func (m *Manager) Clear(ctx context.Context, fingerprint string) bool {
	if !m.enabled {
		return false
	}

	if err := m.redis.Del(ctx, Key(fingerprint)).Err(); err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		m.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Redis cache clear error")
		return false
	}
	return true
}

// ClearAll removes every key under KeyPrefix, leaving other keys in the
// same database untouched.
func (m *Manager) ClearAll(ctx context.Context) bool {
	if !m.enabled {
		return false
	}

	var (
		batch   = make([]string, 0, scanBatch)
		deleted int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := m.redis.Del(ctx, batch...).Err(); err != nil {
			return err
		}
		deleted += len(batch)
		batch = batch[:0]
		return nil
	}

	iter := m.redis.Scan(ctx, 0, keyPattern(), scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return m.clearAllFailed(err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return m.clearAllFailed(err)
	}
	if err := flush(); err != nil {
		return m.clearAllFailed(err)
	}

	m.logger.Debug().Int("deleted", deleted).Msg("Cleared response cache")
	return true
}

// List returns the sorted fingerprints of every cached response. The
// second result is false when the cache is disabled or the scan failed.
func (m *Manager) List(ctx context.Context) ([]string, bool) {
	if !m.enabled {
		return nil, false
	}

	fingerprints := []string{}
	iter := m.redis.Scan(ctx, 0, keyPattern(), scanBatch).Iterator()
	for iter.Next(ctx) {
		if fp, ok := Fingerprint(iter.Val()); ok {
			fingerprints = append(fingerprints, fp)
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("list").Inc()
		m.logger.Warn().Err(err).Msg("Redis cache list error")
		return nil, false
	}

	// SCAN may return a key more than once
	slices.Sort(fingerprints)
	return slices.Compact(fingerprints), true
}

func (m *Manager) clearAllFailed(err error) bool {
	CacheErrors.WithLabelValues("clear_all").Inc()
	m.logger.Warn().Err(err).Msg("Redis cache clear_all error")
	return false
}

// Close releases the Redis connection pool, if any.
func (m *Manager) Close() error {
	if m.redis == nil {
		return nil
	}
	return m.redis.Close()
}
