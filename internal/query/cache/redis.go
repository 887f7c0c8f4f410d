package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/ports"
)

// RedisConfig configures the L2 Redis-backed cache layer. Mirrors the
// field naming of the teacher's FalkorDBStoreConfig.
type RedisConfig struct {
	Host           string
	Port           int
	Password       string
	Database       int
	PoolSize       int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	KeyPrefix      string
	TTL            time.Duration
	MaxEntries     int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:           "localhost",
		Port:           6379,
		Database:       0,
		PoolSize:       10,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
		KeyPrefix:      "qcache:",
		TTL:            time.Hour,
		MaxEntries:     10000,
	}
}

// RedisBackend is the L2 CacheBackend: a Redis key/value store for
// entries (TTL-bounded) plus a sorted-set LRU index keyed by
// last-access Unix time, generalizing the teacher's only other
// go-redis usage (FalkorDBStore's sorted-set-indexed graph store) from
// a knowledge graph to a response cache.
type RedisBackend struct {
	client *redis.Client
	cfg    RedisConfig
	logger zerolog.Logger
}

// NewRedisBackend creates a Redis-backed cache layer.
func NewRedisBackend(cfg RedisConfig, logger zerolog.Logger) *RedisBackend {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return &RedisBackend{client: client, cfg: cfg, logger: logger.With().Str("component", "cache.redis").Logger()}
}

func (b *RedisBackend) lruIndexKey() string {
	return b.cfg.KeyPrefix + "lru"
}

// Get implements ports.CacheBackend. Any backend error is logged and
// reported as a miss, never as a hard failure (spec.md §4.2's "cache
// is an optimization, never a source of correctness").
func (b *RedisBackend) Get(ctx context.Context, key string) (*ports.CacheEntry, bool, error) {
	raw, err := b.client.Get(ctx, b.cfg.KeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		b.logger.Warn().Err(err).Str("key", key).Msg("cache backend get failed, treating as miss")
		return nil, false, nil
	}

	var entry ports.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		b.logger.Warn().Err(err).Str("key", key).Msg("corrupt cache entry, dropping")
		_ = b.client.Del(ctx, b.cfg.KeyPrefix+key).Err()
		return nil, false, nil
	}

	b.client.ZAdd(ctx, b.lruIndexKey(), redis.Z{Score: float64(time.Now().Unix()), Member: key})
	return &entry, true, nil
}

// Set implements ports.CacheBackend.
func (b *RedisBackend) Set(ctx context.Context, key string, entry ports.CacheEntry) error {
	if err := b.Evict(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("cache eviction sweep failed, continuing with set")
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to marshal cache entry, dropping write")
		return nil
	}

	ttl := b.cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := b.client.Set(ctx, b.cfg.KeyPrefix+key, encoded, ttl).Err(); err != nil {
		b.logger.Warn().Err(err).Str("key", key).Msg("cache backend set failed")
		return nil
	}
	b.client.ZAdd(ctx, b.lruIndexKey(), redis.Z{Score: float64(time.Now().Unix()), Member: key})
	return nil
}

// SemanticGet has no meaning at this layer; the semantic index lives
// in semantic.go and is composed on top by the Cache facade.
func (b *RedisBackend) SemanticGet(ctx context.Context, vector []float32) (*ports.CacheEntry, float64, bool, error) {
	return nil, 0, false, nil
}

// Evict drops the least-recently-accessed 10% of entries once the
// configured maximum is reached, per spec.md §4.2.
func (b *RedisBackend) Evict(ctx context.Context) error {
	count, err := b.client.ZCard(ctx, b.lruIndexKey()).Result()
	if err != nil {
		return err
	}
	if int(count) < b.cfg.MaxEntries {
		return nil
	}

	evictCount := int(count) / 10
	if evictCount < 1 {
		evictCount = 1
	}

	oldest, err := b.client.ZRange(ctx, b.lruIndexKey(), 0, int64(evictCount-1)).Result()
	if err != nil {
		return err
	}
	if len(oldest) == 0 {
		return nil
	}

	keys := make([]string, len(oldest))
	for i, k := range oldest {
		keys[i] = b.cfg.KeyPrefix + k
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		b.logger.Warn().Err(err).Msg("failed to delete evicted cache keys")
	}
	members := make([]interface{}, len(oldest))
	for i, k := range oldest {
		members[i] = k
	}
	if err := b.client.ZRem(ctx, b.lruIndexKey(), members...).Err(); err != nil {
		b.logger.Warn().Err(err).Msg("failed to trim LRU index")
	}
	b.logger.Debug().Int("evicted", len(oldest)).Msg("cache LRU eviction swept oldest 10%")
	return nil
}
