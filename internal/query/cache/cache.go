// Package cache implements C2: exact and semantic lookup over prior
// SpeculativeResponses, LRU-bounded. Entries in the in-process LRU and
// the semantic index do not expire; only the Redis backend stores
// entries with a TTL.
package cache

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/model"
	"github.com/hybridrag/queryengine/internal/query/ports"
)

// HitKind distinguishes how a cache entry was located.
type HitKind string

const (
	HitExact    HitKind = "exact"
	HitSemantic HitKind = "semantic"
)

// Hit is the result of a successful Get.
type Hit struct {
	Response   model.SpeculativeResponse
	MatchType  HitKind
	Similarity float64
}

// Config bundles L1/L2 sizing with the semantic-index thresholds.
type Config struct {
	LocalSize    int
	Redis        RedisConfig
	Semantic     SemanticIndexConfig
	SemanticOn   bool
}

// Cache is the C2 facade composing an in-process LRU (L1), a Redis
// backend (L2), and an optional semantic index, fronting a single
// CacheBackend-shaped API for the speculative path.
type Cache struct {
	local    *localLayer
	backend  ports.CacheBackend
	semantic *semanticIndex
	cfg      Config
	logger   zerolog.Logger
}

// New builds a Cache. backend may be nil (semantic-index-only / local-
// only operation, e.g. in tests); when nil, Get/Set fall back to L1
// only and every backend failure path is simply skipped.
func New(cfg Config, backend ports.CacheBackend, logger zerolog.Logger) *Cache {
	c := &Cache{
		local:   newLocalLayer(cfg.LocalSize),
		backend: backend,
		cfg:     cfg,
		logger:  logger.With().Str("component", "cache").Logger(),
	}
	if cfg.SemanticOn {
		c.semantic = newSemanticIndex(cfg.Semantic)
	}
	return c
}

// Get performs the exact-key lookup first, falling back to the
// semantic index when present. A hit is returned only if it passes the
// validity predicates; an invalid L1 entry is removed from L1, while an
// invalid backend entry or semantic match is skipped and left in place.
// A lookup that finds no valid entry is reported as a miss.
func (c *Cache) Get(ctx context.Context, query string, topK int, embedding []float32) (*Hit, bool) {
	key := FingerprintKey(query, topK)

	if entry, ok := c.local.get(key); ok {
		if IsValid(entry.Response) {
			return &Hit{Response: entry.Response, MatchType: HitExact, Similarity: 1.0}, true
		}
		c.local.remove(key)
	}

	if c.backend != nil {
		entry, ok, err := c.backend.Get(ctx, key)
		if err != nil {
			c.logger.Warn().Err(err).Msg("cache backend error on get, treating as miss")
		} else if ok {
			if IsValid(entry.Response) {
				c.local.set(key, *entry)
				return &Hit{Response: entry.Response, MatchType: HitExact, Similarity: 1.0}, true
			}
		}
	}

	if c.semantic != nil && len(embedding) > 0 {
		if matchKey, sim, found := c.semantic.nearest(ctx, embedding); found {
			threshold := c.cfg.Semantic.NearThreshold
			if threshold <= 0 {
				threshold = 0.85
			}
			if sim >= threshold {
				if entry, ok := c.local.get(matchKey); ok && IsValid(entry.Response) {
					kind := HitSemantic
					if sim >= c.cfg.Semantic.ExactThreshold {
						kind = HitExact
					}
					return &Hit{Response: entry.Response, MatchType: kind, Similarity: sim}, true
				}
			}
		}
	}

	return nil, false
}

// Set stores resp under query/topK, subject to the cacheability
// predicates of spec.md §4.2; invalid responses are silently skipped.
func (c *Cache) Set(ctx context.Context, query string, topK int, resp model.SpeculativeResponse, embedding []float32) {
	if !IsValid(resp) {
		return
	}

	key := FingerprintKey(query, topK)
	entry := ports.CacheEntry{Key: key, Response: resp, Embedding: embedding}

	c.local.set(key, entry)

	if c.backend != nil {
		if err := c.backend.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Msg("cache backend error on set, entry kept in L1 only")
		}
	}

	if c.semantic != nil && len(embedding) > 0 {
		c.semantic.add(key, embedding)
	}
}

// Evict triggers the backend's LRU sweep (drop oldest 10% once at
// capacity). L1 eviction is handled automatically by the bounded LRU.
func (c *Cache) Evict(ctx context.Context) {
	if c.backend == nil {
		return
	}
	if err := c.backend.Evict(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("cache eviction sweep failed")
	}
}
