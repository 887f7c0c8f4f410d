package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hybridrag/queryengine/internal/query/ports"
)

// localLayer is the in-process L1 cache fronting the shared backend,
// grounded on Aman-CERP-amanmcp's CachedEmbedder cache-before-delegate
// pattern: check the cheap in-memory cache before paying for a
// network round-trip to Redis.
type localLayer struct {
	entries *lru.Cache[string, ports.CacheEntry]
}

func newLocalLayer(size int) *localLayer {
	if size <= 0 {
		size = 1000
	}
	c, _ := lru.New[string, ports.CacheEntry](size)
	return &localLayer{entries: c}
}

func (l *localLayer) get(key string) (ports.CacheEntry, bool) {
	return l.entries.Get(key)
}

func (l *localLayer) set(key string, entry ports.CacheEntry) {
	l.entries.Add(key, entry)
}

func (l *localLayer) remove(key string) {
	l.entries.Remove(key)
}
