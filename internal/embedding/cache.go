package embedding

import (
	"sync"
)

// DefaultCacheSize is the number of embeddings kept in memory when no size is given.
const DefaultCacheSize = 4096

type cacheKey struct {
	hash  string
	model string
}

// Cache is a bounded in-memory map from (face hash, model) to embedding.
// When full, the oldest inserted entry is evicted.
type Cache struct {
	mu    sync.RWMutex
	max   int
	items map[cacheKey][]float32
	order []cacheKey
}

// NewCache creates a cache holding at most size entries (DefaultCacheSize if size <= 0).
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		max:   size,
		items: make(map[cacheKey][]float32),
	}
}

// Get returns a copy of the cached embedding.
func (c *Cache) Get(hash, model string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	emb, ok := c.items[cacheKey{hash, model}]
	if !ok {
		return nil, false
	}
	return clone(emb), true
}

// Put stores a copy of emb.
func (c *Cache) Put(hash, model string, emb []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{hash, model}
	if _, ok := c.items[key]; !ok {
		c.order = append(c.order, key)
	}
	c.items[key] = clone(emb)

	for len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
