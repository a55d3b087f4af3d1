package provenance

import "sync"

const (
	defaultCacheCapacity = 1000
	cacheEvictBatch      = 100
)

// ResultCache is a bounded FIFO cache of verification reports. When an
// insert pushes the cache past capacity the oldest batch of entries is
// dropped at once. Eviction order is insertion order, not access order.
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]Report
	order    []string

	hits   uint64
	misses uint64
}

// NewResultCache returns a cache holding up to capacity reports.
// capacity <= 0 selects the default of 1000.
func NewResultCache(capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &ResultCache{
		capacity: capacity,
		entries:  make(map[string]Report),
	}
}

func (c *ResultCache) Get(key string) (Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return r, ok
}

func (c *ResultCache) Put(key string, report Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		c.entries[key] = report
		return
	}
	c.entries[key] = report
	c.order = append(c.order, key)
	if len(c.entries) > c.capacity {
		c.evictOldest(cacheEvictBatch)
	}
}

func (c *ResultCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	// The stale key stays in order and is skipped at eviction time.
}

func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes n live entries in insertion order, skipping keys
// already removed. Caller holds the lock.
func (c *ResultCache) evictOldest(n int) {
	evicted := 0
	i := 0
	for ; i < len(c.order) && evicted < n; i++ {
		key := c.order[i]
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			evicted++
		}
	}
	c.order = c.order[i:]
}

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:     len(c.entries),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
	}
}
