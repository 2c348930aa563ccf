package limiter

import (
	"container/list"
	"sync"

	"github.com/mailgun/holster/v4/clock"
)

// countCache is a process-local LRU cache of recent counts, used to avoid a
// store round-trip on every request within a short TTL. It is never
// authoritative; expired entries are dropped on access and the shared store's
// value always supersedes it on refresh.
type countCache struct {
	mu        sync.Mutex
	cache     map[string]*list.Element
	ll        *list.List
	cacheSize int
	recorder  MetricsRecorder
}

type cacheRecord struct {
	key      string
	count    int64
	expireAt int64
}

// Return unix epoch in milliseconds.
func millisecondNow() int64 {
	return clock.Now().UnixNano() / 1000000
}

func newCountCache(size int, recorder MetricsRecorder) *countCache {
	return &countCache{
		cache:     make(map[string]*list.Element),
		ll:        list.New(),
		cacheSize: size,
		recorder:  recorder,
	}
}

// add stores count for key until expireAt, evicting the least recently used
// entry when the cache is full.
func (c *countCache) add(key string, count int64, expireAt int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ee, ok := c.cache[key]; ok {
		c.ll.MoveToFront(ee)
		ee.Value = cacheRecord{key: key, count: count, expireAt: expireAt}
		return
	}

	ele := c.ll.PushFront(cacheRecord{key: key, count: count, expireAt: expireAt})
	c.cache[key] = ele
	if c.cacheSize != 0 && c.ll.Len() > c.cacheSize {
		c.removeOldest()
	}
}

// get looks up a non-expired count for key.
func (c *countCache) get(key string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, hit := c.cache[key]; hit {
		entry := ele.Value.(cacheRecord)

		// If the entry has expired, remove it from the cache
		if entry.expireAt < millisecondNow() {
			c.removeElement(ele)
			c.recorder.Add(MetricCacheAccess, 1, map[string]string{"type": "miss"})
			return 0, false
		}
		c.ll.MoveToFront(ele)
		c.recorder.Add(MetricCacheAccess, 1, map[string]string{"type": "hit"})
		return entry.count, true
	}
	c.recorder.Add(MetricCacheAccess, 1, map[string]string{"type": "miss"})
	return 0, false
}

// remove drops key from the cache if present.
func (c *countCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, hit := c.cache[key]; hit {
		c.removeElement(ele)
	}
}

func (c *countCache) removeOldest() {
	if ele := c.ll.Back(); ele != nil {
		c.removeElement(ele)
	}
}

func (c *countCache) removeElement(e *list.Element) {
	c.ll.Remove(e)
	delete(c.cache, e.Value.(cacheRecord).key)
}

// size returns the number of cached keys.
func (c *countCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
