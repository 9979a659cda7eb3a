// Package memcache implements the Memory LRU Cache (spec §4.D): a
// size-bounded ordered map from cache key to audio bytes with absolute
// per-entry expiration, promoting hits to the MRU end via container/list.
package memcache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// entryOverhead is the small constant added to a buffer's length when
// estimating its accounted size (spec §4.D: "actual buffer length plus a
// small constant overhead").
const entryOverhead = 64

type entry struct {
	key      string
	data     []byte
	size     int64
	expireAt time.Time
}

// Cache is a thread-safe, byte-bounded LRU cache with absolute per-entry
// expiration, grounded on glow-tts's MemoryCache (other_examples).
type Cache struct {
	mu       sync.RWMutex
	items    map[string]*list.Element
	order    *list.List
	curBytes int64
	maxBytes int64
	ttl      time.Duration
	now      func() time.Time

	hits   int64
	misses int64
}

// Stats mirrors spec §4.D's stats() shape.
type Stats struct {
	Items        int
	ExpiredItems int
	CurrentBytes int64
	MaxBytes     int64
	Hits         int64
	Misses       int64
	HitRate      float64
}

// New constructs a Memory LRU Cache bounded to maxBytes total value bytes,
// with every entry expiring ttl after insertion or update.
func New(maxBytes int64, ttl time.Duration) *Cache {
	return &Cache{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		maxBytes: maxBytes,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Set inserts or updates key, moving it to the MRU end and evicting from
// the LRU end until the size bound is satisfied (spec §4.D).
func (c *Cache) Set(key string, data []byte) {
	size := int64(len(data)) + entryOverhead
	expireAt := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		c.curBytes -= e.size
		e.data = data
		e.size = size
		e.expireAt = expireAt
		c.curBytes += size
		c.order.MoveToFront(elem)
	} else {
		e := &entry{key: key, data: data, size: size, expireAt: expireAt}
		elem := c.order.PushFront(e)
		c.items[key] = elem
		c.curBytes += size
	}

	for c.curBytes > c.maxBytes && c.order.Len() > 0 {
		c.evictBack()
	}
}

// Get returns the bytes for key if present and unexpired, promoting the
// entry to MRU on a hit (spec §4.D). Expired entries are removed and
// counted as a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.RUnlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	e := elem.Value.(*entry)
	expired := c.now().After(e.expireAt)
	var data []byte
	if !expired {
		data = e.data
	}
	c.mu.RUnlock()

	if expired {
		c.mu.Lock()
		if elem, ok := c.items[key]; ok {
			c.removeElement(elem)
		}
		c.mu.Unlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
	}
	c.mu.Unlock()

	atomic.AddInt64(&c.hits, 1)
	return data, true
}

// Contains reports whether key is present and unexpired, without
// affecting LRU order or hit/miss counters.
func (c *Cache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	elem, ok := c.items[key]
	if !ok {
		return false
	}
	return !c.now().After(elem.Value.(*entry).expireAt)
}

// Remove deletes key if present.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.curBytes = 0
}

// Stats reports the current cache stats (spec §4.D).
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expired := 0
	now := c.now()
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*entry).expireAt) {
			expired++
		}
	}

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Items:        c.order.Len(),
		ExpiredItems: expired,
		CurrentBytes: c.curBytes,
		MaxBytes:     c.maxBytes,
		Hits:         hits,
		Misses:       misses,
		HitRate:      hitRate,
	}
}

// evictBack removes the LRU-end entry. Caller must hold the write lock.
func (c *Cache) evictBack() {
	if elem := c.order.Back(); elem != nil {
		c.removeElement(elem)
	}
}

// removeElement removes elem from the index, list, and size accounting.
// Caller must hold the write lock.
func (c *Cache) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(c.items, e.key)
	c.order.Remove(elem)
	c.curBytes -= e.size
}
