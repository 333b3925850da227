package narrative

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	key        string
	template   *Template
	insertedAt time.Time
	element    *list.Element
}

func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return ttl > 0 && time.Since(e.insertedAt) > ttl
}

// TemplateCache is a size-bounded LRU of parsed templates keyed by "<modality>.<lang>".
// A zero ttl keeps entries until they are evicted or invalidated.
type TemplateCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// CacheStats is a snapshot of cache usage.
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"maxSize"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// NewTemplateCache creates a cache holding at most maxSize templates (minimum 1).
func NewTemplateCache(maxSize int, ttl time.Duration) *TemplateCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &TemplateCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func cacheKey(modality, lang string) string {
	return modality + "." + lang
}

// Get returns the cached template, or false when absent or expired.
func (c *TemplateCache) Get(key string) (*Template, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.isExpired(c.ttl) {
		c.misses++
		if ok {
			c.removeEntry(key)
		}
		return nil, false
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.template, true
}

// Set stores tpl under key, evicting the least recently used entry when full.
func (c *TemplateCache) Set(key string, tpl *Template) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.template = tpl
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{key: key, template: tpl, insertedAt: time.Now()}
	entry.element = c.lruList.PushFront(key)
	c.entries[key] = entry
}

// Invalidate drops every language variant cached for modality.
func (c *TemplateCache) Invalidate(modality string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if hasModalityPrefix(key, modality) {
			c.removeEntry(key)
			removed++
		}
	}
	return removed
}

func hasModalityPrefix(key, modality string) bool {
	return len(key) > len(modality) && key[:len(modality)] == modality && key[len(modality)] == '.'
}

// Clear removes every entry. Hit and miss counters are kept.
func (c *TemplateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

func (c *TemplateCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// CleanupExpired removes expired entries and reports how many were dropped.
func (c *TemplateCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for key, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.removeEntry(key)
	}
	return len(expired)
}

// StartCleanupWorker runs CleanupExpired every interval until ctx is done.
// It blocks, so callers run it on its own goroutine.
func (c *TemplateCache) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-ctx.Done():
			return
		}
	}
}

// must be called with c.mu held
func (c *TemplateCache) removeEntry(key string) {
	if entry, ok := c.entries[key]; ok {
		c.lruList.Remove(entry.element)
		delete(c.entries, key)
	}
}

// must be called with c.mu held
func (c *TemplateCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	key := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, key)
}
