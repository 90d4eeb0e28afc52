package cache

import (
	"sync"
	"time"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
)

const (
	// defaultMemoryTTL caps the absolute age of memory-tier entries
	// regardless of the freshness policy, to bound memory growth.
	defaultMemoryTTL = 45 * time.Minute
	// defaultSweepInterval is how often the janitor evicts expired entries.
	defaultSweepInterval = 5 * time.Minute
)

type memoryEntry struct {
	entry    *Entry
	storedAt time.Time
}

// MemoryCache is the in-process tier. Entries expire on an absolute TTL
// independent of the freshness policy.
type MemoryCache struct {
	mu       sync.RWMutex
	entries  map[Key]memoryEntry
	ttl      time.Duration
	sweep    time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	logger   *logging.Logger
}

// NewMemoryCache creates a memory cache. Zero ttl or sweep fall back to
// the defaults.
func NewMemoryCache(ttl, sweep time.Duration, logger *logging.Logger) *MemoryCache {
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	if sweep <= 0 {
		sweep = defaultSweepInterval
	}
	return &MemoryCache{
		entries:  make(map[Key]memoryEntry),
		ttl:      ttl,
		sweep:    sweep,
		stopChan: make(chan struct{}),
		logger:   logger,
	}
}

// Start launches the expiry sweep janitor.
func (c *MemoryCache) Start() {
	go func() {
		ticker := time.NewTicker(c.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.evictExpired()
			case <-c.stopChan:
				return
			}
		}
	}()
}

// Stop halts the janitor.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// Get returns the entry for the key, or false when missing or expired.
func (c *MemoryCache) Get(key Key) (*Entry, bool) {
	c.mu.RLock()
	stored, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Since(stored.storedAt) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a newer put may have replaced it.
		if cur, ok := c.entries[key]; ok && cur.storedAt.Equal(stored.storedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	entry := stored.entry.Clone()
	entry.Tier = TierMemory
	return entry, true
}

// Put stores the entry, replacing any existing one for the key.
func (c *MemoryCache) Put(entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key] = memoryEntry{
		entry:    entry.Clone(),
		storedAt: time.Now(),
	}
}

// Invalidate removes the entry for the key.
func (c *MemoryCache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) evictExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, stored := range c.entries {
		if now.Sub(stored.storedAt) > c.ttl {
			delete(c.entries, key)
			evicted++
		}
	}
	if evicted > 0 {
		c.logger.Debug("Evicted expired memory cache entries", "count", evicted)
	}
}
