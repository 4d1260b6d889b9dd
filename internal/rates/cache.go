package rates

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/g-abate/rate-compare/internal/models"
	"github.com/g-abate/rate-compare/internal/obs"
)

// Key identifies one cached aggregation: a property, the channel set that
// was queried, and the stay dates. The channel set is sorted so the same
// configuration always derives the same key.
type Key struct {
	PropertyID string
	Channels   string
	CheckIn    string
	CheckOut   string
}

// NewKey derives a cache key from the request parameters.
func NewKey(propertyID string, chs []models.Channel, checkIn, checkOut string) Key {
	names := make([]string, 0, len(chs))
	for _, ch := range chs {
		names = append(names, string(ch))
	}
	sort.Strings(names)
	return Key{
		PropertyID: propertyID,
		Channels:   strings.Join(names, ","),
		CheckIn:    checkIn,
		CheckOut:   checkOut,
	}
}

type cacheEntry struct {
	val    *models.AggregationResult
	expiry time.Time
}

// Cache is a short-lived in-memory store for aggregation results. Entries
// expire a fixed TTL after insertion; expired entries behave as absent.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	items   map[Key]*cacheEntry
	metrics *obs.Metrics
	done    chan struct{}
}

// NewCache creates a cache with the given TTL and starts its background
// sweep. Callers must Close it on teardown.
func NewCache(ttl time.Duration, m *obs.Metrics) *Cache {
	c := &Cache{
		ttl:     ttl,
		items:   make(map[Key]*cacheEntry),
		metrics: m,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Close stops the background sweep.
func (c *Cache) Close() {
	close(c.done)
}

// Get returns the cached result for key, if present and fresh.
func (c *Cache) Get(key Key) (*models.AggregationResult, bool) {
	c.mu.Lock()
	entry, found := c.items[key]
	if !found || time.Now().After(entry.expiry) {
		c.mu.Unlock()
		return nil, false
	}
	val := entry.val
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.IncCacheHits()
	}
	return val, true
}

// Put stores a result under key with the cache's TTL.
func (c *Cache) Put(key Key, val *models.AggregationResult) {
	c.mu.Lock()
	c.items[key] = &cacheEntry{val: val, expiry: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate removes one entry.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// InvalidateProperty removes every entry for a property regardless of
// channel set or dates. Used when the property configuration changes.
func (c *Cache) InvalidateProperty(propertyID string) {
	c.mu.Lock()
	for key := range c.items {
		if key.PropertyID == propertyID {
			delete(c.items, key)
		}
	}
	c.mu.Unlock()
}

// sweep periodically drops expired entries so stale results do not pile up
// between requests.
func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.items {
				if now.After(entry.expiry) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}
