package license

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	license   License
	cachedAt  time.Time
	expiresAt time.Time
	hits      int
}

// LicenseCache is a bounded TTL cache of license records keyed by license key.
type LicenseCache struct {
	entries   map[string]cacheEntry
	mutex     sync.RWMutex
	ttl       time.Duration
	maxSize   int
	hitCount  int64
	missCount int64
	now       func() time.Time
	stopChan  chan struct{}
	stopOnce  sync.Once

	// loads holds a token per key with a read from the backing store in
	// flight. Invalidate drops the token so the load cannot cache what it read.
	loads   map[string]uint64
	loadSeq uint64
}

// NewLicenseCache creates a cache and starts its expiry sweeper.
func NewLicenseCache(ttl time.Duration, maxSize int) *LicenseCache {
	c := &LicenseCache{
		entries:  make(map[string]cacheEntry),
		loads:    make(map[string]uint64),
		ttl:      ttl,
		maxSize:  maxSize,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *LicenseCache) Get(key string) (License, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		c.missCount++
		return License{}, false
	}

	entry.hits++
	c.entries[key] = entry
	c.hitCount++
	return entry.license, true
}

func (c *LicenseCache) Set(lic License) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.set(lic)
}

func (c *LicenseCache) set(lic License) {
	if c.maxSize <= 0 {
		return
	}
	if _, exists := c.entries[lic.Key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := c.now()
	c.entries[lic.Key] = cacheEntry{
		license:   lic,
		cachedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
}

// BeginLoad registers a read of key from the backing store and returns the
// token to hand to CompleteLoad.
func (c *LicenseCache) BeginLoad(key string) uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.loadSeq++
	c.loads[key] = c.loadSeq
	return c.loadSeq
}

// CompleteLoad caches lic unless key was invalidated, or loaded again,
// since BeginLoad returned token. It reports whether lic was cached.
func (c *LicenseCache) CompleteLoad(key string, lic License, token uint64) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	current, ok := c.loads[key]
	if !ok || current != token {
		return false
	}
	delete(c.loads, key)
	c.set(lic)
	return true
}

// AbortLoad forgets a load that produced no record.
func (c *LicenseCache) AbortLoad(key string, token uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.loads[key] == token {
		delete(c.loads, key)
	}
}

func (c *LicenseCache) Invalidate(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, key)
	delete(c.loads, key)
}

// Stats returns cache counters for diagnostics.
func (c *LicenseCache) Stats() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	total := c.hitCount + c.missCount
	ratio := float64(0)
	if total > 0 {
		ratio = float64(c.hitCount) / float64(total)
	}

	return map[string]interface{}{
		"entries":     len(c.entries),
		"max_size":    c.maxSize,
		"hit_count":   c.hitCount,
		"miss_count":  c.missCount,
		"hit_ratio":   ratio,
		"ttl_seconds": c.ttl.Seconds(),
	}
}

func (c *LicenseCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.cachedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.cachedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Stop ends the sweeper goroutine. It is safe to call more than once.
func (c *LicenseCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *LicenseCache) cleanup() {
	interval := c.ttl
	if interval <= 0 || interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			now := c.now()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mutex.Unlock()
		case <-c.stopChan:
			return
		}
	}
}

// CachedStore serves GetLicense from a LicenseCache in front of another
// Store. Writes through this store invalidate the affected key; writes made
// by other processes become visible after the TTL.
type CachedStore struct {
	Store
	cache *LicenseCache
	group singleflight.Group
}

// NewCachedStore wraps store with a cache of the given TTL and size.
func NewCachedStore(store Store, ttl time.Duration, maxSize int) *CachedStore {
	return &CachedStore{Store: store, cache: NewLicenseCache(ttl, maxSize)}
}

func (s *CachedStore) GetLicense(ctx context.Context, key string) (License, error) {
	if lic, ok := s.cache.Get(key); ok {
		return lic, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		token := s.cache.BeginLoad(key)
		lic, err := s.Store.GetLicense(ctx, key)
		if err != nil {
			s.cache.AbortLoad(key, token)
			return License{}, err
		}
		s.cache.CompleteLoad(key, lic, token)
		return lic, nil
	})
	if err != nil {
		return License{}, err
	}
	return v.(License), nil
}

func (s *CachedStore) PutLicense(ctx context.Context, lic License) error {
	defer s.invalidate(lic.Key)
	return s.Store.PutLicense(ctx, lic)
}

func (s *CachedStore) UpdateLicense(ctx context.Context, key string, fn func(*License) error) (License, error) {
	defer s.invalidate(key)
	return s.Store.UpdateLicense(ctx, key, fn)
}

// invalidate drops the cached record and detaches later readers from a load
// that may have read the record before the write.
func (s *CachedStore) invalidate(key string) {
	s.cache.Invalidate(key)
	s.group.Forget(key)
}

// Stats exposes the cache counters.
func (s *CachedStore) Stats() map[string]interface{} {
	return s.cache.Stats()
}

// Close stops the cache and closes the underlying store.
func (s *CachedStore) Close() error {
	s.cache.Stop()
	return s.Store.Close()
}
