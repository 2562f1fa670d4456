// Package caching wraps an in-process TTL cache used for OMDB answers and login attempt counters.
package caching

import (
	"time"

	"github.com/patrickmn/go-cache"
)

type Cache struct {
	memoryCache *cache.Cache
}

// NewCache creates a cache whose entries expire after defaultTTL unless Set says otherwise.
func NewCache(defaultTTL, cleanupInterval time.Duration) *Cache {
	return &Cache{memoryCache: cache.New(defaultTTL, cleanupInterval)}
}

func (s *Cache) Get(key string) (any, bool) {
	return s.memoryCache.Get(key)
}

// Set stores value; a zero ttl uses the cache default.
func (s *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl == 0 {
		ttl = cache.DefaultExpiration
	}
	s.memoryCache.Set(key, value, ttl)
}

func (s *Cache) Delete(key string) {
	s.memoryCache.Delete(key)
}

// Incr adds one to the counter at key and returns the new value. A missing counter
// starts at 1 and expires ttl after that first hit; later hits keep the original expiry.
func (s *Cache) Incr(key string, ttl time.Duration) int {
	for {
		if n, err := s.memoryCache.IncrementInt(key, 1); err == nil {
			return n
		}
		if err := s.memoryCache.Add(key, 1, ttl); err == nil {
			return 1
		}
	}
}

func (s *Cache) ItemCount() int {
	return s.memoryCache.ItemCount()
}

func (s *Cache) Flush() {
	s.memoryCache.Flush()
}
