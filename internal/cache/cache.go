// Package cache implements the search cache described for the search
// service: entries keyed by a normalized query + time window hash, LRU
// eviction by last access, lazy + swept TTL expiration, and invalidation of
// entries whose window intersects a mutated time range.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config configures the search cache.
type Config struct {
	Enabled      bool
	MaxSize      int
	ExpirationMs int64
	// RedisAddr, when non-empty, backs the cache with Redis so cache state
	// can be shared across multiple GrepWise processes. Empty means
	// in-process only.
	RedisAddr string
	RedisDB   int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxSize:      1024,
		ExpirationMs: 60000,
	}
}

// entry is one cached search/histogram result.
type entry struct {
	key        string
	value      interface{}
	start, end time.Time
	expiresAt  time.Time
	elem       *list.Element // position in the LRU list
}

// Stats are the counters the spec requires the cache to expose.
type Stats struct {
	Hits      int64
	Misses    int64
	Size      int
	Evictions int64
}

func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is the search cache. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
	lru     *list.List // front = most recently used

	hits      int64
	misses    int64
	evictions int64

	redis *redis.Client

	stopSweep chan struct{}
}

// New creates a Cache. If cfg.RedisAddr is set, cached values are mirrored
// into Redis so independent processes share cache state; the in-process map
// remains authoritative for LRU/eviction bookkeeping.
func New(cfg Config) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1024
	}
	if cfg.ExpirationMs <= 0 {
		cfg.ExpirationMs = 60000
	}

	c := &Cache{
		cfg:       cfg,
		entries:   make(map[string]*entry),
		lru:       list.New(),
		stopSweep: make(chan struct{}),
	}

	if cfg.RedisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
	}

	go c.sweepLoop()
	return c
}

// Key computes the normalized cache key for a query over a time window, per
// the documented hashing scheme: sha256(normalize(query) || isRegex || start || end).
func Key(query string, isRegex bool, start, end time.Time) string {
	norm := Normalize(query)
	raw := fmt.Sprintf("%s|%v|%d|%d", norm, isRegex, start.UnixMilli(), end.UnixMilli())
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Normalize collapses whitespace and lowercases bare tokens outside quotes.
func Normalize(query string) string {
	var b strings.Builder
	inQuotes := false
	lastWasSpace := false
	for _, r := range query {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			b.WriteRune(r)
			lastWasSpace = false
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !lastWasSpace {
				b.WriteRune(' ')
				lastWasSpace = true
			}
		default:
			if inQuotes {
				b.WriteRune(r)
			} else {
				b.WriteRune(toLower(r))
			}
			lastWasSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// Get returns the cached value for key if present and not expired.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	if !c.cfg.Enabled {
		c.recordMiss()
		return nil, false
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		if time.Now().After(e.expiresAt) {
			c.removeLocked(e)
			ok = false
		} else {
			c.lru.MoveToFront(e.elem)
		}
	}
	c.mu.Unlock()

	if ok {
		c.recordHit()
		return e.value, true
	}

	if c.redis != nil {
		raw, err := c.redis.Get(ctx, redisKey(key)).Bytes()
		if err == nil {
			var v interface{}
			if json.Unmarshal(raw, &v) == nil {
				c.recordHit()
				return v, true
			}
		}
	}

	c.recordMiss()
	return nil, false
}

// Set stores value under key, covering the given time window for
// intersection-based invalidation.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, start, end time.Time) {
	if !c.cfg.Enabled {
		return
	}

	ttl := time.Duration(c.cfg.ExpirationMs) * time.Millisecond

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		c.removeLocked(existing)
	}
	e := &entry{key: key, value: value, start: start, end: end, expiresAt: time.Now().Add(ttl)}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.evictIfNeededLocked()
	c.mu.Unlock()

	if c.redis != nil {
		if raw, err := json.Marshal(value); err == nil {
			c.redis.Set(ctx, redisKey(key), raw, ttl)
		}
	}
}

func (c *Cache) evictIfNeededLocked() {
	for len(c.entries) > c.cfg.MaxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			return
		}
		c.removeLocked(oldest.Value.(*entry))
		c.evictions++
	}
}

func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.lru.Remove(e.elem)
}

// InvalidateIntersecting removes every cached entry whose [start,end) window
// overlaps the given range. Called on retention/archival deletes and on
// ingest commits, per the documented invalidation rule.
func (c *Cache) InvalidateIntersecting(start, end time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.start.Before(end) && start.Before(e.end) {
			c.removeLocked(e)
		}
	}
}

// InvalidateAll clears the entire cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.lru = list.New()
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// Stats returns a snapshot of hit/miss/eviction counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      len(c.entries),
		Evictions: c.evictions,
	}
}

// Config returns the cache's effective configuration, e.g. for the
// `*/cache/config` REST endpoint.
func (c *Cache) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Cache) sweepLoop() {
	interval := time.Duration(c.cfg.ExpirationMs/4) * time.Millisecond
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			c.removeLocked(e)
		}
	}
}

// Close stops the background sweeper and closes any Redis connection.
func (c *Cache) Close() error {
	close(c.stopSweep)
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

func redisKey(key string) string {
	return "grepwise:search-cache:" + key
}
