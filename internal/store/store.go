// Package store provides the process-wide TTL cache shared by the proxy:
// model lists, anonymous tokens and rendered reasoning content all live
// here. One Store instance is created at startup and injected; there is no
// package-level singleton.
package store

import (
	"fmt"
	"hash/crc32"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	defaultTTL     = 5 * time.Minute
	defaultMaxSize = 1000

	janitorInterval = time.Minute
)

// item holds one cached value with its expiry and recency bookkeeping.
type item struct {
	value      any
	expiresAt  int64 // Unix-nano timestamp
	lastAccess int64
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Evictions int64   `json:"evictions"`
	Sets      int64   `json:"sets"`
}

// Store is an in-memory TTL cache with LRU eviction, safe for concurrent
// use. Entries past their TTL are dropped on access and by a background
// janitor.
type Store struct {
	mu   sync.RWMutex
	data map[string]*item

	defaultTTL time.Duration
	maxSize    int

	hits      int64
	misses    int64
	evictions int64
	sets      int64

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

// New creates a store. ttl is the default entry lifetime when Set receives
// none; maxSize caps the entry count, evicting the least recently used
// entry on overflow.
func New(ttl time.Duration, maxSize int) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}

	s := &Store{
		data:        make(map[string]*item),
		defaultTTL:  ttl,
		maxSize:     maxSize,
		stopJanitor: make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Get returns the cached value for key, or false when absent or expired.
func (s *Store) Get(key string) (any, bool) {
	now := time.Now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.data[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if now > it.expiresAt {
		delete(s.data, key)
		s.misses++
		return nil, false
	}

	it.lastAccess = now
	s.hits++
	return it.value, true
}

// Set stores value under key. A non-positive ttl uses the store default.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := time.Now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists && len(s.data) >= s.maxSize {
		s.evictLRU()
	}
	s.data[key] = &item{
		value:      value,
		expiresAt:  now + ttl.Nanoseconds(),
		lastAccess: now,
	}
	s.sets++
}

// Delete removes key if present.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Clear drops every entry. Counters survive so hit rates stay meaningful
// across an admin flush.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.data)
	s.data = make(map[string]*item)
	return n
}

// Len returns the live entry count, expired entries included until swept.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Stats returns a snapshot of the cache counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Size:      len(s.data),
		MaxSize:   s.maxSize,
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Sets:      s.sets,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close stops the janitor. The store remains usable afterwards; entries
// simply expire lazily on access.
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopJanitor)
	})
	return nil
}

// evictLRU removes the least recently used entry. Caller holds the write
// lock.
func (s *Store) evictLRU() {
	var (
		oldestKey string
		oldest    int64
	)
	for key, it := range s.data {
		if oldestKey == "" || it.lastAccess < oldest {
			oldestKey = key
			oldest = it.lastAccess
		}
	}
	if oldestKey != "" {
		delete(s.data, oldestKey)
		s.evictions++
	}
}

// janitor periodically sweeps expired entries so never-touched keys cannot
// accumulate.
func (s *Store) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.sweep(); removed > 0 {
				slog.Debug("cache janitor removed expired entries", "count", removed)
			}
		case <-s.stopJanitor:
			return
		}
	}
}

// sweep removes expired entries in two passes: collect candidates under the
// read lock, delete with a re-check under the write lock.
func (s *Store) sweep() int {
	now := time.Now().UnixNano()

	expired := make([]string, 0, 16)
	s.mu.RLock()
	for key, it := range s.data {
		if now > it.expiresAt {
			expired = append(expired, key)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return 0
	}

	removed := 0
	s.mu.Lock()
	for _, key := range expired {
		if it, ok := s.data[key]; ok && now > it.expiresAt {
			delete(s.data, key)
			s.evictions++
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}

// Fingerprint builds a cache key from a canonical projection of its parts,
// CRC32 over the unit-separator join.
func Fingerprint(parts ...string) string {
	sum := crc32.ChecksumIEEE([]byte(strings.Join(parts, "\x1f")))
	return fmt.Sprintf("%08x", sum)
}
