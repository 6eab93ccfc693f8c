package store

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/ratelimiter/internal/ratelimit"
)

type memoryEntry struct {
	mu     sync.Mutex
	record *ratelimit.Record
	// dead is set once Sweep has unlinked the entry; holders must retry on a fresh one.
	dead bool
}

// RateLimitMemoryStore is an in-memory implementation of ratelimit.Store.
// Mutual exclusion is per key and only holds within the current process.
type RateLimitMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

// NewRateLimitMemoryStore creates a new in-memory rate limit store.
func NewRateLimitMemoryStore() *RateLimitMemoryStore {
	return &RateLimitMemoryStore{
		entries: make(map[string]*memoryEntry),
	}
}

func (s *RateLimitMemoryStore) GetAndUpdate(
	ctx context.Context, key string, asOf time.Time, fn ratelimit.UpdateFunc,
) (ratelimit.Record, error) {
	if err := ctx.Err(); err != nil {
		return ratelimit.Record{}, err
	}

	for {
		entry := s.entry(key)

		entry.mu.Lock()

		if entry.dead {
			entry.mu.Unlock()

			continue
		}

		var current *ratelimit.Record

		if entry.record != nil && !entry.record.Expired(asOf) {
			snapshot := *entry.record
			current = &snapshot
		}

		next := fn(current, asOf)
		entry.record = &next

		entry.mu.Unlock()

		return next, nil
	}
}

func (s *RateLimitMemoryStore) entry(key string) *memoryEntry {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if ok {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok = s.entries[key]; ok {
		return entry
	}

	entry = &memoryEntry{}
	s.entries[key] = entry

	return entry
}

// Sweep drops every record that is expired as of asOf. Entries busy with an
// update are left for the next sweep.
func (s *RateLimitMemoryStore) Sweep(_ context.Context, asOf time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	for key, entry := range s.entries {
		if !entry.mu.TryLock() {
			continue
		}

		if entry.record == nil || entry.record.Expired(asOf) {
			entry.dead = true
			delete(s.entries, key)
			removed++
		}

		entry.mu.Unlock()
	}

	return removed, nil
}

// Len returns the number of keys currently held.
func (s *RateLimitMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Compile-time check.
var _ ratelimit.Store = (*RateLimitMemoryStore)(nil)
