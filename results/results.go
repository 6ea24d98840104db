// Package results makes verification outcomes pollable by asynchronous
// callers: a bounded-lifetime map from request identifier to outcome,
// swept by an external trigger.
package results

import (
	"sync"
	"time"
)

// DefaultTTL is the retention window applied when a Correlator is built
// without an explicit one.
const DefaultTTL = 5 * time.Minute

var timeNow = time.Now

// Store is the key-value backend a Correlator keeps entries in. A Store
// implementation must be safe for concurrent use; it holds whatever the
// Correlator hands it and applies no expiry logic of its own.
type Store[T any] interface {
	Put(id string, value T)
	Get(id string) (T, bool)
	Delete(id string)
	Keys() []string
}

// MemoryStore is an in-memory Store.
type MemoryStore[T any] struct {
	mu sync.RWMutex
	m  map[string]T
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{m: make(map[string]T)}
}

func (s *MemoryStore[T]) Put(id string, value T) {
	s.mu.Lock()
	s.m[id] = value
	s.mu.Unlock()
}

func (s *MemoryStore[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	value, ok := s.m[id]
	s.mu.RUnlock()
	return value, ok
}

func (s *MemoryStore[T]) Delete(id string) {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
}

func (s *MemoryStore[T]) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	return keys
}

// StoredResult is one retained outcome with its lifetime bounds. Entries
// are never mutated in place; a reused identifier overwrites wholesale.
type StoredResult[T any] struct {
	Outcome   T
	CreatedAt time.Time
	ExpireAt  time.Time
}

// Correlator retains outcomes for a fixed window and serves polling
// reads. It never expires entries on its own; Sweep is driven by an
// external scheduler.
type Correlator[T any] struct {
	store Store[StoredResult[T]]
	ttl   time.Duration
}

// NewCorrelator builds a Correlator on the given store. A non-positive
// ttl selects DefaultTTL. Passing a nil store selects a fresh in-memory
// one.
func NewCorrelator[T any](store Store[StoredResult[T]], ttl time.Duration) *Correlator[T] {
	if store == nil {
		store = NewMemoryStore[StoredResult[T]]()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Correlator[T]{store: store, ttl: ttl}
}

// Store records the outcome under the request identifier, overwriting any
// existing entry for it (last write wins).
func (c *Correlator[T]) Store(id string, outcome T) {
	now := timeNow()
	c.store.Put(id, StoredResult[T]{
		Outcome:   outcome,
		CreatedAt: now,
		ExpireAt:  now.Add(c.ttl),
	})
}

// Lookup returns the stored outcome for the identifier. The second return
// is false uniformly for unknown, not-yet-completed, and expired
// identifiers; callers cannot distinguish these cases. Lookup is a pure
// read: an expired entry is not removed, only hidden, until Sweep runs.
func (c *Correlator[T]) Lookup(id string) (T, bool) {
	entry, ok := c.store.Get(id)
	if !ok || !timeNow().Before(entry.ExpireAt) {
		var zero T
		return zero, false
	}
	return entry.Outcome, true
}

// Sweep removes every entry whose lifetime has passed and reports how
// many were removed.
func (c *Correlator[T]) Sweep() int {
	now := timeNow()
	removed := 0
	for _, id := range c.store.Keys() {
		entry, ok := c.store.Get(id)
		if ok && !now.Before(entry.ExpireAt) {
			c.store.Delete(id)
			removed++
		}
	}
	return removed
}
