package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultMemoryEntries is the default capacity of a MemoryStore.
const DefaultMemoryEntries = 32

// MemoryStore is a process-local LRU store. Entries are cloned on the way
// in and out so callers never share trees with the store.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[Key]*memoryEntry
	head     *memoryEntry // Most recently used.
	tail     *memoryEntry // Least recently used.
	capacity int

	hits   atomic.Int64
	misses atomic.Int64
}

type memoryEntry struct {
	key   Key
	value *Entry
	prev  *memoryEntry
	next  *memoryEntry
}

// NewMemory creates a store holding at most capacity entries.
func NewMemory(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryEntries
	}

	return &MemoryStore{entries: map[Key]*memoryEntry{}, capacity: capacity}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key Key) (*Entry, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.entries[key]
	if !ok {
		s.misses.Add(1)

		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	s.hits.Add(1)
	s.moveToFront(node)

	return node.value.Clone(), nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, entry *Entry) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	key := entry.Key()
	value := entry.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if node, ok := s.entries[key]; ok {
		node.value = value
		s.moveToFront(node)

		return nil
	}

	for len(s.entries) >= s.capacity && s.tail != nil {
		s.remove(s.tail)
	}

	node := &memoryEntry{key: key, value: value}
	s.entries[key] = node
	s.addToFront(node)

	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context, key Key) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if node, ok := s.entries[key]; ok {
		s.remove(node)
	}

	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// MemoryStats holds hit/miss counters of a MemoryStore.
type MemoryStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// HitRate returns the hit rate (0.0 to 1.0).
func (s MemoryStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// Stats returns the store's counters.
func (s *MemoryStore) Stats() MemoryStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return MemoryStats{Hits: s.hits.Load(), Misses: s.misses.Load(), Entries: len(s.entries)}
}

// CacheHits returns the number of lookups served.
func (s *MemoryStore) CacheHits() int64 { return s.hits.Load() }

// CacheMisses returns the number of lookups that found nothing.
func (s *MemoryStore) CacheMisses() int64 { return s.misses.Load() }

// CacheEntries returns the number of entries held.
func (s *MemoryStore) CacheEntries() int64 { return int64(s.Stats().Entries) }

func (s *MemoryStore) moveToFront(node *memoryEntry) {
	if node == s.head {
		return
	}

	s.unlink(node)
	s.addToFront(node)
}

func (s *MemoryStore) addToFront(node *memoryEntry) {
	node.prev = nil
	node.next = s.head

	if s.head != nil {
		s.head.prev = node
	}

	s.head = node

	if s.tail == nil {
		s.tail = node
	}
}

func (s *MemoryStore) unlink(node *memoryEntry) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		s.head = node.next
	}

	if node.next != nil {
		node.next.prev = node.prev
	} else {
		s.tail = node.prev
	}
}

func (s *MemoryStore) remove(node *memoryEntry) {
	s.unlink(node)
	delete(s.entries, node.key)
}
