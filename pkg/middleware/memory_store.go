package middleware

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryStoreSize - default maximum number of entries in the MemoryStore.
const DefaultMemoryStoreSize = 250

// MemoryStore is an in-process Store.
// If the store is full, expired entries are removed first, then the entry closest to its expiration.
type MemoryStore struct {
	lock       sync.Mutex
	maxEntries int
	entries    map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates the MemoryStore, DefaultMemoryStoreSize is used if maxEntries <= 0.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryStoreSize
	}
	return &MemoryStore{maxEntries: maxEntries, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	entry, found := s.entries[key]
	if !found {
		return nil, false, nil
	}
	if !time.Now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, found := s.entries[key]; !found && len(s.entries) >= s.maxEntries {
		s.evict(time.Now())
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}

// Len returns number of entries, including expired ones not removed yet.
func (s *MemoryStore) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) evict(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			continue
		}
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.expiresAt
		}
	}
	if len(s.entries) >= s.maxEntries {
		delete(s.entries, oldestKey)
	}
}
