package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
)

// Ensure CacheStore implements the interface.
var _ driven.CacheStore = (*CacheStore)(nil)

// CacheStore is an in-memory implementation of driven.CacheStore.
type CacheStore struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
}

// NewCacheStore creates a new in-memory cache store.
func NewCacheStore() *CacheStore {
	return &CacheStore{
		entries: make(map[string]domain.CacheEntry),
	}
}

// Name identifies the backend.
func (s *CacheStore) Name() string { return "memory" }

// Get returns the entry for a document.
func (s *CacheStore) Get(_ context.Context, documentID string) (*domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

// Put stores or replaces an entry.
func (s *CacheStore) Put(_ context.Context, entry domain.CacheEntry) error {
	if entry.DocumentID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.DocumentID] = entry
	return nil
}

// List returns all entries ordered by document id.
func (s *CacheStore) List(_ context.Context) ([]domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

// Delete removes entries by id.
func (s *CacheStore) Delete(_ context.Context, documentIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range documentIDs {
		delete(s.entries, id)
	}
	return nil
}

// Clear removes all entries.
func (s *CacheStore) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]domain.CacheEntry)
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *CacheStore) Close() error { return nil }
