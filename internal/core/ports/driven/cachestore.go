package driven

import (
	"context"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// CacheStore persists change-detection entries keyed by document id.
type CacheStore interface {
	// Name identifies the backend.
	Name() string

	// Get returns the entry for a document.
	// Returns domain.ErrNotFound if no entry exists.
	Get(ctx context.Context, documentID string) (*domain.CacheEntry, error)

	// Put stores or replaces an entry.
	Put(ctx context.Context, entry domain.CacheEntry) error

	// List returns all entries.
	List(ctx context.Context) ([]domain.CacheEntry, error)

	// Delete removes entries by id. Missing ids are ignored.
	Delete(ctx context.Context, documentIDs ...string) error

	// Clear removes all entries and returns how many were removed.
	Clear(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}
