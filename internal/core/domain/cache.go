package domain

import "time"

// DefaultCacheRetention is how long a cache entry stays valid without
// re-validation.
const DefaultCacheRetention = 30 * 24 * time.Hour

// SyncOutcome is the last known upload outcome for a document.
type SyncOutcome string

const (
	OutcomeSuccess SyncOutcome = "success"
	OutcomeFailure SyncOutcome = "failure"
)

// CacheEntry is the persisted change-detection state for one document.
type CacheEntry struct {
	DocumentID        string
	Fingerprint       string
	LastSync          time.Time
	LastSourceUpdated time.Time
	Outcome           SyncOutcome
	ExpiresAt         time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// CacheStats summarises the cache contents.
type CacheStats struct {
	Backend    string
	EntryCount int
	Succeeded  int
	Failed     int
	Expired    int
}
