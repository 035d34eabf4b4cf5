package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driving"
	"github.com/custodia-labs/jira-q-sync/internal/logger"
)

// Ensure ChangeDetectionCache implements the interface.
var _ driving.ChangeCache = (*ChangeDetectionCache)(nil)

// CacheOptions configures the change-detection cache.
type CacheOptions struct {
	// Enabled turns change detection on. When off every document uploads.
	Enabled bool

	// Retention is how long an entry stays valid. Zero selects
	// domain.DefaultCacheRetention.
	Retention time.Duration
}

// ChangeDetectionCache skips documents whose fingerprint matches their
// last successful upload.
type ChangeDetectionCache struct {
	store     driven.CacheStore
	enabled   bool
	retention time.Duration
	now       func() time.Time
}

// NewChangeDetectionCache creates a cache over the given store.
func NewChangeDetectionCache(store driven.CacheStore, opts CacheOptions) *ChangeDetectionCache {
	retention := opts.Retention
	if retention <= 0 {
		retention = domain.DefaultCacheRetention
	}
	return &ChangeDetectionCache{
		store:     store,
		enabled:   opts.Enabled && store != nil,
		retention: retention,
		now:       time.Now,
	}
}

// Enabled reports whether change detection is active.
func (c *ChangeDetectionCache) Enabled() bool { return c.enabled }

// ShouldUpload reports whether the document must be uploaded. Lookup
// errors fail open: the document is uploaded.
func (c *ChangeDetectionCache) ShouldUpload(ctx context.Context, doc domain.Document) bool {
	if !c.enabled {
		return true
	}

	fp, err := Fingerprint(doc)
	if err != nil {
		logger.Warn("Fingerprint %s: %v", doc.ID, err)
		return true
	}

	entry, err := c.store.Get(ctx, doc.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return true
	}
	if err != nil {
		logger.Warn("Cache lookup for %s failed, uploading: %v", doc.ID, err)
		return true
	}

	switch {
	case entry.Outcome != domain.OutcomeSuccess:
		return true
	case entry.Expired(c.now()):
		logger.Debug("Cache entry for %s expired", doc.ID)
		return true
	case entry.Fingerprint != fp:
		return true
	default:
		return false
	}
}

// RecordOutcome stores the upload result for the document.
func (c *ChangeDetectionCache) RecordOutcome(ctx context.Context, doc domain.Document, success bool) error {
	if !c.enabled {
		return nil
	}

	fp, err := Fingerprint(doc)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", doc.ID, err)
	}

	now := c.now()
	outcome := domain.OutcomeSuccess
	if !success {
		outcome = domain.OutcomeFailure
	}
	entry := domain.CacheEntry{
		DocumentID:        doc.ID,
		Fingerprint:       fp,
		LastSync:          now,
		LastSourceUpdated: doc.SourceUpdatedAt,
		Outcome:           outcome,
		ExpiresAt:         now.Add(c.retention),
	}
	if err := c.store.Put(ctx, entry); err != nil {
		return fmt.Errorf("record outcome for %s: %w", doc.ID, err)
	}
	return nil
}

// Stats summarises the cache contents.
func (c *ChangeDetectionCache) Stats(ctx context.Context) (domain.CacheStats, error) {
	if c.store == nil {
		return domain.CacheStats{Backend: "disabled"}, nil
	}

	entries, err := c.store.List(ctx)
	if err != nil {
		return domain.CacheStats{}, fmt.Errorf("list cache entries: %w", err)
	}

	now := c.now()
	stats := domain.CacheStats{Backend: c.store.Name(), EntryCount: len(entries)}
	for _, e := range entries {
		switch e.Outcome {
		case domain.OutcomeSuccess:
			stats.Succeeded++
		case domain.OutcomeFailure:
			stats.Failed++
		}
		if e.Expired(now) {
			stats.Expired++
		}
	}
	return stats, nil
}

// Clear removes every entry.
func (c *ChangeDetectionCache) Clear(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	n, err := c.store.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	logger.Info("Cleared %d cache entries", n)
	return n, nil
}

// DocumentIDs lists every cached document id.
func (c *ChangeDetectionCache) DocumentIDs(ctx context.Context) ([]string, error) {
	if c.store == nil {
		return nil, nil
	}
	entries, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.DocumentID)
	}
	return ids, nil
}

// Forget removes entries for the given documents.
func (c *ChangeDetectionCache) Forget(ctx context.Context, documentIDs ...string) error {
	if c.store == nil || len(documentIDs) == 0 {
		return nil
	}
	if err := c.store.Delete(ctx, documentIDs...); err != nil {
		return fmt.Errorf("delete cache entries: %w", err)
	}
	return nil
}
