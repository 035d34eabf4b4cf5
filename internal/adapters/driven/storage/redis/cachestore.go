package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
)

// Ensure CacheStore implements the interface.
var _ driven.CacheStore = (*CacheStore)(nil)

// Hash fields of a cache entry.
const (
	fieldFingerprint   = "fingerprint"
	fieldLastSync      = "last_sync"
	fieldSourceUpdated = "last_source_updated"
	fieldOutcome       = "outcome"
	fieldExpiresAt     = "expires_at"
)

// keyChunk bounds the number of keys per DEL.
const keyChunk = 500

// CacheStore implements driven.CacheStore on Redis hashes.
type CacheStore struct {
	client *redis.Client
	prefix string
	idsKey string
}

// Name identifies the backend.
func (c *CacheStore) Name() string { return "redis" }

func (c *CacheStore) key(documentID string) string {
	return c.prefix + "doc:" + documentID
}

// Get returns the entry for a document. Entries past their expiry have
// been evicted by Redis and report domain.ErrNotFound.
func (c *CacheStore) Get(ctx context.Context, documentID string) (*domain.CacheEntry, error) {
	fields, err := c.client.HGetAll(ctx, c.key(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get cache entry %s: %w", documentID, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	return decodeEntry(documentID, fields)
}

// Put stores or replaces an entry and sets its native expiry.
func (c *CacheStore) Put(ctx context.Context, entry domain.CacheEntry) error {
	if entry.DocumentID == "" {
		return domain.ErrInvalidInput
	}

	key := c.key(entry.DocumentID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			fieldFingerprint:   entry.Fingerprint,
			fieldLastSync:      formatTime(entry.LastSync),
			fieldSourceUpdated: formatTime(entry.LastSourceUpdated),
			fieldOutcome:       string(entry.Outcome),
			fieldExpiresAt:     formatTime(entry.ExpiresAt),
		})
		if entry.ExpiresAt.IsZero() {
			pipe.Persist(ctx, key)
		} else {
			pipe.PExpireAt(ctx, key, entry.ExpiresAt)
		}
		pipe.SAdd(ctx, c.idsKey, entry.DocumentID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save cache entry %s: %w", entry.DocumentID, err)
	}
	return nil
}

// List returns all live entries ordered by document id. Ids whose hash has
// expired are pruned from the index.
func (c *CacheStore) List(ctx context.Context) ([]domain.CacheEntry, error) {
	ids, err := c.client.SMembers(ctx, c.idsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list cache ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, c.key(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}

	entries := make([]domain.CacheEntry, 0, len(ids))
	var stale []any
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		entry, err := decodeEntry(ids[i], fields)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if len(stale) > 0 {
		if err := c.client.SRem(ctx, c.idsKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune expired cache ids: %w", err)
		}
	}
	return entries, nil
}

// Delete removes entries by id. Missing ids are ignored.
func (c *CacheStore) Delete(ctx context.Context, documentIDs ...string) error {
	for start := 0; start < len(documentIDs); start += keyChunk {
		chunk := documentIDs[start:min(start+keyChunk, len(documentIDs))]

		keys := make([]string, len(chunk))
		members := make([]any, len(chunk))
		for i, id := range chunk {
			keys[i] = c.key(id)
			members[i] = id
		}

		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			pipe.SRem(ctx, c.idsKey, members...)
			return nil
		})
		if err != nil {
			return fmt.Errorf("delete cache entries: %w", err)
		}
	}
	return nil
}

// Clear removes all entries and returns how many live entries were removed.
func (c *CacheStore) Clear(ctx context.Context) (int, error) {
	ids, err := c.client.SMembers(ctx, c.idsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list cache ids: %w", err)
	}

	removed := 0
	for start := 0; start < len(ids); start += keyChunk {
		chunk := ids[start:min(start+keyChunk, len(ids))]
		keys := make([]string, len(chunk))
		for i, id := range chunk {
			keys[i] = c.key(id)
		}
		n, err := c.client.Del(ctx, keys...).Result()
		if err != nil {
			return removed, fmt.Errorf("clear cache entries: %w", err)
		}
		removed += int(n)
	}

	if err := c.client.Del(ctx, c.idsKey).Err(); err != nil {
		return removed, fmt.Errorf("clear cache index: %w", err)
	}
	return removed, nil
}

// Close closes the Redis connection.
func (c *CacheStore) Close() error {
	return c.client.Close()
}

func decodeEntry(documentID string, fields map[string]string) (*domain.CacheEntry, error) {
	entry := domain.CacheEntry{
		DocumentID:  documentID,
		Fingerprint: fields[fieldFingerprint],
		Outcome:     domain.SyncOutcome(fields[fieldOutcome]),
	}

	var err error
	if entry.LastSync, err = parseTime(fields[fieldLastSync]); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", documentID, err)
	}
	if entry.LastSourceUpdated, err = parseTime(fields[fieldSourceUpdated]); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", documentID, err)
	}
	if entry.ExpiresAt, err = parseTime(fields[fieldExpiresAt]); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", documentID, err)
	}
	return &entry, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

var errBadTime = errors.New("invalid timestamp")

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", errBadTime, s)
	}
	return t, nil
}
