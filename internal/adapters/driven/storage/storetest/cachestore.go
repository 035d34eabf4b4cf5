// Package storetest holds the behaviour suites shared by the storage
// backends, so all backends answer the same way.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
)

// Entry returns a populated cache entry for id with times relative to base.
func Entry(id string, base time.Time) domain.CacheEntry {
	return domain.CacheEntry{
		DocumentID:        id,
		Fingerprint:       "fp-" + id,
		LastSync:          base,
		LastSourceUpdated: base.Add(-time.Hour),
		Outcome:           domain.OutcomeSuccess,
		ExpiresAt:         base.Add(24 * time.Hour),
	}
}

// RunCacheStoreTests exercises a CacheStore. newStore must return an
// empty store; it is called once per subtest.
func RunCacheStoreTests(t *testing.T, newStore func(t *testing.T) driven.CacheStore) {
	t.Helper()
	// Relative to now so backends with native expiry keep the entries.
	base := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("PutGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		entry := Entry("jira-issue-ENG-1", base)

		require.NoError(t, store.Put(ctx, entry))

		got, err := store.Get(ctx, entry.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, entry, *got)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		entry := Entry("jira-issue-ENG-1", base)
		require.NoError(t, store.Put(ctx, entry))

		entry.Fingerprint = "changed"
		entry.Outcome = domain.OutcomeFailure
		entry.LastSourceUpdated = time.Time{}
		require.NoError(t, store.Put(ctx, entry))

		got, err := store.Get(ctx, entry.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, entry, *got)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("PutRequiresID", func(t *testing.T) {
		store := newStore(t)

		err := store.Put(context.Background(), domain.CacheEntry{Outcome: domain.OutcomeSuccess})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("ListDeleteClear", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for _, id := range []string{"b", "a", "c"} {
			require.NoError(t, store.Put(ctx, Entry(id, base)))
		}

		list, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{"a", "b", "c"}, ids(list))

		require.NoError(t, store.Delete(ctx, "a", "missing"))
		list, err = store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, ids(list))

		n, err := store.Clear(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		list, err = store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("DeleteNothing", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Delete(context.Background()))
	})

	t.Run("ClearEmpty", func(t *testing.T) {
		store := newStore(t)
		n, err := store.Clear(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("ManyEntries", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		var all []string
		for i := 0; i < 1200; i++ {
			id := fmt.Sprintf("jira-issue-BULK-%04d", i)
			all = append(all, id)
			require.NoError(t, store.Put(ctx, Entry(id, base)))
		}

		require.NoError(t, store.Delete(ctx, all[:1100]...))

		list, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 100)
		assert.Equal(t, all[1100], list[0].DocumentID)
	})

	t.Run("Name", func(t *testing.T) {
		assert.NotEmpty(t, newStore(t).Name())
	})
}

func ids(entries []domain.CacheEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.DocumentID
	}
	return out
}
