package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jira-q-sync/internal/adapters/driven/storage/storetest"
	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
)

func setupTestRedis(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewStore(context.Background(), "redis://"+s.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewStore_BadURL(t *testing.T) {
	_, err := NewStore(context.Background(), "not-a-url", "")
	assert.Error(t, err)
}

func TestNewStore_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	_, err := NewStore(context.Background(), "redis://"+addr, "")
	assert.Error(t, err)
}

func TestCacheStore(t *testing.T) {
	storetest.RunCacheStoreTests(t, func(t *testing.T) driven.CacheStore {
		store, _ := setupTestRedis(t)
		return store.CacheStore()
	})
}

func TestCacheStore_NativeExpiry(t *testing.T) {
	store, s := setupTestRedis(t)
	cache := store.CacheStore()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	short := storetest.Entry("jira-issue-ENG-1", now)
	short.ExpiresAt = now.Add(time.Hour)
	long := storetest.Entry("jira-issue-ENG-2", now)
	long.ExpiresAt = now.Add(48 * time.Hour)
	require.NoError(t, cache.Put(ctx, short))
	require.NoError(t, cache.Put(ctx, long))

	assert.True(t, s.Exists("jira-q-sync:cache:doc:jira-issue-ENG-1"))
	assert.Greater(t, s.TTL("jira-q-sync:cache:doc:jira-issue-ENG-1"), time.Duration(0))

	s.FastForward(2 * time.Hour)

	_, err := cache.Get(ctx, short.DocumentID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := cache.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, long.DocumentID, list[0].DocumentID)

	members, err := s.Members("jira-q-sync:cache:ids")
	require.NoError(t, err)
	assert.Equal(t, []string{long.DocumentID}, members, "expired ids are pruned from the index")
}

func TestCacheStore_NoExpiry(t *testing.T) {
	store, s := setupTestRedis(t)
	cache := store.CacheStore()
	entry := storetest.Entry("jira-issue-ENG-1", time.Now().UTC().Truncate(time.Millisecond))
	entry.ExpiresAt = time.Time{}

	require.NoError(t, cache.Put(context.Background(), entry))

	assert.Zero(t, s.TTL("jira-q-sync:cache:doc:jira-issue-ENG-1"))
	got, err := cache.Get(context.Background(), entry.DocumentID)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.IsZero())
}

func TestCacheStore_Prefix(t *testing.T) {
	s := miniredis.RunT(t)
	store, err := NewStore(context.Background(), "redis://"+s.Addr(), "tenant-a:")
	require.NoError(t, err)
	defer store.Close()

	entry := storetest.Entry("jira-issue-ENG-1", time.Now().UTC())
	require.NoError(t, store.CacheStore().Put(context.Background(), entry))

	assert.True(t, s.Exists("tenant-a:cache:doc:jira-issue-ENG-1"))
	assert.Equal(t, "redis", store.CacheStore().Name())
}

func TestLease_AcquireExclusive(t *testing.T) {
	store, _ := setupTestRedis(t)
	leases := store.LeaseManager()
	ctx := context.Background()

	lease, err := leases.Acquire(ctx, "index-1", time.Minute)
	require.NoError(t, err)

	_, err = leases.Acquire(ctx, "index-1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrJobInProgress)

	other, err := leases.Acquire(ctx, "index-2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))

	again, err := leases.Acquire(ctx, "index-1", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, again.Release(ctx))
}

func TestLease_ExpiresAndIsLost(t *testing.T) {
	store, s := setupTestRedis(t)
	leases := store.LeaseManager()
	ctx := context.Background()

	lease, err := leases.Acquire(ctx, "index-1", time.Minute)
	require.NoError(t, err)

	s.FastForward(2 * time.Minute)

	taker, err := leases.Acquire(ctx, "index-1", time.Minute)
	require.NoError(t, err)

	err = lease.Refresh(ctx, time.Minute)
	assert.True(t, errors.Is(err, domain.ErrLeaseNotHeld))
	err = lease.Release(ctx)
	assert.True(t, errors.Is(err, domain.ErrLeaseNotHeld))

	holder, err := leases.Holder(ctx, "index-1")
	require.NoError(t, err)
	assert.NotEmpty(t, holder, "a lost lease must not release the new holder")

	require.NoError(t, taker.Release(ctx))
	holder, err = leases.Holder(ctx, "index-1")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestLease_Refresh(t *testing.T) {
	store, s := setupTestRedis(t)
	leases := store.LeaseManager()
	ctx := context.Background()

	lease, err := leases.Acquire(ctx, "index-1", time.Minute)
	require.NoError(t, err)

	s.FastForward(50 * time.Second)
	require.NoError(t, lease.Refresh(ctx, time.Minute))
	s.FastForward(50 * time.Second)

	_, err = leases.Acquire(ctx, "index-1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrJobInProgress, "refreshed lease is still held")
	assert.NoError(t, lease.Release(ctx))
}

func TestSchedulerStore(t *testing.T) {
	storetest.RunSchedulerStoreTests(t, func(t *testing.T) driven.SchedulerStore {
		store, _ := setupTestRedis(t)
		return store.SchedulerStore()
	})
}

func TestSchedulerStore_Keys(t *testing.T) {
	store, s := setupTestRedis(t)
	sched := store.SchedulerStore()
	ctx := context.Background()

	require.NoError(t, sched.SaveTask(ctx, &domain.ScheduledTask{ID: domain.TaskIDSync, Interval: time.Hour}))
	result := storetest.Result(domain.TaskIDSync, time.Now())
	require.NoError(t, sched.RecordResult(ctx, &result))

	assert.True(t, s.Exists("jira-q-sync:schedule:task:jira-sync"))
	members, err := s.SMembers("jira-q-sync:schedule:tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"jira-sync"}, members)
	items, err := s.List("jira-q-sync:schedule:history:jira-sync")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
