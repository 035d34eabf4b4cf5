package memory

import (
	"testing"

	"github.com/custodia-labs/jira-q-sync/internal/adapters/driven/storage/storetest"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
)

func TestCacheStore(t *testing.T) {
	storetest.RunCacheStoreTests(t, func(t *testing.T) driven.CacheStore {
		return NewCacheStore()
	})
}

func TestSchedulerStore(t *testing.T) {
	storetest.RunSchedulerStoreTests(t, func(t *testing.T) driven.SchedulerStore {
		return NewSchedulerStore()
	})
}
