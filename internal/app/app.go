// Package app assembles the sync engine from configuration: the Jira
// client, the document assembler, the cache and lease backends, the index
// backend and the core services that tie them together.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/jira-q-sync/internal/adapters/driven/index/meili"
	memindex "github.com/custodia-labs/jira-q-sync/internal/adapters/driven/index/memory"
	"github.com/custodia-labs/jira-q-sync/internal/adapters/driven/index/qbusiness"
	"github.com/custodia-labs/jira-q-sync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/jira-q-sync/internal/adapters/driven/storage/redis"
	"github.com/custodia-labs/jira-q-sync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/jira-q-sync/internal/config"
	"github.com/custodia-labs/jira-q-sync/internal/connectors/jira"
	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-q-sync/internal/core/services"
	"github.com/custodia-labs/jira-q-sync/internal/logger"
	normjira "github.com/custodia-labs/jira-q-sync/internal/normalisers/jira"
)

// Index is an index backend that can report its health and history.
type Index interface {
	driven.Indexer
	driven.JobHistory
	Ping(ctx context.Context) error
}

// App holds the wired components. Close releases them.
type App struct {
	Config       *config.Config
	Jira         *jira.Client
	Index        Index
	CacheStore   driven.CacheStore
	Cache        *services.ChangeDetectionCache
	Leases       driven.LeaseManager
	Schedule     driven.SchedulerStore
	Access       *services.PermissionResolver
	Orchestrator *services.SyncOrchestrator

	closers []func() error
}

// Options overrides parts of the wiring.
type Options struct {
	// Index replaces the configured index backend.
	Index Index
}

// New wires every component from cfg. The configuration must be valid.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}
	if err := a.wire(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, opts Options) error {
	cfg := a.Config

	var err error

	a.Jira, err = jira.NewClient(ctx, jira.Config{
		BaseURL:              cfg.Jira.ServerURL,
		Username:             cfg.Jira.Username,
		Password:             cfg.Jira.Password,
		Token:                cfg.Jira.Token,
		VerifySSL:            cfg.Jira.VerifySSL,
		Timeout:              cfg.Jira.TimeoutDuration(),
		RequestsPerSecond:    cfg.Jira.RequestsPerSecond,
		MaxRetries:           jiraRetries(cfg.Jira.MaxRetries),
		RetryDelay:           cfg.Jira.RetryDelay,
		IncludeInactiveUsers: cfg.Jira.IncludeInactiveUsers,
	})
	if err != nil {
		return fmt.Errorf("jira client: %w", err)
	}

	if err := a.openStores(ctx); err != nil {
		return err
	}

	a.Index = opts.Index
	if a.Index == nil {
		if a.Index, err = newIndex(ctx, cfg); err != nil {
			return err
		}
	}

	a.Cache = services.NewChangeDetectionCache(a.CacheStore, services.CacheOptions{
		Enabled:   cfg.Cache.Enabled,
		Retention: cfg.Cache.Retention,
	})
	a.Access = services.NewPermissionResolver(a.Jira, a.Jira, cfg.Sync.FallbackGroupTemplate)

	assembler := normjira.New(normjira.Options{
		SiteURL:         a.Jira.SiteURL(),
		IncludeComments: cfg.Sync.IncludeComments,
		CustomFields:    cfg.Sync.CustomFields,
	})

	threshold := cfg.Sync.FailureThreshold
	a.Orchestrator = services.NewSyncOrchestrator(
		a.Jira, a.Jira, a.Jira, assembler, a.Cache, a.Index, a.Leases,
		services.SyncConfig{
			Query: domain.IssueQuery{
				Projects:   cfg.Sync.Projects,
				IssueTypes: cfg.Sync.IssueTypes,
				JQLFilter:  cfg.Sync.JQLFilter,
			},
			PageSize:              cfg.Sync.PageSize,
			BatchSize:             cfg.Sync.BatchSize,
			Concurrency:           cfg.Sync.Concurrency,
			MaxRetries:            cfg.Sync.MaxRetries,
			RetryInterval:         cfg.Sync.RetryInterval,
			FailureThreshold:      &threshold,
			FallbackGroupTemplate: cfg.Sync.FallbackGroupTemplate,
			LeaseTTL:              cfg.Sync.LeaseTTL,
		},
	)

	if store, ok := a.Index.(driven.PrincipalStore); ok {
		a.Orchestrator.SetPrincipalStore(store)
	}

	logger.Debug("Wired index %s, cache %s", a.Index.Name(), a.CacheStore.Name())
	return nil
}

// openStores selects the cache store, the lease manager and the scheduler
// store. Leases use Redis whenever a Redis URL is configured so that runs
// on different hosts exclude each other. Scheduler state follows the
// cache backend.
func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config

	var shared *redis.Store
	if cfg.Redis.URL != "" {
		store, err := redis.NewStore(ctx, cfg.Redis.URL, cfg.Redis.Prefix)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		shared = store
	}

	switch cfg.Cache.Backend {
	case config.CacheRedis:
		if shared == nil {
			return fmt.Errorf("%w: redis cache backend needs redis.url", domain.ErrInvalidInput)
		}
		a.CacheStore = shared.CacheStore()
		a.Schedule = shared.SchedulerStore()
	case config.CacheSQLite:
		store, err := sqlite.NewStore(cfg.Cache.DataDir)
		if err != nil {
			return fmt.Errorf("sqlite cache: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.CacheStore = store.CacheStore()
		a.Schedule = store.SchedulerStore()
	case config.CacheMemory, "":
		a.CacheStore = memory.NewCacheStore()
		a.Schedule = memory.NewSchedulerStore()
	default:
		return fmt.Errorf("%w: unknown cache backend %q", domain.ErrInvalidInput, cfg.Cache.Backend)
	}

	if shared != nil {
		a.Leases = shared.LeaseManager()
	} else {
		a.Leases = memory.NewLeaseManager()
	}
	return nil
}

func newIndex(ctx context.Context, cfg *config.Config) (Index, error) {
	switch cfg.Index.Backend {
	case config.IndexQBusiness, "":
		ix, err := qbusiness.New(ctx, qbusiness.Config{
			Region:        cfg.AWS.Region,
			ApplicationID: cfg.AWS.ApplicationID,
			IndexID:       cfg.AWS.IndexID,
			DataSourceID:  cfg.AWS.DataSourceID,
			RoleARN:       cfg.AWS.RoleARN,
		})
		if err != nil {
			return nil, fmt.Errorf("q business index: %w", err)
		}
		return ix, nil
	case config.IndexMeili:
		ix, err := meili.New(meili.Config{
			URL:          cfg.Meili.URL,
			APIKey:       cfg.Meili.APIKey,
			IndexUID:     cfg.Meili.IndexUID,
			MaxBatchSize: cfg.Meili.MaxBatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("meilisearch index: %w", err)
		}
		return ix, nil
	case config.IndexMemory:
		return memindex.NewIndexer(cfg.Sync.BatchSize), nil
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q", domain.ErrInvalidInput, cfg.Index.Backend)
	}
}

// jiraRetries maps the configured retry count onto the client, where zero
// selects the default and a negative count disables retries.
func jiraRetries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// Scheduler creates the scheduler for the serve command.
func (a *App) Scheduler(maxRuns int) *services.Scheduler {
	return services.NewScheduler(domain.SchedulerConfig{
		Interval:     a.Config.Schedule.Interval,
		HistoryLimit: a.Config.Schedule.HistoryLimit,
		Clean:        a.Config.Schedule.Clean,
		MaxRuns:      maxRuns,
	}, a.Schedule, a.Orchestrator)
}

// Close releases every opened backend.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
