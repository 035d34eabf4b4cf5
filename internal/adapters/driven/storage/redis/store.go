package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "jira-q-sync:"

// connectTimeout bounds the connection check in NewStore.
const connectTimeout = 5 * time.Second

// Store owns a Redis client shared by the cache store, the lease manager
// and the scheduler store.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore connects to the Redis server at redisURL.
func NewStore(ctx context.Context, redisURL, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewStoreWithClient(client, prefix), nil
}

// NewStoreWithClient creates a store from an existing Redis client.
func NewStoreWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// CacheStore returns the cache store backed by this connection.
func (s *Store) CacheStore() *CacheStore {
	return &CacheStore{
		client: s.client,
		prefix: s.prefix + "cache:",
		idsKey: s.prefix + "cache:ids",
	}
}

// LeaseManager returns the lease manager backed by this connection.
func (s *Store) LeaseManager() *LeaseManager {
	return &LeaseManager{client: s.client, prefix: s.prefix + "lease:"}
}

// SchedulerStore returns the scheduler store backed by this connection.
func (s *Store) SchedulerStore() *SchedulerStore {
	return &SchedulerStore{client: s.client, prefix: s.prefix + "schedule:"}
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
