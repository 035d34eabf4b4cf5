package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
)

// Ensure LeaseManager implements the interface.
var _ driven.LeaseManager = (*LeaseManager)(nil)

// Token-checked scripts. Both return 1 when the caller still holds the lease.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// LeaseManager grants leases stored as Redis keys.
type LeaseManager struct {
	client *redis.Client
	prefix string
}

// Acquire sets the lease key if absent. A held lease returns
// domain.ErrJobInProgress.
func (m *LeaseManager) Acquire(ctx context.Context, name string, ttl time.Duration) (driven.Lease, error) {
	key := m.prefix + name
	token := uuid.New().String()

	ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("lease %s: %w", name, domain.ErrJobInProgress)
	}
	return &lease{client: m.client, key: key, name: name, token: token}, nil
}

// Holder returns the token holding the named lease, or "" when free.
func (m *LeaseManager) Holder(ctx context.Context, name string) (string, error) {
	token, err := m.client.Get(ctx, m.prefix+name).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get lease %s: %w", name, err)
	}
	return token, nil
}

type lease struct {
	client *redis.Client
	key    string
	name   string
	token  string
}

func (l *lease) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lease %s: %w", l.name, err)
	}
	if n == 0 {
		return fmt.Errorf("lease %s: %w", l.name, domain.ErrLeaseNotHeld)
	}
	return nil
}

func (l *lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.name, err)
	}
	if n == 0 {
		return fmt.Errorf("lease %s: %w", l.name, domain.ErrLeaseNotHeld)
	}
	return nil
}
