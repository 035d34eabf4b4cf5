package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
)

// Ensure LeaseManager implements the interface.
var _ driven.LeaseManager = (*LeaseManager)(nil)

// LeaseManager grants in-process leases. It only excludes runs within a
// single process; use the redis lease manager across processes.
type LeaseManager struct {
	mu     sync.Mutex
	leases map[string]heldLease
	now    func() time.Time
}

type heldLease struct {
	token     string
	expiresAt time.Time
}

// NewLeaseManager creates a new in-process lease manager.
func NewLeaseManager() *LeaseManager {
	return &LeaseManager{
		leases: make(map[string]heldLease),
		now:    time.Now,
	}
}

// Acquire takes the named lease.
func (m *LeaseManager) Acquire(_ context.Context, name string, ttl time.Duration) (driven.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if held, ok := m.leases[name]; ok && now.Before(held.expiresAt) {
		return nil, domain.ErrJobInProgress
	}

	token := uuid.NewString()
	m.leases[name] = heldLease{token: token, expiresAt: now.Add(ttl)}
	return &lease{manager: m, name: name, token: token}, nil
}

// Held reports whether the named lease is currently held.
func (m *LeaseManager) Held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.leases[name]
	return ok && m.now().Before(held.expiresAt)
}

type lease struct {
	manager *LeaseManager
	name    string
	token   string
}

func (l *lease) Refresh(_ context.Context, ttl time.Duration) error {
	m := l.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.leases[l.name]
	if !ok || held.token != l.token {
		return domain.ErrLeaseNotHeld
	}
	held.expiresAt = m.now().Add(ttl)
	m.leases[l.name] = held
	return nil
}

func (l *lease) Release(_ context.Context) error {
	m := l.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.leases[l.name]
	if !ok || held.token != l.token {
		return domain.ErrLeaseNotHeld
	}
	delete(m.leases, l.name)
	return nil
}
