package driven

import (
	"context"
	"time"
)

// LeaseManager grants exclusive, expiring leases on a named resource.
// The orchestrator holds a lease on the target index for the whole run.
type LeaseManager interface {
	// Acquire takes the lease or returns domain.ErrJobInProgress if another
	// holder owns it. The lease expires after ttl unless refreshed.
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Lease is a held lease.
type Lease interface {
	// Refresh extends the lease by ttl.
	// Returns domain.ErrLeaseNotHeld if the lease was lost.
	Refresh(ctx context.Context, ttl time.Duration) error

	// Release gives up the lease. Releasing a lost lease returns
	// domain.ErrLeaseNotHeld.
	Release(ctx context.Context) error
}
