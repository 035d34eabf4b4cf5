package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Job Errors.

	// ErrJobInProgress indicates a sync job is already outstanding for the
	// target index. A second run must fail instead of queueing.
	ErrJobInProgress = errors.New("sync job already in progress")

	// ErrJobLifecycle indicates starting or stopping the remote sync job failed.
	// Run-fatal: an unmanaged job can block later runs.
	ErrJobLifecycle = errors.New("sync job lifecycle failure")

	// ErrLeaseNotHeld indicates a lease was released or refreshed by a
	// holder that no longer owns it.
	ErrLeaseNotHeld = errors.New("lease not held")

	// ErrSyncStopped indicates the run was stopped before completion.
	ErrSyncStopped = errors.New("sync stopped")

	// ErrFailureThreshold indicates the run's document failure ratio
	// exceeded the configured threshold.
	ErrFailureThreshold = errors.New("document failure ratio exceeded threshold")

	// Transport Errors.

	// ErrTransport indicates a remote call failed as a whole (network, 5xx).
	// Transport failures are retried with bounded backoff.
	ErrTransport = errors.New("transport failure")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrAuthInvalid indicates the authentication credentials are invalid.
	ErrAuthInvalid = errors.New("authentication invalid")

	// Resolution Errors.

	// ErrNoPermissionScheme indicates a project has no resolvable permission scheme.
	ErrNoPermissionScheme = errors.New("no permission scheme")

	// ErrEmptyAccess indicates permission extraction produced no principals.
	ErrEmptyAccess = errors.New("no principals with browse access")
)
