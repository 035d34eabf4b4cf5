package driving

import "context"

// Scheduler runs the sync on an interval.
type Scheduler interface {
	// Start runs scheduled syncs. Blocks until Stop is called, the
	// context is cancelled or the configured number of runs is reached.
	Start(ctx context.Context) error

	// Stop waits for the current run to finish and ends Start.
	Stop() error
}
