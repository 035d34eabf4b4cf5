package driving

import (
	"context"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// AccessResolver resolves who may browse a project.
type AccessResolver interface {
	// Resolve returns the principals with browse access to the project.
	// Never fails: resolution errors degrade to the project's fallback group.
	Resolve(ctx context.Context, projectKey string) domain.ResolvedAccess

	// Degraded returns project keys that fell back, with reasons.
	Degraded() map[string]string
}
