package driven

import (
	"context"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// PrincipalStore is the index's user store. Group principals in document
// ACLs only match users the store lists as members.
type PrincipalStore interface {
	// PutGroup creates the group or replaces its membership.
	PutGroup(ctx context.Context, group domain.GroupMembership) error
}
