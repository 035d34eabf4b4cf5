package driven

import (
	"context"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// IssueSource pages through issues matching a JQL query.
type IssueSource interface {
	// SearchIssues returns one page of issues starting at startAt.
	SearchIssues(ctx context.Context, jql string, startAt, maxResults int) (domain.IssuePage, error)
}

// PermissionDirectory reads project permission configuration from the tracker.
type PermissionDirectory interface {
	// PermissionScheme returns the scheme id assigned to the project.
	// Returns domain.ErrNoPermissionScheme if the project has none.
	PermissionScheme(ctx context.Context, projectKey string) (string, error)

	// SchemeGrants returns all grants of a scheme. Callers filter by permission.
	SchemeGrants(ctx context.Context, schemeID string) ([]domain.Grant, error)

	// RoleActors returns the actors of a project role.
	RoleActors(ctx context.Context, projectKey, roleID string) ([]domain.RoleActor, error)
}

// PrincipalDirectory resolves tracker users and groups into canonical
// identities: email for users, name for groups.
type PrincipalDirectory interface {
	// GroupMembers returns the active users of a group.
	// A group with no members returns an empty slice and no error.
	GroupMembers(ctx context.Context, groupName string) ([]domain.Principal, error)

	// LookupUser returns the canonical principal of a user reference.
	// Returns domain.ErrNotFound if the user does not exist.
	LookupUser(ctx context.Context, ref domain.UserRef) (domain.Principal, error)
}
