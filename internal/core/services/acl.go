package services

import "github.com/custodia-labs/jira-q-sync/internal/core/domain"

// BuildACL wraps every resolved principal as an allow-principal of a single
// OR entry. Users and groups are listed as-is, in resolution order.
// Pure and deterministic; projectKey only labels the entry's source.
func BuildACL(_ string, access domain.ResolvedAccess) domain.AccessControlEntry {
	principals := make([]domain.Principal, len(access.Principals))
	copy(principals, access.Principals)
	return domain.AccessControlEntry{
		Principals:     principals,
		MemberRelation: domain.RelationOr,
	}
}
