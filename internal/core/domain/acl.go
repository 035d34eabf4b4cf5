package domain

// MemberRelation combines the principals of an access control entry.
type MemberRelation string

const (
	// RelationOr grants access if any listed principal matches.
	RelationOr MemberRelation = "OR"
)

// AccessControlEntry is the single visibility rule attached to a document.
// All principals are allow-principals; there are no deny rules.
type AccessControlEntry struct {
	Principals     []Principal
	MemberRelation MemberRelation
}

// Empty reports whether the entry lists no principals.
func (e AccessControlEntry) Empty() bool {
	return len(e.Principals) == 0
}

// GroupMembership is the published membership of a group principal in the
// index's user store.
type GroupMembership struct {
	// Name is the group principal's ID.
	Name string

	// Users are the member users.
	Users []Principal

	// Groups are the names of nested member groups.
	Groups []string
}
