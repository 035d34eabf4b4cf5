package domain

import (
	"fmt"
	"strings"
)

// PrincipalKind tags a Principal as a user or a group.
type PrincipalKind string

const (
	// PrincipalUser is an individual identity (email or username).
	PrincipalUser PrincipalKind = "USER"

	// PrincipalGroup is a named group of users.
	PrincipalGroup PrincipalKind = "GROUP"
)

// Principal is an identity that can be granted access to a document.
// Principals are immutable values; identity is the (Kind, ID) pair.
type Principal struct {
	// Kind distinguishes users from groups.
	Kind PrincipalKind

	// ID is the canonical identity: email (or username) for users,
	// group name for groups.
	ID string

	// DisplayName is informational and does not take part in equality.
	DisplayName string
}

// User returns a user principal.
func User(id, displayName string) Principal {
	return Principal{Kind: PrincipalUser, ID: id, DisplayName: displayName}
}

// Group returns a group principal.
func Group(name string) Principal {
	return Principal{Kind: PrincipalGroup, ID: name, DisplayName: name}
}

// Key returns the identity key used for deduplication.
// User IDs are compared case-insensitively since trackers return emails
// with inconsistent casing.
func (p Principal) Key() string {
	if p.Kind == PrincipalUser {
		return string(p.Kind) + ":" + strings.ToLower(p.ID)
	}
	return string(p.Kind) + ":" + p.ID
}

// IsUser reports whether the principal is a user.
func (p Principal) IsUser() bool { return p.Kind == PrincipalUser }

// IsGroup reports whether the principal is a group.
func (p Principal) IsGroup() bool { return p.Kind == PrincipalGroup }

// Valid reports whether the principal has a known kind and a non-empty ID.
func (p Principal) Valid() bool {
	return (p.Kind == PrincipalUser || p.Kind == PrincipalGroup) && strings.TrimSpace(p.ID) != ""
}

// String implements fmt.Stringer.
func (p Principal) String() string {
	return fmt.Sprintf("%s(%s)", strings.ToLower(string(p.Kind)), p.ID)
}

// PrincipalSet is an insertion-ordered set of principals deduplicated by Key.
// The zero value is ready to use. Not safe for concurrent use.
type PrincipalSet struct {
	order []Principal
	seen  map[string]struct{}
}

// Add inserts p if no principal with the same identity is present.
// Invalid principals are ignored. Returns true if p was added.
func (s *PrincipalSet) Add(p Principal) bool {
	if !p.Valid() {
		return false
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	key := p.Key()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, p)
	return true
}

// Contains reports whether a principal with p's identity is present.
func (s *PrincipalSet) Contains(p Principal) bool {
	_, ok := s.seen[p.Key()]
	return ok
}

// Len returns the number of principals.
func (s *PrincipalSet) Len() int { return len(s.order) }

// Slice returns a copy of the principals in insertion order.
func (s *PrincipalSet) Slice() []Principal {
	out := make([]Principal, len(s.order))
	copy(out, s.order)
	return out
}
