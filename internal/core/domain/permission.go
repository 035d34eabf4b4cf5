package domain

// Browse permission keys. Only grants of these types are consumed.
const (
	PermissionBrowseProjects = "BROWSE_PROJECTS"

	// PermissionBrowseLegacy is the pre-7.x key still returned by some
	// on-prem schemes.
	PermissionBrowseLegacy = "BROWSE"
)

// IsBrowsePermission reports whether a permission key grants browse access.
func IsBrowsePermission(permission string) bool {
	return permission == PermissionBrowseProjects || permission == PermissionBrowseLegacy
}

// HolderKind tags a grant holder.
type HolderKind int

const (
	// HolderDirect grants to a user or group directly.
	HolderDirect HolderKind = iota

	// HolderRole grants to every actor of a project role.
	HolderRole
)

// GrantHolder is the target of a permission grant:
// either Direct(Principal) or ByRole(roleID).
type GrantHolder struct {
	Kind      HolderKind
	Principal Principal
	RoleID    string

	// User is set when a direct user grant carries only a tracker
	// reference. Principal then holds a placeholder until resolved.
	User UserRef
}

// Direct returns a holder granting directly to a principal.
func Direct(p Principal) GrantHolder {
	return GrantHolder{Kind: HolderDirect, Principal: p}
}

// ByRole returns a holder granting to a project role.
func ByRole(roleID string) GrantHolder {
	return GrantHolder{Kind: HolderRole, RoleID: roleID}
}

// Grant maps a permission type to a holder within a permission scheme.
type Grant struct {
	ID         string
	Permission string
	Holder     GrantHolder
}

// PermissionScheme belongs to a project and holds its grants.
type PermissionScheme struct {
	ID     string
	Name   string
	Grants []Grant
}

// UserRef names a tracker user by username (Server/DC) or account id
// (Cloud). It must be looked up to obtain the user's canonical identity.
type UserRef struct {
	Username  string
	AccountID string
}

// IsZero reports whether the reference names no user.
func (r UserRef) IsZero() bool { return r.Username == "" && r.AccountID == "" }

// String returns the account id when present, otherwise the username.
func (r UserRef) String() string {
	if r.AccountID != "" {
		return r.AccountID
	}
	return r.Username
}

// RoleActor is a user or group assigned to a project role.
type RoleActor struct {
	RoleID    string
	Principal Principal

	// User is set for user actors. Principal then holds a placeholder
	// keyed by the reference until the user is looked up.
	User UserRef
}

// ResolvedAccess is the effective set of principals with browse access to
// a project. It is never empty: when extraction fails it holds the
// project's fallback group.
type ResolvedAccess struct {
	// ProjectKey identifies the project.
	ProjectKey string

	// Principals are deduplicated, in order of discovery.
	Principals []Principal

	// Degraded is true when extraction failed and Principals holds only
	// the fallback group.
	Degraded bool

	// DegradedReason describes the failed step when Degraded is true.
	DegradedReason string
}

// Users returns the user principals.
func (r ResolvedAccess) Users() []Principal {
	var out []Principal
	for _, p := range r.Principals {
		if p.IsUser() {
			out = append(out, p)
		}
	}
	return out
}

// Groups returns the group principals.
func (r ResolvedAccess) Groups() []Principal {
	var out []Principal
	for _, p := range r.Principals {
		if p.IsGroup() {
			out = append(out, p)
		}
	}
	return out
}
