package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driving"
	"github.com/custodia-labs/jira-q-sync/internal/logger"
)

// Ensure PermissionResolver implements the interface.
var _ driving.AccessResolver = (*PermissionResolver)(nil)

// DefaultFallbackGroupTemplate names the group used when a project's
// access cannot be resolved. {KEY} is replaced by the project key.
const DefaultFallbackGroupTemplate = "jira-project-{KEY}"

// PermissionResolver computes the principals with browse access to a
// project by walking its permission scheme, project roles and groups.
//
// One resolver serves one run: results, role actors and group members are
// memoised for the resolver's lifetime. Safe for concurrent use; concurrent
// callers for the same project share a single resolution.
type PermissionResolver struct {
	permissions driven.PermissionDirectory
	principals  driven.PrincipalDirectory
	fallback    string

	flight singleflight.Group

	mu       sync.RWMutex
	resolved map[string]domain.ResolvedAccess
	roles    map[string][]domain.RoleActor
	groups   map[string][]domain.Principal
	users    map[domain.UserRef]domain.Principal
	degraded map[string]string
}

// NewPermissionResolver creates a resolver. An empty fallbackTemplate
// selects DefaultFallbackGroupTemplate.
func NewPermissionResolver(
	permissions driven.PermissionDirectory,
	principals driven.PrincipalDirectory,
	fallbackTemplate string,
) *PermissionResolver {
	if fallbackTemplate == "" {
		fallbackTemplate = DefaultFallbackGroupTemplate
	}
	return &PermissionResolver{
		permissions: permissions,
		principals:  principals,
		fallback:    fallbackTemplate,
		resolved:    make(map[string]domain.ResolvedAccess),
		roles:       make(map[string][]domain.RoleActor),
		groups:      make(map[string][]domain.Principal),
		users:       make(map[domain.UserRef]domain.Principal),
		degraded:    make(map[string]string),
	}
}

// FallbackGroup returns the fallback group for a project.
func (r *PermissionResolver) FallbackGroup(projectKey string) domain.Principal {
	return domain.Group(strings.ReplaceAll(r.fallback, "{KEY}", projectKey))
}

// Resolve returns the principals with browse access to the project.
// It never fails: any resolution error degrades the project to its
// fallback group.
func (r *PermissionResolver) Resolve(ctx context.Context, projectKey string) domain.ResolvedAccess {
	r.mu.RLock()
	access, ok := r.resolved[projectKey]
	r.mu.RUnlock()
	if ok {
		return access
	}

	v, _, _ := r.flight.Do(projectKey, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.resolved[projectKey]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		access := r.resolve(ctx, projectKey)

		// A cancelled run must not poison the memo for a later caller.
		if ctx.Err() == nil {
			r.mu.Lock()
			r.resolved[projectKey] = access
			if access.Degraded {
				r.degraded[projectKey] = access.DegradedReason
			}
			r.mu.Unlock()
		}
		return access, nil
	})
	return v.(domain.ResolvedAccess)
}

// Degraded returns the projects that fell back, keyed by project with the
// failed step as reason.
func (r *PermissionResolver) Degraded() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.degraded))
	for k, v := range r.degraded {
		out[k] = v
	}
	return out
}

// DegradedProjects returns the degraded project keys in sorted order.
func (r *PermissionResolver) DegradedProjects() []string {
	degraded := r.Degraded()
	keys := make([]string, 0, len(degraded))
	for k := range degraded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Memberships returns the group memberships learnt so far, sorted by
// name. Every expanded tracker group contributes its members. Every
// project resolved without degradation contributes its fallback group,
// listing the project's principals, so the group keeps granting access
// in a later run that degrades. Degraded projects contribute nothing and
// leave the published membership in place.
func (r *PermissionResolver) Memberships() []domain.GroupMembership {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := make(map[string]domain.GroupMembership, len(r.groups)+len(r.resolved))
	for group, members := range r.groups {
		users := make([]domain.Principal, len(members))
		copy(users, members)
		byName[group] = domain.GroupMembership{Name: group, Users: users}
	}
	for projectKey, access := range r.resolved {
		if access.Degraded {
			continue
		}
		m := domain.GroupMembership{Name: r.FallbackGroup(projectKey).ID, Users: access.Users()}
		for _, g := range access.Groups() {
			m.Groups = append(m.Groups, g.ID)
		}
		byName[m.Name] = m
	}

	out := make([]domain.GroupMembership, 0, len(byName))
	for _, m := range byName {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// resolve runs the extraction pipeline once.
func (r *PermissionResolver) resolve(ctx context.Context, projectKey string) domain.ResolvedAccess {
	logger.Debug("Resolving browse access for project %s", projectKey)

	principals, err := r.extract(ctx, projectKey)
	if err == nil && len(principals) == 0 {
		err = fmt.Errorf("extract principals: %w", domain.ErrEmptyAccess)
	}
	if err != nil {
		fallback := r.FallbackGroup(projectKey)
		logger.Warn("Project %s access degraded to %s: %v", projectKey, fallback.ID, err)
		return domain.ResolvedAccess{
			ProjectKey:     projectKey,
			Principals:     []domain.Principal{fallback},
			Degraded:       true,
			DegradedReason: err.Error(),
		}
	}

	logger.Debug("Project %s: %d principals with browse access", projectKey, len(principals))
	return domain.ResolvedAccess{ProjectKey: projectKey, Principals: principals}
}

// extract walks scheme, grants, roles and groups. Any error aborts the
// whole project so a partial list is never published.
func (r *PermissionResolver) extract(ctx context.Context, projectKey string) ([]domain.Principal, error) {
	// 1. Find the project's permission scheme
	schemeID, err := r.permissions.PermissionScheme(ctx, projectKey)
	if err != nil {
		return nil, fmt.Errorf("get permission scheme: %w", err)
	}
	if schemeID == "" {
		return nil, fmt.Errorf("get permission scheme: %w", domain.ErrNoPermissionScheme)
	}

	// 2. Keep browse grants only
	grants, err := r.permissions.SchemeGrants(ctx, schemeID)
	if err != nil {
		return nil, fmt.Errorf("get scheme grants: %w", err)
	}

	var set domain.PrincipalSet
	var groups []domain.Principal
	addPrincipal := func(p domain.Principal) {
		if set.Add(p) && p.IsGroup() {
			groups = append(groups, p)
		}
	}

	for _, grant := range grants {
		if !domain.IsBrowsePermission(grant.Permission) {
			continue
		}
		switch grant.Holder.Kind {
		case domain.HolderDirect:
			p, err := r.canonical(ctx, grant.Holder.Principal, grant.Holder.User)
			if err != nil {
				return nil, fmt.Errorf("get user %s: %w", grant.Holder.User, err)
			}
			addPrincipal(p)

		case domain.HolderRole:
			// 3. Expand project roles into their actors
			actors, err := r.roleActors(ctx, projectKey, grant.Holder.RoleID)
			if err != nil {
				return nil, fmt.Errorf("get role %s actors: %w", grant.Holder.RoleID, err)
			}
			for _, actor := range actors {
				p, err := r.canonical(ctx, actor.Principal, actor.User)
				if err != nil {
					return nil, fmt.Errorf("get role %s user %s: %w", grant.Holder.RoleID, actor.User, err)
				}
				addPrincipal(p)
			}
		}
	}

	// 4. Expand groups into member users; the group itself stays
	for _, group := range groups {
		members, err := r.groupMembers(ctx, group.ID)
		if err != nil {
			return nil, fmt.Errorf("get group %s members: %w", group.ID, err)
		}
		if len(members) == 0 {
			logger.Debug("Group %s has no members", group.ID)
		}
		for _, member := range members {
			if member.IsUser() {
				set.Add(member)
			}
		}
	}

	return set.Slice(), nil
}

func (r *PermissionResolver) roleActors(ctx context.Context, projectKey, roleID string) ([]domain.RoleActor, error) {
	key := projectKey + "/" + roleID

	r.mu.RLock()
	actors, ok := r.roles[key]
	r.mu.RUnlock()
	if ok {
		return actors, nil
	}

	actors, err := r.permissions.RoleActors(ctx, projectKey, roleID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.roles[key] = actors
	r.mu.Unlock()
	return actors, nil
}

func (r *PermissionResolver) groupMembers(ctx context.Context, group string) ([]domain.Principal, error) {
	r.mu.RLock()
	members, ok := r.groups[group]
	r.mu.RUnlock()
	if ok {
		return members, nil
	}

	v, err, _ := r.flight.Do("group:"+group, func() (any, error) {
		return r.principals.GroupMembers(ctx, group)
	})
	if err != nil {
		return nil, err
	}
	members, _ = v.([]domain.Principal)

	r.mu.Lock()
	r.groups[group] = members
	r.mu.Unlock()
	return members, nil
}

// canonical returns p unchanged unless it stands in for a user reference,
// in which case the user is looked up. A user that no longer exists
// yields an invalid principal, which callers drop.
func (r *PermissionResolver) canonical(ctx context.Context, p domain.Principal, ref domain.UserRef) (domain.Principal, error) {
	if ref.IsZero() {
		return p, nil
	}

	r.mu.RLock()
	user, ok := r.users[ref]
	r.mu.RUnlock()
	if ok {
		return user, nil
	}

	v, err, _ := r.flight.Do("user:"+ref.Username+"/"+ref.AccountID, func() (any, error) {
		return r.principals.LookupUser(ctx, ref)
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Debug("User %s no longer exists", ref)
		user = domain.Principal{}
	case err != nil:
		return domain.Principal{}, err
	default:
		user, _ = v.(domain.Principal)
	}

	r.mu.Lock()
	r.users[ref] = user
	r.mu.Unlock()
	return user, nil
}
