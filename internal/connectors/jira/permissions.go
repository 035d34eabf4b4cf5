package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/logger"
)

// Holder types in permission grants.
const (
	holderUser        = "user"
	holderGroup       = "group"
	holderProjectRole = "projectRole"
)

// Role actor types.
const (
	actorUser  = "atlassian-user-role-actor"
	actorGroup = "atlassian-group-role-actor"
)

type schemeJSON struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

type grantsJSON struct {
	Permissions []grantJSON `json:"permissions"`
}

type grantJSON struct {
	ID         json.Number `json:"id"`
	Permission string      `json:"permission"`
	Holder     struct {
		Type      string    `json:"type"`
		Parameter string    `json:"parameter"`
		User      *userJSON `json:"user"`
		Group     *struct {
			Name string `json:"name"`
		} `json:"group"`
		ProjectRole *struct {
			ID json.Number `json:"id"`
		} `json:"projectRole"`
	} `json:"holder"`
}

type roleJSON struct {
	ID     json.Number `json:"id"`
	Name   string      `json:"name"`
	Actors []struct {
		Type        string `json:"type"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
		ActorUser   *struct {
			AccountID string `json:"accountId"`
		} `json:"actorUser"`
		ActorGroup *struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"actorGroup"`
	} `json:"actors"`
}

// PermissionScheme returns the id of the project's permission scheme.
func (c *Client) PermissionScheme(ctx context.Context, projectKey string) (string, error) {
	var scheme schemeJSON
	path := "project/" + url.PathEscape(projectKey) + "/permissionscheme"
	if err := c.get(ctx, path, nil, &scheme); err != nil {
		if IsNotFound(err) {
			return "", fmt.Errorf("project %s: %w", projectKey, domain.ErrNoPermissionScheme)
		}
		return "", fmt.Errorf("get permission scheme for %s: %w", projectKey, err)
	}
	if scheme.ID.String() == "" {
		return "", fmt.Errorf("project %s: %w", projectKey, domain.ErrNoPermissionScheme)
	}
	return scheme.ID.String(), nil
}

// SchemeGrants returns the grants of a permission scheme. Holders of types
// other than user, group and projectRole are skipped.
func (c *Client) SchemeGrants(ctx context.Context, schemeID string) ([]domain.Grant, error) {
	query := url.Values{}
	query.Set("expand", "user,group,projectRole")

	var resp grantsJSON
	path := "permissionscheme/" + url.PathEscape(schemeID) + "/permission"
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("get grants for scheme %s: %w", schemeID, err)
	}

	grants := make([]domain.Grant, 0, len(resp.Permissions))
	for _, g := range resp.Permissions {
		holder, ok := convertHolder(g)
		if !ok {
			logger.Debug("Skipping %s grant %s with holder type %q", g.Permission, g.ID, g.Holder.Type)
			continue
		}
		grants = append(grants, domain.Grant{
			ID:         g.ID.String(),
			Permission: g.Permission,
			Holder:     holder,
		})
	}
	return grants, nil
}

func convertHolder(g grantJSON) (domain.GrantHolder, bool) {
	switch g.Holder.Type {
	case holderUser:
		if u := g.Holder.User; u != nil && u.EmailAddress != "" {
			return domain.Direct(u.principal()), true
		}
		ref := domain.UserRef{Username: g.Holder.Parameter}
		if u := g.Holder.User; u != nil {
			ref = domain.UserRef{Username: u.Name, AccountID: u.AccountID}
			if ref.IsZero() {
				ref.Username = g.Holder.Parameter
			}
		}
		if ref.IsZero() {
			return domain.GrantHolder{}, false
		}
		holder := domain.Direct(domain.User(ref.String(), ""))
		holder.User = ref
		return holder, true

	case holderGroup:
		name := g.Holder.Parameter
		if g.Holder.Group != nil && g.Holder.Group.Name != "" {
			name = g.Holder.Group.Name
		}
		// An empty group parameter means "anyone".
		if name == "" {
			return domain.GrantHolder{}, false
		}
		return domain.Direct(domain.Group(name)), true

	case holderProjectRole:
		roleID := g.Holder.Parameter
		if g.Holder.ProjectRole != nil && g.Holder.ProjectRole.ID.String() != "" {
			roleID = g.Holder.ProjectRole.ID.String()
		}
		return domain.ByRole(roleID), roleID != ""

	default:
		return domain.GrantHolder{}, false
	}
}

// RoleActors returns the users and groups assigned to a project role.
func (c *Client) RoleActors(ctx context.Context, projectKey, roleID string) ([]domain.RoleActor, error) {
	var role roleJSON
	path := "project/" + url.PathEscape(projectKey) + "/role/" + url.PathEscape(roleID)
	if err := c.get(ctx, path, nil, &role); err != nil {
		return nil, fmt.Errorf("get role %s of %s: %w", roleID, projectKey, err)
	}

	actors := make([]domain.RoleActor, 0, len(role.Actors))
	for _, a := range role.Actors {
		var p domain.Principal
		switch a.Type {
		case actorUser:
			ref := domain.UserRef{Username: a.Name}
			if a.ActorUser != nil {
				ref.AccountID = a.ActorUser.AccountID
			}
			if ref.IsZero() {
				continue
			}
			actors = append(actors, domain.RoleActor{
				RoleID:    roleID,
				Principal: domain.User(ref.String(), a.DisplayName),
				User:      ref,
			})
			continue
		case actorGroup:
			name := a.Name
			if a.ActorGroup != nil && a.ActorGroup.Name != "" {
				name = a.ActorGroup.Name
			}
			p = domain.Group(name)
		}
		if !p.Valid() {
			continue
		}
		actors = append(actors, domain.RoleActor{RoleID: roleID, Principal: p})
	}
	return actors, nil
}
