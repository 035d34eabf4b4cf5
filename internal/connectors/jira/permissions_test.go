package jira

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

func TestClient_PermissionScheme_NotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errorMessages":["No project could be found with key 'NOPE'."]}`)
	}))

	_, err := client.PermissionScheme(context.Background(), "NOPE")

	assert.ErrorIs(t, err, domain.ErrNoPermissionScheme)
}

func TestClient_SchemeGrants(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/permissionscheme/10000/permission", r.URL.Path)
		assert.Equal(t, "user,group,projectRole", r.URL.Query().Get("expand"))
		fmt.Fprint(w, `{"permissions": [
		  {"id": 1, "permission": "BROWSE_PROJECTS", "holder": {"type": "group", "parameter": "jira-developers"}},
		  {"id": 2, "permission": "BROWSE_PROJECTS", "holder": {"type": "projectRole", "parameter": "10002", "projectRole": {"id": 10002}}},
		  {"id": 3, "permission": "BROWSE_PROJECTS", "holder": {"type": "user", "parameter": "dave", "user": {"name": "dave", "emailAddress": "dave@example.com", "displayName": "Dave"}}},
		  {"id": 4, "permission": "BROWSE_PROJECTS", "holder": {"type": "anyone"}},
		  {"id": 5, "permission": "BROWSE_PROJECTS", "holder": {"type": "group", "parameter": ""}},
		  {"id": 6, "permission": "BROWSE_PROJECTS", "holder": {"type": "applicationRole", "parameter": "jira-software"}},
		  {"id": 7, "permission": "EDIT_ISSUES", "holder": {"type": "group", "parameter": "jira-admins"}},
		  {"id": 8, "permission": "BROWSE_PROJECTS", "holder": {"type": "user", "parameter": "frank"}}
		]}`)
	}))

	grants, err := client.SchemeGrants(context.Background(), "10000")

	require.NoError(t, err)
	require.Len(t, grants, 5)
	assert.Equal(t, domain.Direct(domain.Group("jira-developers")), grants[0].Holder)
	assert.Equal(t, domain.ByRole("10002"), grants[1].Holder)
	assert.Equal(t, domain.Direct(domain.User("dave@example.com", "Dave")), grants[2].Holder)
	assert.True(t, grants[2].Holder.User.IsZero())
	assert.Equal(t, "EDIT_ISSUES", grants[3].Permission)
	assert.Equal(t, domain.UserRef{Username: "frank"}, grants[4].Holder.User)
	assert.Equal(t, "1", grants[0].ID)
}

func TestClient_RoleActors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/project/ENG/role/10002", r.URL.Path)
		fmt.Fprint(w, `{"id": 10002, "name": "Developers", "actors": [
		  {"id": 1, "type": "atlassian-user-role-actor", "name": "erin", "displayName": "Erin"},
		  {"id": 2, "type": "atlassian-group-role-actor", "name": "qa-team", "displayName": "QA Team"},
		  {"id": 3, "type": "atlassian-user-role-actor", "displayName": "Cloud User", "actorUser": {"accountId": "abc123"}},
		  {"id": 4, "type": "atlassian-unknown-actor", "name": "x"}
		]}`)
	}))

	actors, err := client.RoleActors(context.Background(), "ENG", "10002")

	require.NoError(t, err)
	assert.Equal(t, []domain.RoleActor{
		{RoleID: "10002", Principal: domain.User("erin", "Erin"), User: domain.UserRef{Username: "erin"}},
		{RoleID: "10002", Principal: domain.Group("qa-team")},
		{RoleID: "10002", Principal: domain.User("abc123", "Cloud User"), User: domain.UserRef{AccountID: "abc123"}},
	}, actors)
}

func TestClient_GroupMembers_Paginates(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/group/member", r.URL.Path)
		assert.Equal(t, "qa team", r.URL.Query().Get("groupname"))
		assert.Equal(t, "false", r.URL.Query().Get("includeInactiveUsers"))
		switch r.URL.Query().Get("startAt") {
		case "0":
			fmt.Fprint(w, `{"startAt": 0, "maxResults": 2, "total": 3, "isLast": false, "values": [
			  {"name": "a", "emailAddress": "a@example.com", "displayName": "A", "active": true},
			  {"name": "b", "displayName": "B", "active": false}
			]}`)
		case "2":
			fmt.Fprint(w, `{"startAt": 2, "maxResults": 2, "total": 3, "isLast": true, "values": [
			  {"name": "c", "displayName": "C", "active": true}
			]}`)
		default:
			t.Errorf("unexpected startAt %q", r.URL.Query().Get("startAt"))
		}
	}))

	members, err := client.GroupMembers(context.Background(), "qa team")

	require.NoError(t, err)
	assert.Equal(t, []domain.Principal{
		domain.User("a@example.com", "A"),
		domain.User("c", "C"),
	}, members)
}

func TestClient_GroupMembers_AdvancesFromRequestedOffset(t *testing.T) {
	var offsets []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("startAt")
		offsets = append(offsets, offset)
		// The server echoes a stale startAt on every page.
		switch offset {
		case "0":
			fmt.Fprint(w, `{"startAt": 0, "total": 2, "isLast": false, "values": [{"name": "a", "emailAddress": "a@example.com"}]}`)
		case "1":
			fmt.Fprint(w, `{"startAt": 0, "total": 2, "isLast": false, "values": [{"name": "b", "emailAddress": "b@example.com"}]}`)
		default:
			fmt.Fprint(w, `{"startAt": 0, "total": 2, "isLast": true, "values": []}`)
		}
	}))

	members, err := client.GroupMembers(context.Background(), "devs")

	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, offsets)
	assert.Len(t, members, 2)
}

func TestClient_LookupUser(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/user", r.URL.Path)
		switch {
		case r.URL.Query().Get("username") == "erin":
			fmt.Fprint(w, `{"name": "erin", "emailAddress": "erin@example.com", "displayName": "Erin"}`)
		case r.URL.Query().Get("accountId") == "abc123":
			fmt.Fprint(w, `{"accountId": "abc123", "emailAddress": "cloud@example.com", "displayName": "Cloud User"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"errorMessages": ["The user named 'ghost' does not exist"]}`)
		}
	}))
	ctx := context.Background()

	user, err := client.LookupUser(ctx, domain.UserRef{Username: "erin"})
	require.NoError(t, err)
	assert.Equal(t, domain.User("erin@example.com", "Erin"), user)

	user, err = client.LookupUser(ctx, domain.UserRef{Username: "ignored", AccountID: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, domain.User("cloud@example.com", "Cloud User"), user)

	_, err = client.LookupUser(ctx, domain.UserRef{Username: "ghost"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = client.LookupUser(ctx, domain.UserRef{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClient_GroupMembers_Empty(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"startAt": 0, "maxResults": 50, "total": 0, "isLast": true, "values": []}`)
	}))

	members, err := client.GroupMembers(context.Background(), "empty")

	require.NoError(t, err)
	assert.Empty(t, members)
}
