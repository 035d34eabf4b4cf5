package jira

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// groupPageSize is the page size for group member listing.
const groupPageSize = 50

type groupMembersJSON struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	IsLast     bool       `json:"isLast"`
	Values     []userJSON `json:"values"`
}

// GroupMembers returns the users of a group, following pagination.
func (c *Client) GroupMembers(ctx context.Context, groupName string) ([]domain.Principal, error) {
	var members []domain.Principal
	startAt := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		query := url.Values{}
		query.Set("groupname", groupName)
		query.Set("includeInactiveUsers", strconv.FormatBool(c.inactive))
		query.Set("startAt", strconv.Itoa(startAt))
		query.Set("maxResults", strconv.Itoa(groupPageSize))

		var page groupMembersJSON
		if err := c.get(ctx, "group/member", query, &page); err != nil {
			return nil, fmt.Errorf("get members of group %s: %w", groupName, err)
		}

		for i := range page.Values {
			u := &page.Values[i]
			if !c.inactive && u.Active != nil && !*u.Active {
				continue
			}
			if p := u.principal(); p.Valid() {
				members = append(members, p)
			}
		}

		if page.IsLast || len(page.Values) == 0 {
			break
		}
		startAt += len(page.Values)
	}

	return members, nil
}
