package jira

import (
	"context"
	"fmt"
	"net/url"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// LookupUser fetches a user by account id (Cloud) or username (Server/DC)
// and returns its canonical principal.
func (c *Client) LookupUser(ctx context.Context, ref domain.UserRef) (domain.Principal, error) {
	if ref.IsZero() {
		return domain.Principal{}, fmt.Errorf("lookup user: %w: empty reference", domain.ErrInvalidInput)
	}

	query := url.Values{}
	if ref.AccountID != "" {
		query.Set("accountId", ref.AccountID)
	} else {
		query.Set("username", ref.Username)
	}

	var user userJSON
	if err := c.get(ctx, "user", query, &user); err != nil {
		return domain.Principal{}, fmt.Errorf("get user %s: %w", ref, err)
	}

	p := user.principal()
	if !p.Valid() {
		return domain.Principal{}, fmt.Errorf("user %s: %w", ref, domain.ErrNotFound)
	}
	return p, nil
}
