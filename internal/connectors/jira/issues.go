package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// Jira timestamp layouts.
const (
	timeLayout     = "2006-01-02T15:04:05.000-0700"
	dateOnlyLayout = "2006-01-02"
)

// searchFields are the fields requested from the search API.
var searchFields = []string{
	"summary", "description", "status", "priority", "issuetype", "resolution",
	"project", "assignee", "reporter", "creator", "labels", "components",
	"fixVersions", "environment", "created", "updated", "resolutiondate",
	"duedate", "comment", "*navigable",
}

type searchResponse struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []issueJSON `json:"issues"`
}

type issueJSON struct {
	ID     string                     `json:"id"`
	Key    string                     `json:"key"`
	Self   string                     `json:"self"`
	Fields map[string]json.RawMessage `json:"fields"`
}

type issueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"`
	Environment json.RawMessage `json:"environment"`
	Status      *namedJSON      `json:"status"`
	Priority    *namedJSON      `json:"priority"`
	IssueType   *namedJSON      `json:"issuetype"`
	Resolution  *namedJSON      `json:"resolution"`
	Project     *projectJSON    `json:"project"`
	Assignee    *userJSON       `json:"assignee"`
	Reporter    *userJSON       `json:"reporter"`
	Creator     *userJSON       `json:"creator"`
	Labels      []string        `json:"labels"`
	Components  []namedJSON     `json:"components"`
	FixVersions []namedJSON     `json:"fixVersions"`
	Created     string          `json:"created"`
	Updated     string          `json:"updated"`
	Resolved    string          `json:"resolutiondate"`
	DueDate     string          `json:"duedate"`
	Comment     *struct {
		Comments []commentJSON `json:"comments"`
	} `json:"comment"`
}

type namedJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type projectJSON struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

type userJSON struct {
	Name         string `json:"name"`
	Key          string `json:"key"`
	AccountID    string `json:"accountId"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
	Active       *bool  `json:"active"`
}

type commentJSON struct {
	Author  *userJSON       `json:"author"`
	Body    json.RawMessage `json:"body"`
	Created string          `json:"created"`
}

// principal maps a user onto its canonical identity: email first, then
// username, then Cloud account id.
func (u *userJSON) principal() domain.Principal {
	if u == nil {
		return domain.Principal{}
	}
	id := u.EmailAddress
	if id == "" {
		id = u.Name
	}
	if id == "" {
		id = u.AccountID
	}
	if id == "" {
		return domain.Principal{}
	}
	return domain.User(id, u.DisplayName)
}

// SearchIssues returns one page of issues matching jql.
func (c *Client) SearchIssues(ctx context.Context, jql string, startAt, maxResults int) (domain.IssuePage, error) {
	query := url.Values{}
	query.Set("jql", jql)
	query.Set("startAt", strconv.Itoa(startAt))
	query.Set("maxResults", strconv.Itoa(maxResults))
	query.Set("fields", strings.Join(searchFields, ","))

	var resp searchResponse
	if err := c.get(ctx, "search", query, &resp); err != nil {
		return domain.IssuePage{}, fmt.Errorf("search issues: %w", err)
	}

	page := domain.IssuePage{
		StartAt: resp.StartAt,
		Total:   resp.Total,
		Issues:  make([]domain.Issue, 0, len(resp.Issues)),
	}
	for _, raw := range resp.Issues {
		issue, err := convertIssue(raw)
		if err != nil {
			return domain.IssuePage{}, fmt.Errorf("convert issue %s: %w", raw.Key, err)
		}
		page.Issues = append(page.Issues, issue)
	}
	return page, nil
}

func convertIssue(raw issueJSON) (domain.Issue, error) {
	var f issueFields
	if len(raw.Fields) > 0 {
		data, err := json.Marshal(raw.Fields)
		if err != nil {
			return domain.Issue{}, err
		}
		if err := json.Unmarshal(data, &f); err != nil {
			return domain.Issue{}, err
		}
	}

	issue := domain.Issue{
		ID:          raw.ID,
		Key:         raw.Key,
		Self:        raw.Self,
		Summary:     f.Summary,
		Description: richText(f.Description),
		Environment: richText(f.Environment),
		IssueType:   f.IssueType.name(),
		Status:      f.Status.name(),
		Priority:    f.Priority.name(),
		Resolution:  f.Resolution.name(),
		Assignee:    f.Assignee.principal(),
		Reporter:    f.Reporter.principal(),
		Creator:     f.Creator.principal(),
		Labels:      f.Labels,
		Components:  names(f.Components),
		FixVersions: names(f.FixVersions),
		Created:     parseTime(f.Created),
		Updated:     parseTime(f.Updated),
		Resolved:    parseTime(f.Resolved),
		DueDate:     parseTime(f.DueDate),
	}
	if f.Project != nil {
		issue.ProjectKey = f.Project.Key
		issue.ProjectName = f.Project.Name
	}
	if issue.ProjectKey == "" {
		issue.ProjectKey, _, _ = strings.Cut(raw.Key, "-")
	}
	if f.Comment != nil {
		for _, cm := range f.Comment.Comments {
			var name string
			if cm.Author != nil {
				name = cm.Author.DisplayName
			}
			if name == "" {
				name = cm.Author.principal().ID
			}
			issue.Comments = append(issue.Comments, domain.Comment{
				Author:  name,
				Body:    richText(cm.Body),
				Created: parseTime(cm.Created),
			})
		}
	}
	issue.CustomFields = customFields(raw.Fields)
	return issue, nil
}

func (n *namedJSON) name() string {
	if n == nil {
		return ""
	}
	if n.Name != "" {
		return n.Name
	}
	return n.Value
}

func names(items []namedJSON) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for i := range items {
		if name := items[i].name(); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// parseTime accepts Jira's timestamp format, RFC 3339 and plain dates.
// Unparseable values yield the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, time.RFC3339Nano, dateOnlyLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// richText returns plain text for a field that is either a string (v2,
// wiki markup) or an Atlassian Document Format tree (Cloud rich fields).
func richText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var node adfNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return ""
	}
	var b strings.Builder
	node.text(&b)
	return strings.TrimSpace(b.String())
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Content []adfNode `json:"content"`
}

func (n adfNode) text(b *strings.Builder) {
	if n.Type == "text" {
		b.WriteString(n.Text)
	}
	if n.Type == "hardBreak" {
		b.WriteString("\n")
	}
	for _, child := range n.Content {
		child.text(b)
	}
	switch n.Type {
	case "paragraph", "heading", "listItem", "codeBlock", "blockquote":
		b.WriteString("\n")
	}
}

// customFields renders non-empty customfield_* values as strings.
func customFields(fields map[string]json.RawMessage) map[string]string {
	keys := make([]string, 0)
	for k := range fields {
		if strings.HasPrefix(k, "customfield_") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	out := make(map[string]string)
	for _, k := range keys {
		if v := renderValue(fields[k]); v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func renderValue(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return renderAny(v)
}

func renderAny(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := renderAny(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		for _, key := range []string{"value", "name", "displayName", "key"} {
			if s, ok := val[key].(string); ok && s != "" {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}
