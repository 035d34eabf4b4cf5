package domain

import "time"

// Issue is a tracker issue as returned by the search API.
type Issue struct {
	ID   string
	Key  string
	Self string

	ProjectKey  string
	ProjectName string

	Summary     string
	Description string
	IssueType   string
	Status      string
	Priority    string
	Resolution  string
	Environment string

	Assignee Principal
	Reporter Principal
	Creator  Principal

	Labels      []string
	Components  []string
	FixVersions []string

	Created  time.Time
	Updated  time.Time
	Resolved time.Time
	DueDate  time.Time

	Comments []Comment

	// CustomFields holds customfield_* values rendered as strings.
	CustomFields map[string]string
}

// Comment is a comment on an issue.
type Comment struct {
	Author  string
	Body    string
	Created time.Time
}

// IssuePage is one page of search results.
type IssuePage struct {
	Issues  []Issue
	StartAt int
	Total   int
}

// Last reports whether no further pages follow.
func (p IssuePage) Last() bool {
	return len(p.Issues) == 0 || p.StartAt+len(p.Issues) >= p.Total
}

// IssueQuery selects the issues to synchronise.
type IssueQuery struct {
	Projects   []string
	IssueTypes []string
	JQLFilter  string

	// UpdatedSince restricts the query to issues updated at or after
	// the given time. Zero means no restriction.
	UpdatedSince time.Time
}
