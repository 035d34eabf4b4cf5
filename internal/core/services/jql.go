package services

import (
	"strings"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// jqlTimeLayout is the minute-precision format JQL accepts for dates.
const jqlTimeLayout = "2006-01-02 15:04"

// BuildJQL renders the query as JQL. Clauses are ANDed; results are always
// ordered by most recently updated first.
func BuildJQL(q domain.IssueQuery) string {
	var clauses []string

	if list := quoteList(q.Projects); list != "" {
		clauses = append(clauses, "project in ("+list+")")
	}
	if list := quoteList(q.IssueTypes); list != "" {
		clauses = append(clauses, "issuetype in ("+list+")")
	}
	if f := strings.TrimSpace(q.JQLFilter); f != "" {
		clauses = append(clauses, "("+f+")")
	}
	if !q.UpdatedSince.IsZero() {
		clauses = append(clauses, `updated >= "`+q.UpdatedSince.UTC().Format(jqlTimeLayout)+`"`)
	}

	order := "ORDER BY updated DESC"
	if len(clauses) == 0 {
		return order
	}
	return strings.Join(clauses, " AND ") + " " + order
}

func quoteList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(v, `"`, `\"`)+`"`)
	}
	return strings.Join(quoted, ", ")
}
