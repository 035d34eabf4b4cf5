package jira

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
)

// Ensure Assembler implements the interface.
var _ driven.DocumentAssembler = (*Assembler)(nil)

// Attribute names.
const (
	AttrSourceURI     = "_source_uri"
	AttrCreatedAt     = "_created_at"
	AttrLastUpdatedAt = "_last_updated_at"
	AttrIssueKey      = "jira_issue_key"
	AttrIssueID       = "jira_issue_id"
	AttrProject       = "jira_project"
	AttrProjectName   = "jira_project_name"
	AttrIssueType     = "jira_issue_type"
	AttrStatus        = "jira_status"
	AttrPriority      = "jira_priority"
	AttrResolution    = "jira_resolution"
	AttrAssignee      = "jira_assignee"
	AttrReporter      = "jira_reporter"
	AttrLabels        = "jira_labels"
	AttrComponents    = "jira_components"
	AttrFixVersions   = "jira_fix_versions"
	AttrCommentCount  = "jira_comment_count"
)

// commentTimeLayout formats comment timestamps in content.
const commentTimeLayout = "2006-01-02 15:04"

// ErrMissingKey is returned for issues without a key.
var ErrMissingKey = errors.New("issue has no key")

// Options configures an Assembler.
type Options struct {
	// SiteURL is the tracker site used for browse links. When empty the
	// site is derived from the issue's self link.
	SiteURL string

	// IncludeComments appends comments to the content.
	IncludeComments bool

	// CustomFields maps customfield ids to attribute names. Mapped fields
	// with a value become string attributes.
	CustomFields map[string]string
}

// Assembler renders issues into document content and attributes.
type Assembler struct {
	siteURL         string
	includeComments bool
	customFields    map[string]string
}

// New creates an assembler.
func New(opts Options) *Assembler {
	return &Assembler{
		siteURL:         strings.TrimRight(opts.SiteURL, "/"),
		includeComments: opts.IncludeComments,
		customFields:    opts.CustomFields,
	}
}

// Assemble builds the document title, content, attributes and source link
// for an issue. Output is a pure function of the issue.
func (a *Assembler) Assemble(issue domain.Issue) (driven.AssembledDocument, error) {
	if issue.Key == "" {
		return driven.AssembledDocument{}, fmt.Errorf("assemble issue %q: %w", issue.ID, ErrMissingKey)
	}

	summary := issue.Summary
	if summary == "" {
		summary = "No title"
	}
	sourceURI := a.sourceURI(issue)

	return driven.AssembledDocument{
		Title:      issue.Key + ": " + summary,
		Content:    a.content(issue, summary),
		Attributes: a.attributes(issue, sourceURI),
		SourceURI:  sourceURI,
	}, nil
}

func (a *Assembler) content(issue domain.Issue, summary string) string {
	parts := []string{
		"Issue Key: " + issue.Key,
		"Title: " + summary,
	}
	if desc := cleanMarkup(issue.Description); desc != "" {
		parts = append(parts, "Description:\n"+desc)
	}

	var meta []string
	addLine := func(label, value string) {
		if value != "" {
			meta = append(meta, label+": "+value)
		}
	}
	addLine("Status", issue.Status)
	addLine("Priority", issue.Priority)
	addLine("Issue Type", issue.IssueType)
	addLine("Resolution", issue.Resolution)
	if issue.ProjectName != "" {
		addLine("Project", fmt.Sprintf("%s (%s)", issue.ProjectName, issue.ProjectKey))
	} else {
		addLine("Project", issue.ProjectKey)
	}
	addLine("Assignee", displayName(issue.Assignee))
	addLine("Reporter", displayName(issue.Reporter))
	addLine("Labels", strings.Join(issue.Labels, ", "))
	addLine("Components", strings.Join(issue.Components, ", "))
	addLine("Fix Versions", strings.Join(issue.FixVersions, ", "))
	addLine("Environment", cleanMarkup(issue.Environment))
	if len(meta) > 0 {
		parts = append(parts, strings.Join(meta, "\n"))
	}

	if a.includeComments && len(issue.Comments) > 0 {
		lines := []string{"Comments:"}
		for _, c := range issue.Comments {
			body := cleanMarkup(c.Body)
			if body == "" {
				continue
			}
			author := c.Author
			if author == "" {
				author = "Unknown"
			}
			lines = append(lines, fmt.Sprintf("[%s - %s]: %s", author, formatTime(c.Created), body))
		}
		if len(lines) > 1 {
			parts = append(parts, strings.Join(lines, "\n"))
		}
	}

	return strings.Join(parts, "\n\n")
}

func (a *Assembler) attributes(issue domain.Issue, sourceURI string) []domain.Attribute {
	attrs := []domain.Attribute{
		domain.StringAttr(AttrSourceURI, sourceURI),
		domain.StringAttr(AttrIssueKey, issue.Key),
	}
	addString := func(name, value string) {
		if value != "" {
			attrs = append(attrs, domain.StringAttr(name, value))
		}
	}
	addList := func(name string, values []string) {
		if len(values) > 0 {
			attrs = append(attrs, domain.StringListAttr(name, append([]string(nil), values...)))
		}
	}
	addDate := func(name string, t time.Time) {
		if !t.IsZero() {
			attrs = append(attrs, domain.DateAttr(name, t))
		}
	}

	addDate(AttrCreatedAt, issue.Created)
	addDate(AttrLastUpdatedAt, issue.Updated)
	addString(AttrIssueID, issue.ID)
	addString(AttrProject, issue.ProjectKey)
	addString(AttrProjectName, issue.ProjectName)
	addString(AttrIssueType, issue.IssueType)
	addString(AttrStatus, issue.Status)
	addString(AttrPriority, issue.Priority)
	addString(AttrResolution, issue.Resolution)
	addString(AttrAssignee, displayName(issue.Assignee))
	addString(AttrReporter, displayName(issue.Reporter))
	addList(AttrLabels, issue.Labels)
	addList(AttrComponents, issue.Components)
	addList(AttrFixVersions, issue.FixVersions)
	if a.includeComments {
		attrs = append(attrs, domain.LongAttr(AttrCommentCount, int64(len(issue.Comments))))
	}

	// Custom field attributes in field id order so output is stable.
	fieldIDs := make([]string, 0, len(a.customFields))
	for id := range a.customFields {
		fieldIDs = append(fieldIDs, id)
	}
	sort.Strings(fieldIDs)
	for _, id := range fieldIDs {
		addString(a.customFields[id], issue.CustomFields[id])
	}

	return attrs
}

// sourceURI returns the browse link for the issue.
func (a *Assembler) sourceURI(issue domain.Issue) string {
	site := a.siteURL
	if site == "" {
		site = siteFromSelf(issue.Self)
	}
	if site == "" {
		return "jira://issue/" + issue.Key
	}
	return site + "/browse/" + issue.Key
}

// siteFromSelf extracts scheme://host from an API self link.
func siteFromSelf(self string) string {
	if self == "" {
		return ""
	}
	u, err := url.Parse(self)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func displayName(p domain.Principal) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(commentTimeLayout)
}
