package domain

import (
	"fmt"
	"time"
)

// DocumentIDPrefix prefixes every document id derived from an issue key.
const DocumentIDPrefix = "jira-issue-"

// ContentTypePlainText marks document content as plain text.
const ContentTypePlainText = "PLAIN_TEXT"

// DocumentID derives the document id for an issue key.
func DocumentID(issueKey string) string {
	return DocumentIDPrefix + issueKey
}

// Document is the payload uploaded to the search index for one issue.
// Documents are assembled fresh per run and not mutated afterwards.
type Document struct {
	// ID is derived from the issue key (see DocumentID).
	ID string

	// Title is the human-readable title.
	Title string

	// Content is the searchable plain-text blob.
	Content string

	// ContentType is the content marker (ContentTypePlainText).
	ContentType string

	// Attributes are ordered, typed, named values.
	Attributes []Attribute

	// ACL is the document's access control entry.
	ACL AccessControlEntry

	// SourceURI is the browse URL of the issue.
	SourceURI string

	// SourceUpdatedAt is the issue's last update time in the tracker.
	// Not part of the fingerprint.
	SourceUpdatedAt time.Time
}

// AttributeType tags an attribute value.
type AttributeType string

const (
	AttrString     AttributeType = "STRING"
	AttrStringList AttributeType = "STRING_LIST"
	AttrLong       AttributeType = "LONG"
	AttrDate       AttributeType = "DATE"
)

// AttributeValue is a typed attribute value. Exactly one field matching
// Type is meaningful.
type AttributeValue struct {
	Type       AttributeType
	String     string
	StringList []string
	Long       int64
	Date       time.Time
}

// Attribute is a named, typed document attribute.
type Attribute struct {
	Name  string
	Value AttributeValue
}

// StringAttr returns a string attribute.
func StringAttr(name, v string) Attribute {
	return Attribute{Name: name, Value: AttributeValue{Type: AttrString, String: v}}
}

// StringListAttr returns a string list attribute.
func StringListAttr(name string, v []string) Attribute {
	return Attribute{Name: name, Value: AttributeValue{Type: AttrStringList, StringList: v}}
}

// LongAttr returns an integer attribute.
func LongAttr(name string, v int64) Attribute {
	return Attribute{Name: name, Value: AttributeValue{Type: AttrLong, Long: v}}
}

// DateAttr returns a date attribute. The time is normalised to UTC.
func DateAttr(name string, v time.Time) Attribute {
	return Attribute{Name: name, Value: AttributeValue{Type: AttrDate, Date: v.UTC()}}
}

// Text renders the value for display and for stores without typed values.
func (v AttributeValue) Text() string {
	switch v.Type {
	case AttrString:
		return v.String
	case AttrStringList:
		return fmt.Sprint(v.StringList)
	case AttrLong:
		return fmt.Sprintf("%d", v.Long)
	case AttrDate:
		return v.Date.Format(time.RFC3339)
	default:
		return ""
	}
}

// DocumentStatus is the per-document outcome of an upload or delete call.
type DocumentStatus string

const (
	DocumentSucceeded DocumentStatus = "SUCCEEDED"
	DocumentFailed    DocumentStatus = "FAILED"
)

// DocumentResult is the per-document result reported by the indexing API.
// One bad document never masks the results of its batch-mates.
type DocumentResult struct {
	ID           string
	Status       DocumentStatus
	ErrorCode    string
	ErrorMessage string
}

// Succeeded reports whether the document was accepted.
func (r DocumentResult) Succeeded() bool { return r.Status == DocumentSucceeded }
