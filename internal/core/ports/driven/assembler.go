package driven

import "github.com/custodia-labs/jira-q-sync/internal/core/domain"

// DocumentAssembler turns an issue into document content and attributes.
// It does not decide access control.
type DocumentAssembler interface {
	Assemble(issue domain.Issue) (AssembledDocument, error)
}

// AssembledDocument is the assembler's output.
type AssembledDocument struct {
	Title      string
	Content    string
	Attributes []domain.Attribute
	SourceURI  string
}
