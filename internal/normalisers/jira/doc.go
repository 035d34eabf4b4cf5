// Package jira assembles searchable documents from Jira issues.
//
// The assembler renders an issue into plain-text content with its
// metadata and comments, and into typed attributes for faceting. It does
// not decide access control.
package jira
