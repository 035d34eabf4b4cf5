// Package jira implements the tracker side of the sync: issue search,
// permission schemes, project roles and group membership over the
// Jira REST API v2.
//
// # Architecture
//
// A single Client implements three driven ports:
//
//   - [driven.IssueSource]: paginated JQL search
//   - [driven.PermissionDirectory]: permission schemes, grants and role actors
//   - [driven.PrincipalDirectory]: group member expansion
//
// # Authentication
//
// Two authentication methods are supported:
//
//   - Basic: username with password (Server/Data Center) or username with
//     API token (Cloud).
//
//   - Personal Access Token: bearer token (Server/Data Center 8.14+), sent
//     through an oauth2 static token source.
//
// # Rate Limiting
//
// Requests are throttled proactively with a token bucket. Responses with
// status 429, 500, 502, 503 or 504 are retried up to MaxRetries times,
// honouring Retry-After when present.
package jira
