// Package domain defines the core business entities for jira-q-sync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Principal: A user or group identity from the tracker
//   - Grant, RoleActor, ResolvedAccess: The tracker's permission model
//   - AccessControlEntry: The visibility rule attached to a document
//   - Document: The payload uploaded to the search index
//   - CacheEntry: Persisted change-detection state per document
//   - SyncJob, SyncReport: Job lifecycle and run outcome
//   - ScheduledTask, TaskResult: The serve timetable and its run history
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
