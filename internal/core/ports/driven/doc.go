// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Tracker
//
// Implemented by the Jira client in internal/connectors/jira:
//
//   - IssueSource: Paginated JQL search
//   - PermissionDirectory: Permission schemes, grants and project role actors
//   - PrincipalDirectory: Group member expansion and user lookup
//
// # Index
//
//   - Indexer: The managed search index and its sync job lifecycle
//   - JobHistory: Recent jobs on the index, for status reporting
//   - PrincipalStore: Group membership in the index's user store
//
// # Storage
//
//   - CacheStore: Change-detection entries (memory, SQLite, Redis)
//   - LeaseManager: Mutual exclusion of runs against one index
//   - SchedulerStore: The serve timetable and run history
//   - ConfigStore: Editable configuration file
//
// # Assembly
//
//   - DocumentAssembler: Turns an issue into document text and attributes
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or normaliser package
package driven
