// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters):
//
//   - PermissionResolver: Project browse access from permission schemes
//   - ChangeDetectionCache: Content fingerprints and upload outcomes
//   - SyncOrchestrator: One sync run against the index
//   - Scheduler: Repeated runs on an interval
//
// Services are pure Go with no CGO and no I/O of their own.
package services
