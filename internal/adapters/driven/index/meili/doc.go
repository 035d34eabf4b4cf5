// Package meili indexes documents into a self-hosted Meilisearch index.
//
// Meilisearch has no sync jobs, so the job lifecycle is kept locally: one
// outstanding job per indexer, with uuid execution ids stamped onto every
// stored record. Document access is stored as the filterable fields
// allowed_users and allowed_groups, intended for tenant-token filters such
// as `allowed_users = "a@example.com" OR allowed_groups IN ["eng"]`.
package meili
