// Package redis provides a shared change-detection cache store and a
// distributed lease on Redis, so several sync workers can share cache
// state and never run two jobs against the same index at once.
//
// Cache entries are hashes under <prefix>cache:<document id> that expire
// natively at the entry's expiry. A set at <prefix>cache:ids indexes the
// live ids for listing. Leases are plain keys set with NX and a TTL; the
// holder's token guards refresh and release.
package redis
