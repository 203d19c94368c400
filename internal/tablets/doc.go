// Package tablets implements the data structures that partition a table's
// token space into fixed-size tablets and record where each tablet's
// replicas live.
//
// # Overview
//
// A table's key space is an ordered ring of tokens. The ring is split into
// 2^k contiguous ranges of equal size, one per tablet; the tablet is the
// unit of placement and migration. The split preserves token order: the
// tablet owning a token is obtained from the top k bits of the token's
// zero-based image, so range scans touch consecutive tablets.
//
// The Map type holds every tablet of one table: the current replica set per
// tablet, plus a sparse overlay of transitions for tablets mid-migration.
// Metadata aggregates one Map per table for the whole cluster.
//
// # Versioning and concurrency
//
// Mutation is reserved for the placement coordinator. Published Map and
// Metadata instances are immutable snapshots: an update clones the whole
// structure, mutates the clone through SetTablet / SetTransition /
// SetTabletMap, and publishes the result. Readers therefore need no locks
// and always observe either a fully old or fully new version.
//
// Tablet IDs are scoped to one Map instance and one topology version.
// Passing an ID to a map that does not own it is a programming error and
// panics with *InternalError; it is never a recoverable condition.
//
// # Teardown
//
// Maps can be very large. ClearGently frees storage in bounded batches,
// yielding the scheduler between batches, and is the only suspending
// operation in this package.
package tablets
