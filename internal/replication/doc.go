// Package replication translates placement data into routing answers for the
// rest of the system.
//
// # Overview
//
// The package exposes one contract, EffectiveReplicationMap: given a token,
// which endpoints hold it now (natural), which are being populated
// (pending), and how to partition the ring for bulk work (splitter). Two
// variants implement it: the tablet-aware map, backed by a table's tablet
// map, and the legacy ring-based map, backed by a virtual-node hash ring
// derived from membership. Consumers dispatch through the interface and
// never inspect the concrete type.
//
// # Snapshots
//
// Every replication map is bound at construction to a Snapshot: an immutable
// view combining frozen membership (host-id to endpoint both ways, the node
// being replaced) with one version of the tablet metadata. Queries never
// lock; an updated topology is published as a whole new snapshot. Splitters
// hold a reference to their snapshot so the structures they iterate cannot
// be torn down while a traversal is in progress, even when handed to another
// goroutine.
//
// # Strategy options
//
// Strategy carries the replication configuration parsed from a schema
// statement. The tablet-aware layer recognizes exactly one option,
// "initial_tablets": validated against the cluster-wide feature gate and
// value syntax, then consumed from the option bag, marking the strategy as
// tablet-based with per-table state. Configuration failures reject the
// statement; they never leave partial state.
package replication
