// Package cluster provides the identity layer of Tessera's placement
// subsystem: stable host identities, local shard indices, network endpoints,
// and the directory that maps between them.
//
// # Overview
//
// Every node in a cluster has two names. Its HostID is a stable UUID that
// never changes for the lifetime of the node; its Endpoint is the network
// address it currently listens on, which can change on restart or
// redeployment. Placement state always refers to nodes by HostID so that a
// tablet's replica set survives address churn. The Directory performs the
// translation in both directions and tracks per-node reachability.
//
// # Directory and snapshots
//
// The Directory is the single mutable membership structure. The query path
// never consults it directly: the replication layer folds a frozen copy of
// its state into each topology snapshot, so placement lookups see a
// consistent membership view for the duration of a snapshot.
//
// The directory also records at most one host as "being replaced". Strategies
// use this to answer endpoint queries that must exclude a node whose data is
// being rebuilt elsewhere.
//
// # Features
//
// Features carries cluster-wide capability switches, currently only the
// tablets gate. Validation of schema options consults it before accepting a
// tablet-based table.
package cluster
