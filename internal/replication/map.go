package replication

import (
	"github.com/dreamware/tessera/internal/cluster"
	"github.com/dreamware/tessera/internal/tablets"
)

// EffectiveReplicationMap is the read-facing placement contract. It is the
// only interface query routing, streaming and repair are allowed to depend
// on; they must never reach into tablet map internals directly. Dispatch is
// always through this interface, never through concrete-type inspection.
//
// An effective replication map is bound to one table and one topology
// snapshot at construction and answers all queries against that frozen view.
type EffectiveReplicationMap interface {
	// NaturalEndpoints returns the current addresses of the replicas owning
	// the given token.
	NaturalEndpoints(t tablets.Token) []cluster.Endpoint

	// NaturalEndpointsWithoutNodeBeingReplaced is NaturalEndpoints with any
	// node currently being replaced filtered out.
	NaturalEndpointsWithoutNodeBeingReplaced(t tablets.Token) []cluster.Endpoint

	// PendingEndpoints returns the addresses of replicas being populated for
	// the given token's range; empty when no topology change is in flight.
	PendingEndpoints(t tablets.Token) []cluster.Endpoint

	// HasPendingRanges reports whether the endpoint's host is a pending
	// replica of any range of the bound table.
	HasPendingRanges(addr cluster.Endpoint) bool

	// MakeSplitter returns a fresh cursor over ascending range boundary
	// tokens, for partitioning bulk operations. Each traversal needs its own
	// splitter; one must not be shared.
	MakeSplitter() TokenRangeSplitter

	// Sharder returns the stable token-to-local-shard mapping of the bound
	// table on the local host.
	Sharder() Sharder

	// ReplicationFactor returns the configured number of replicas per range.
	ReplicationFactor() int
}

// TokenRangeSplitter is a cursor producing ascending range boundary tokens.
// Reset seeks to the range containing a position; NextToken then yields the
// last token of the current range and advances, reporting false once the
// final range has been emitted. The cursor is restartable via Reset but not
// safe for concurrent use.
type TokenRangeSplitter interface {
	Reset(pos tablets.Token)
	NextToken() (tablets.Token, bool)
}

// Sharder routes a token to an execution shard on the local host.
type Sharder interface {
	ShardOf(t tablets.Token) cluster.ShardID
}

// withoutNodeBeingReplaced removes the endpoint of the host currently being
// replaced, if any, from a natural endpoint set. Shared across strategies.
func withoutNodeBeingReplaced(snap *Snapshot, endpoints []cluster.Endpoint) []cluster.Endpoint {
	host, ok := snap.NodeBeingReplaced()
	if !ok {
		return endpoints
	}
	addr, ok := snap.EndpointForHost(host)
	if !ok {
		return endpoints
	}
	out := make([]cluster.Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if e != addr {
			out = append(out, e)
		}
	}
	return out
}
