package replication

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/dreamware/tessera/internal/cluster"
	"github.com/dreamware/tessera/internal/tablets"
)

// Snapshot is an immutable view of the cluster topology: membership frozen
// from the directory, the tablet metadata version published with it, and the
// identity of the node this process runs as.
//
// A snapshot is shared by pointer across goroutines; everything reachable
// from it is read-only. Values derived from a snapshot that outlive the call
// which produced them (such as a splitter) hold a reference to the snapshot
// itself, so the borrowed structures can never be torn down underneath them.
type Snapshot struct {
	version     uint64
	localHost   cluster.HostID
	localShards cluster.ShardID
	nodes       map[cluster.HostID]cluster.NodeInfo
	byAddr      map[cluster.Endpoint]cluster.HostID
	replaced    cluster.HostID
	tablets     *tablets.Metadata
	ring        []ringPoint
}

// NewSnapshot freezes the directory's current state together with the given
// tablet metadata. The metadata must not be mutated after being handed over.
func NewSnapshot(dir *cluster.Directory, meta *tablets.Metadata, localHost cluster.HostID, localShards cluster.ShardID, version uint64) *Snapshot {
	nodes := dir.Nodes()
	s := &Snapshot{
		version:     version,
		localHost:   localHost,
		localShards: localShards,
		nodes:       make(map[cluster.HostID]cluster.NodeInfo, len(nodes)),
		byAddr:      make(map[cluster.Endpoint]cluster.HostID, len(nodes)),
		tablets:     meta,
		ring:        buildRing(nodes),
	}
	for _, n := range nodes {
		s.nodes[n.Host] = n
		s.byAddr[n.Addr] = n.Host
	}
	if host, ok := dir.NodeBeingReplaced(); ok {
		s.replaced = host
	}
	return s
}

// Version returns the topology version this snapshot was published as.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// LocalHost returns the identity of the local node.
func (s *Snapshot) LocalHost() cluster.HostID {
	return s.localHost
}

// LocalShardCount returns the number of execution shards on the local node.
func (s *Snapshot) LocalShardCount() cluster.ShardID {
	return s.localShards
}

// Tablets returns the tablet metadata published with this snapshot.
func (s *Snapshot) Tablets() *tablets.Metadata {
	return s.tablets
}

// EndpointForHost resolves a host identity to the address it had when the
// snapshot was taken.
func (s *Snapshot) EndpointForHost(host cluster.HostID) (cluster.Endpoint, bool) {
	n, ok := s.nodes[host]
	return n.Addr, ok
}

// HostForEndpoint resolves an address to a host identity, if known.
func (s *Snapshot) HostForEndpoint(addr cluster.Endpoint) (cluster.HostID, bool) {
	h, ok := s.byAddr[addr]
	return h, ok
}

// NodeBeingReplaced returns the host that was being replaced when the
// snapshot was taken, if any.
func (s *Snapshot) NodeBeingReplaced() (cluster.HostID, bool) {
	return s.replaced, !s.replaced.IsZero()
}

// NodeCount returns the number of cluster members in the snapshot.
func (s *Snapshot) NodeCount() int {
	return len(s.nodes)
}

// Nodes returns the membership frozen in the snapshot, sorted by host id.
func (s *Snapshot) Nodes() []cluster.NodeInfo {
	out := make([]cluster.NodeInfo, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b cluster.NodeInfo) int {
		return strings.Compare(a.Host.String(), b.Host.String())
	})
	return out
}
