package replication

import (
	"encoding/binary"
	"hash/fnv"
	"log/slog"

	"golang.org/x/exp/slices"

	"github.com/dreamware/tessera/internal/cluster"
	"github.com/dreamware/tessera/internal/tablets"
)

// vnodesPerHost is the number of virtual nodes each host contributes to the
// legacy ring. More virtual nodes smooth the distribution at the cost of a
// larger ring.
const vnodesPerHost = 8

type ringPoint struct {
	tok  tablets.Token
	host cluster.HostID
}

// buildRing derives the legacy hash ring from cluster membership. Each host
// owns vnodesPerHost positions computed from its identity, so the ring is
// deterministic for a given member set.
func buildRing(nodes []cluster.NodeInfo) []ringPoint {
	ring := make([]ringPoint, 0, len(nodes)*vnodesPerHost)
	for _, n := range nodes {
		for v := 0; v < vnodesPerHost; v++ {
			h := fnv.New64a()
			h.Write(n.Host.Bytes())
			var idx [4]byte
			binary.BigEndian.PutUint32(idx[:], uint32(v))
			h.Write(idx[:])
			tok := tablets.Token(int64(h.Sum64()))
			if tok == tablets.MinimumToken {
				tok = tok.Next()
			}
			ring = append(ring, ringPoint{tok: tok, host: n.Host})
		}
	}
	slices.SortFunc(ring, func(a, b ringPoint) int {
		switch {
		case a.tok < b.tok:
			return -1
		case a.tok > b.tok:
			return 1
		default:
			return 0
		}
	})
	return ring
}

// ringSuccessors walks the ring clockwise from the first point at or after t
// and collects up to rf distinct hosts.
func (s *Snapshot) ringSuccessors(t tablets.Token, rf int) []cluster.HostID {
	if len(s.ring) == 0 || rf <= 0 {
		return nil
	}
	start, _ := slices.BinarySearchFunc(s.ring, t, func(p ringPoint, tok tablets.Token) int {
		switch {
		case p.tok < tok:
			return -1
		case p.tok > tok:
			return 1
		default:
			return 0
		}
	})

	hosts := make([]cluster.HostID, 0, rf)
	for i := 0; i < len(s.ring) && len(hosts) < rf; i++ {
		p := s.ring[(start+i)%len(s.ring)]
		if !slices.Contains(hosts, p.host) {
			hosts = append(hosts, p.host)
		}
	}
	return hosts
}

// RingReplicationMap is the legacy ring-based variant of the effective
// replication map: placement follows virtual-node hash ring succession
// instead of a tablet map. It has no transitional replica state.
type RingReplicationMap struct {
	snap *Snapshot
	rf   int
	log  *slog.Logger
}

// NewRingReplicationMap binds a legacy replication map to a snapshot.
func NewRingReplicationMap(snap *Snapshot, rf int, log *slog.Logger) *RingReplicationMap {
	if log == nil {
		log = slog.Default()
	}
	return &RingReplicationMap{snap: snap, rf: rf, log: log}
}

// NaturalEndpoints implements EffectiveReplicationMap.
func (m *RingReplicationMap) NaturalEndpoints(t tablets.Token) []cluster.Endpoint {
	hosts := m.snap.ringSuccessors(t, m.rf)
	out := make([]cluster.Endpoint, 0, len(hosts))
	for _, h := range hosts {
		addr, ok := m.snap.EndpointForHost(h)
		if !ok {
			tablets.InternalErrorf(m.log, "host %s not found in the cluster", h)
		}
		out = append(out, addr)
	}
	return out
}

// NaturalEndpointsWithoutNodeBeingReplaced implements EffectiveReplicationMap.
func (m *RingReplicationMap) NaturalEndpointsWithoutNodeBeingReplaced(t tablets.Token) []cluster.Endpoint {
	return withoutNodeBeingReplaced(m.snap, m.NaturalEndpoints(t))
}

// PendingEndpoints implements EffectiveReplicationMap. The legacy ring has
// no per-range transition state.
func (m *RingReplicationMap) PendingEndpoints(t tablets.Token) []cluster.Endpoint {
	return nil
}

// HasPendingRanges implements EffectiveReplicationMap.
func (m *RingReplicationMap) HasPendingRanges(addr cluster.Endpoint) bool {
	return false
}

// MakeSplitter implements EffectiveReplicationMap: boundaries fall on the
// ring's virtual node positions.
func (m *RingReplicationMap) MakeSplitter() TokenRangeSplitter {
	return &ringSplitter{snap: m.snap}
}

// Sharder implements EffectiveReplicationMap: tokens spread over local
// shards by modulo, independent of placement.
func (m *RingReplicationMap) Sharder() Sharder {
	return &ringSharder{shards: m.snap.LocalShardCount()}
}

// ReplicationFactor implements EffectiveReplicationMap.
func (m *RingReplicationMap) ReplicationFactor() int {
	return m.rf
}

type ringSplitter struct {
	// snap keeps the ring alive for the splitter's lifetime.
	snap  *Snapshot
	idx   int
	valid bool
}

func (s *ringSplitter) Reset(pos tablets.Token) {
	ring := s.snap.ring
	s.idx, _ = slices.BinarySearchFunc(ring, pos, func(p ringPoint, tok tablets.Token) int {
		switch {
		case p.tok < tok:
			return -1
		case p.tok > tok:
			return 1
		default:
			return 0
		}
	})
	s.valid = true
}

func (s *ringSplitter) NextToken() (tablets.Token, bool) {
	if !s.valid {
		return 0, false
	}
	ring := s.snap.ring
	if s.idx >= len(ring) {
		// The wrapping remainder of the ring ends at the space maximum.
		s.valid = false
		return tablets.MaximumToken, true
	}
	t := ring[s.idx].tok
	s.idx++
	if t == tablets.MaximumToken {
		s.valid = false
	}
	return t, true
}

type ringSharder struct {
	shards cluster.ShardID
}

func (s *ringSharder) ShardOf(t tablets.Token) cluster.ShardID {
	if s.shards == 0 {
		return 0
	}
	biased := uint64(t) ^ 1<<63
	return cluster.ShardID(biased % uint64(s.shards))
}
