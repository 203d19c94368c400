package replication

import (
	"log/slog"

	"github.com/dreamware/tessera/internal/cluster"
	"github.com/dreamware/tessera/internal/tablets"
)

// TabletReplicationMap answers placement queries for one tablet-based table
// against one topology snapshot.
type TabletReplicationMap struct {
	table tablets.TableID
	snap  *Snapshot
	tmap  *tablets.Map
	rf    int
	log   *slog.Logger
}

// NewTabletReplicationMap binds a replication map to a table and a snapshot.
// Returns tablets.ErrNoTabletMap when the table has no tablet map in the
// snapshot, which callers treat as a concurrent drop.
func NewTabletReplicationMap(table tablets.TableID, snap *Snapshot, rf int, log *slog.Logger) (*TabletReplicationMap, error) {
	if log == nil {
		log = slog.Default()
	}
	tmap, err := snap.Tablets().TabletMap(table)
	if err != nil {
		return nil, err
	}
	return &TabletReplicationMap{
		table: table,
		snap:  snap,
		tmap:  tmap,
		rf:    rf,
		log:   log,
	}, nil
}

// endpointForHost resolves a replica's host to its address. A host id with
// no endpoint in the snapshot breaks the membership invariant, so it panics.
func (m *TabletReplicationMap) endpointForHost(host cluster.HostID) cluster.Endpoint {
	addr, ok := m.snap.EndpointForHost(host)
	if !ok {
		tablets.InternalErrorf(m.log, "host %s not found in the cluster", host)
	}
	return addr
}

func (m *TabletReplicationMap) toEndpoints(replicas tablets.ReplicaSet) []cluster.Endpoint {
	out := make([]cluster.Endpoint, 0, len(replicas))
	for _, r := range replicas {
		out = append(out, m.endpointForHost(r.Host))
	}
	return out
}

// NaturalEndpoints implements EffectiveReplicationMap.
func (m *TabletReplicationMap) NaturalEndpoints(t tablets.Token) []cluster.Endpoint {
	id := m.tmap.TabletForToken(t)
	replicas := m.tmap.TabletInfo(id).Replicas
	m.log.Debug("natural endpoints",
		"table", m.table, "token", t, "tablet", uint64(id), "replicas", replicas)
	return m.toEndpoints(replicas)
}

// NaturalEndpointsWithoutNodeBeingReplaced implements EffectiveReplicationMap.
func (m *TabletReplicationMap) NaturalEndpointsWithoutNodeBeingReplaced(t tablets.Token) []cluster.Endpoint {
	return withoutNodeBeingReplaced(m.snap, m.NaturalEndpoints(t))
}

// PendingEndpoints implements EffectiveReplicationMap. A tablet has at most
// one pending replica, so the result has at most one element.
func (m *TabletReplicationMap) PendingEndpoints(t tablets.Token) []cluster.Endpoint {
	id := m.tmap.TabletForToken(t)
	ti, ok := m.tmap.Transition(id)
	if !ok {
		return nil
	}
	m.log.Debug("pending endpoints",
		"table", m.table, "token", t, "tablet", uint64(id), "replica", ti.Pending)
	return []cluster.Endpoint{m.endpointForHost(ti.Pending.Host)}
}

// HasPendingRanges implements EffectiveReplicationMap: true iff the
// endpoint's host is the pending replica of any transition in the table's
// map.
func (m *TabletReplicationMap) HasPendingRanges(addr cluster.Endpoint) bool {
	host, ok := m.snap.HostForEndpoint(addr)
	if !ok {
		return false
	}
	for _, ti := range m.tmap.Transitions() {
		if ti.Pending.Host == host {
			return true
		}
	}
	return false
}

// MakeSplitter implements EffectiveReplicationMap. The splitter yields one
// boundary per tablet, from the tablet containing the reset position through
// the last tablet.
func (m *TabletReplicationMap) MakeSplitter() TokenRangeSplitter {
	return &tabletSplitter{snap: m.snap, tmap: m.tmap}
}

// Sharder implements EffectiveReplicationMap.
func (m *TabletReplicationMap) Sharder() Sharder {
	return &tabletSharder{tmap: m.tmap, host: m.snap.LocalHost()}
}

// ReplicationFactor implements EffectiveReplicationMap.
func (m *TabletReplicationMap) ReplicationFactor() int {
	return m.rf
}

type tabletSplitter struct {
	// snap keeps the owning topology snapshot, and with it the borrowed
	// tablet map, alive for the splitter's whole lifetime.
	snap  *Snapshot
	tmap  *tablets.Map
	next  tablets.ID
	valid bool
}

func (s *tabletSplitter) Reset(pos tablets.Token) {
	s.next = s.tmap.TabletForToken(pos)
	s.valid = true
}

func (s *tabletSplitter) NextToken() (tablets.Token, bool) {
	if !s.valid {
		return 0, false
	}
	t := s.tmap.LastToken(s.next)
	s.next, s.valid = s.tmap.NextTablet(s.next)
	return t, true
}

// tabletSharder maps a token to the local shard holding its replica. Tokens
// with no replica on the local host map to shard 0.
type tabletSharder struct {
	tmap *tablets.Map
	host cluster.HostID
}

func (s *tabletSharder) ShardOf(t tablets.Token) cluster.ShardID {
	id := s.tmap.TabletForToken(t)
	shard, ok := s.tmap.Shard(id, s.host)
	if !ok {
		return 0
	}
	return shard
}
