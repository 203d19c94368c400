package tablets

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math/bits"
	"runtime"
	"strings"
	"unsafe"

	"github.com/dreamware/tessera/internal/cluster"
)

// clearBatch bounds how many tablets ClearGently frees before yielding the
// scheduler, so tearing down a very large map never monopolizes a goroutine's
// turn.
const clearBatch = 1024

// Map stores the placement of all tablets of a single table.
//
// The map holds a constant number of tablets, TabletCount(), always a power
// of two. Each tablet has an Info with its current replica set and,
// optionally, a TransitionInfo while a migration is in flight. Any given
// token is owned by exactly one tablet: the map describes the whole ring and
// can never contain a partial mapping, so this sequence is always valid:
//
//	id := m.TabletForToken(t)
//	info := m.TabletInfo(id)
//
// An ID obtained from one Map instance is valid for that instance only.
//
// Mutation is reserved for the placement coordinator; once a Map is
// published inside a topology snapshot it is immutable and may be read from
// any goroutine without locking. Updates replace the whole map rather than
// touching a published one.
type Map struct {
	// The implementation assumes len(tablets) == 1 << log2Tablets.
	tablets     []Info
	log2Tablets uint
	transitions map[ID]TransitionInfo
	log         *slog.Logger
}

// NewMap constructs a tablet map with the given number of tablets.
// tabletCount must be a power of two; anything else is a broken invariant
// and panics with *InternalError.
func NewMap(tabletCount int, log *slog.Logger) *Map {
	if log == nil {
		log = slog.Default()
	}
	if tabletCount <= 0 || tabletCount&(tabletCount-1) != 0 {
		InternalErrorf(log, "tablet count not a power of 2: %d", tabletCount)
	}
	return &Map{
		tablets:     make([]Info, tabletCount),
		log2Tablets: uint(bits.TrailingZeros64(uint64(tabletCount))),
		transitions: make(map[ID]TransitionInfo),
		log:         log,
	}
}

// TabletCount returns the number of tablets in the map.
func (m *Map) TabletCount() int {
	return len(m.tablets)
}

func (m *Map) checkTabletID(id ID) {
	if uint64(id) >= uint64(len(m.tablets)) {
		InternalErrorf(m.log, "invalid tablet id: %d >= %d", uint64(id), len(m.tablets))
	}
}

// TabletForToken returns the ID of the tablet owning the given token.
func (m *Map) TabletForToken(t Token) ID {
	return tabletForToken(m.log2Tablets, t)
}

// TabletInfo returns the placement of a tablet. The ID must belong to this
// map instance.
func (m *Map) TabletInfo(id ID) Info {
	m.checkTabletID(id)
	return m.tablets[id]
}

// TabletInfoForToken returns the placement of the tablet owning a token.
func (m *Map) TabletInfoForToken(t Token) Info {
	return m.TabletInfo(m.TabletForToken(t))
}

// Transition returns the in-flight transition of a tablet, if any.
// The ID must belong to this map instance.
func (m *Map) Transition(id ID) (TransitionInfo, bool) {
	m.checkTabletID(id)
	ti, ok := m.transitions[id]
	return ti, ok
}

// Transitions returns the set of tablets currently in transition. The result
// must be treated as read-only.
func (m *Map) Transitions() map[ID]TransitionInfo {
	return m.transitions
}

// LastToken returns the largest token owned by a tablet.
func (m *Map) LastToken(id ID) Token {
	m.checkTabletID(id)
	return lastTokenOf(m.log2Tablets, id)
}

// FirstToken returns the smallest token owned by a tablet. For the first
// tablet this is the minimum sentinel, which bounds its range from below
// exclusively.
func (m *Map) FirstToken(id ID) Token {
	if id == m.FirstTablet() {
		return MinimumToken
	}
	return m.LastToken(id - 1).Next()
}

// TokenRange returns the interval containing all tokens owned by a tablet
// and only those.
func (m *Map) TokenRange(id ID) Range {
	m.checkTabletID(id)
	if id == m.FirstTablet() {
		return Range{Start: MinimumToken, End: m.LastToken(id)}
	}
	return Range{Start: m.LastToken(id - 1), End: m.LastToken(id)}
}

// FirstTablet returns the ID of the first tablet.
func (m *Map) FirstTablet() ID {
	return 0
}

// LastTablet returns the ID of the last tablet.
func (m *Map) LastTablet() ID {
	return ID(len(m.tablets) - 1)
}

// NextTablet returns the tablet following id in ring order, or false if id
// is the last one.
func (m *Map) NextTablet(id ID) (ID, bool) {
	if id == m.LastTablet() {
		return 0, false
	}
	return id + 1, true
}

// IDs yields all tablet IDs in token ring order.
func (m *Map) IDs() iter.Seq[ID] {
	return func(yield func(ID) bool) {
		for i := range m.tablets {
			if !yield(ID(i)) {
				return
			}
		}
	}
}

// SetTablet overwrites the placement of a single tablet. The caller is
// responsible for overall consistency across a full rebalancing step.
func (m *Map) SetTablet(id ID, info Info) {
	m.checkTabletID(id)
	m.tablets[id] = info
}

// SetTransition records or overwrites the in-flight transition of a tablet.
func (m *Map) SetTransition(id ID, info TransitionInfo) {
	m.checkTabletID(id)
	m.transitions[id] = info
}

// ClearTransition removes a tablet's transition entry, returning it to the
// stable state. Clearing a tablet with no transition is a no-op.
func (m *Map) ClearTransition(id ID) {
	m.checkTabletID(id)
	delete(m.transitions, id)
}

// Shard returns the shard which holds a replica of the given tablet on the
// given host. If the host holds no replica, returns false. If the tablet is
// in transition, the new replica set is also considered; the current replica
// set is preferred in case of ambiguity.
func (m *Map) Shard(id ID, host cluster.HostID) (cluster.ShardID, bool) {
	info := m.TabletInfo(id)

	for _, r := range info.Replicas {
		if r.Host == host {
			return r.Shard, true
		}
	}

	if ti, ok := m.transitions[id]; ok && ti.Pending.Host == host {
		return ti.Pending.Shard, true
	}

	return 0, false
}

// Clone returns a deep copy of the map. Used by the coordinator to derive
// the next topology version without disturbing the published one.
func (m *Map) Clone() *Map {
	out := &Map{
		tablets:     make([]Info, len(m.tablets)),
		log2Tablets: m.log2Tablets,
		transitions: make(map[ID]TransitionInfo, len(m.transitions)),
		log:         m.log,
	}
	for i, t := range m.tablets {
		out.tablets[i] = t.Clone()
	}
	for id, ti := range m.transitions {
		out.transitions[id] = ti.Clone()
	}
	return out
}

// Equal reports structural equality of two maps: same tablet count, same
// per-tablet placement, same transitions.
func (m *Map) Equal(other *Map) bool {
	if m.TabletCount() != other.TabletCount() || len(m.transitions) != len(other.transitions) {
		return false
	}
	for i := range m.tablets {
		if !m.tablets[i].Equal(other.tablets[i]) {
			return false
		}
	}
	for id, ti := range m.transitions {
		oti, ok := other.transitions[id]
		if !ok || !ti.Equal(oti) {
			return false
		}
	}
	return true
}

// ExternalMemoryUsage estimates the heap footprint of the map's backing
// storage in bytes. Diagnostics only, never used for correctness.
func (m *Map) ExternalMemoryUsage() uintptr {
	size := uintptr(cap(m.tablets)) * unsafe.Sizeof(Info{})
	for _, t := range m.tablets {
		size += t.Replicas.externalMemoryUsage()
	}
	size += uintptr(len(m.transitions)) * (unsafe.Sizeof(ID(0)) + unsafe.Sizeof(TransitionInfo{}) + 8)
	for _, ti := range m.transitions {
		size += ti.Next.externalMemoryUsage()
	}
	return size
}

// ClearGently releases tablet storage incrementally, yielding the scheduler
// after every clearBatch tablets so a very large map does not starve other
// work, and honoring cancellation. The map is unusable afterwards.
func (m *Map) ClearGently(ctx context.Context) error {
	for i := range m.tablets {
		m.tablets[i] = Info{}
		if (i+1)%clearBatch == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			runtime.Gosched()
		}
	}
	m.tablets = nil
	m.transitions = nil
	return nil
}

// String renders the map for diagnostics: one line per tablet with its last
// token, replicas, and transition state if any.
func (m *Map) String() string {
	if m.TabletCount() == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteString("{")
	for i, t := range m.tablets {
		if i > 0 {
			b.WriteString(",")
		}
		id := ID(i)
		fmt.Fprintf(&b, "\n    [%d]: last_token=%d, replicas=%v", i, m.LastToken(id), t.Replicas)
		if ti, ok := m.transitions[id]; ok {
			fmt.Fprintf(&b, ", new_replicas=%v, pending=%v", ti.Next, ti.Pending)
		}
	}
	b.WriteString("\n  }")
	return b.String()
}
