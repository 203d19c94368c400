package tablets

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// TableID is the stable identity of a table, independent of its name.
type TableID uuid.UUID

// NewTableID generates a fresh random table identity.
func NewTableID() TableID {
	return TableID(uuid.New())
}

// ParseTableID parses the canonical UUID form of a table identity.
func ParseTableID(s string) (TableID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TableID{}, fmt.Errorf("invalid table id %q: %w", s, err)
	}
	return TableID(u), nil
}

func (t TableID) String() string {
	return uuid.UUID(t).String()
}

// IsZero reports whether t is the zero identity.
func (t TableID) IsZero() bool {
	return t == TableID{}
}

// MarshalJSON renders the table id in canonical UUID form.
func (t TableID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON parses the canonical UUID form.
func (t *TableID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid table id: %s", data)
	}
	parsed, err := ParseTableID(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Metadata holds the tablet maps of all tables in the cluster, at most one
// per table identity.
//
// Once published inside a topology snapshot, a Metadata is immutable and
// safe for concurrent reads without locking. The coordinator derives the
// next version with Clone and replaces the whole structure.
//
// TODO: make Clone cheap. We want both immutability and cheap updates, which
// calls for a hierarchical structure with shared substructure and
// copy-on-write. Currently updates require a full O(size) copy; correct, but
// a known future optimization.
type Metadata struct {
	tablets map[TableID]*Map
}

// NewMetadata creates an empty per-cluster tablet metadata.
func NewMetadata() *Metadata {
	return &Metadata{tablets: make(map[TableID]*Map)}
}

// TabletMap returns the tablet map of a table. Absence is a recoverable
// condition (the table may have been dropped concurrently) reported as
// ErrNoTabletMap, never as an internal error.
func (m *Metadata) TabletMap(table TableID) (*Map, error) {
	tm, ok := m.tablets[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTabletMap, table)
	}
	return tm, nil
}

// SetTabletMap inserts or replaces the tablet map of a table, whole-map
// granularity.
func (m *Metadata) SetTabletMap(table TableID, tm *Map) {
	m.tablets[table] = tm
}

// RemoveTabletMap drops a table's tablet map. Unknown tables are a no-op.
func (m *Metadata) RemoveTabletMap(table TableID) {
	delete(m.tablets, table)
}

// Tables returns the identities of all tables with a tablet map, sorted for
// stable output.
func (m *Metadata) Tables() []TableID {
	ids := maps.Keys(m.tablets)
	slices.SortFunc(ids, func(a, b TableID) int {
		return strings.Compare(a.String(), b.String())
	})
	return ids
}

// All yields every (table, map) pair in sorted table order.
func (m *Metadata) All() iter.Seq2[TableID, *Map] {
	return func(yield func(TableID, *Map) bool) {
		for _, id := range m.Tables() {
			if !yield(id, m.tablets[id]) {
				return
			}
		}
	}
}

// Len returns the number of tables tracked.
func (m *Metadata) Len() int {
	return len(m.tablets)
}

// Clone returns a deep copy of the metadata. See the type comment for the
// cost caveat.
func (m *Metadata) Clone() *Metadata {
	out := &Metadata{tablets: make(map[TableID]*Map, len(m.tablets))}
	for id, tm := range m.tablets {
		out.tablets[id] = tm.Clone()
	}
	return out
}

// Equal reports structural equality.
func (m *Metadata) Equal(other *Metadata) bool {
	if len(m.tablets) != len(other.tablets) {
		return false
	}
	for id, tm := range m.tablets {
		otm, ok := other.tablets[id]
		if !ok || !tm.Equal(otm) {
			return false
		}
	}
	return true
}

// ExternalMemoryUsage estimates the heap footprint: the per-table maps plus
// the overhead of the table index itself.
func (m *Metadata) ExternalMemoryUsage() uintptr {
	size := uintptr(len(m.tablets)) * (unsafe.Sizeof(TableID{}) + unsafe.Sizeof((*Map)(nil)) + 8)
	for _, tm := range m.tablets {
		size += tm.ExternalMemoryUsage()
	}
	return size
}

// ClearGently tears down every owned map with the same non-blocking contract
// as Map.ClearGently. The metadata is unusable afterwards.
func (m *Metadata) ClearGently(ctx context.Context) error {
	for _, tm := range m.tablets {
		if err := tm.ClearGently(ctx); err != nil {
			return err
		}
	}
	m.tablets = nil
	return nil
}

// String renders all tables and their maps for diagnostics.
func (m *Metadata) String() string {
	var b strings.Builder
	b.WriteString("{")
	first := true
	for id, tm := range m.All() {
		if !first {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "\n  %s: %s", id, tm)
		first = false
	}
	b.WriteString("\n}")
	return b.String()
}
