package cluster

import (
	"fmt"

	"github.com/google/uuid"
)

// HostID is the stable cluster-wide identity of a node.
//
// A HostID is independent of the node's network address: a node keeps its
// HostID across restarts, IP changes and replacement of its hardware. All
// placement state (tablet replica sets, transitions) is keyed by HostID,
// never by address; translation to a routable address happens at the very
// edge, through a Directory or a topology Snapshot.
type HostID uuid.UUID

// NewHostID generates a fresh random host identity.
func NewHostID() HostID {
	return HostID(uuid.New())
}

// ParseHostID parses the canonical UUID form of a host identity.
func ParseHostID(s string) (HostID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return HostID{}, fmt.Errorf("invalid host id %q: %w", s, err)
	}
	return HostID(u), nil
}

func (h HostID) String() string {
	return uuid.UUID(h).String()
}

// IsZero reports whether h is the zero identity, used as "no host".
func (h HostID) IsZero() bool {
	return h == HostID{}
}

// Bytes returns the raw 16-byte form of the identity.
func (h HostID) Bytes() []byte {
	u := uuid.UUID(h)
	return u[:]
}

// MarshalJSON renders the host id in canonical UUID form.
func (h HostID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON parses the canonical UUID form.
func (h *HostID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid host id: %s", data)
	}
	parsed, err := ParseHostID(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ShardID selects an execution unit local to a host. Shard indices are only
// meaningful relative to the host they were resolved for.
type ShardID uint32

// Endpoint is a node's current resolvable network address, e.g.
// "http://10.0.0.12:7291". Unlike HostID it may change over the node's
// lifetime.
type Endpoint string

// NodeInfo describes one member of the cluster: its stable identity, its
// current address, and whether it is currently reachable.
type NodeInfo struct {
	Host HostID   `json:"host_id"`
	Addr Endpoint `json:"addr"`
	Up   bool     `json:"up"`
}
