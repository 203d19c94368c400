package tablets

import (
	"fmt"
	"unsafe"

	"github.com/dreamware/tessera/internal/cluster"
)

// replicaSetInlineCap is the capacity replica sets are allocated with.
// Replica sets are small, typically RF <= 3, so one allocation covers the
// common case.
const replicaSetInlineCap = 3

// Replica is one copy of a tablet's data: a host identity plus the shard on
// that host which owns the copy. Equality is by both fields.
type Replica struct {
	Host  cluster.HostID  `json:"host_id"`
	Shard cluster.ShardID `json:"shard"`
}

func (r Replica) String() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Shard)
}

// ReplicaSet is the ordered set of replicas of one tablet.
type ReplicaSet []Replica

// NewReplicaSet builds a replica set with the usual small capacity.
func NewReplicaSet(replicas ...Replica) ReplicaSet {
	s := make(ReplicaSet, 0, max(len(replicas), replicaSetInlineCap))
	return append(s, replicas...)
}

// Contains reports whether the set has a replica on the given host.
func (s ReplicaSet) Contains(host cluster.HostID) bool {
	for _, r := range s {
		if r.Host == host {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the set.
func (s ReplicaSet) Clone() ReplicaSet {
	if s == nil {
		return nil
	}
	out := make(ReplicaSet, len(s), cap(s))
	copy(out, s)
	return out
}

// Equal reports element-wise equality.
func (s ReplicaSet) Equal(other ReplicaSet) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// externalMemoryUsage estimates the heap footprint of the backing array.
func (s ReplicaSet) externalMemoryUsage() uintptr {
	return uintptr(cap(s)) * unsafe.Sizeof(Replica{})
}

// Info holds the current replica assignment of a single tablet.
type Info struct {
	Replicas ReplicaSet `json:"replicas"`
}

// Clone returns a deep copy.
func (i Info) Clone() Info {
	return Info{Replicas: i.Replicas.Clone()}
}

// Equal reports structural equality.
func (i Info) Equal(other Info) bool {
	return i.Replicas.Equal(other.Replicas)
}

// TransitionInfo records the in-progress move of a single tablet during a
// topology change. It exists only while the tablet is mid-migration.
type TransitionInfo struct {
	// Next is the replica set the tablet is moving to.
	Next ReplicaSet `json:"next"`

	// Pending is the single member of Next which is not in the tablet's
	// current replica set and is actively being populated.
	Pending Replica `json:"pending"`
}

// Clone returns a deep copy.
func (t TransitionInfo) Clone() TransitionInfo {
	return TransitionInfo{Next: t.Next.Clone(), Pending: t.Pending}
}

// Equal reports structural equality.
func (t TransitionInfo) Equal(other TransitionInfo) bool {
	return t.Pending == other.Pending && t.Next.Equal(other.Next)
}
