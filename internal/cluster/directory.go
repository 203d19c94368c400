package cluster

import (
	"sync"

	"golang.org/x/exp/slices"
)

// Directory is the authoritative host-id to endpoint mapping for the cluster,
// serving as the membership lookup consumed by the placement layer.
//
// The directory is mutable and thread-safe; the placement layer never reads
// it directly on the query path. Instead, an immutable copy of its state is
// folded into each published topology snapshot, so concurrent readers observe
// a frozen view.
//
// Concurrency model:
//   - Read operations use RLock for parallel access.
//   - Write operations use Lock for exclusive access.
//   - All returned data is copied; no locks are held during external calls.
type Directory struct {
	mu     sync.RWMutex
	byHost map[HostID]NodeInfo
	byAddr map[Endpoint]HostID

	// replaced is the host currently being replaced, if any. Zero when no
	// replacement is in progress.
	replaced HostID
}

// NewDirectory creates an empty host directory.
func NewDirectory() *Directory {
	return &Directory{
		byHost: make(map[HostID]NodeInfo),
		byAddr: make(map[Endpoint]HostID),
	}
}

// AddNode registers a node or updates its address. The node starts out (or
// stays) in whatever reachability state the caller supplies.
func (d *Directory) AddNode(n NodeInfo) error {
	if n.Host.IsZero() {
		return ErrZeroHostID
	}
	if n.Addr == "" {
		return ErrEmptyEndpoint
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if owner, ok := d.byAddr[n.Addr]; ok && owner != n.Host {
		return ErrDuplicateEndpoint
	}
	if prev, ok := d.byHost[n.Host]; ok && prev.Addr != n.Addr {
		delete(d.byAddr, prev.Addr)
	}
	d.byHost[n.Host] = n
	d.byAddr[n.Addr] = n.Host
	return nil
}

// RemoveNode drops a node from the directory. Removing an unknown host is a
// no-op.
func (d *Directory) RemoveNode(host HostID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, ok := d.byHost[host]; ok {
		delete(d.byAddr, n.Addr)
		delete(d.byHost, host)
	}
	if d.replaced == host {
		d.replaced = HostID{}
	}
}

// SetNodeUp updates a node's reachability flag.
func (d *Directory) SetNodeUp(host HostID, up bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.byHost[host]
	if !ok {
		return ErrUnknownHost
	}
	n.Up = up
	d.byHost[host] = n
	return nil
}

// EndpointForHost resolves a host identity to its current address.
func (d *Directory) EndpointForHost(host HostID) (Endpoint, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n, ok := d.byHost[host]
	return n.Addr, ok
}

// HostForEndpoint resolves an address back to the host identity that
// currently owns it.
func (d *Directory) HostForEndpoint(addr Endpoint) (HostID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h, ok := d.byAddr[addr]
	return h, ok
}

// Nodes returns a copy of all registered nodes, ordered by host id so output
// is stable across calls.
func (d *Directory) Nodes() []NodeInfo {
	d.mu.RLock()
	nodes := make([]NodeInfo, 0, len(d.byHost))
	for _, n := range d.byHost {
		nodes = append(nodes, n)
	}
	d.mu.RUnlock()

	slices.SortFunc(nodes, func(a, b NodeInfo) int {
		switch {
		case a.Host.String() < b.Host.String():
			return -1
		case a.Host.String() > b.Host.String():
			return 1
		default:
			return 0
		}
	})
	return nodes
}

// Len returns the number of registered nodes.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byHost)
}

// SetNodeBeingReplaced marks a host as currently being replaced. Replication
// maps filter such a host out of natural endpoint sets on request.
func (d *Directory) SetNodeBeingReplaced(host HostID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byHost[host]; !ok {
		return ErrUnknownHost
	}
	d.replaced = host
	return nil
}

// ClearNodeBeingReplaced ends the replacement, if one was in progress.
func (d *Directory) ClearNodeBeingReplaced() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replaced = HostID{}
}

// NodeBeingReplaced returns the host currently being replaced, if any.
func (d *Directory) NodeBeingReplaced() (HostID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.replaced, !d.replaced.IsZero()
}
