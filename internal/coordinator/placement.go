package coordinator

import (
	"fmt"
	"log/slog"
	"math/bits"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/dreamware/tessera/internal/cluster"
	"github.com/dreamware/tessera/internal/replication"
	"github.com/dreamware/tessera/internal/tablets"
)

// defaultInitialTablets is used when a table does not request an initial
// tablet count.
const defaultInitialTablets = 1

// Coordinator owns the mutable side of placement: it applies externally
// decided placement steps through the tablet map mutation primitives and
// publishes the result as immutable topology snapshots.
//
// It deliberately contains no balancing logic. Deciding when and where to
// move a tablet is the planner's job; the coordinator only records
// decisions, drives each tablet's stable -> transitioning -> stable cycle,
// and guarantees readers a consistent view.
//
// Publication model: every mutation clones the current tablet metadata,
// applies the change to the clone, and atomically swaps in a new snapshot.
// Readers holding the old snapshot keep a fully consistent old view; new
// readers see the new one. The clone is a full O(size) copy; see the
// Metadata type for the copy-on-write caveat.
type Coordinator struct {
	// mu serializes writers. Readers never take it; they load the
	// published snapshot instead.
	mu          sync.Mutex
	dir         *cluster.Directory
	features    cluster.Features
	localHost   cluster.HostID
	localShards cluster.ShardID
	version     uint64
	current     atomic.Pointer[replication.Snapshot]
	strategies  map[tablets.TableID]*replication.Strategy
	log         *slog.Logger
}

// New creates a coordinator publishing its first, empty snapshot.
func New(dir *cluster.Directory, features cluster.Features, localHost cluster.HostID, localShards cluster.ShardID, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		dir:         dir,
		features:    features,
		localHost:   localHost,
		localShards: localShards,
		strategies:  make(map[tablets.TableID]*replication.Strategy),
		log:         log,
	}
	c.current.Store(replication.NewSnapshot(dir, tablets.NewMetadata(), localHost, localShards, 0))
	return c
}

// Snapshot returns the currently published topology snapshot. Safe to call
// from any goroutine; the result is immutable.
func (c *Coordinator) Snapshot() *replication.Snapshot {
	return c.current.Load()
}

// publishLocked swaps in a new snapshot carrying the given metadata.
// Callers must hold c.mu.
func (c *Coordinator) publishLocked(meta *tablets.Metadata) {
	c.version++
	snap := replication.NewSnapshot(c.dir, meta, c.localHost, c.localShards, c.version)
	c.current.Store(snap)
	c.log.Info("published topology snapshot", "version", c.version, "tables", meta.Len())
}

// RefreshTopology republishes the current tablet metadata against the
// directory's present membership. Called after nodes join, leave, or change
// reachability.
func (c *Coordinator) RefreshTopology() {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Metadata is immutable once published, so it can be shared with the
	// new snapshot as-is.
	c.publishLocked(c.Snapshot().Tablets())
}

// nextPowerOfTwo rounds n up to a power of two, with a floor of one.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// CreateTable registers a table with the given replication factor and
// option bag. Tablet options are validated against the feature gate and
// consumed; leftover options are rejected. For a tablet-based table the
// initial tablet count is rounded up to a power of two and replicas are
// assigned round-robin over the current membership.
func (c *Coordinator) CreateTable(table tablets.TableID, rf int, opts replication.Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.strategies[table]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, table)
	}

	strategy, err := replication.NewStrategy(rf, c.log)
	if err != nil {
		return err
	}
	if err := strategy.ValidateTabletOptions(c.features, opts); err != nil {
		return err
	}
	if err := strategy.ProcessTabletOptions(opts); err != nil {
		return err
	}
	// The factor may also arrive in the option bag; it must then agree with
	// the rf argument rather than pass as a contradictory second source.
	if v, ok := opts[replication.ReplicationFactorOption]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w; found %q", replication.ErrInvalidReplicationFactor, v)
		}
		if n != rf {
			return fmt.Errorf("%w: option value %d contradicts factor %d",
				replication.ErrInvalidReplicationFactor, n, rf)
		}
		delete(opts, replication.ReplicationFactorOption)
	}
	for k := range opts {
		return fmt.Errorf("%w: %q", ErrUnknownOption, k)
	}

	meta := c.Snapshot().Tablets().Clone()
	if strategy.UsesTablets() {
		count := strategy.InitialTablets()
		if count == 0 {
			count = defaultInitialTablets
		}
		count = nextPowerOfTwo(count)
		tmap := tablets.NewMap(count, c.log)
		if err := c.allocateReplicas(tmap, rf); err != nil {
			return err
		}
		meta.SetTabletMap(table, tmap)
	}

	c.strategies[table] = strategy
	c.publishLocked(meta)
	c.log.Info("created table", "table", table, "rf", rf, "tablets", strategy.UsesTablets())
	return nil
}

// allocateReplicas assigns rf replicas to every tablet, round-robin over
// membership sorted by host id. The trivial built-in allocator; a planner
// would do better.
func (c *Coordinator) allocateReplicas(tmap *tablets.Map, rf int) error {
	nodes := c.dir.Nodes()
	if len(nodes) == 0 {
		return ErrNoNodes
	}
	if rf > len(nodes) {
		return fmt.Errorf("%w: rf=%d, nodes=%d", ErrNotEnoughNodes, rf, len(nodes))
	}

	for id := range tmap.IDs() {
		replicas := tablets.NewReplicaSet()
		for r := 0; r < rf; r++ {
			n := nodes[(int(id)+r)%len(nodes)]
			var shard cluster.ShardID
			if c.localShards > 0 {
				shard = cluster.ShardID(uint64(id) % uint64(c.localShards))
			}
			replicas = append(replicas, tablets.Replica{Host: n.Host, Shard: shard})
		}
		tmap.SetTablet(id, tablets.Info{Replicas: replicas})
	}
	return nil
}

// DropTable removes a table's replication configuration and tablet map.
func (c *Coordinator) DropTable(table tablets.TableID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.strategies[table]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	delete(c.strategies, table)

	meta := c.Snapshot().Tablets().Clone()
	meta.RemoveTabletMap(table)
	c.publishLocked(meta)
	c.log.Info("dropped table", "table", table)
	return nil
}

// ReplicationMap builds the effective replication map for a table against
// the current snapshot.
func (c *Coordinator) ReplicationMap(table tablets.TableID) (replication.EffectiveReplicationMap, error) {
	c.mu.Lock()
	strategy, ok := c.strategies[table]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return strategy.MakeReplicationMap(table, c.Snapshot())
}

// StartMigration records the decision to add a replica of one tablet on dst:
// the tablet enters the transitioning state with dst pending. The data copy
// itself is the streaming layer's business.
func (c *Coordinator) StartMigration(table tablets.TableID, id tablets.ID, dst tablets.Replica) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.dir.EndpointForHost(dst.Host); !ok {
		return fmt.Errorf("%w: %s", cluster.ErrUnknownHost, dst.Host)
	}

	meta := c.Snapshot().Tablets().Clone()
	tmap, err := meta.TabletMap(table)
	if err != nil {
		return err
	}

	info := tmap.TabletInfo(id)
	if info.Replicas.Contains(dst.Host) {
		return fmt.Errorf("%w: tablet %d, host %s", ErrReplicaExists, uint64(id), dst.Host)
	}
	if _, ok := tmap.Transition(id); ok {
		return fmt.Errorf("%w: tablet %d", ErrMigrationInProgress, uint64(id))
	}

	next := info.Replicas.Clone()
	next = append(next, dst)
	tmap.SetTransition(id, tablets.TransitionInfo{Next: next, Pending: dst})

	c.publishLocked(meta)
	c.log.Info("started tablet migration", "table", table, "tablet", uint64(id), "pending", dst)
	return nil
}

// FinishMigration completes a tablet's migration: the transition's target
// set becomes the current replica set and the transition entry is dropped,
// returning the tablet to the stable state.
func (c *Coordinator) FinishMigration(table tablets.TableID, id tablets.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta := c.Snapshot().Tablets().Clone()
	tmap, err := meta.TabletMap(table)
	if err != nil {
		return err
	}

	ti, ok := tmap.Transition(id)
	if !ok {
		return fmt.Errorf("%w: tablet %d", ErrNoMigration, uint64(id))
	}
	tmap.SetTablet(id, tablets.Info{Replicas: ti.Next})
	tmap.ClearTransition(id)

	c.publishLocked(meta)
	c.log.Info("finished tablet migration", "table", table, "tablet", uint64(id))
	return nil
}

// AbortMigration drops a tablet's transition without touching the current
// replica set.
func (c *Coordinator) AbortMigration(table tablets.TableID, id tablets.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta := c.Snapshot().Tablets().Clone()
	tmap, err := meta.TabletMap(table)
	if err != nil {
		return err
	}

	if _, ok := tmap.Transition(id); !ok {
		return fmt.Errorf("%w: tablet %d", ErrNoMigration, uint64(id))
	}
	tmap.ClearTransition(id)

	c.publishLocked(meta)
	c.log.Info("aborted tablet migration", "table", table, "tablet", uint64(id))
	return nil
}

// Tables lists every table with a replication configuration, ring-based
// ones included, sorted by id.
func (c *Coordinator) Tables() []tablets.TableID {
	c.mu.Lock()
	ids := maps.Keys(c.strategies)
	c.mu.Unlock()

	slices.SortFunc(ids, func(a, b tablets.TableID) int {
		return strings.Compare(a.String(), b.String())
	})
	return ids
}
