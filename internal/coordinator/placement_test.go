package coordinator

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tessera/internal/cluster"
	"github.com/dreamware/tessera/internal/replication"
	"github.com/dreamware/tessera/internal/tablets"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type coordFixture struct {
	dir   *cluster.Directory
	nodes []cluster.NodeInfo
	coord *Coordinator
}

func newCoordFixture(t *testing.T, hosts int) *coordFixture {
	t.Helper()
	f := &coordFixture{dir: cluster.NewDirectory()}
	for i := 0; i < hosts; i++ {
		n := cluster.NodeInfo{
			Host: cluster.NewHostID(),
			Addr: cluster.Endpoint("http://node" + string(rune('a'+i)) + ":7291"),
			Up:   true,
		}
		require.NoError(t, f.dir.AddNode(n))
		f.nodes = append(f.nodes, n)
	}
	f.coord = New(f.dir, cluster.Features{EnableTablets: true}, f.nodes[0].Host, 4, testLogger())
	return f
}

// sortedNodes returns membership in directory iteration order, which is what
// the allocator sees.
func (f *coordFixture) sortedNodes() []cluster.NodeInfo {
	return f.dir.Nodes()
}

func TestCreateTabletTable(t *testing.T) {
	f := newCoordFixture(t, 2)
	table := tablets.NewTableID()

	err := f.coord.CreateTable(table, 2, replication.Options{replication.InitialTabletsOption: "3"})
	require.NoError(t, err)

	tmap, err := f.coord.Snapshot().Tablets().TabletMap(table)
	require.NoError(t, err)
	// Requested count is rounded up to a power of two.
	assert.Equal(t, tablets.Token(tablets.MaximumToken), tmap.LastToken(3))

	m, err := f.coord.ReplicationMap(table)
	require.NoError(t, err)
	assert.IsType(t, &replication.TabletReplicationMap{}, m)
	assert.Equal(t, 2, m.ReplicationFactor())

	// Every tablet got rf distinct replicas.
	for id := range tmap.IDs() {
		info := tmap.TabletInfo(id)
		require.Len(t, info.Replicas, 2)
		assert.NotEqual(t, info.Replicas[0].Host, info.Replicas[1].Host)
	}
}

func TestCreateRingTable(t *testing.T) {
	f := newCoordFixture(t, 2)
	table := tablets.NewTableID()

	require.NoError(t, f.coord.CreateTable(table, 1, replication.Options{}))

	_, err := f.coord.Snapshot().Tablets().TabletMap(table)
	assert.ErrorIs(t, err, tablets.ErrNoTabletMap)

	m, err := f.coord.ReplicationMap(table)
	require.NoError(t, err)
	assert.IsType(t, &replication.RingReplicationMap{}, m)
}

func TestTablesListsEveryKind(t *testing.T) {
	f := newCoordFixture(t, 2)

	ringTable := tablets.NewTableID()
	tabletTable := tablets.NewTableID()

	require.NoError(t, f.coord.CreateTable(ringTable, 1, replication.Options{}))
	require.NoError(t, f.coord.CreateTable(tabletTable, 1,
		replication.Options{replication.InitialTabletsOption: "2"}))

	// Both kinds appear in the listing, not just tables with a tablet map.
	listed := f.coord.Tables()
	require.Len(t, listed, 2)
	assert.Contains(t, listed, ringTable)
	assert.Contains(t, listed, tabletTable)

	// Sorted by id for stable output.
	assert.True(t, listed[0].String() < listed[1].String())

	require.NoError(t, f.coord.DropTable(ringTable))
	assert.Equal(t, []tablets.TableID{tabletTable}, f.coord.Tables())
}

func TestCreateTableDefaultTabletCount(t *testing.T) {
	f := newCoordFixture(t, 1)
	table := tablets.NewTableID()

	require.NoError(t, f.coord.CreateTable(table, 1, replication.Options{replication.InitialTabletsOption: "0"}))

	tmap, err := f.coord.Snapshot().Tablets().TabletMap(table)
	require.NoError(t, err)
	assert.Equal(t, tablets.MaximumToken, tmap.LastToken(0))
}

func TestCreateTableErrors(t *testing.T) {
	f := newCoordFixture(t, 2)
	table := tablets.NewTableID()
	require.NoError(t, f.coord.CreateTable(table, 1, replication.Options{}))

	tests := []struct {
		name    string
		table   tablets.TableID
		rf      int
		opts    replication.Options
		wantErr error
	}{
		{
			name:    "duplicate table",
			table:   table,
			rf:      1,
			opts:    replication.Options{},
			wantErr: ErrTableExists,
		},
		{
			name:    "invalid replication factor",
			table:   tablets.NewTableID(),
			rf:      0,
			opts:    replication.Options{},
			wantErr: replication.ErrInvalidReplicationFactor,
		},
		{
			name:    "unknown option",
			table:   tablets.NewTableID(),
			rf:      1,
			opts:    replication.Options{"compaction": "leveled"},
			wantErr: ErrUnknownOption,
		},
		{
			name:    "invalid tablet count",
			table:   tablets.NewTableID(),
			rf:      1,
			opts:    replication.Options{replication.InitialTabletsOption: "lots"},
			wantErr: replication.ErrInvalidInitialTablets,
		},
		{
			name:    "rf exceeds membership",
			table:   tablets.NewTableID(),
			rf:      3,
			opts:    replication.Options{replication.InitialTabletsOption: "4"},
			wantErr: ErrNotEnoughNodes,
		},
		{
			name:    "contradictory replication factor option",
			table:   tablets.NewTableID(),
			rf:      1,
			opts:    replication.Options{replication.ReplicationFactorOption: "3"},
			wantErr: replication.ErrInvalidReplicationFactor,
		},
		{
			name:    "non-numeric replication factor option",
			table:   tablets.NewTableID(),
			rf:      1,
			opts:    replication.Options{replication.ReplicationFactorOption: "many"},
			wantErr: replication.ErrInvalidReplicationFactor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.coord.CreateTable(tt.table, tt.rf, tt.opts)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateTableAgreeingFactorOption(t *testing.T) {
	f := newCoordFixture(t, 2)
	table := tablets.NewTableID()

	// A matching option value is accepted and consumed.
	opts := replication.Options{
		replication.InitialTabletsOption:    "2",
		replication.ReplicationFactorOption: "2",
	}
	require.NoError(t, f.coord.CreateTable(table, 2, opts))

	m, err := f.coord.ReplicationMap(table)
	require.NoError(t, err)
	assert.Equal(t, 2, m.ReplicationFactor())
}

func TestCreateTableTabletsDisabled(t *testing.T) {
	dir := cluster.NewDirectory()
	n := cluster.NodeInfo{Host: cluster.NewHostID(), Addr: "http://a:7291", Up: true}
	require.NoError(t, dir.AddNode(n))
	coord := New(dir, cluster.Features{EnableTablets: false}, n.Host, 1, testLogger())

	err := coord.CreateTable(tablets.NewTableID(), 1, replication.Options{replication.InitialTabletsOption: "4"})
	assert.ErrorIs(t, err, replication.ErrTabletsDisabled)
}

func TestDropTable(t *testing.T) {
	f := newCoordFixture(t, 1)
	table := tablets.NewTableID()

	assert.ErrorIs(t, f.coord.DropTable(table), ErrUnknownTable)

	require.NoError(t, f.coord.CreateTable(table, 1, replication.Options{replication.InitialTabletsOption: "2"}))
	require.NoError(t, f.coord.DropTable(table))

	assert.Empty(t, f.coord.Tables())
	_, err := f.coord.ReplicationMap(table)
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestMigrationLifecycle(t *testing.T) {
	f := newCoordFixture(t, 2)
	table := tablets.NewTableID()
	require.NoError(t, f.coord.CreateTable(table, 1, replication.Options{replication.InitialTabletsOption: "4"}))

	// rf=1 round-robin: tablet 0 lives on the first node in iteration order,
	// so the second node is a valid migration target.
	nodes := f.sortedNodes()
	src, dst := nodes[0].Host, nodes[1].Host
	target := tablets.Replica{Host: dst, Shard: 2}

	before := f.coord.Snapshot()

	require.NoError(t, f.coord.StartMigration(table, 0, target))

	// The published snapshot sees the transition; the old one does not.
	tmap, err := f.coord.Snapshot().Tablets().TabletMap(table)
	require.NoError(t, err)
	ti, ok := tmap.Transition(0)
	require.True(t, ok)
	assert.Equal(t, target, ti.Pending)
	assert.True(t, ti.Next.Contains(src))
	assert.True(t, ti.Next.Contains(dst))

	oldMap, err := before.Tablets().TabletMap(table)
	require.NoError(t, err)
	_, ok = oldMap.Transition(0)
	assert.False(t, ok, "earlier snapshots must stay unchanged")

	m, err := f.coord.ReplicationMap(table)
	require.NoError(t, err)
	assert.True(t, m.HasPendingRanges(nodes[1].Addr))

	require.NoError(t, f.coord.FinishMigration(table, 0))

	tmap, err = f.coord.Snapshot().Tablets().TabletMap(table)
	require.NoError(t, err)
	_, ok = tmap.Transition(0)
	assert.False(t, ok)
	info := tmap.TabletInfo(0)
	assert.True(t, info.Replicas.Contains(dst))
	assert.True(t, info.Replicas.Contains(src))
}

func TestMigrationErrors(t *testing.T) {
	f := newCoordFixture(t, 2)
	table := tablets.NewTableID()
	require.NoError(t, f.coord.CreateTable(table, 1, replication.Options{replication.InitialTabletsOption: "4"}))

	nodes := f.sortedNodes()
	src, dst := nodes[0].Host, nodes[1].Host

	err := f.coord.StartMigration(table, 0, tablets.Replica{Host: cluster.NewHostID()})
	assert.ErrorIs(t, err, cluster.ErrUnknownHost)

	err = f.coord.StartMigration(tablets.NewTableID(), 0, tablets.Replica{Host: dst})
	assert.ErrorIs(t, err, tablets.ErrNoTabletMap)

	err = f.coord.StartMigration(table, 0, tablets.Replica{Host: src})
	assert.ErrorIs(t, err, ErrReplicaExists)

	require.NoError(t, f.coord.StartMigration(table, 0, tablets.Replica{Host: dst, Shard: 1}))
	err = f.coord.StartMigration(table, 0, tablets.Replica{Host: dst, Shard: 2})
	assert.ErrorIs(t, err, ErrMigrationInProgress)

	assert.ErrorIs(t, f.coord.FinishMigration(table, 1), ErrNoMigration)
	assert.ErrorIs(t, f.coord.AbortMigration(table, 1), ErrNoMigration)
}

func TestAbortMigration(t *testing.T) {
	f := newCoordFixture(t, 2)
	table := tablets.NewTableID()
	require.NoError(t, f.coord.CreateTable(table, 1, replication.Options{replication.InitialTabletsOption: "4"}))

	dst := f.sortedNodes()[1].Host
	require.NoError(t, f.coord.StartMigration(table, 0, tablets.Replica{Host: dst, Shard: 0}))

	tmap, err := f.coord.Snapshot().Tablets().TabletMap(table)
	require.NoError(t, err)
	before := tmap.TabletInfo(0).Replicas.Clone()

	require.NoError(t, f.coord.AbortMigration(table, 0))

	tmap, err = f.coord.Snapshot().Tablets().TabletMap(table)
	require.NoError(t, err)
	_, ok := tmap.Transition(0)
	assert.False(t, ok)
	assert.True(t, tmap.TabletInfo(0).Replicas.Equal(before))
}

func TestRefreshTopology(t *testing.T) {
	f := newCoordFixture(t, 1)

	v := f.coord.Snapshot().Version()
	joined := cluster.NodeInfo{Host: cluster.NewHostID(), Addr: "http://late:7291", Up: true}
	require.NoError(t, f.dir.AddNode(joined))

	// Published snapshot predates the join.
	assert.Equal(t, 1, f.coord.Snapshot().NodeCount())

	f.coord.RefreshTopology()

	snap := f.coord.Snapshot()
	assert.Equal(t, v+1, snap.Version())
	assert.Equal(t, 2, snap.NodeCount())
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8}, {100, 128}, {1024, 1024},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextPowerOfTwo(tt.in), "n=%d", tt.in)
	}
}
