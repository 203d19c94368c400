package tablets

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tessera/internal/cluster"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// requireInternalPanic asserts that fn panics with *InternalError.
func requireInternalPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		require.IsType(t, &InternalError{}, r)
	}()
	fn()
}

func TestNewMapTabletCount(t *testing.T) {
	for _, count := range []int{1, 2, 4, 1024} {
		m := NewMap(count, testLogger())
		assert.Equal(t, count, m.TabletCount())
		assert.Equal(t, ID(0), m.FirstTablet())
		assert.Equal(t, ID(count-1), m.LastTablet())
	}
}

func TestNewMapRejectsNonPowerOfTwo(t *testing.T) {
	for _, count := range []int{0, -1, 3, 6, 12, 1000} {
		requireInternalPanic(t, func() {
			NewMap(count, testLogger())
		})
	}
}

func TestInvalidTabletIDPanics(t *testing.T) {
	m := NewMap(4, testLogger())

	requireInternalPanic(t, func() { m.TabletInfo(4) })
	requireInternalPanic(t, func() { m.Transition(100) })
	requireInternalPanic(t, func() { m.LastToken(4) })
	requireInternalPanic(t, func() { m.TokenRange(4) })
	requireInternalPanic(t, func() { m.SetTablet(4, Info{}) })
	requireInternalPanic(t, func() { m.SetTransition(4, TransitionInfo{}) })
	requireInternalPanic(t, func() { m.Shard(4, cluster.NewHostID()) })
}

func TestSetTablet(t *testing.T) {
	m := NewMap(4, testLogger())
	replica := Replica{Host: cluster.NewHostID(), Shard: 2}

	m.SetTablet(1, Info{Replicas: NewReplicaSet(replica)})

	info := m.TabletInfo(1)
	require.Len(t, info.Replicas, 1)
	assert.Equal(t, replica, info.Replicas[0])

	// Other tablets stay empty.
	assert.Empty(t, m.TabletInfo(0).Replicas)

	// Token-based lookup resolves through the owning tablet.
	tok := m.FirstToken(1)
	assert.Equal(t, info, m.TabletInfoForToken(tok))
}

func TestTransitionLifecycle(t *testing.T) {
	m := NewMap(4, testLogger())
	hostA := cluster.NewHostID()
	hostB := cluster.NewHostID()
	current := NewReplicaSet(Replica{Host: hostA, Shard: 0})
	next := NewReplicaSet(Replica{Host: hostA, Shard: 0}, Replica{Host: hostB, Shard: 1})

	m.SetTablet(0, Info{Replicas: current})

	// Stable: no transition entry.
	_, ok := m.Transition(0)
	assert.False(t, ok)

	// Transitioning.
	m.SetTransition(0, TransitionInfo{Next: next, Pending: Replica{Host: hostB, Shard: 1}})
	ti, ok := m.Transition(0)
	require.True(t, ok)
	assert.Equal(t, Replica{Host: hostB, Shard: 1}, ti.Pending)
	assert.True(t, ti.Next.Equal(next))

	// Back to stable: coordinator installs the new set and drops the entry.
	m.SetTablet(0, Info{Replicas: next})
	m.ClearTransition(0)
	_, ok = m.Transition(0)
	assert.False(t, ok)
	assert.True(t, m.TabletInfo(0).Replicas.Equal(next))

	// Clearing again is a no-op.
	m.ClearTransition(0)
}

func TestShardResolution(t *testing.T) {
	hostA := cluster.NewHostID()
	hostB := cluster.NewHostID()
	hostC := cluster.NewHostID()

	tests := []struct {
		name       string
		replicas   ReplicaSet
		transition *TransitionInfo
		host       cluster.HostID
		wantShard  cluster.ShardID
		wantOK     bool
	}{
		{
			name:      "host in current replica set",
			replicas:  NewReplicaSet(Replica{Host: hostA, Shard: 3}),
			host:      hostA,
			wantShard: 3,
			wantOK:    true,
		},
		{
			name:     "host is pending replica",
			replicas: NewReplicaSet(Replica{Host: hostA, Shard: 0}),
			transition: &TransitionInfo{
				Next:    NewReplicaSet(Replica{Host: hostA, Shard: 0}, Replica{Host: hostB, Shard: 1}),
				Pending: Replica{Host: hostB, Shard: 1},
			},
			host:      hostB,
			wantShard: 1,
			wantOK:    true,
		},
		{
			name:     "host in neither set",
			replicas: NewReplicaSet(Replica{Host: hostA, Shard: 0}),
			transition: &TransitionInfo{
				Next:    NewReplicaSet(Replica{Host: hostA, Shard: 0}, Replica{Host: hostB, Shard: 1}),
				Pending: Replica{Host: hostB, Shard: 1},
			},
			host:   hostC,
			wantOK: false,
		},
		{
			name:     "no transition at all",
			replicas: NewReplicaSet(Replica{Host: hostA, Shard: 0}),
			host:     hostB,
			wantOK:   false,
		},
		{
			// The current set wins over the pending one when a host appears
			// in both with different shards.
			name:     "current set takes precedence over pending",
			replicas: NewReplicaSet(Replica{Host: hostA, Shard: 2}),
			transition: &TransitionInfo{
				Next:    NewReplicaSet(Replica{Host: hostA, Shard: 5}),
				Pending: Replica{Host: hostA, Shard: 5},
			},
			host:      hostA,
			wantShard: 2,
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMap(4, testLogger())
			m.SetTablet(0, Info{Replicas: tt.replicas})
			if tt.transition != nil {
				m.SetTransition(0, *tt.transition)
			}

			shard, ok := m.Shard(0, tt.host)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantShard, shard)
			}
		})
	}
}

func TestNextTablet(t *testing.T) {
	m := NewMap(2, testLogger())

	next, ok := m.NextTablet(0)
	require.True(t, ok)
	assert.Equal(t, ID(1), next)

	_, ok = m.NextTablet(m.LastTablet())
	assert.False(t, ok)
}

func TestIDsIteration(t *testing.T) {
	m := NewMap(8, testLogger())
	var got []ID
	for id := range m.IDs() {
		got = append(got, id)
	}
	require.Len(t, got, 8)
	for i, id := range got {
		assert.Equal(t, ID(i), id)
	}
}

func TestMapCloneIsIndependent(t *testing.T) {
	m := NewMap(4, testLogger())
	hostA := cluster.NewHostID()
	m.SetTablet(0, Info{Replicas: NewReplicaSet(Replica{Host: hostA, Shard: 0})})
	m.SetTransition(1, TransitionInfo{
		Next:    NewReplicaSet(Replica{Host: hostA, Shard: 1}),
		Pending: Replica{Host: hostA, Shard: 1},
	})

	clone := m.Clone()
	require.True(t, m.Equal(clone))

	clone.SetTablet(0, Info{Replicas: NewReplicaSet(Replica{Host: cluster.NewHostID(), Shard: 7})})
	clone.ClearTransition(1)

	assert.False(t, m.Equal(clone))
	assert.True(t, m.TabletInfo(0).Replicas.Contains(hostA))
	_, ok := m.Transition(1)
	assert.True(t, ok, "original transition must survive mutation of the clone")
}

func TestExternalMemoryUsage(t *testing.T) {
	m := NewMap(4, testLogger())
	base := m.ExternalMemoryUsage()
	assert.Greater(t, base, uintptr(0))

	m.SetTablet(0, Info{Replicas: NewReplicaSet(Replica{Host: cluster.NewHostID(), Shard: 0})})
	withReplicas := m.ExternalMemoryUsage()
	assert.Greater(t, withReplicas, base)

	m.SetTransition(0, TransitionInfo{
		Next:    NewReplicaSet(Replica{Host: cluster.NewHostID(), Shard: 1}),
		Pending: Replica{Host: cluster.NewHostID(), Shard: 1},
	})
	assert.Greater(t, m.ExternalMemoryUsage(), withReplicas)
}

func TestClearGently(t *testing.T) {
	m := NewMap(4096, testLogger())
	for id := range m.IDs() {
		m.SetTablet(id, Info{Replicas: NewReplicaSet(Replica{Host: cluster.NewHostID(), Shard: 0})})
	}

	require.NoError(t, m.ClearGently(context.Background()))
	assert.Zero(t, m.TabletCount())
}

func TestClearGentlyHonorsCancellation(t *testing.T) {
	m := NewMap(4096, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.ClearGently(ctx), context.Canceled)
}

func TestMapString(t *testing.T) {
	m := NewMap(2, testLogger())
	hostA := cluster.NewHostID()
	m.SetTablet(0, Info{Replicas: NewReplicaSet(Replica{Host: hostA, Shard: 0})})
	m.SetTransition(0, TransitionInfo{
		Next:    NewReplicaSet(Replica{Host: hostA, Shard: 0}, Replica{Host: cluster.NewHostID(), Shard: 1}),
		Pending: Replica{Host: cluster.NewHostID(), Shard: 1},
	})

	s := m.String()
	assert.Contains(t, s, "last_token")
	assert.Contains(t, s, "pending")
	assert.Contains(t, s, hostA.String())
}
