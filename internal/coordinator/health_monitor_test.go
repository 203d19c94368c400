package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tessera/internal/cluster"
)

func newMonitorFixture(t *testing.T) (*cluster.Directory, cluster.NodeInfo, *HealthMonitor) {
	t.Helper()
	dir := cluster.NewDirectory()
	n := cluster.NodeInfo{Host: cluster.NewHostID(), Addr: "http://a:7291", Up: true}
	require.NoError(t, dir.AddNode(n))
	m := NewHealthMonitor(dir, time.Second, testLogger())
	return dir, n, m
}

func TestHealthMonitorMarksUnhealthyAfterThreshold(t *testing.T) {
	dir, n, m := newMonitorFixture(t)

	probeErr := errors.New("connection refused")
	m.SetCheckFunction(func(addr cluster.Endpoint) error { return probeErr })

	unhealthy := make(chan cluster.HostID, 1)
	m.SetOnUnhealthy(func(host cluster.HostID) { unhealthy <- host })

	m.checkAllNodes()
	m.checkAllNodes()
	assert.NotEqual(t, "unhealthy", m.NodeHealth(n.Host).Status, "below threshold")

	m.checkAllNodes()

	h := m.NodeHealth(n.Host)
	require.NotNil(t, h)
	assert.Equal(t, "unhealthy", h.Status)
	assert.Equal(t, 3, h.ConsecutiveFails)
	assert.False(t, m.IsHealthy(n.Host))

	select {
	case host := <-unhealthy:
		assert.Equal(t, n.Host, host)
	case <-time.After(time.Second):
		t.Fatal("unhealthy callback never fired")
	}

	// The directory reflects the status change.
	for _, node := range dir.Nodes() {
		if node.Host == n.Host {
			assert.False(t, node.Up)
		}
	}

	// Crossing the threshold again must not re-fire the callback.
	m.checkAllNodes()
	select {
	case <-unhealthy:
		t.Fatal("callback fired twice for the same outage")
	default:
	}
}

func TestHealthMonitorRecovery(t *testing.T) {
	dir, n, m := newMonitorFixture(t)

	fail := true
	m.SetCheckFunction(func(addr cluster.Endpoint) error {
		if fail {
			return errors.New("timeout")
		}
		return nil
	})

	for i := 0; i < 3; i++ {
		m.checkAllNodes()
	}
	require.Equal(t, "unhealthy", m.NodeHealth(n.Host).Status)

	fail = false
	m.checkAllNodes()

	h := m.NodeHealth(n.Host)
	assert.Equal(t, "healthy", h.Status)
	assert.Zero(t, h.ConsecutiveFails)
	assert.True(t, m.IsHealthy(n.Host))

	for _, node := range dir.Nodes() {
		if node.Host == n.Host {
			assert.True(t, node.Up)
		}
	}
}

func TestHealthMonitorForgetsRemovedNodes(t *testing.T) {
	dir, n, m := newMonitorFixture(t)
	m.SetCheckFunction(func(addr cluster.Endpoint) error { return nil })

	m.checkAllNodes()
	require.NotNil(t, m.NodeHealth(n.Host))

	dir.RemoveNode(n.Host)
	m.checkAllNodes()

	assert.Nil(t, m.NodeHealth(n.Host))
	assert.Empty(t, m.AllNodeHealth())
}

func TestHealthMonitorUnknownHost(t *testing.T) {
	_, _, m := newMonitorFixture(t)
	assert.False(t, m.IsHealthy(cluster.NewHostID()))
	assert.Nil(t, m.NodeHealth(cluster.NewHostID()))
}

func TestHealthMonitorStartStop(t *testing.T) {
	_, n, m := newMonitorFixture(t)
	m.interval = 10 * time.Millisecond

	checked := make(chan struct{}, 16)
	m.SetCheckFunction(func(addr cluster.Endpoint) error {
		select {
		case checked <- struct{}{}:
		default:
		}
		return nil
	})

	go m.Start(nil)

	select {
	case <-checked:
	case <-time.After(time.Second):
		t.Fatal("no probe within a second")
	}
	m.Stop()

	assert.True(t, m.IsHealthy(n.Host))
}
