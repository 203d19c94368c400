package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/tessera/internal/cluster"
)

// NodeHealth tracks the probe history of a single node.
type NodeHealth struct {
	LastCheck        time.Time
	LastHealthy      time.Time
	Host             cluster.HostID
	Status           string // "healthy", "unhealthy", "unknown"
	ConsecutiveFails int
}

// HealthMonitor periodically probes every node in the directory and flips
// the node's Up flag when its status changes. A node is marked unhealthy
// after maxFailures consecutive probe failures; a single success recovers
// it. All methods are safe for concurrent use.
type HealthMonitor struct {
	dir         *cluster.Directory
	nodes       map[cluster.HostID]*NodeHealth
	httpClient  *http.Client
	checkFunc   func(addr cluster.Endpoint) error
	onUnhealthy func(host cluster.HostID)
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	maxFailures int
	mu          sync.RWMutex
	wg          sync.WaitGroup
	log         *slog.Logger
}

// NewHealthMonitor creates a monitor probing each node every interval.
func NewHealthMonitor(dir *cluster.Directory, interval time.Duration, log *slog.Logger) *HealthMonitor {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HealthMonitor{
		dir:         dir,
		interval:    interval,
		maxFailures: 3,
		nodes:       make(map[cluster.HostID]*NodeHealth),
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}
}

// SetOnUnhealthy registers a callback invoked (on its own goroutine) when a
// node crosses into the unhealthy state. Typically used to republish the
// topology snapshot.
func (h *HealthMonitor) SetOnUnhealthy(callback func(host cluster.HostID)) {
	h.onUnhealthy = callback
}

// SetCheckFunction overrides the default HTTP probe. Used by tests.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(addr cluster.Endpoint) error) {
	h.checkFunc = checkFunc
}

// Start runs the probe loop in the current goroutine until the context is
// canceled or Stop is called.
func (h *HealthMonitor) Start(ctx context.Context) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}
	if h.checkFunc == nil {
		h.checkFunc = h.defaultHealthCheck
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.log.Info("health monitor started", "interval", h.interval)
	h.checkAllNodes()

	for {
		select {
		case <-ticker.C:
			h.checkAllNodes()
		case <-ctx.Done():
			h.log.Info("health monitor stopping")
			return
		case <-h.ctx.Done():
			h.log.Info("health monitor stopping")
			return
		}
	}
}

// Stop cancels the probe loop and waits for it to exit.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *HealthMonitor) checkAllNodes() {
	nodes := h.dir.Nodes()

	current := make(map[cluster.HostID]bool, len(nodes))
	for _, node := range nodes {
		current[node.Host] = true
		h.checkNode(node)
	}

	// Forget nodes that left the directory.
	h.mu.Lock()
	for host := range h.nodes {
		if !current[host] {
			delete(h.nodes, host)
			h.log.Debug("removed node from health monitoring", "host", host)
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) checkNode(node cluster.NodeInfo) {
	h.mu.Lock()
	health, exists := h.nodes[node.Host]
	if !exists {
		health = &NodeHealth{
			Host:        node.Host,
			Status:      "unknown",
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		h.nodes[node.Host] = health
	}
	h.mu.Unlock()

	err := h.checkFunc(node.Addr)

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()

	if err != nil {
		health.ConsecutiveFails++
		h.log.Warn("health check failed",
			"host", node.Host, "attempt", health.ConsecutiveFails, "max", h.maxFailures, "error", err)

		if health.ConsecutiveFails >= h.maxFailures {
			previous := health.Status
			health.Status = "unhealthy"
			if previous != "unhealthy" {
				h.log.Warn("node marked unhealthy", "host", node.Host)
				h.dir.SetNodeUp(node.Host, false)
				if h.onUnhealthy != nil {
					// Outside the lock: the callback may probe us back.
					go h.onUnhealthy(node.Host)
				}
			}
		}
		return
	}

	if health.Status == "unhealthy" {
		h.log.Info("node recovered", "host", node.Host)
		h.dir.SetNodeUp(node.Host, true)
	}
	health.Status = "healthy"
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()
}

func (h *HealthMonitor) defaultHealthCheck(addr cluster.Endpoint) error {
	url := string(addr)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	if !strings.HasSuffix(url, "/health") {
		url = strings.TrimRight(url, "/") + "/health"
	}

	resp, err := h.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// NodeHealth returns a copy of one node's probe record, or nil if the node
// is not monitored.
func (h *HealthMonitor) NodeHealth(host cluster.HostID) *NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[host]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// AllNodeHealth returns a copy of every monitored node's probe record.
func (h *HealthMonitor) AllNodeHealth() map[cluster.HostID]*NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[cluster.HostID]*NodeHealth, len(h.nodes))
	for host, health := range h.nodes {
		cp := *health
		result[host] = &cp
	}
	return result
}

// IsHealthy reports whether a node's latest probes succeeded. Unknown nodes
// are not healthy.
func (h *HealthMonitor) IsHealthy(host cluster.HostID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[host]
	return exists && health.Status == "healthy"
}
