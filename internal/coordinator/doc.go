// Package coordinator hosts the control-plane side of tablet placement.
//
// The Coordinator records placement decisions (table creation, tablet
// migrations) against the tablet metadata and publishes each resulting
// topology as an immutable snapshot that the replication layer reads
// lock-free. The HealthMonitor probes cluster members and feeds
// reachability changes back into the node directory.
package coordinator
