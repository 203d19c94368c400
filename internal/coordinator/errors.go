package coordinator

import "errors"

var ErrTableExists = errors.New("table already has a replication configuration")
var ErrUnknownTable = errors.New("table has no replication configuration")
var ErrUnknownOption = errors.New("unrecognized replication option")
var ErrNoNodes = errors.New("cluster has no registered nodes")
var ErrNotEnoughNodes = errors.New("not enough nodes for the replication factor")
var ErrReplicaExists = errors.New("host already holds a replica of the tablet")
var ErrMigrationInProgress = errors.New("tablet already has a migration in progress")
var ErrNoMigration = errors.New("tablet has no migration in progress")
