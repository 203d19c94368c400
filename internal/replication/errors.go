package replication

import "errors"

// Configuration errors are user facing: they reject a schema statement at
// validation time and leave no partial state behind.
var ErrTabletsDisabled = errors.New("tablet replication is not enabled")
var ErrInvalidInitialTablets = errors.New(`"initial_tablets" must be a non-negative integer`)
var ErrInvalidReplicationFactor = errors.New("replication factor must be positive")
