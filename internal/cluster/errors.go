package cluster

import "errors"

var ErrZeroHostID = errors.New("host id must not be zero")
var ErrEmptyEndpoint = errors.New("endpoint must not be empty")
var ErrUnknownHost = errors.New("host is not a member of the cluster")
var ErrDuplicateEndpoint = errors.New("endpoint already registered to another host")
