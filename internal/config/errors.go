package config

import "errors"

var ErrConfigIsNil = errors.New("config is nil")
var ErrInvalidHostID = errors.New("invalid host id")
var ErrNegativeShards = errors.New("shard count must not be negative")
var ErrMissingPeerAddr = errors.New("peer is missing an address")
var ErrMissingNodeAddr = errors.New("node.addr is required when node.join is set")
var ErrUnknownLogLevel = errors.New("unknown log level")
