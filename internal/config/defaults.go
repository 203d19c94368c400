package config

import "github.com/google/uuid"

var knownLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

var defaultNode = NodeConfig{
	Listen: ":7291",
	Shards: 1,
}

var defaultHealth = HealthConfig{
	IntervalMs: 5000,
}

var defaultLog = LogConfig{
	Level: "info",
}

func Default() *Config {
	return &Config{
		Node:     defaultNode,
		Peers:    []PeerConfig{},
		Features: FeaturesConfig{Tablets: true},
		Health:   defaultHealth,
		Log:      defaultLog,
	}
}

func (c *NodeConfig) PopulateDefaults() {
	if c.HostID == "" {
		c.HostID = uuid.New().String()
	}

	if c.Listen == "" {
		c.Listen = defaultNode.Listen
	}

	if c.Shards == 0 {
		c.Shards = defaultNode.Shards
	}
}

func (c *HealthConfig) PopulateDefaults() {
	if c.IntervalMs == 0 {
		c.IntervalMs = defaultHealth.IntervalMs
	}
}

func (c *LogConfig) PopulateDefaults() {
	if c.Level == "" {
		c.Level = defaultLog.Level
	}
}

func (c *Config) PopulateDefaults() {
	c.Node.PopulateDefaults()
	c.Health.PopulateDefaults()
	c.Log.PopulateDefaults()
}
