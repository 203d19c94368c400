// Package config reads and validates the coordinator's YAML configuration.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Peers    []PeerConfig   `yaml:"peers"`
	Features FeaturesConfig `yaml:"features"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
}

// NodeConfig identifies the local node. Join, when set, is the address of
// an existing coordinator to announce this node to at startup.
type NodeConfig struct {
	HostID string `yaml:"host_id"`
	Listen string `yaml:"listen"`
	Addr   string `yaml:"addr"`
	Shards int    `yaml:"shards"`
	Join   string `yaml:"join"`
}

// PeerConfig is a statically configured cluster member.
type PeerConfig struct {
	HostID string `yaml:"host_id"`
	Addr   string `yaml:"addr"`
}

type FeaturesConfig struct {
	Tablets bool `yaml:"tablets"`
}

type HealthConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
