package config

import "github.com/google/uuid"

func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigIsNil
	}
	if err := c.Node.Validate(); err != nil {
		return err
	}
	for i := range c.Peers {
		if err := c.Peers[i].Validate(); err != nil {
			return err
		}
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}

func (c *NodeConfig) Validate() error {
	if c.HostID != "" {
		if _, err := uuid.Parse(c.HostID); err != nil {
			return ErrInvalidHostID
		}
	}

	if c.Shards < 0 {
		return ErrNegativeShards
	}

	if c.Join != "" && c.Addr == "" {
		return ErrMissingNodeAddr
	}

	return nil
}

func (c *PeerConfig) Validate() error {
	if c.HostID != "" {
		if _, err := uuid.Parse(c.HostID); err != nil {
			return ErrInvalidHostID
		}
	}

	if c.Addr == "" {
		return ErrMissingPeerAddr
	}

	return nil
}

func (c *LogConfig) Validate() error {
	if _, ok := knownLogLevels[c.Level]; !ok {
		return ErrUnknownLogLevel
	}
	return nil
}
