package cluster

// Features holds cluster-wide capability switches. A feature is enabled only
// once every node in the cluster supports it; until then the corresponding
// functionality must be rejected at validation time.
type Features struct {
	// EnableTablets gates tablet-based replication. When false, schema
	// operations requesting tablets are rejected with a configuration error.
	EnableTablets bool
}

// TabletsEnabled reports whether tablet-based replication may be used.
func (f Features) TabletsEnabled() bool {
	return f.EnableTablets
}
