package replication

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dreamware/tessera/internal/tablets"
)

// InitialTabletsOption is the single strategy option recognized by the
// tablet-aware layer: the number of tablets a new table starts with.
const InitialTabletsOption = "initial_tablets"

// ReplicationFactorOption is the generic strategy option carrying the
// replication factor. The tablet-aware layer never consumes it; it is left
// in the bag for generic option handling.
const ReplicationFactorOption = "replication_factor"

// Options is a replication-strategy option bag as it arrives from a schema
// statement. The bag is mutable: options consumed by a layer are removed so
// that generic validation does not reject them as unrecognized.
type Options map[string]string

// FeatureGate answers whether tablet-based replication is enabled
// cluster-wide.
type FeatureGate interface {
	TabletsEnabled() bool
}

// RecognizedTabletOptions returns the option keys the tablet-aware layer
// consumes.
func RecognizedTabletOptions() map[string]struct{} {
	return map[string]struct{}{InitialTabletsOption: {}}
}

func parseInitialTablets(val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w; found %q", ErrInvalidInitialTablets, val)
	}
	return n, nil
}

// Strategy is a replication strategy configuration: replication factor plus
// the tablet options processed out of a schema statement. A strategy that
// has consumed the tablets option produces tablet-aware replication maps and
// keeps per-table (not keyspace-shared) placement state; otherwise it
// produces legacy ring-based maps.
type Strategy struct {
	rf             int
	usesTablets    bool
	perTable       bool
	initialTablets int
	log            *slog.Logger
}

// NewStrategy creates a strategy with the given replication factor.
func NewStrategy(rf int, log *slog.Logger) (*Strategy, error) {
	if rf <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidReplicationFactor, rf)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Strategy{rf: rf, log: log}, nil
}

// ReplicationFactor returns the configured number of replicas per range.
func (s *Strategy) ReplicationFactor() int {
	return s.rf
}

// UsesTablets reports whether the strategy produces tablet-aware maps.
func (s *Strategy) UsesTablets() bool {
	return s.usesTablets
}

// PerTable reports whether placement state is tracked per table rather than
// shared across a keyspace.
func (s *Strategy) PerTable() bool {
	return s.perTable
}

// InitialTablets returns the requested initial tablet count; zero means the
// caller picks a default.
func (s *Strategy) InitialTablets() int {
	return s.initialTablets
}

// ValidateTabletOptions checks the recognized tablet option against the
// feature gate and value syntax without consuming it. Configuration errors
// are returned for translation into a statement rejection; no state changes.
func (s *Strategy) ValidateTabletOptions(features FeatureGate, opts Options) error {
	for k, v := range opts {
		if k != InitialTabletsOption {
			continue
		}
		if !features.TabletsEnabled() {
			return ErrTabletsDisabled
		}
		if _, err := parseInitialTablets(v); err != nil {
			return err
		}
	}
	return nil
}

// ProcessTabletOptions consumes the tablets option when present: the
// strategy is marked tablet-based and per-table, and the key is removed from
// the bag so generic option validation does not see it.
func (s *Strategy) ProcessTabletOptions(opts Options) error {
	v, ok := opts[InitialTabletsOption]
	if !ok {
		return nil
	}
	n, err := parseInitialTablets(v)
	if err != nil {
		return err
	}
	s.initialTablets = n
	s.usesTablets = true
	s.perTable = true
	delete(opts, InitialTabletsOption)
	return nil
}

// MakeReplicationMap builds the effective replication map of the strategy's
// kind for a table, bound to the given snapshot.
func (s *Strategy) MakeReplicationMap(table tablets.TableID, snap *Snapshot) (EffectiveReplicationMap, error) {
	if s.usesTablets {
		return NewTabletReplicationMap(table, snap, s.rf, s.log)
	}
	return NewRingReplicationMap(snap, s.rf, s.log), nil
}
