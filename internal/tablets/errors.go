package tablets

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoTabletMap is returned when a table has no tablet map. This is a
// recoverable condition: tables can be dropped concurrently with lookups, so
// callers translate it into a normal "no such table" response.
var ErrNoTabletMap = errors.New("tablet map not found for table")

// InternalError reports a broken invariant: an ID used against a Map that
// does not own it, a tablet count that is not a power of two, and the like.
// These indicate a bug in the caller, not a runtime condition, so they are
// raised as panics and never retried.
type InternalError struct {
	msg string
}

func (e *InternalError) Error() string {
	return e.msg
}

// InternalErrorf logs the broken invariant and panics with *InternalError.
func InternalErrorf(log *slog.Logger, format string, args ...any) {
	err := &InternalError{msg: fmt.Sprintf(format, args...)}
	if log != nil {
		log.Error("internal error", "err", err)
	}
	panic(err)
}
