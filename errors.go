package recordcache

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalStateTransition matches every *IllegalStateTransitionError.
	ErrIllegalStateTransition = errors.New("illegal record state transition")
	// ErrDataSegmentMismatch is returned when an update names a different data segment.
	ErrDataSegmentMismatch = errors.New("data segment mismatch")
	// ErrInvalidState is returned for an unknown RecordState.
	ErrInvalidState = errors.New("invalid record state")
	// ErrInvalidPercent is returned for an eviction percentage outside [0, 100].
	ErrInvalidPercent = errors.New("eviction percent must be between 0 and 100")
	// ErrNoFlusher is returned when a dirty record must be evicted without a flusher.
	ErrNoFlusher = errors.New("no flusher for dirty record")
	// ErrCorrupted reports a violated structural invariant.
	ErrCorrupted = errors.New("record cache corrupted")
	// ErrClosed is returned when using a closed cache or group.
	ErrClosed = errors.New("record cache closed")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IllegalStateTransitionError reports a Put whose requested state is not
// reachable from the cached record's state.
type IllegalStateTransitionError struct {
	Position int64
	From     RecordState
	To       RecordState
}

func (e *IllegalStateTransitionError) Error() string {
	return fmt.Sprintf("record %d: cannot change state from %s to %s", e.Position, e.From, e.To)
}

// Is makes errors.Is(err, ErrIllegalStateTransition) match.
func (e *IllegalStateTransitionError) Is(target error) bool {
	return target == ErrIllegalStateTransition
}

// FlushError wraps a Flusher failure during eviction or Flush. The record
// stays cached.
type FlushError struct {
	Position int64
	State    RecordState
	cause    error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush %s record %d: %v", e.State, e.Position, e.cause)
}

func (e *FlushError) Unwrap() error { return e.cause }
