package recordcache

import (
	"fmt"
	"strings"
)

// RecordState tells whether a cached record differs from its durable copy.
type RecordState uint8

const (
	// StateShared records match durable storage.
	StateShared RecordState = 0
	// StateModified records changed in memory since they were loaded.
	StateModified RecordState = 1
	// StateNew records were created in memory and never persisted.
	StateNew RecordState = 2
)

func (s RecordState) String() string {
	switch s {
	case StateShared:
		return "SHARED"
	case StateModified:
		return "MODIFIED"
	case StateNew:
		return "NEW"
	default:
		return fmt.Sprintf("RecordState(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the defined states.
func (s RecordState) Valid() bool {
	return s <= StateNew
}

// Dirty reports whether a record in state s must be flushed before eviction.
func (s RecordState) Dirty() bool {
	return s != StateShared
}

// ParseRecordState parses "shared", "modified" or "new" (case-insensitive).
func ParseRecordState(s string) (RecordState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SHARED":
		return StateShared, nil
	case "MODIFIED":
		return StateModified, nil
	case "NEW":
		return StateNew, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
}

// transition returns the state stored after a Put requesting to on a record
// currently in from.
//
//	from \ to   SHARED   MODIFIED   NEW
//	SHARED      SHARED   MODIFIED   -
//	MODIFIED    -        MODIFIED   -
//	NEW         -        NEW        -
//
// A new record stays NEW when modified: it still has no durable copy.
func transition(position int64, from, to RecordState) (RecordState, error) {
	switch {
	case to == StateNew:
	case from == StateShared:
		return to, nil
	case to == StateModified:
		return from, nil
	}
	return from, &IllegalStateTransitionError{Position: position, From: from, To: to}
}
