package audiobuf

import "errors"

// ErrInvariantViolation is returned when a SnapshotFrom offset exceeds the
// current frame count (spec.md §4.1).
var ErrInvariantViolation = errors.New("audiobuf: invariant violation")
