package htm

import (
	"errors"
	"fmt"
)

// Error taxonomy per spec §7. All three are programmer errors: the caller
// violated a structural precondition or called an operation out of
// sequence. None of them represent recoverable data conditions -- those
// (zero columns selected, empty grow-sources, skipped learning cells) are
// silently handled and never surface as errors.
var (
	// ErrConfiguration marks a malformed Params tree: missing/non-positive
	// dimensions, out-of-range permanences, negative thresholds.
	ErrConfiguration = errors.New("htm: configuration error")

	// ErrPrecondition marks a violated structural precondition on a call's
	// arguments: an out-of-range bit, a stable set that isn't a subset of
	// the active set, a malformed SegUpdate batch.
	ErrPrecondition = errors.New("htm: precondition violation")

	// ErrStateSequencing marks a call made before the layer reached the
	// state it requires: Learn or Depolarise before the first Activate.
	ErrStateSequencing = errors.New("htm: state sequencing error")
)

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConfiguration)...)
}

func preconditionErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrPrecondition)...)
}

func sequencingErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrStateSequencing)...)
}
