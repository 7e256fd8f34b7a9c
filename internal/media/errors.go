package media

import (
	"errors"
	"fmt"

	"github.com/heimdex/heimdex-composer/internal/timeline"
)

var (
	ErrNotReady      = errors.New("not ready")
	ErrMissingBase   = errors.New("missing base")
	ErrCycleDetected = errors.New("derivation cycle detected")
	ErrBuildFailure  = errors.New("build failure")

	ErrNotFound      = errors.New("item not found")
	ErrDuplicateID   = errors.New("duplicate item id")
	ErrInvalidItem   = errors.New("invalid item")
	ErrHasDependents = errors.New("item has dependents")

	// ErrStale reports a result discarded because an item it was computed
	// from changed or was removed while the computation ran.
	ErrStale = fmt.Errorf("%w: chain changed during evaluation", ErrBuildFailure)

	// ErrInvalidInterval is re-exported so callers can match every error
	// kind from one package.
	ErrInvalidInterval = timeline.ErrInvalidInterval
)

// IsConsistencyDefect reports errors that indicate a broken registry rather
// than an item that is temporarily unusable.
func IsConsistencyDefect(err error) bool {
	return errors.Is(err, ErrMissingBase) || errors.Is(err, ErrCycleDetected)
}

// ErrorCode maps an error to the machine-readable code used by the API and
// the batch reports.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCycleDetected):
		return "CYCLE_DETECTED"
	case errors.Is(err, ErrMissingBase):
		return "MISSING_BASE"
	case errors.Is(err, ErrInvalidInterval):
		return "INVALID_INTERVAL"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrHasDependents):
		return "HAS_DEPENDENTS"
	case errors.Is(err, ErrDuplicateID):
		return "DUPLICATE_ID"
	case errors.Is(err, ErrInvalidItem):
		return "INVALID_ITEM"
	case errors.Is(err, ErrNotReady):
		return "NOT_READY"
	default:
		return "BUILD_FAILED"
	}
}
