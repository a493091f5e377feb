// README: Error taxonomy shared by the order, trip and pnl modules.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"dispatch/internal/types"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("state conflict")
	ErrPersistence = errors.New("persistence failure")
)

// kindError ties a module sentinel to one of the shared kinds above.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

func Validation(msg string) error { return &kindError{kind: ErrValidation, msg: msg} }

func NotFound(msg string) error { return &kindError{kind: ErrNotFound, msg: msg} }

func Conflict(msg string) error { return &kindError{kind: ErrConflict, msg: msg} }

// Persistence wraps a storage error so errors.Is(err, ErrPersistence) holds
// while the driver error stays reachable through errors.Unwrap.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrPersistence, err))
}

// StepError reports a workflow that failed after earlier steps were committed.
// Recalculate lists the trips whose financial snapshot may now be stale.
type StepError struct {
	Step        string
	Recalculate []types.ID
	Err         error
}

func (e *StepError) Error() string {
	if len(e.Recalculate) == 0 {
		return fmt.Sprintf("step %s: %v", e.Step, e.Err)
	}
	ids := make([]string, len(e.Recalculate))
	for i, id := range e.Recalculate {
		ids[i] = string(id)
	}
	return fmt.Sprintf("step %s: %v (recalculate trips: %s)", e.Step, e.Err, strings.Join(ids, ","))
}

func (e *StepError) Unwrap() error { return e.Err }
