package match

import (
	"errors"
	"fmt"

	"github.com/gokatarajesh/matchday/internal/remote"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrRemoteUnavailable = errors.New("match service unavailable")
	ErrConflict          = errors.New("remote state diverged")
	ErrStaleWriteIgnored = errors.New("reconciliation skipped while a change is in flight")

	ErrMutationInFlight = errors.New("another change is still being saved")
	ErrNoSession        = errors.New("no active session for scope")
	ErrSessionExists    = errors.New("a session is already open for scope")
	ErrInvalidState     = errors.New("operation not allowed in current state")

	ErrFinalizedNotReverted = fmt.Errorf("%w: match is still finalized, reopen it first", ErrConflict)
)

// ValidationError describes which input was insufficient.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// fromRemote converts a collaborator failure into the session taxonomy.
// The original error stays in the chain.
func fromRemote(op string, err error) error {
	if errors.Is(err, remote.ErrSetExists) {
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRemoteUnavailable, err)
}
