package provider

import (
	"fmt"

	"tmcore/internal/services"
	"tmcore/internal/tmstore"
)

// StateTransitionError reports an action that is not legal for a job's
// current status.
type StateTransitionError struct {
	Action string
	Status tmstore.JobStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a job in status %q", e.Action, e.Status)
}

// Unwrap lets errors.Is match services.ErrStateTransition.
func (e *StateTransitionError) Unwrap() error { return services.ErrStateTransition }
