package services

import (
	"errors"
	"fmt"

	"tasklife/internal/repositories"

	"github.com/gofrs/uuid"
)

var (
	// ErrUnauthorized means the actor's resolved roles forbid the action.
	ErrUnauthorized = errors.New("actor is not permitted to perform this action")
	// ErrInvalidTransition means the action is not valid for the task's
	// current status, including any action on a terminal task.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrValidation means the request payload is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrConcurrentModification means an optimistic write lost the race and
	// the single internal retry still conflicted.
	ErrConcurrentModification = errors.New("task was modified concurrently")
	// ErrNotFound means the task does not exist in the store.
	ErrNotFound = errors.New("task not found")
)

// ErrStoreUnavailable is surfaced unchanged from the gateway once its
// bounded retries are exhausted.
var ErrStoreUnavailable = repositories.ErrStoreUnavailable

// LifecycleError wraps a sentinel error with enough context for the caller
// to render a precise message. No transition request fails silently.
type LifecycleError struct {
	TaskID  uuid.UUID
	ActorID uuid.UUID
	Action  Action
	Err     error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("task %s: action %q by %s: %v", e.TaskID, e.Action, e.ActorID, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

func lifecycleErr(taskID, actorID uuid.UUID, action Action, err error) error {
	return &LifecycleError{TaskID: taskID, ActorID: actorID, Action: action, Err: err}
}
