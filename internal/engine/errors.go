package engine

import (
	"errors"
	"fmt"

	"github.com/kode4food/braid/pkg/api"
)

// ActionError is returned from Await and Join when a scheduled action
// failed. Orchestrations may handle it like any other error
type ActionError struct {
	CorrelationID api.CorrelationID
	Kind          api.ActionKind
	Name          string
	Message       string
}

var (
	ErrNonDeterminism      = errors.New("non-deterministic orchestration")
	ErrDuplicateScheduling = fmt.Errorf(
		"%w: duplicate scheduling", ErrNonDeterminism,
	)
	ErrWorkUnitFailed         = errors.New("work unit failed")
	ErrSubOrchestrationFailed = errors.New("sub-orchestration failed")
	ErrOrchestrationNotFound  = errors.New("orchestration not found")
	ErrOrchestrationExists    = errors.New("orchestration already registered")
	ErrInvalidOrchestration   = errors.New("invalid orchestration")
	ErrOrchestrationPanicked  = errors.New("orchestration panicked")
	ErrInvalidCall            = errors.New("invalid call")
	ErrTooManyConflicts       = errors.New("too many append conflicts")
	ErrShutdownTimeout        = errors.New("shutdown timeout exceeded")
	ErrMissingDependency      = errors.New("missing engine dependency")
	ErrChildIDTaken           = errors.New("child instance ID already in use")
)

func newActionError(act *api.ActionState) *ActionError {
	return &ActionError{
		CorrelationID: act.ID,
		Kind:          act.Kind,
		Name:          act.Name,
		Message:       act.Error,
	}
}

// Error implements error
func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Name, e.Message)
}

// Is matches ErrWorkUnitFailed or ErrSubOrchestrationFailed by kind
func (e *ActionError) Is(target error) bool {
	switch e.Kind {
	case api.ActionTask:
		return target == ErrWorkUnitFailed
	case api.ActionSubOrchestration:
		return target == ErrSubOrchestrationFailed
	default:
		return false
	}
}
