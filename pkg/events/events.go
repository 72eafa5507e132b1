package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kode4food/braid/pkg/api"
)

type (
	// Applier folds a single history event into instance state
	Applier func(*api.InstanceState, *api.HistoryEvent) (
		*api.InstanceState, error,
	)

	// Appliers maps event types to the Applier that handles them
	Appliers map[api.EventType]Applier
)

var (
	ErrCorruptHistory   = errors.New("corrupt history")
	ErrUnknownEventType = errors.New("unknown event type")
)

// MakeApplier adapts a typed applier so the event payload is decoded before
// it is invoked
func MakeApplier[T any](
	fn func(*api.InstanceState, *api.HistoryEvent, T) (
		*api.InstanceState, error,
	),
) Applier {
	return func(
		st *api.InstanceState, ev *api.HistoryEvent,
	) (*api.InstanceState, error) {
		data, err := Unmarshal[T](ev)
		if err != nil {
			return nil, err
		}
		return fn(st, ev, data)
	}
}

// New constructs a HistoryEvent, marshaling the provided payload
func New(
	id api.InstanceID, seq int64, typ api.EventType, data any,
) (*api.HistoryEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &api.HistoryEvent{
		InstanceID: id,
		Type:       typ,
		Sequence:   seq,
		Timestamp:  time.Now(),
		Data:       raw,
	}, nil
}

// Unmarshal decodes an event's payload into T
func Unmarshal[T any](ev *api.HistoryEvent) (T, error) {
	var res T
	if len(ev.Data) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(ev.Data, &res); err != nil {
		return res, fmt.Errorf("%w: %s at %d: %w",
			ErrCorruptHistory, ev.Type, ev.Sequence, err)
	}
	return res, nil
}

// IsScheduled reports whether the event type records a scheduled action
func IsScheduled(typ api.EventType) bool {
	return typ == api.EventTypeTaskScheduled ||
		typ == api.EventTypeSubOrchestrationScheduled
}

// IsResolution reports whether the event type resolves a scheduled action
func IsResolution(typ api.EventType) bool {
	switch typ {
	case api.EventTypeTaskCompleted, api.EventTypeTaskFailed,
		api.EventTypeSubOrchestrationCompleted,
		api.EventTypeSubOrchestrationFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the event type ends an instance
func IsTerminal(typ api.EventType) bool {
	return typ == api.EventTypeOrchestratorCompleted ||
		typ == api.EventTypeOrchestratorFailed ||
		typ == api.EventTypeTerminated
}
