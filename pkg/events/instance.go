package events

import (
	"fmt"

	"github.com/kode4food/braid/pkg/api"
)

// InstanceAppliers contains the applier functions for instance history
var InstanceAppliers = makeInstanceAppliers()

// Fold replays a complete history into the instance state it describes.
// Sequence numbers must be contiguous from 0, the first event must seed the
// instance, and every resolution must follow the event that scheduled it
func Fold(evs []*api.HistoryEvent) (*api.InstanceState, error) {
	if len(evs) == 0 {
		return nil, api.ErrInstanceNotFound
	}
	var st *api.InstanceState
	for i, ev := range evs {
		if ev.Sequence != int64(i) {
			return nil, fmt.Errorf("%w: expected sequence %d, got %d",
				ErrCorruptHistory, i, ev.Sequence)
		}
		if i == 0 && ev.Type != api.EventTypeOrchestratorStarted {
			return nil, fmt.Errorf("%w: first event is %s",
				ErrCorruptHistory, ev.Type)
		}
		if st != nil && st.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: %s after terminal event at %d",
				ErrCorruptHistory, ev.Type, ev.Sequence)
		}
		next, err := Apply(st, ev)
		if err != nil {
			return nil, err
		}
		st = next.SetNextSequence(ev.Sequence + 1)
	}
	return st, nil
}

// Apply folds a single event into the provided state
func Apply(
	st *api.InstanceState, ev *api.HistoryEvent,
) (*api.InstanceState, error) {
	fn, ok := InstanceAppliers[ev.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, ev.Type)
	}
	return fn(st, ev)
}

func makeInstanceAppliers() Appliers {
	return Appliers{
		api.EventTypeOrchestratorStarted: MakeApplier(
			orchestratorStarted,
		),
		api.EventTypeTaskScheduled:  MakeApplier(taskScheduled),
		api.EventTypeTaskCompleted:  MakeApplier(taskCompleted),
		api.EventTypeTaskFailed:     MakeApplier(taskFailed),
		api.EventTypeSubOrchestrationScheduled: MakeApplier(
			subOrchestrationScheduled,
		),
		api.EventTypeSubOrchestrationCompleted: MakeApplier(
			subOrchestrationCompleted,
		),
		api.EventTypeSubOrchestrationFailed: MakeApplier(
			subOrchestrationFailed,
		),
		api.EventTypeOrchestratorCompleted: MakeApplier(
			orchestratorCompleted,
		),
		api.EventTypeOrchestratorFailed: MakeApplier(orchestratorFailed),
		api.EventTypeTerminated:         MakeApplier(terminated),
	}
}

func orchestratorStarted(
	st *api.InstanceState, ev *api.HistoryEvent,
	data api.OrchestratorStartedEvent,
) (*api.InstanceState, error) {
	if st != nil {
		return nil, fmt.Errorf("%w: instance started twice",
			ErrCorruptHistory)
	}
	return &api.InstanceState{
		ID:          ev.InstanceID,
		Name:        data.Name,
		Input:       data.Input,
		Parent:      data.Parent,
		Status:      api.StatusPending,
		Actions:     api.Actions{},
		CreatedAt:   ev.Timestamp,
		LastUpdated: ev.Timestamp,
	}, nil
}

func taskScheduled(
	st *api.InstanceState, ev *api.HistoryEvent, data api.TaskScheduledEvent,
) (*api.InstanceState, error) {
	return schedule(st, ev, &api.ActionState{
		ID:    data.CorrelationID,
		Kind:  api.ActionTask,
		Name:  data.Name,
		Input: data.Input,
		Batch: data.Batch,
	})
}

func subOrchestrationScheduled(
	st *api.InstanceState, ev *api.HistoryEvent,
	data api.SubOrchestrationScheduledEvent,
) (*api.InstanceState, error) {
	return schedule(st, ev, &api.ActionState{
		ID:      data.CorrelationID,
		Kind:    api.ActionSubOrchestration,
		Name:    data.Name,
		Input:   data.Input,
		ChildID: data.ChildID,
		Batch:   data.Batch,
	})
}

func taskCompleted(
	st *api.InstanceState, ev *api.HistoryEvent, data api.TaskCompletedEvent,
) (*api.InstanceState, error) {
	return resolve(st, ev, data.CorrelationID, api.ActionTask,
		api.ActionCompleted, data.Output, "")
}

func taskFailed(
	st *api.InstanceState, ev *api.HistoryEvent, data api.TaskFailedEvent,
) (*api.InstanceState, error) {
	return resolve(st, ev, data.CorrelationID, api.ActionTask,
		api.ActionFailed, nil, data.Error)
}

func subOrchestrationCompleted(
	st *api.InstanceState, ev *api.HistoryEvent,
	data api.SubOrchestrationCompletedEvent,
) (*api.InstanceState, error) {
	return resolve(st, ev, data.CorrelationID, api.ActionSubOrchestration,
		api.ActionCompleted, data.Output, "")
}

func subOrchestrationFailed(
	st *api.InstanceState, ev *api.HistoryEvent,
	data api.SubOrchestrationFailedEvent,
) (*api.InstanceState, error) {
	return resolve(st, ev, data.CorrelationID, api.ActionSubOrchestration,
		api.ActionFailed, nil, data.Error)
}

func orchestratorCompleted(
	st *api.InstanceState, ev *api.HistoryEvent,
	data api.OrchestratorCompletedEvent,
) (*api.InstanceState, error) {
	return st.
		SetStatus(api.StatusCompleted).
		SetOutput(data.Output).
		SetPassSequence(ev.Sequence).
		SetCompletedAt(ev.Timestamp).
		SetLastUpdated(ev.Timestamp), nil
}

func orchestratorFailed(
	st *api.InstanceState, ev *api.HistoryEvent,
	data api.OrchestratorFailedEvent,
) (*api.InstanceState, error) {
	return st.
		SetStatus(api.StatusFailed).
		SetError(data.Error).
		SetPassSequence(ev.Sequence).
		SetCompletedAt(ev.Timestamp).
		SetLastUpdated(ev.Timestamp), nil
}

func terminated(
	st *api.InstanceState, ev *api.HistoryEvent, data api.TerminatedEvent,
) (*api.InstanceState, error) {
	return st.
		SetStatus(api.StatusTerminated).
		SetError(data.Reason).
		SetCompletedAt(ev.Timestamp).
		SetLastUpdated(ev.Timestamp), nil
}

func schedule(
	st *api.InstanceState, ev *api.HistoryEvent, act *api.ActionState,
) (*api.InstanceState, error) {
	if _, ok := st.GetAction(act.ID); ok {
		return nil, fmt.Errorf("%w: correlation id %d scheduled twice",
			ErrCorruptHistory, act.ID)
	}
	act.Status = api.ActionPending
	act.ScheduledSeq = ev.Sequence
	act.ScheduledAt = ev.Timestamp
	res := st.
		SetAction(act.ID, act).
		SetPassSequence(ev.Sequence).
		SetLastUpdated(ev.Timestamp)
	if res.Status == api.StatusPending {
		res = res.SetStatus(api.StatusRunning)
	}
	return res, nil
}

func resolve(
	st *api.InstanceState, ev *api.HistoryEvent, id api.CorrelationID,
	kind api.ActionKind, status api.ActionStatus, out []byte, errMsg string,
) (*api.InstanceState, error) {
	act, ok := st.GetAction(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s for unscheduled correlation id %d",
			ErrCorruptHistory, ev.Type, id)
	}
	if act.Kind != kind {
		return nil, fmt.Errorf("%w: %s for %s action %d",
			ErrCorruptHistory, ev.Type, act.Kind, id)
	}
	if act.Status.IsResolved() {
		// first resolution wins
		return st.SetLastUpdated(ev.Timestamp), nil
	}
	return st.
		SetAction(id, act.Resolve(status, out, errMsg, ev.Sequence,
			ev.Timestamp)).
		SetLastUpdated(ev.Timestamp), nil
}
