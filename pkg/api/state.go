package api

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

type (
	// InstanceState is the materialized view of an instance's history
	InstanceState struct {
		CreatedAt    time.Time       `json:"created_at"`
		CompletedAt  time.Time       `json:"completed_at,omitzero"`
		LastUpdated  time.Time       `json:"last_updated"`
		Input        json.RawMessage `json:"input,omitempty"`
		Output       json.RawMessage `json:"output,omitempty"`
		Parent       *ParentRef      `json:"parent,omitempty"`
		Actions      Actions         `json:"actions"`
		ID           InstanceID      `json:"id"`
		Name         string          `json:"name"`
		Status       InstanceStatus  `json:"status"`
		Error        string          `json:"error,omitempty"`
		NextSequence int64           `json:"next_sequence"`
		PassSequence int64           `json:"pass_sequence"`
	}

	// Actions maps correlation IDs to the state of the scheduled action
	Actions map[CorrelationID]*ActionState

	// ActionState is the folded view of one scheduled action
	ActionState struct {
		ScheduledAt  time.Time       `json:"scheduled_at"`
		ResolvedAt   time.Time       `json:"resolved_at,omitzero"`
		Input        json.RawMessage `json:"input,omitempty"`
		Output       json.RawMessage `json:"output,omitempty"`
		ID           CorrelationID   `json:"id"`
		Kind         ActionKind      `json:"kind"`
		Name         string          `json:"name"`
		ChildID      InstanceID      `json:"child_id,omitempty"`
		Status       ActionStatus    `json:"status"`
		Error        string          `json:"error,omitempty"`
		Batch        int             `json:"batch"`
		ScheduledSeq int64           `json:"scheduled_seq"`
		ResolvedSeq  int64           `json:"resolved_seq,omitempty"`
	}

	// ScheduledAction is an action registered during a replay pass that has
	// not yet been recorded in history
	ScheduledAction struct {
		Input         json.RawMessage `json:"input,omitempty"`
		CorrelationID CorrelationID   `json:"correlation_id"`
		Kind          ActionKind      `json:"kind"`
		Name          string          `json:"name"`
		ChildID       InstanceID      `json:"child_id,omitempty"`
		Batch         int             `json:"batch"`
	}
)

// SetStatus returns a new InstanceState with the updated status
func (st *InstanceState) SetStatus(s InstanceStatus) *InstanceState {
	res := *st
	res.Status = s
	return &res
}

// SetOutput returns a new InstanceState with the output set
func (st *InstanceState) SetOutput(out json.RawMessage) *InstanceState {
	res := *st
	res.Output = out
	return &res
}

// SetError returns a new InstanceState with the error message set
func (st *InstanceState) SetError(msg string) *InstanceState {
	res := *st
	res.Error = msg
	return &res
}

// SetAction returns a new InstanceState with the action state replaced
func (st *InstanceState) SetAction(
	id CorrelationID, act *ActionState,
) *InstanceState {
	res := *st
	res.Actions = maps.Clone(st.Actions)
	if res.Actions == nil {
		res.Actions = Actions{}
	}
	res.Actions[id] = act
	return &res
}

// SetCompletedAt returns a new InstanceState with the completion time set
func (st *InstanceState) SetCompletedAt(t time.Time) *InstanceState {
	res := *st
	res.CompletedAt = t
	return &res
}

// SetLastUpdated returns a new InstanceState with the last update time set
func (st *InstanceState) SetLastUpdated(t time.Time) *InstanceState {
	res := *st
	res.LastUpdated = t
	return &res
}

// SetNextSequence returns a new InstanceState expecting the given sequence
// for its next appended event
func (st *InstanceState) SetNextSequence(seq int64) *InstanceState {
	res := *st
	res.NextSequence = seq
	return &res
}

// SetPassSequence returns a new InstanceState whose last engine-written
// event is at the given sequence
func (st *InstanceState) SetPassSequence(seq int64) *InstanceState {
	res := *st
	res.PassSequence = seq
	return &res
}

// GetAction returns the action for a correlation ID, if any
func (st *InstanceState) GetAction(id CorrelationID) (*ActionState, bool) {
	act, ok := st.Actions[id]
	return act, ok
}

// PendingActions returns the unresolved actions in correlation order
func (st *InstanceState) PendingActions() []*ActionState {
	var res []*ActionState
	for _, id := range st.Actions.IDs() {
		if act := st.Actions[id]; !act.Status.IsResolved() {
			res = append(res, act)
		}
	}
	return res
}

// IDs returns the correlation IDs in ascending order
func (a Actions) IDs() []CorrelationID {
	return slices.Sorted(maps.Keys(a))
}

// Resolve returns a new ActionState resolved with the given outcome
func (a *ActionState) Resolve(
	status ActionStatus, output json.RawMessage, errMsg string, seq int64,
	at time.Time,
) *ActionState {
	res := *a
	res.Status = status
	res.Output = output
	res.Error = errMsg
	res.ResolvedSeq = seq
	res.ResolvedAt = at
	return &res
}
