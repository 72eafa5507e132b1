package engine

import (
	"encoding/json"

	"github.com/kode4food/braid/pkg/api"
)

type (
	// Future is the pending result of a scheduled action
	Future struct {
		ctx *Context
		id  api.CorrelationID
	}

	// Call describes an action to schedule
	Call struct {
		input any
		kind  api.ActionKind
		name  string
	}
)

// WorkUnit describes a work unit call for FanOut or Retry
func WorkUnit(name string, input any) Call {
	return Call{kind: api.ActionTask, name: name, input: input}
}

// SubOrchestration describes a child orchestration call for FanOut or Retry
func SubOrchestration(name string, input any) Call {
	return Call{kind: api.ActionSubOrchestration, name: name, input: input}
}

// CorrelationID returns the positional ID assigned to the action
func (f *Future) CorrelationID() api.CorrelationID {
	return f.id
}

// Result returns the raw output of the action. If the action has not
// resolved yet the orchestration suspends here
func (f *Future) Result() (json.RawMessage, error) {
	p := f.ctx.pass
	act, ok := p.resolved(f.id)
	if !ok {
		p.suspend()
	}
	p.observe(act)
	if act.Status == api.ActionFailed {
		return nil, newActionError(act)
	}
	return act.Output, nil
}

// Await decodes the action's output into out, which may be nil
func (f *Future) Await(out any) error {
	raw, err := f.Result()
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Await returns the action's output decoded as T
func Await[T any](f *Future) (T, error) {
	var res T
	err := f.Await(&res)
	return res, err
}
