package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kode4food/braid/pkg/api"
)

type (
	// PassResult describes what a single replay pass decided
	PassResult struct {
		Outcome   Outcome
		Scheduled []*api.ScheduledAction
		Output    json.RawMessage
		Error     string
	}

	// Outcome classifies a replay pass
	Outcome string

	// pass is the working memory of one replay of an orchestration
	pass struct {
		state     *api.InstanceState
		now       time.Time
		scheduled []*api.ScheduledAction
		trace     []*api.ScheduledAction
		output    json.RawMessage
		err       error
		diverged  error
		watermark int64
		next      api.CorrelationID
		replaying bool
		suspended bool
	}

	// suspension unwinds an orchestration function back to the pass runner
	suspension struct{}
)

const (
	OutcomeNoop      Outcome = "noop"
	OutcomeScheduled Outcome = "scheduled"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

func newPass(st *api.InstanceState, watermark int64) *pass {
	return &pass{
		state:     st,
		now:       st.CreatedAt,
		watermark: watermark,
		next:      1,
		replaying: len(st.Actions) > 0,
	}
}

func (p *pass) run(ctx *Context, fn Orchestration) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, ok := r.(suspension); ok {
			p.suspended = p.diverged == nil && p.err == nil
			return
		}
		p.err = fmt.Errorf("%w: %v", ErrOrchestrationPanicked, r)
	}()

	res, err := fn(ctx, p.state.Input)
	if err != nil {
		p.err = err
		return
	}
	out, err := json.Marshal(res)
	if err != nil {
		p.err = err
		return
	}
	p.output = out
}

// result classifies the pass, checking that the replay covered every action
// already recorded in history
func (p *pass) result() *PassResult {
	if p.diverged == nil {
		if replayed := int(p.next - 1); replayed < len(p.state.Actions) {
			p.diverged = fmt.Errorf(
				"%w: replay scheduled %d actions, history recorded %d",
				ErrNonDeterminism, replayed, len(p.state.Actions),
			)
		}
	}

	switch {
	case p.diverged != nil:
		return &PassResult{Outcome: OutcomeFailed, Error: p.diverged.Error()}
	case p.err != nil:
		return &PassResult{Outcome: OutcomeFailed, Error: p.err.Error()}
	case p.suspended && len(p.scheduled) > 0:
		return &PassResult{
			Outcome:   OutcomeScheduled,
			Scheduled: p.scheduled,
		}
	case p.suspended:
		return &PassResult{Outcome: OutcomeNoop}
	default:
		return &PassResult{Outcome: OutcomeCompleted, Output: p.output}
	}
}

func (p *pass) suspend() {
	panic(suspension{})
}

func (p *pass) diverge(err error) {
	if p.diverged == nil {
		p.diverged = err
	}
	panic(suspension{})
}

func (p *pass) abort(err error) {
	if p.err == nil {
		p.err = err
	}
	panic(suspension{})
}

// observe marks a resolved action as seen by the function, advancing the
// deterministic clock and ending replay once results are new to this pass
func (p *pass) observe(act *api.ActionState) {
	if act.ResolvedSeq >= p.watermark {
		p.replaying = false
	}
	if act.ResolvedAt.After(p.now) {
		p.now = act.ResolvedAt
	}
}

// resolved returns the recorded action for a correlation ID if it has been
// resolved
func (p *pass) resolved(id api.CorrelationID) (*api.ActionState, bool) {
	act, ok := p.state.GetAction(id)
	if !ok || !act.Status.IsResolved() {
		return nil, false
	}
	return act, true
}

// schedule assigns positional correlation IDs to one scheduling step and
// checks them against history. Actions not yet in history are recorded as
// new for this pass
func (p *pass) schedule(calls []Call) []api.CorrelationID {
	batch := len(calls)
	res := make([]api.CorrelationID, batch)
	for i, call := range calls {
		if call.name == "" {
			p.abort(fmt.Errorf("%w: %s without a name", ErrInvalidCall,
				call.kind))
		}
		input, err := json.Marshal(call.input)
		if err != nil {
			p.abort(fmt.Errorf("%w: input for %s: %w", ErrInvalidCall,
				call.name, err))
		}

		corr := p.next
		p.next++
		res[i] = corr

		sa := &api.ScheduledAction{
			CorrelationID: corr,
			Kind:          call.kind,
			Name:          call.name,
			Input:         input,
			Batch:         batch,
		}
		if call.kind == api.ActionSubOrchestration {
			sa.ChildID = ChildID(p.state.ID, corr)
		}
		p.trace = append(p.trace, sa)

		if act, ok := p.state.GetAction(corr); ok {
			p.verify(act, sa)
			continue
		}
		p.replaying = false
		p.scheduled = append(p.scheduled, sa)
	}
	return res
}

func (p *pass) verify(act *api.ActionState, sa *api.ScheduledAction) {
	if act.Kind != sa.Kind || act.Name != sa.Name {
		p.diverge(fmt.Errorf(
			"%w: action %d recorded as %s %q, replay scheduled %s %q",
			ErrNonDeterminism, sa.CorrelationID, act.Kind, act.Name,
			sa.Kind, sa.Name,
		))
	}
	if act.Batch != sa.Batch {
		p.diverge(fmt.Errorf(
			"%w: action %d recorded in a step of %d, replay scheduled %d",
			ErrDuplicateScheduling, sa.CorrelationID, act.Batch, sa.Batch,
		))
	}
}

// ChildID derives the instance ID of a sub-orchestration from its parent
// and the correlation ID that scheduled it
func ChildID(parent api.InstanceID, corr api.CorrelationID) api.InstanceID {
	return api.InstanceID(
		fmt.Sprintf("%s%s%d", parent, api.ChildIDSeparator, corr),
	)
}
