package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kode4food/braid/internal/dispatch"
	"github.com/kode4food/braid/internal/history"
	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/events"
	"github.com/kode4food/braid/pkg/log"
)

// Run executes one replay pass for an instance and records its decisions.
// Passes for the same instance never overlap. An append conflict replays
// the pass against the refreshed history
func (e *Engine) Run(ctx context.Context, id api.InstanceID) (*PassResult, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	for range e.config.AppendRetries {
		res, err := e.runPass(ctx, id)
		if history.IsConflict(err) {
			e.metrics.Conflict("engine")
			continue
		}
		return res, err
	}
	return nil, fmt.Errorf("%w: %s", ErrTooManyConflicts, id)
}

func (e *Engine) runPass(
	ctx context.Context, id api.InstanceID,
) (*PassResult, error) {
	start := time.Now()
	evs, err := e.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := events.Fold(evs)
	if err != nil {
		return nil, err
	}
	if st.Status.IsTerminal() {
		e.clearWatermark(id)
		e.deliverToParent(ctx, st)
		return &PassResult{Outcome: OutcomeNoop}, nil
	}

	res := e.replay(st)
	recorded, err := e.record(res)
	if err != nil {
		return nil, err
	}
	if len(recorded) > 0 {
		if err := e.store.Append(ctx, id, st.NextSequence, recorded...); err != nil {
			return nil, err
		}
	}
	e.setWatermark(id, st.NextSequence)
	e.metrics.ObservePass(st.Name, string(res.Outcome), start)

	switch res.Outcome {
	case OutcomeScheduled:
		e.dispatchActions(ctx, st, res.Scheduled)
	case OutcomeCompleted, OutcomeFailed:
		e.finish(ctx, st, res, append(evs, recorded...))
	}
	return res, nil
}

func (e *Engine) replay(st *api.InstanceState) *PassResult {
	fn, ok := e.orchestrations.Get(st.Name)
	if !ok {
		return &PassResult{
			Outcome: OutcomeFailed,
			Error:   fmt.Sprintf("%s: %s", ErrOrchestrationNotFound, st.Name),
		}
	}

	p := newPass(st, e.watermark(st))
	p.run(newContext(p, e.logger.Handler()), fn)
	res := p.result()
	if p.diverged != nil {
		e.logger.Error("Replay diverged from history",
			log.InstanceID(st.ID),
			log.Orchestration(st.Name),
			log.Error(p.diverged),
			slog.Any("diff", historyDiff(st, p.trace)))
	}
	return res
}

// record converts a pass result into the history events it implies
func (e *Engine) record(res *PassResult) ([]*api.HistoryEvent, error) {
	switch res.Outcome {
	case OutcomeScheduled:
		evs := make([]*api.HistoryEvent, len(res.Scheduled))
		for i, sa := range res.Scheduled {
			ev, err := scheduledEvent(sa)
			if err != nil {
				return nil, err
			}
			evs[i] = ev
		}
		return evs, nil
	case OutcomeCompleted:
		ev, err := events.New("", 0, api.EventTypeOrchestratorCompleted,
			api.OrchestratorCompletedEvent{Output: res.Output},
		)
		return []*api.HistoryEvent{ev}, err
	case OutcomeFailed:
		ev, err := events.New("", 0, api.EventTypeOrchestratorFailed,
			api.OrchestratorFailedEvent{Error: res.Error},
		)
		return []*api.HistoryEvent{ev}, err
	default:
		return nil, nil
	}
}

func scheduledEvent(sa *api.ScheduledAction) (*api.HistoryEvent, error) {
	if sa.Kind == api.ActionSubOrchestration {
		return events.New("", 0, api.EventTypeSubOrchestrationScheduled,
			api.SubOrchestrationScheduledEvent{
				CorrelationID: sa.CorrelationID,
				Name:          sa.Name,
				Input:         sa.Input,
				ChildID:       sa.ChildID,
				Batch:         sa.Batch,
			},
		)
	}
	return events.New("", 0, api.EventTypeTaskScheduled,
		api.TaskScheduledEvent{
			CorrelationID: sa.CorrelationID,
			Name:          sa.Name,
			Input:         sa.Input,
			Batch:         sa.Batch,
		},
	)
}

func (e *Engine) dispatchActions(
	ctx context.Context, st *api.InstanceState, acts []*api.ScheduledAction,
) {
	for _, sa := range acts {
		e.metrics.ActionsScheduled.WithLabelValues(string(sa.Kind)).Inc()
		var err error
		if sa.Kind == api.ActionSubOrchestration {
			err = e.startChild(ctx, st.ID, sa.CorrelationID, sa.ChildID,
				sa.Name, sa.Input,
			)
		} else {
			err = e.dispatcher.Schedule(ctx, dispatch.Request{
				InstanceID:    st.ID,
				CorrelationID: sa.CorrelationID,
				Name:          sa.Name,
				Input:         sa.Input,
			})
		}
		if err != nil {
			slog.Error("Failed to dispatch action",
				log.InstanceID(st.ID),
				log.CorrelationID(sa.CorrelationID),
				log.Error(err))
		}
	}
}

func (e *Engine) finish(
	ctx context.Context, st *api.InstanceState, res *PassResult,
	evs []*api.HistoryEvent,
) {
	status := api.StatusCompleted
	if res.Outcome == OutcomeFailed {
		status = api.StatusFailed
	}
	e.metrics.Instances.WithLabelValues(string(status)).Inc()
	e.clearWatermark(st.ID)

	slog.Info("Instance finished",
		log.InstanceID(st.ID),
		log.Orchestration(st.Name),
		log.Status(status),
		log.ErrorString(res.Error))

	final := st.SetStatus(status).SetOutput(res.Output).SetError(res.Error)
	e.deliverToParent(ctx, final)

	if e.archive == nil {
		return
	}
	if err := e.archive.Archive(ctx, st.ID, evs); err != nil {
		slog.Error("Failed to archive instance",
			log.InstanceID(st.ID),
			log.Error(err))
	}
}
