package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/kode4food/braid/internal/dispatch"
	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/events"
	"github.com/kode4food/braid/pkg/log"
)

// RecoverInstances resumes every non-terminal instance found in history.
// Pending work units are dispatched again, since their earlier execution
// may have been lost with the previous process, and pending children are
// re-seeded. Terminal children re-deliver their results
func (e *Engine) RecoverInstances(ctx context.Context) error {
	ids, err := e.store.Instances(ctx)
	if err != nil {
		return err
	}

	recovered := 0
	for _, id := range ids {
		st, err := e.load(ctx, id)
		if err != nil {
			slog.Warn("Skipping unreadable instance",
				log.InstanceID(id),
				log.Error(err))
			continue
		}
		if st.Status.IsTerminal() {
			e.deliverToParent(ctx, st)
			continue
		}
		e.recoverInstance(ctx, st)
		recovered++
	}

	slog.Info("Instances recovered",
		slog.Int("count", recovered))
	return nil
}

func (e *Engine) recoverInstance(ctx context.Context, st *api.InstanceState) {
	for _, act := range st.PendingActions() {
		var err error
		switch act.Kind {
		case api.ActionSubOrchestration:
			err = e.startChild(ctx, st.ID, act.ID, act.ChildID, act.Name,
				act.Input,
			)
		default:
			err = e.dispatcher.Schedule(ctx, dispatch.Request{
				InstanceID:    st.ID,
				CorrelationID: act.ID,
				Name:          act.Name,
				Input:         act.Input,
			})
		}
		if err != nil {
			slog.Error("Failed to recover action",
				log.InstanceID(st.ID),
				log.CorrelationID(act.ID),
				log.Error(err))
		}
	}
	e.Signal(st.ID)
}

// sweepLoop periodically signals non-terminal instances so that results
// appended by other processes are eventually observed
func (e *Engine) sweepLoop() {
	ticker := time.NewTicker(e.config.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

func (e *Engine) sweep() {
	ctx, cancel := context.WithTimeout(e.ctx, e.config.PassTimeout)
	defer cancel()

	ids, err := e.store.Instances(ctx)
	if err != nil {
		slog.Error("Recovery sweep failed",
			log.Error(err))
		return
	}
	for _, id := range ids {
		st, err := e.load(ctx, id)
		if err != nil || st.Status.IsTerminal() {
			continue
		}
		e.Signal(id)
	}
}

func (e *Engine) load(
	ctx context.Context, id api.InstanceID,
) (*api.InstanceState, error) {
	evs, err := e.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	return events.Fold(evs)
}
