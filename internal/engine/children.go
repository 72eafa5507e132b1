package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kode4food/braid/internal/history"
	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/events"
	"github.com/kode4food/braid/pkg/log"
)

// startChild seeds a sub-orchestration instance. Seeding is idempotent: if
// the child already exists it is either woken or, when already terminal,
// its result is delivered to the parent again
func (e *Engine) startChild(
	ctx context.Context, parent api.InstanceID, corr api.CorrelationID,
	childID api.InstanceID, name string, input json.RawMessage,
) error {
	ev, err := events.New(childID, 0, api.EventTypeOrchestratorStarted,
		api.OrchestratorStartedEvent{
			Name:  name,
			Input: input,
			Parent: &api.ParentRef{
				InstanceID:    parent,
				CorrelationID: corr,
			},
		},
	)
	if err != nil {
		return err
	}

	err = e.store.Append(ctx, childID, 0, ev)
	if err == nil {
		slog.Debug("Sub-orchestration started",
			log.InstanceID(childID),
			log.Orchestration(name),
			slog.String("parent_id", string(parent)))
		return nil
	}
	if !history.IsConflict(err) {
		return err
	}

	evs, err := e.store.Read(ctx, childID)
	if err != nil {
		return err
	}
	st, err := events.Fold(evs)
	if err != nil {
		return err
	}
	if !ownedBy(st, parent, corr) {
		return e.dispatcher.Fail(ctx, parent, corr,
			fmt.Sprintf("%s: %s", ErrChildIDTaken, childID),
		)
	}
	if st.Status.IsTerminal() {
		e.deliverToParent(ctx, st)
		return nil
	}
	e.Signal(childID)
	return nil
}

// ownedBy reports whether an existing instance was seeded as the child
// scheduled by parent under corr
func ownedBy(
	st *api.InstanceState, parent api.InstanceID, corr api.CorrelationID,
) bool {
	return st.Parent != nil && *st.Parent == api.ParentRef{
		InstanceID:    parent,
		CorrelationID: corr,
	}
}

// deliverToParent records a terminal child's result in its parent's
// history. Delivery is idempotent
func (e *Engine) deliverToParent(ctx context.Context, st *api.InstanceState) {
	if st.Parent == nil || !st.Status.IsTerminal() {
		return
	}
	ref := st.Parent

	var err error
	switch st.Status {
	case api.StatusCompleted:
		err = e.dispatcher.Complete(ctx, ref.InstanceID, ref.CorrelationID,
			st.Output,
		)
	default:
		err = e.dispatcher.Fail(ctx, ref.InstanceID, ref.CorrelationID,
			childFailure(st),
		)
	}
	if err != nil {
		slog.Error("Failed to deliver sub-orchestration result",
			log.InstanceID(st.ID),
			slog.String("parent_id", string(ref.InstanceID)),
			log.CorrelationID(ref.CorrelationID),
			log.Error(err))
	}
}

func childFailure(st *api.InstanceState) string {
	if st.Status == api.StatusTerminated {
		if st.Error == "" {
			return "terminated"
		}
		return "terminated: " + st.Error
	}
	return st.Error
}
