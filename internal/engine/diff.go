package engine

import (
	"fmt"

	"github.com/kode4food/braid/pkg/api"
)

// historyDiff lines up the actions recorded in history with those the
// replay scheduled. Matching positions are prefixed with "=", history-only
// with "-", and replay-only with "+"
func historyDiff(st *api.InstanceState, trace []*api.ScheduledAction) []string {
	var res []string
	n := max(len(st.Actions), len(trace))
	for i := range n {
		corr := api.CorrelationID(i + 1)
		act, recorded := st.GetAction(corr)
		var replayed *api.ScheduledAction
		if i < len(trace) {
			replayed = trace[i]
		}

		switch {
		case recorded && replayed != nil && sameAction(act, replayed):
			res = append(res, "= "+describe(corr, act.Kind, act.Name, act.Batch))
		default:
			if recorded {
				res = append(res,
					"- "+describe(corr, act.Kind, act.Name, act.Batch),
				)
			}
			if replayed != nil {
				res = append(res, "+ "+describe(
					corr, replayed.Kind, replayed.Name, replayed.Batch,
				))
			}
		}
	}
	return res
}

func sameAction(act *api.ActionState, sa *api.ScheduledAction) bool {
	return act.Kind == sa.Kind && act.Name == sa.Name && act.Batch == sa.Batch
}

func describe(
	corr api.CorrelationID, kind api.ActionKind, name string, batch int,
) string {
	return fmt.Sprintf("%d %s %s (step of %d)", corr, kind, name, batch)
}
