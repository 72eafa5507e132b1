package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/braid/internal/config"
	"github.com/kode4food/braid/internal/dispatch"
	"github.com/kode4food/braid/internal/history"
	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/events"
)

func TestTerminatedClearsWatermark(t *testing.T) {
	hub := history.NewHub()
	defer hub.Close()
	orchs := NewRegistry()
	assert.NoError(t, orchs.Register("waits", Typed(
		func(ctx *Context, _ any) (int, error) {
			return Await[int](ctx.CallWorkUnit("slow", nil))
		},
	)))

	e, err := New(config.NewDefaultConfig(), Dependencies{
		Store:          history.NewMemoryStore(),
		Hub:            hub,
		Orchestrations: orchs,
		WorkUnits:      dispatch.NewRegistry(),
	})
	assert.NoError(t, err)
	defer func() { _ = e.Stop() }()

	ctx := context.Background()
	appendEvent := func(seq int64, typ api.EventType, data any) {
		ev, err := events.New("w", seq, typ, data)
		assert.NoError(t, err)
		assert.NoError(t, e.store.Append(ctx, "w", seq, ev))
	}

	appendEvent(0, api.EventTypeOrchestratorStarted,
		api.OrchestratorStartedEvent{Name: "waits"},
	)
	res, err := e.Run(ctx, "w")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeScheduled, res.Outcome)
	assert.Contains(t, e.watermarks, api.InstanceID("w"))

	appendEvent(2, api.EventTypeTerminated, api.TerminatedEvent{})
	res, err = e.Run(ctx, "w")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)
	assert.NotContains(t, e.watermarks, api.InstanceID("w"))
}
