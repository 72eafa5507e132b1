package client_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	as "github.com/kode4food/braid/internal/assert"
	"github.com/kode4food/braid/internal/assert/helpers"
	"github.com/kode4food/braid/internal/client"
	"github.com/kode4food/braid/internal/dispatch"
	"github.com/kode4food/braid/internal/engine"
	"github.com/kode4food/braid/pkg/api"
)

func TestStartAndWait(t *testing.T) {
	withClient(t, func(env *helpers.TestEngineEnv, cl *client.Client) {
		env.Engine.Start()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		id, err := cl.Start(ctx, "square", 7)
		assert.NoError(t, err)
		assert.NotEmpty(t, id)

		st, err := cl.GetStatus(ctx, id)
		assert.NoError(t, err)
		assert.Equal(t, "square", st.Name)

		st, err = cl.WaitForCompletion(ctx, id)
		assert.NoError(t, err)
		w := as.New(t)
		w.InstanceStatus(st, api.StatusCompleted)
		w.OutputEquals(st.Output, 49)
		assert.False(t, st.CompletedAt.IsZero())

		evs, err := cl.GetHistory(ctx, id)
		assert.NoError(t, err)
		w.HistoryTypes(evs,
			api.EventTypeOrchestratorStarted,
			api.EventTypeTaskScheduled,
			api.EventTypeTaskCompleted,
			api.EventTypeOrchestratorCompleted,
		)
	})
}

func TestFreshInstanceStatus(t *testing.T) {
	withClient(t, func(_ *helpers.TestEngineEnv, cl *client.Client) {
		ctx := context.Background()
		assert.NoError(t, cl.StartWithID(ctx, "fresh", "square", 2))

		st, err := cl.GetStatus(ctx, "fresh")
		assert.NoError(t, err)
		assert.Contains(t,
			[]api.InstanceStatus{api.StatusPending, api.StatusRunning},
			st.Status,
		)
		as.New(t).OutputEquals(st.Input, 2)
	})
}

func TestStartErrors(t *testing.T) {
	withClient(t, func(_ *helpers.TestEngineEnv, cl *client.Client) {
		ctx := context.Background()
		assert.NoError(t, cl.StartWithID(ctx, "dup", "square", 1))

		err := cl.StartWithID(ctx, "dup", "square", 1)
		assert.ErrorIs(t, err, api.ErrInstanceExists)

		err = cl.StartWithID(ctx, "other", "missing", 1)
		assert.ErrorIs(t, err, engine.ErrOrchestrationNotFound)

		err = cl.StartWithID(ctx, "bad id!", "square", 1)
		assert.ErrorIs(t, err, client.ErrInvalidInstanceID)

		err = cl.StartWithID(ctx, "", "square", 1)
		assert.ErrorIs(t, err, client.ErrInvalidInstanceID)

		err = cl.StartWithID(ctx, "dup:1", "square", 1)
		assert.ErrorIs(t, err, client.ErrInvalidInstanceID)

		err = cl.StartWithID(ctx, "chan", "square", make(chan int))
		assert.ErrorIs(t, err, client.ErrInvalidInput)

		_, err = cl.Start(ctx, "missing", nil)
		assert.ErrorIs(t, err, engine.ErrOrchestrationNotFound)
	})
}

func TestUnknownInstance(t *testing.T) {
	withClient(t, func(_ *helpers.TestEngineEnv, cl *client.Client) {
		ctx := context.Background()

		_, err := cl.GetStatus(ctx, "ghost")
		assert.ErrorIs(t, err, api.ErrInstanceNotFound)

		_, err = cl.GetHistory(ctx, "ghost")
		assert.ErrorIs(t, err, api.ErrInstanceNotFound)

		err = cl.Terminate(ctx, "ghost", "")
		assert.ErrorIs(t, err, api.ErrInstanceNotFound)

		_, err = cl.WaitForCompletion(ctx, "ghost")
		assert.ErrorIs(t, err, api.ErrInstanceNotFound)
	})
}

func TestTerminate(t *testing.T) {
	withClient(t, func(env *helpers.TestEngineEnv, cl *client.Client) {
		ctx := context.Background()
		assert.NoError(t, cl.StartWithID(ctx, "stop", "square", 3))

		_, err := env.Engine.Run(ctx, "stop")
		assert.NoError(t, err)
		assert.NoError(t, cl.Terminate(ctx, "stop", "changed my mind"))

		// the in-flight result lands after termination and is ignored
		assert.NoError(t, env.Engine.Dispatcher().Complete(
			ctx, "stop", 1, json.RawMessage(`9`),
		))

		st, err := cl.WaitForCompletion(ctx, "stop")
		assert.NoError(t, err)
		as.New(t).InstanceStatus(st, api.StatusTerminated)
		assert.Equal(t, "changed my mind", st.Error)
		assert.Empty(t, st.Output)

		err = cl.Terminate(ctx, "stop", "again")
		assert.ErrorIs(t, err, api.ErrInstanceTerminal)

		res, err := env.Engine.Run(ctx, "stop")
		assert.NoError(t, err)
		assert.Equal(t, engine.OutcomeNoop, res.Outcome)
	})
}

func TestWaitTimeout(t *testing.T) {
	withClient(t, func(_ *helpers.TestEngineEnv, cl *client.Client) {
		assert.NoError(t, cl.StartWithID(
			context.Background(), "slow", "square", 1,
		))

		ctx, cancel := context.WithTimeout(
			context.Background(), 50*time.Millisecond,
		)
		defer cancel()
		_, err := cl.WithPollInterval(5*time.Millisecond).
			WaitForCompletion(ctx, "slow")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func withClient(
	t *testing.T, fn func(*helpers.TestEngineEnv, *client.Client),
) {
	t.Helper()
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		assert.NoError(t, env.WorkUnits.Register("multiply", dispatch.Typed(
			func(_ context.Context, in [2]int) (int, error) {
				return in[0] * in[1], nil
			},
		)))
		assert.NoError(t, env.Orchestrations.Register("square", engine.Typed(
			func(ctx *engine.Context, n int) (int, error) {
				return engine.Await[int](
					ctx.CallWorkUnit("multiply", [2]int{n, n}),
				)
			},
		)))
		fn(env, client.New(env.Engine.Store(), env.Orchestrations))
	})
}
