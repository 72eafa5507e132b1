package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	as "github.com/kode4food/braid/internal/assert"
	"github.com/kode4food/braid/internal/assert/helpers"
	"github.com/kode4food/braid/internal/dispatch"
	"github.com/kode4food/braid/internal/engine"
	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/events"
)

func TestFanOutJoinOrder(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		register(t, env, "doubles", doubles)
		env.StartInstance("fan", "doubles", []int{21, 36, 55})
		ctx := context.Background()
		d := env.Engine.Dispatcher()

		res := run(t, env, "fan")
		assert.Equal(t, engine.OutcomeScheduled, res.Outcome)
		if assert.Len(t, res.Scheduled, 3) {
			for i, sa := range res.Scheduled {
				assert.Equal(t, api.CorrelationID(i+1), sa.CorrelationID)
				assert.Equal(t, 3, sa.Batch)
				assert.Equal(t, "double", sa.Name)
			}
		}

		assert.NoError(t, d.Complete(ctx, "fan", 2, json.RawMessage(`72`)))
		assert.NoError(t, d.Complete(ctx, "fan", 3, json.RawMessage(`110`)))
		res = run(t, env, "fan")
		assert.Equal(t, engine.OutcomeNoop, res.Outcome)

		assert.NoError(t, d.Complete(ctx, "fan", 1, json.RawMessage(`42`)))
		res = run(t, env, "fan")
		assert.Equal(t, engine.OutcomeCompleted, res.Outcome)

		w := as.New(t)
		w.OutputEquals(env.State("fan").Output, []int{42, 72, 110})
		w.HistoryTypes(env.History("fan"),
			api.EventTypeOrchestratorStarted,
			api.EventTypeTaskScheduled,
			api.EventTypeTaskScheduled,
			api.EventTypeTaskScheduled,
			api.EventTypeTaskCompleted,
			api.EventTypeTaskCompleted,
			api.EventTypeTaskCompleted,
			api.EventTypeOrchestratorCompleted,
		)
	})
}

func TestEmptyFanOut(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		register(t, env, "doubles", doubles)
		env.StartInstance("none", "doubles", []int{})

		res := run(t, env, "none")
		assert.Equal(t, engine.OutcomeCompleted, res.Outcome)
		as.New(t).OutputEquals(res.Output, []int{})
	})
}

func TestFanOutFailFast(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		register(t, env, "doubles", doubles)
		env.StartInstance("ff", "doubles", []int{1, 2, 3})
		ctx := context.Background()
		d := env.Engine.Dispatcher()

		run(t, env, "ff")
		assert.NoError(t, d.Fail(ctx, "ff", 3, "third broke"))
		assert.NoError(t, d.Fail(ctx, "ff", 2, "second broke"))

		res := run(t, env, "ff")
		assert.Equal(t, engine.OutcomeFailed, res.Outcome)
		assert.Equal(t, "double failed: third broke", res.Error)

		// late results for the abandoned member are ignored
		before := len(env.History("ff"))
		assert.NoError(t, d.Complete(ctx, "ff", 1, json.RawMessage(`2`)))
		assert.Len(t, env.History("ff"), before)
	})
}

func TestHandledFailure(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		register(t, env, "fallback", engine.Typed(
			func(ctx *engine.Context, _ any) (string, error) {
				_, err := ctx.CallWorkUnit("fragile", nil).Result()
				if errors.Is(err, engine.ErrWorkUnitFailed) {
					var ae *engine.ActionError
					if errors.As(err, &ae) {
						return "recovered from " + ae.Message, nil
					}
				}
				return "unreachable", err
			},
		))
		env.StartInstance("h", "fallback", nil)

		run(t, env, "h")
		assert.NoError(t, env.Engine.Dispatcher().Fail(
			context.Background(), "h", 1, "oops",
		))
		res := run(t, env, "h")
		assert.Equal(t, engine.OutcomeCompleted, res.Outcome)
		as.New(t).OutputEquals(res.Output, "recovered from oops")
	})
}

func TestNonDeterminism(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		name := "first"
		register(t, env, "fickle",
			func(ctx *engine.Context, _ json.RawMessage) (any, error) {
				return engine.Await[int](ctx.CallWorkUnit(name, nil))
			},
		)
		env.StartInstance("nd", "fickle", nil)

		res := run(t, env, "nd")
		assert.Equal(t, engine.OutcomeScheduled, res.Outcome)

		name = "second"
		res = run(t, env, "nd")
		assert.Equal(t, engine.OutcomeFailed, res.Outcome)
		assert.Contains(t, res.Error, engine.ErrNonDeterminism.Error())

		st := env.State("nd")
		assert.Equal(t, api.StatusFailed, st.Status)
		assert.Contains(t, st.Error, `"first"`)
		assert.Contains(t, st.Error, `"second"`)
	})
}

func TestDuplicateScheduling(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		together := false
		register(t, env, "split",
			func(ctx *engine.Context, _ json.RawMessage) (any, error) {
				if together {
					return ctx.FanOut(
						engine.WorkUnit("x", 1), engine.WorkUnit("x", 2),
					).Join()
				}
				a := ctx.CallWorkUnit("x", 1)
				b := ctx.CallWorkUnit("x", 2)
				if err := a.Await(nil); err != nil {
					return nil, err
				}
				return nil, b.Await(nil)
			},
		)
		env.StartInstance("dup", "split", nil)

		res := run(t, env, "dup")
		assert.Len(t, res.Scheduled, 2)
		for _, sa := range res.Scheduled {
			assert.Equal(t, 1, sa.Batch)
		}

		together = true
		res = run(t, env, "dup")
		assert.Equal(t, engine.OutcomeFailed, res.Outcome)
		assert.Contains(t, res.Error, engine.ErrDuplicateScheduling.Error())
	})
}

func TestReplayFewerActions(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		both := true
		register(t, env, "shrink",
			func(ctx *engine.Context, _ json.RawMessage) (any, error) {
				a := ctx.CallWorkUnit("a", nil)
				if both {
					ctx.CallWorkUnit("b", nil)
				}
				return nil, a.Await(nil)
			},
		)
		env.StartInstance("fewer", "shrink", nil)

		res := run(t, env, "fewer")
		assert.Len(t, res.Scheduled, 2)

		both = false
		res = run(t, env, "fewer")
		assert.Equal(t, engine.OutcomeFailed, res.Outcome)
		assert.Contains(t, res.Error, "replay scheduled 1 actions")
	})
}

func TestDuplicateCompletion(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		register(t, env, "doubles", doubles)
		env.StartInstance("dc", "doubles", []int{1})
		ctx := context.Background()
		d := env.Engine.Dispatcher()

		run(t, env, "dc")
		assert.NoError(t, d.Complete(ctx, "dc", 1, json.RawMessage(`2`)))
		assert.NoError(t, d.Complete(ctx, "dc", 1, json.RawMessage(`99`)))
		assert.NoError(t, d.Fail(ctx, "dc", 1, "late"))

		err := d.Complete(ctx, "dc", 7, json.RawMessage(`0`))
		assert.ErrorIs(t, err, dispatch.ErrActionNotFound)

		run(t, env, "dc")
		st := env.State("dc")
		assert.Equal(t, api.StatusCompleted, st.Status)
		as.New(t).OutputEquals(st.Output, []int{2})
	})
}

func TestUnawaitedActionsDropped(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		register(t, env, "forgetful",
			func(ctx *engine.Context, _ json.RawMessage) (any, error) {
				ctx.CallWorkUnit("ignored", nil)
				return "done", nil
			},
		)
		env.StartInstance("u", "forgetful", nil)

		res := run(t, env, "u")
		assert.Equal(t, engine.OutcomeCompleted, res.Outcome)
		as.New(t).HistoryTypes(env.History("u"),
			api.EventTypeOrchestratorStarted,
			api.EventTypeOrchestratorCompleted,
		)
	})
}

func TestInvalidCall(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		register(t, env, "nameless",
			func(ctx *engine.Context, _ json.RawMessage) (any, error) {
				return nil, ctx.CallWorkUnit("", nil).Await(nil)
			},
		)
		register(t, env, "unencodable",
			func(ctx *engine.Context, _ json.RawMessage) (any, error) {
				return nil, ctx.CallWorkUnit("x", make(chan int)).Await(nil)
			},
		)
		env.StartInstance("n1", "nameless", nil)
		env.StartInstance("n2", "unencodable", nil)

		for _, id := range []api.InstanceID{"n1", "n2"} {
			res := run(t, env, id)
			assert.Equal(t, engine.OutcomeFailed, res.Outcome)
			assert.Contains(t, res.Error, engine.ErrInvalidCall.Error())
		}
	})
}

func TestDeterministicNow(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		register(t, env, "clock",
			func(ctx *engine.Context, _ json.RawMessage) (any, error) {
				before := ctx.Now()
				if err := ctx.CallWorkUnit("tick", nil).Await(nil); err != nil {
					return nil, err
				}
				return []time.Time{before, ctx.Now()}, nil
			},
		)
		env.StartInstance("c", "clock", nil)

		run(t, env, "c")
		time.Sleep(5 * time.Millisecond)
		assert.NoError(t, env.Engine.Dispatcher().Complete(
			context.Background(), "c", 1, nil,
		))
		run(t, env, "c")

		st := env.State("c")
		var times []time.Time
		assert.NoError(t, json.Unmarshal(st.Output, &times))
		if assert.Len(t, times, 2) {
			act, _ := st.GetAction(1)
			assert.True(t, times[0].Equal(st.CreatedAt))
			assert.True(t, times[1].Equal(act.ResolvedAt))
			assert.True(t, times[1].After(times[0]))
		}
	})
}

func TestReplayLogging(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		var buf bytes.Buffer
		deps := env.Dependencies()
		deps.Logger = slog.New(slog.NewTextHandler(&buf, nil))
		eng, err := engine.New(env.Config, deps)
		assert.NoError(t, err)
		defer func() { _ = eng.Stop() }()

		var replaying []bool
		register(t, env, "chatty",
			func(ctx *engine.Context, _ json.RawMessage) (any, error) {
				replaying = append(replaying, ctx.IsReplaying())
				ctx.Logger().Info("before call")
				if err := ctx.CallWorkUnit("a", nil).Await(nil); err != nil {
					return nil, err
				}
				replaying = append(replaying, ctx.IsReplaying())
				ctx.Logger().Info("after call")
				return nil, nil
			},
		)
		env.StartInstance("log", "chatty", nil)
		ctx := context.Background()

		_, err = eng.Run(ctx, "log")
		assert.NoError(t, err)
		assert.NoError(t, eng.Dispatcher().Complete(ctx, "log", 1, nil))
		_, err = eng.Run(ctx, "log")
		assert.NoError(t, err)

		out := buf.String()
		assert.Equal(t, 1, strings.Count(out, "before call"))
		assert.Equal(t, 1, strings.Count(out, "after call"))
		assert.Contains(t, out, "instance_id=log")
		assert.Equal(t, []bool{false, true, false}, replaying)
	})
}

func TestRetry(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		register(t, env, "persistent", engine.Typed(
			func(ctx *engine.Context, _ any) (int, error) {
				var res int
				err := ctx.Retry(3, engine.WorkUnit("flaky", nil), &res)
				return res, err
			},
		))
		ctx := context.Background()
		d := env.Engine.Dispatcher()

		env.StartInstance("ok", "persistent", nil)
		run(t, env, "ok")
		assert.NoError(t, d.Fail(ctx, "ok", 1, "one"))
		run(t, env, "ok")
		assert.NoError(t, d.Fail(ctx, "ok", 2, "two"))
		run(t, env, "ok")
		assert.NoError(t, d.Complete(ctx, "ok", 3, json.RawMessage(`5`)))
		res := run(t, env, "ok")
		assert.Equal(t, engine.OutcomeCompleted, res.Outcome)
		as.New(t).OutputEquals(res.Output, 5)

		env.StartInstance("ko", "persistent", nil)
		for corr := range api.CorrelationID(3) {
			run(t, env, "ko")
			assert.NoError(t, d.Fail(ctx, "ko", corr+1, "nope"))
		}
		res = run(t, env, "ko")
		assert.Equal(t, engine.OutcomeFailed, res.Outcome)
		assert.Equal(t, "flaky failed: nope", res.Error)
		assert.Len(t, env.State("ko").Actions, 3)
	})
}

func TestRegistry(t *testing.T) {
	reg := engine.NewRegistry()
	fn := func(*engine.Context, json.RawMessage) (any, error) {
		return nil, nil
	}

	assert.NoError(t, reg.Register("b", fn))
	assert.NoError(t, reg.Register("a", fn))
	assert.ErrorIs(t, reg.Register("a", fn), engine.ErrOrchestrationExists)
	assert.ErrorIs(t, reg.Register("", fn), engine.ErrInvalidOrchestration)
	assert.ErrorIs(t, reg.Register("c", nil), engine.ErrInvalidOrchestration)

	assert.True(t, reg.Has("a"))
	assert.False(t, reg.Has("c"))
	assert.Equal(t, []string{"a", "b"}, reg.Names())
}

func run(
	t *testing.T, env *helpers.TestEngineEnv, id api.InstanceID,
) *engine.PassResult {
	t.Helper()
	res, err := env.Engine.Run(context.Background(), id)
	assert.NoError(t, err)
	if res == nil {
		return &engine.PassResult{}
	}
	return res
}

func register(
	t *testing.T, env *helpers.TestEngineEnv, name string,
	fn engine.Orchestration,
) {
	t.Helper()
	assert.NoError(t, env.Orchestrations.Register(name, fn))
}

func appendRaw(
	t *testing.T, env *helpers.TestEngineEnv, id api.InstanceID, seq int64,
	typ api.EventType, data any,
) {
	t.Helper()
	ev, err := events.New(id, seq, typ, data)
	assert.NoError(t, err)
	assert.NoError(t, env.Store.Append(context.Background(), id, seq, ev))
}
