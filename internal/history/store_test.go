package history_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/braid/internal/assert/helpers"
	"github.com/kode4food/braid/internal/history"
	"github.com/kode4food/braid/pkg/api"
)

func TestStores(t *testing.T) {
	for _, b := range helpers.Backends {
		factory := b.Store
		t.Run(b.Name, func(t *testing.T) {
			t.Run("append and read", func(t *testing.T) {
				testAppendRead(t, factory(t))
			})
			t.Run("conflict", func(t *testing.T) {
				testConflict(t, factory(t))
			})
			t.Run("unknown instance", func(t *testing.T) {
				testUnknown(t, factory(t))
			})
			t.Run("instances", func(t *testing.T) {
				testInstances(t, factory(t))
			})
			t.Run("child instances", func(t *testing.T) {
				testChildInstances(t, factory(t))
			})
			t.Run("empty append", func(t *testing.T) {
				err := factory(t).Append(context.Background(), "x", 0)
				assert.ErrorIs(t, err, history.ErrEmptyAppend)
			})
		})
	}
}

func testAppendRead(t *testing.T, store history.Store) {
	ctx := context.Background()

	err := store.Append(ctx, "inst-1", 0,
		event(api.EventTypeOrchestratorStarted, `{"name":"calc"}`),
	)
	require.NoError(t, err)

	err = store.Append(ctx, "inst-1", 1,
		event(api.EventTypeTaskScheduled, `{"correlation_id":1}`),
		event(api.EventTypeTaskScheduled, `{"correlation_id":2}`),
	)
	require.NoError(t, err)

	evs, err := store.Read(ctx, "inst-1")
	require.NoError(t, err)
	require.Len(t, evs, 3)
	for i, ev := range evs {
		assert.Equal(t, int64(i), ev.Sequence)
		assert.Equal(t, api.InstanceID("inst-1"), ev.InstanceID)
		assert.False(t, ev.Timestamp.IsZero())
	}
	assert.Equal(t, api.EventTypeOrchestratorStarted, evs[0].Type)
	assert.JSONEq(t, `{"correlation_id":2}`, string(evs[2].Data))
}

func testConflict(t *testing.T, store history.Store) {
	ctx := context.Background()

	err := store.Append(ctx, "inst-1", 0,
		event(api.EventTypeOrchestratorStarted, `{}`),
	)
	require.NoError(t, err)

	err = store.Append(ctx, "inst-1", 0,
		event(api.EventTypeOrchestratorStarted, `{}`),
	)
	assert.True(t, history.IsConflict(err))

	var conflict *history.ConflictError
	if assert.ErrorAs(t, err, &conflict) {
		assert.Equal(t, int64(1), conflict.Actual)
	}

	evs, err := store.Read(ctx, "inst-1")
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func testUnknown(t *testing.T, store history.Store) {
	evs, err := store.Read(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Empty(t, evs)
}

func testInstances(t *testing.T, store history.Store) {
	ctx := context.Background()
	for _, id := range []api.InstanceID{"b", "a", "c"} {
		err := store.Append(ctx, id, 0,
			event(api.EventTypeOrchestratorStarted, `{}`),
		)
		require.NoError(t, err)
	}
	err := store.Append(ctx, "a", 1,
		event(api.EventTypeTerminated, `{}`),
	)
	require.NoError(t, err)

	ids, err := store.Instances(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []api.InstanceID{"a", "b", "c"}, ids)
}

func testChildInstances(t *testing.T, store history.Store) {
	ctx := context.Background()
	for _, id := range []api.InstanceID{"p", "p:1", "p:1:2", "p:10"} {
		err := store.Append(ctx, id, 0,
			event(api.EventTypeOrchestratorStarted, `{}`),
		)
		require.NoError(t, err)
	}

	ids, err := store.Instances(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []api.InstanceID{"p", "p:1", "p:10", "p:1:2"}, ids)

	evs, err := store.Read(ctx, "p:1:2")
	assert.NoError(t, err)
	if assert.Len(t, evs, 1) {
		assert.Equal(t, api.InstanceID("p:1:2"), evs[0].InstanceID)
	}
}

func event(typ api.EventType, data string) *api.HistoryEvent {
	return &api.HistoryEvent{
		Type: typ,
		Data: json.RawMessage(data),
	}
}

func TestRedisUnavailable(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	_, err := history.NewRedisStore(context.Background(),
		history.RedisConfig{Addr: addr},
	)
	assert.ErrorIs(t, err, history.ErrRedisUnavailable)
}
