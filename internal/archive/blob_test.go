package archive_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/braid/internal/archive"
	as "github.com/kode4food/braid/internal/assert"
	"github.com/kode4food/braid/internal/assert/helpers"
	"github.com/kode4food/braid/internal/assert/wait"
	"github.com/kode4food/braid/internal/engine"
	"github.com/kode4food/braid/pkg/api"
)

func TestBlobArchive(t *testing.T) {
	ctx := context.Background()

	a, err := archive.NewBlobArchive(ctx, "mem://", "done")
	assert.NoError(t, err)
	defer func() { _ = a.Close() }()

	t.Run("Load returns not found for missing instance", func(t *testing.T) {
		_, err := a.Load(ctx, "missing")
		assert.ErrorIs(t, err, archive.ErrArchiveNotFound)
	})

	t.Run("Archive and Load round-trip", func(t *testing.T) {
		evs := []*api.HistoryEvent{
			{InstanceID: "p:1", Type: api.EventTypeOrchestratorStarted},
			{InstanceID: "p:1", Type: api.EventTypeOrchestratorCompleted,
				Sequence: 1},
		}
		assert.NoError(t, a.Archive(ctx, "p:1", evs))

		rec, err := a.Load(ctx, "p:1")
		assert.NoError(t, err)
		assert.Equal(t, api.InstanceID("p:1"), rec.ID)
		assert.False(t, rec.ArchivedAt.IsZero())
		as.New(t).HistoryTypes(rec.Events,
			api.EventTypeOrchestratorStarted,
			api.EventTypeOrchestratorCompleted,
		)
	})
}

func TestInvalidBucket(t *testing.T) {
	_, err := archive.NewBlobArchive(context.Background(), "nope://x", "")
	assert.Error(t, err)
}

func TestEngineArchivesFinishedInstances(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		ctx := context.Background()
		a, err := archive.NewBlobArchive(ctx, "mem://", "")
		assert.NoError(t, err)
		defer func() { _ = a.Close() }()

		assert.NoError(t, env.Orchestrations.Register("hello", engine.Typed(
			func(_ *engine.Context, name string) (string, error) {
				return "hello " + name, nil
			},
		)))

		deps := env.Dependencies()
		deps.Archive = a
		eng, err := engine.New(env.Config, deps)
		assert.NoError(t, err)
		defer func() { _ = eng.Stop() }()

		consumer := env.Hub.NewConsumer()
		defer consumer.Close()
		eng.Start()
		env.StartInstance("greet", "hello", "world")

		wait.On(t, consumer).ForEvent(wait.InstanceEvent("greet",
			api.EventTypeOrchestratorCompleted,
		))
		as.New(t).Eventually(func() bool {
			_, err := a.Load(ctx, "greet")
			return err == nil
		}, wait.DefaultTimeout, "instance never archived")

		rec, err := a.Load(ctx, "greet")
		if assert.NoError(t, err) {
			assert.Len(t, rec.Events, 2)
		}
	})
}
