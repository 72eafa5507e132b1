package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/braid/internal/history"
	"github.com/kode4food/braid/pkg/api"
)

func TestPublishAnnouncesAppends(t *testing.T) {
	hub := history.NewHub()
	defer hub.Close()

	cons := hub.NewConsumer()
	defer cons.Close()

	store := history.Publish(history.NewMemoryStore(), hub)
	ctx := context.Background()

	err := store.Append(ctx, "inst", 0,
		event(api.EventTypeOrchestratorStarted, `{}`),
	)
	require.NoError(t, err)

	select {
	case ev := <-cons.Receive():
		assert.Equal(t, api.InstanceID("inst"), ev.InstanceID)
		assert.Equal(t, api.EventTypeOrchestratorStarted, ev.Type)
		assert.Equal(t, int64(0), ev.Sequence)
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}
}

func TestPublishSkipsConflicts(t *testing.T) {
	hub := history.NewHub()
	defer hub.Close()

	cons := hub.NewConsumer()
	defer cons.Close()

	store := history.Publish(history.NewMemoryStore(), hub)
	err := store.Append(context.Background(), "inst", 3,
		event(api.EventTypeOrchestratorStarted, `{}`),
	)
	assert.True(t, history.IsConflict(err))

	select {
	case ev := <-cons.Receive():
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
