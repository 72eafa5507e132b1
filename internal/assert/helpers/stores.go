package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kode4food/timebox"
	"github.com/stretchr/testify/assert"

	"github.com/kode4food/braid/internal/config"
	"github.com/kode4food/braid/internal/history"
)

// StoreFactory creates an empty history store for one test
type StoreFactory func(t *testing.T) history.Store

// Backends are the history backends engine tests run against
var Backends = []struct {
	Name  string
	Store StoreFactory
}{
	{config.BackendMemory, NewMemoryStore},
	{config.BackendRedis, NewRedisStore},
	{config.BackendTimebox, NewTimeboxStore},
}

// NewMemoryStore creates an in-process history store
func NewMemoryStore(*testing.T) history.Store {
	return history.NewMemoryStore()
}

// NewRedisStore creates a Redis history store backed by miniredis
func NewRedisStore(t *testing.T) history.Store {
	t.Helper()
	server := miniredis.RunT(t)
	store, err := history.NewRedisStore(context.Background(),
		history.RedisConfig{
			Addr:   server.Addr(),
			Prefix: "test",
		},
	)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// NewTimeboxStore creates a timebox history store backed by miniredis
func NewTimeboxStore(t *testing.T) history.Store {
	t.Helper()
	server := miniredis.RunT(t)

	tb, err := timebox.NewTimebox(timebox.Config{
		MaxRetries: timebox.DefaultMaxRetries,
		CacheSize:  100,
		Workers:    true,
	})
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	t.Cleanup(func() { _ = tb.Close() })

	store, err := tb.NewStore(timebox.StoreConfig{
		Addr:         server.Addr(),
		Prefix:       "test",
		WorkerCount:  1,
		MaxQueueSize: 16,
		SaveTimeout:  time.Second,
	})
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return history.NewTimeboxStore(store)
}

// WithEachBackend runs fn as a subtest once per history backend
func WithEachBackend(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	for _, b := range Backends {
		t.Run(b.Name, func(t *testing.T) {
			env := NewTestEngineWithStore(t, b.Store(t))
			defer env.Cleanup()
			fn(env)
		})
	}
}
