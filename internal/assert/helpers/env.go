package helpers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/braid/internal/config"
	"github.com/kode4food/braid/internal/dispatch"
	"github.com/kode4food/braid/internal/engine"
	"github.com/kode4food/braid/internal/history"
	"github.com/kode4food/braid/internal/metrics"
	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/events"
)

// TestEngineEnv holds all the components needed for engine testing
type TestEngineEnv struct {
	Engine         *engine.Engine
	Store          history.Store
	Hub            *history.Hub
	Orchestrations *engine.Registry
	WorkUnits      *dispatch.Registry
	Config         *config.Config
	Cleanup        func()
	t              *testing.T
}

const defaultStoreTimeout = 5 * time.Second

// NewTestConfig creates a configuration with short timeouts and no
// background sweeps
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.HistoryBackend = config.BackendMemory
	cfg.PassWorkers = 4
	cfg.PassTimeout = 5 * time.Second
	cfg.WorkWorkers = 4
	cfg.WorkTimeout = 5 * time.Second
	cfg.RecoveryInterval = time.Hour
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// NewTestEngine creates an engine over an in-memory history store with
// empty registries. Nothing is started
func NewTestEngine(t *testing.T) *TestEngineEnv {
	t.Helper()
	return NewTestEngineWithStore(t, history.NewMemoryStore())
}

// NewTestEngineWithStore creates an engine over the provided history store
// with empty registries. Nothing is started
func NewTestEngineWithStore(
	t *testing.T, store history.Store,
) *TestEngineEnv {
	t.Helper()

	env := &TestEngineEnv{
		Store:          store,
		Hub:            history.NewHub(),
		Orchestrations: engine.NewRegistry(),
		WorkUnits:      dispatch.NewRegistry(),
		Config:         NewTestConfig(),
		t:              t,
	}
	env.Engine = env.NewEngineInstance()
	env.Cleanup = func() {
		_ = env.Engine.Stop()
		env.Hub.Close()
	}
	return env
}

// NewEngineInstance creates a new engine sharing the same store, hub, and
// registries. Used to simulate a process restart after a crash
func (e *TestEngineEnv) NewEngineInstance() *engine.Engine {
	e.t.Helper()
	eng, err := engine.New(e.Config, e.Dependencies())
	assert.NoError(e.t, err)
	return eng
}

// Dependencies returns the engine dependencies backed by this environment
func (e *TestEngineEnv) Dependencies() engine.Dependencies {
	return engine.Dependencies{
		Store:          e.Store,
		Hub:            e.Hub,
		Orchestrations: e.Orchestrations,
		WorkUnits:      e.WorkUnits,
		Metrics:        metrics.Discard(),
	}
}

// Restart replaces the environment's engine with a fresh instance. The
// previous engine must already be stopped
func (e *TestEngineEnv) Restart() *engine.Engine {
	e.t.Helper()
	e.Engine = e.NewEngineInstance()
	e.Engine.Start()
	return e.Engine
}

// StartInstance seeds a new instance by appending its OrchestratorStarted
// event through the engine's publishing store
func (e *TestEngineEnv) StartInstance(
	id api.InstanceID, name string, input any,
) {
	e.t.Helper()
	data, err := json.Marshal(input)
	assert.NoError(e.t, err)

	ev, err := events.New(id, 0, api.EventTypeOrchestratorStarted,
		api.OrchestratorStartedEvent{Name: name, Input: data},
	)
	assert.NoError(e.t, err)

	ctx, cancel := context.WithTimeout(
		context.Background(), defaultStoreTimeout,
	)
	defer cancel()
	assert.NoError(e.t, e.Engine.Store().Append(ctx, id, 0, ev))
}

// History returns the recorded history of an instance
func (e *TestEngineEnv) History(id api.InstanceID) []*api.HistoryEvent {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(
		context.Background(), defaultStoreTimeout,
	)
	defer cancel()
	evs, err := e.Store.Read(ctx, id)
	assert.NoError(e.t, err)
	return evs
}

// State folds the recorded history of an instance
func (e *TestEngineEnv) State(id api.InstanceID) *api.InstanceState {
	e.t.Helper()
	st, err := events.Fold(e.History(id))
	assert.NoError(e.t, err)
	return st
}

// Status returns the client view of an instance
func (e *TestEngineEnv) Status(id api.InstanceID) *api.InstanceStatusResponse {
	e.t.Helper()
	st := e.State(id)
	if st == nil {
		return nil
	}
	return api.NewInstanceStatusResponse(st)
}

// WithTestEnv creates a test engine environment, executes the provided
// function with it, and ensures cleanup happens automatically
func WithTestEnv(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	testEnv := NewTestEngine(t)
	defer testEnv.Cleanup()
	fn(testEnv)
}

// WithStartedEnv is WithTestEnv with the engine already started
func WithStartedEnv(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	WithTestEnv(t, func(env *TestEngineEnv) {
		env.Engine.Start()
		fn(env)
	})
}
