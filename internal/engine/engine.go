package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/braid/internal/config"
	"github.com/kode4food/braid/internal/dispatch"
	"github.com/kode4food/braid/internal/history"
	"github.com/kode4food/braid/internal/metrics"
	"github.com/kode4food/braid/internal/queue"
	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/log"
	"github.com/kode4food/braid/pkg/util"
)

type (
	// Engine replays orchestration instances against their histories and
	// drives them to completion
	Engine struct {
		ctx            context.Context
		cancel         context.CancelFunc
		store          history.Store
		consumer       EventConsumer
		orchestrations *Registry
		dispatcher     *dispatch.Dispatcher
		archive        Archiver
		metrics        *metrics.Metrics
		logger         *slog.Logger
		passes         *queue.Queue
		locks          *instanceLocks
		config         *config.Config
		pending        util.Set[api.InstanceID]
		watermarks     map[api.InstanceID]int64
		stopErr        error
		stopOnce       sync.Once
		mu             sync.Mutex
		wg             sync.WaitGroup
	}

	// Dependencies are the collaborators an Engine is built from
	Dependencies struct {
		Store          history.Store
		Hub            *history.Hub
		Orchestrations *Registry
		WorkUnits      *dispatch.Registry
		Archive        Archiver
		Metrics        *metrics.Metrics
		Logger         *slog.Logger
	}

	// Archiver receives the complete history of instances that reach a
	// terminal status
	Archiver interface {
		Archive(
			ctx context.Context, id api.InstanceID, evs []*api.HistoryEvent,
		) error
	}

	// EventConsumer consumes events from the history hub
	EventConsumer = topic.Consumer[*api.HistoryEvent]
)

const startupTimeout = 30 * time.Second

// wakeEvents are the appended events that require another pass
var wakeEvents = util.SetOf(
	api.EventTypeOrchestratorStarted,
	api.EventTypeTaskCompleted,
	api.EventTypeTaskFailed,
	api.EventTypeSubOrchestrationCompleted,
	api.EventTypeSubOrchestrationFailed,
	api.EventTypeTerminated,
)

// New creates an Engine. The provided store is wrapped so that every append
// is published on the hub; co-located components should use Store()
func New(cfg *config.Config, deps Dependencies) (*Engine, error) {
	if deps.Store == nil || deps.Hub == nil || deps.Orchestrations == nil ||
		deps.WorkUnits == nil {
		return nil, ErrMissingDependency
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Discard()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	store := history.Publish(deps.Store, deps.Hub)
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		ctx:            ctx,
		cancel:         cancel,
		store:          store,
		consumer:       deps.Hub.NewConsumer(),
		orchestrations: deps.Orchestrations,
		dispatcher: dispatch.New(store, deps.WorkUnits, deps.Metrics,
			dispatch.Config{
				Workers:       cfg.WorkWorkers,
				Timeout:       cfg.WorkTimeout,
				AppendRetries: cfg.AppendRetries,
			},
		),
		archive:    deps.Archive,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		passes:     queue.New("passes", cfg.PassWorkers),
		locks:      newInstanceLocks(),
		config:     cfg,
		pending:    util.Set[api.InstanceID]{},
		watermarks: map[api.InstanceID]int64{},
	}, nil
}

// Start recovers in-flight instances and begins processing history events
func (e *Engine) Start() {
	slog.Info("Engine starting")

	e.dispatcher.Start()
	e.passes.Start()

	ctx, cancel := context.WithTimeout(e.ctx, startupTimeout)
	defer cancel()
	if err := e.RecoverInstances(ctx); err != nil {
		slog.Error("Failed to recover instances",
			log.Error(err))
	}

	e.wg.Go(e.eventLoop)
	e.wg.Go(e.sweepLoop)
}

// Stop gracefully shuts down the engine. Work still queued is dropped and
// picked up again by recovery on the next start
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		e.stopErr = e.stop()
	})
	return e.stopErr
}

func (e *Engine) stop() error {
	e.cancel()
	defer e.consumer.Close()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		e.passes.Stop()
		e.dispatcher.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Engine stopped")
		return nil
	case <-time.After(e.config.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

// Store returns the publishing history store used by the engine
func (e *Engine) Store() history.Store {
	return e.store
}

// Dispatcher returns the work dispatcher owned by the engine
func (e *Engine) Dispatcher() *dispatch.Dispatcher {
	return e.dispatcher
}

// Orchestrations returns the orchestration registry
func (e *Engine) Orchestrations() *Registry {
	return e.orchestrations
}

// Signal requests a replay pass for an instance. Signals for an instance
// that already has a pass queued are coalesced
func (e *Engine) Signal(id api.InstanceID) {
	e.mu.Lock()
	if e.pending.Contains(id) {
		e.mu.Unlock()
		return
	}
	e.pending.Add(id)
	e.mu.Unlock()

	err := e.passes.Enqueue(func() {
		e.mu.Lock()
		e.pending.Remove(id)
		e.mu.Unlock()

		ctx, cancel := context.WithTimeout(e.ctx, e.config.PassTimeout)
		defer cancel()
		if _, err := e.Run(ctx, id); err != nil {
			slog.Error("Replay pass failed",
				log.InstanceID(id),
				log.Error(err))
		}
	})
	if err != nil {
		e.mu.Lock()
		e.pending.Remove(id)
		e.mu.Unlock()
	}
}

func (e *Engine) eventLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-e.consumer.Receive():
			if !ok {
				return
			}
			if wakeEvents.Contains(ev.Type) {
				e.Signal(ev.InstanceID)
			}
		}
	}
}

func (e *Engine) watermark(st *api.InstanceState) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.watermarks[st.ID]; ok {
		return w
	}
	return st.PassSequence + 1
}

func (e *Engine) setWatermark(id api.InstanceID, seq int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.watermarks[id] = seq
}

func (e *Engine) clearWatermark(id api.InstanceID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.watermarks, id)
}
