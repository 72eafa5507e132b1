package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kode4food/braid/internal/history"
	"github.com/kode4food/braid/internal/metrics"
	"github.com/kode4food/braid/internal/queue"
	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/events"
	"github.com/kode4food/braid/pkg/log"
)

type (
	// Dispatcher runs scheduled work units out of band and records their
	// results in history. Appending a result wakes the owning instance
	// through the history hub
	Dispatcher struct {
		store   history.Store
		units   *Registry
		queue   *queue.Queue
		metrics *metrics.Metrics
		cfg     Config
	}

	// Config controls dispatcher concurrency and timeouts
	Config struct {
		Workers        int
		Timeout        time.Duration
		ResolveTimeout time.Duration
		AppendRetries  int
	}

	// Request identifies one scheduled work unit execution
	Request struct {
		InstanceID    api.InstanceID
		CorrelationID api.CorrelationID
		Name          string
		Input         json.RawMessage
	}
)

const (
	DefaultWorkers        = 8
	DefaultTimeout        = 30 * time.Second
	DefaultResolveTimeout = 10 * time.Second
	DefaultAppendRetries  = 16
)

var (
	ErrWorkUnitNotFound  = errors.New("work unit not found")
	ErrWorkUnitPanicked  = errors.New("work unit panicked")
	ErrActionNotFound    = errors.New("action not found")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
	ErrTooManyConflicts  = errors.New("too many append conflicts")
)

// New creates a Dispatcher. Call Start before results are expected
func New(
	store history.Store, units *Registry, m *metrics.Metrics, cfg Config,
) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = DefaultResolveTimeout
	}
	if cfg.AppendRetries <= 0 {
		cfg.AppendRetries = DefaultAppendRetries
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Dispatcher{
		store:   store,
		units:   units,
		queue:   queue.New("dispatch", cfg.Workers),
		metrics: m,
		cfg:     cfg,
	}
}

// Start begins executing scheduled work units
func (d *Dispatcher) Start() {
	d.queue.Start()
}

// Stop waits for running work units to finish. Queued work is dropped and
// will be re-dispatched by recovery
func (d *Dispatcher) Stop() {
	d.queue.Stop()
}

// Schedule acknowledges a work unit request by queueing it for execution
func (d *Dispatcher) Schedule(_ context.Context, req Request) error {
	err := d.queue.Enqueue(func() {
		d.execute(req)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatcherStopped, err)
	}
	slog.Debug("Work unit scheduled",
		log.InstanceID(req.InstanceID),
		log.CorrelationID(req.CorrelationID),
		log.WorkUnit(req.Name))
	return nil
}

// Complete records a successful result for a scheduled action. It is a
// no-op if the action is already resolved or the instance is terminal
func (d *Dispatcher) Complete(
	ctx context.Context, id api.InstanceID, corr api.CorrelationID,
	output json.RawMessage,
) error {
	return d.resolve(ctx, id, corr, api.ActionCompleted, output, "")
}

// Fail records a failure for a scheduled action. It is a no-op if the
// action is already resolved or the instance is terminal
func (d *Dispatcher) Fail(
	ctx context.Context, id api.InstanceID, corr api.CorrelationID,
	msg string,
) error {
	return d.resolve(ctx, id, corr, api.ActionFailed, nil, msg)
}

func (d *Dispatcher) execute(req Request) {
	start := time.Now()
	out, err := d.invoke(req)
	d.metrics.ObserveWork(req.Name, err, start)

	ctx, cancel := context.WithTimeout(
		context.Background(), d.cfg.ResolveTimeout,
	)
	defer cancel()

	if err != nil {
		slog.Warn("Work unit failed",
			log.InstanceID(req.InstanceID),
			log.CorrelationID(req.CorrelationID),
			log.WorkUnit(req.Name),
			log.Error(err))
		err = d.Fail(ctx, req.InstanceID, req.CorrelationID, err.Error())
	} else {
		err = d.Complete(ctx, req.InstanceID, req.CorrelationID, out)
	}
	if err != nil {
		slog.Error("Failed to record work unit result",
			log.InstanceID(req.InstanceID),
			log.CorrelationID(req.CorrelationID),
			log.WorkUnit(req.Name),
			log.Error(err))
	}
}

func (d *Dispatcher) invoke(req Request) (out json.RawMessage, err error) {
	fn, ok := d.units.Get(req.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkUnitNotFound, req.Name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkUnitPanicked, r)
		}
	}()

	res, err := fn(ctx, req.Input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (d *Dispatcher) resolve(
	ctx context.Context, id api.InstanceID, corr api.CorrelationID,
	status api.ActionStatus, out json.RawMessage, msg string,
) error {
	for range d.cfg.AppendRetries {
		evs, err := d.store.Read(ctx, id)
		if err != nil {
			return err
		}
		st, err := events.Fold(evs)
		if err != nil {
			return err
		}
		if st.Status.IsTerminal() {
			slog.Debug("Ignoring result for terminal instance",
				log.InstanceID(id),
				log.CorrelationID(corr))
			return nil
		}
		act, ok := st.GetAction(corr)
		if !ok {
			return fmt.Errorf("%w: %s/%d", ErrActionNotFound, id, corr)
		}
		if act.Status.IsResolved() {
			return nil
		}

		typ, data := resolution(act.Kind, status, corr, out, msg)
		ev, err := events.New(id, st.NextSequence, typ, data)
		if err != nil {
			return err
		}
		err = d.store.Append(ctx, id, st.NextSequence, ev)
		if err == nil {
			return nil
		}
		if !history.IsConflict(err) {
			return err
		}
		d.metrics.Conflict("dispatcher")
	}
	return fmt.Errorf("%w: %s/%d", ErrTooManyConflicts, id, corr)
}

func resolution(
	kind api.ActionKind, status api.ActionStatus, corr api.CorrelationID,
	out json.RawMessage, msg string,
) (api.EventType, any) {
	switch {
	case kind == api.ActionTask && status == api.ActionCompleted:
		return api.EventTypeTaskCompleted, api.TaskCompletedEvent{
			CorrelationID: corr,
			Output:        out,
		}
	case kind == api.ActionTask:
		return api.EventTypeTaskFailed, api.TaskFailedEvent{
			CorrelationID: corr,
			Error:         msg,
		}
	case status == api.ActionCompleted:
		return api.EventTypeSubOrchestrationCompleted,
			api.SubOrchestrationCompletedEvent{
				CorrelationID: corr,
				Output:        out,
			}
	default:
		return api.EventTypeSubOrchestrationFailed,
			api.SubOrchestrationFailedEvent{
				CorrelationID: corr,
				Error:         msg,
			}
	}
}
