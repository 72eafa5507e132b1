package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kode4food/braid/internal/engine"
	"github.com/kode4food/braid/internal/history"
	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/events"
	"github.com/kode4food/braid/pkg/log"
)

// Client starts orchestration instances and observes them through their
// histories. It never runs orchestration code itself: appending the
// OrchestratorStarted event is what wakes the engine
type Client struct {
	store          history.Store
	orchestrations *engine.Registry
	pollInterval   time.Duration
	appendRetries  int
}

const (
	DefaultPollInterval  = 50 * time.Millisecond
	DefaultAppendRetries = 16
)

var (
	ErrInvalidInstanceID = errors.New("invalid instance ID")
	ErrInvalidInput      = errors.New("invalid orchestration input")
	ErrTooManyConflicts  = errors.New("too many append conflicts")
)

// New creates a Client. The store should be the engine's publishing store
// so that started instances are picked up immediately
func New(store history.Store, orchestrations *engine.Registry) *Client {
	return &Client{
		store:          store,
		orchestrations: orchestrations,
		pollInterval:   DefaultPollInterval,
		appendRetries:  DefaultAppendRetries,
	}
}

// WithPollInterval returns a copy of the Client that polls at the given
// interval in WaitForCompletion
func (c *Client) WithPollInterval(d time.Duration) *Client {
	res := *c
	res.pollInterval = d
	return &res
}

// Start creates a new instance of the named orchestration with a generated
// ID. It returns as soon as the instance is recorded
func (c *Client) Start(
	ctx context.Context, name string, input any,
) (api.InstanceID, error) {
	id := api.InstanceID(uuid.New().String())
	if err := c.StartWithID(ctx, id, name, input); err != nil {
		return "", err
	}
	return id, nil
}

// StartWithID creates a new instance under a caller-chosen ID. IDs shaped
// like sub-orchestration IDs are reserved for the engine
func (c *Client) StartWithID(
	ctx context.Context, id api.InstanceID, name string, input any,
) error {
	if id == "" || api.SanitizeID(id) != id || api.IsChildID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidInstanceID, id)
	}
	if !c.orchestrations.Has(name) {
		return fmt.Errorf("%w: %s", engine.ErrOrchestrationNotFound, name)
	}
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	ev, err := events.New(id, 0, api.EventTypeOrchestratorStarted,
		api.OrchestratorStartedEvent{Name: name, Input: data},
	)
	if err != nil {
		return err
	}
	if err := c.store.Append(ctx, id, 0, ev); err != nil {
		if history.IsConflict(err) {
			return fmt.Errorf("%w: %s", api.ErrInstanceExists, id)
		}
		return err
	}

	slog.Info("Instance started",
		log.InstanceID(id),
		log.Orchestration(name))
	return nil
}

// GetStatus returns the current status of an instance. It only reads
func (c *Client) GetStatus(
	ctx context.Context, id api.InstanceID,
) (*api.InstanceStatusResponse, error) {
	st, err := c.state(ctx, id)
	if err != nil {
		return nil, err
	}
	return api.NewInstanceStatusResponse(st), nil
}

// GetHistory returns the recorded history of an instance
func (c *Client) GetHistory(
	ctx context.Context, id api.InstanceID,
) ([]*api.HistoryEvent, error) {
	evs, err := c.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
	}
	return evs, nil
}

// Terminate cancels a running instance. Work already dispatched is not
// interrupted; its results are ignored when they arrive
func (c *Client) Terminate(
	ctx context.Context, id api.InstanceID, reason string,
) error {
	for range c.appendRetries {
		st, err := c.state(ctx, id)
		if err != nil {
			return err
		}
		if st.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", api.ErrInstanceTerminal, id)
		}

		ev, err := events.New(id, st.NextSequence, api.EventTypeTerminated,
			api.TerminatedEvent{Reason: reason},
		)
		if err != nil {
			return err
		}
		err = c.store.Append(ctx, id, st.NextSequence, ev)
		if history.IsConflict(err) {
			continue
		}
		if err != nil {
			return err
		}

		slog.Info("Instance terminated",
			log.InstanceID(id),
			slog.String("reason", reason))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTooManyConflicts, id)
}

// WaitForCompletion polls an instance until it reaches a terminal status
// or the context ends
func (c *Client) WaitForCompletion(
	ctx context.Context, id api.InstanceID,
) (*api.InstanceStatusResponse, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		st, err := c.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if st.Status.IsTerminal() {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) state(
	ctx context.Context, id api.InstanceID,
) (*api.InstanceState, error) {
	evs, err := c.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := events.Fold(evs)
	if err != nil {
		if errors.Is(err, api.ErrInstanceNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
		}
		return nil, err
	}
	return st, nil
}
