package wait

import (
	"testing"
	"time"

	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/util"
)

type (
	Wait struct {
		t        *testing.T
		consumer topic.Consumer[*api.HistoryEvent]
		timeout  time.Duration
	}

	EventFilter func(*api.HistoryEvent) bool
)

const DefaultTimeout = time.Second * 5

func On(t *testing.T, consumer topic.Consumer[*api.HistoryEvent]) *Wait {
	return &Wait{
		t:        t,
		consumer: consumer,
		timeout:  DefaultTimeout,
	}
}

func (w *Wait) WithTimeout(timeout time.Duration) *Wait {
	res := *w
	res.timeout = timeout
	return &res
}

// ForEvents waits for matching events from the consumer
func (w *Wait) ForEvents(count int, filter EventFilter) {
	w.t.Helper()

	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()

	for seen := 0; seen < count; {
		select {
		case ev, ok := <-w.consumer.Receive():
			if !ok {
				w.t.Fatalf(
					"event consumer closed before receiving %d events", count,
				)
			}
			if filter(ev) {
				seen++
			}
		case <-deadline.C:
			w.t.Fatalf("timeout waiting for %d events", count)
		}
	}
}

// ForEvent waits for a single matching event
func (w *Wait) ForEvent(filter EventFilter) {
	w.ForEvents(1, filter)
}

// And composes event filters and returns true when all match
func And(filters ...EventFilter) EventFilter {
	return func(ev *api.HistoryEvent) bool {
		for _, filter := range filters {
			if !filter(ev) {
				return false
			}
		}
		return true
	}
}

// Types creates a filter for the given event types
func Types(eventTypes ...api.EventType) EventFilter {
	lookup := util.SetOf(eventTypes...)
	return func(ev *api.HistoryEvent) bool {
		return lookup.Contains(ev.Type)
	}
}

// Instance creates a filter for events of one instance
func Instance(id api.InstanceID) EventFilter {
	return func(ev *api.HistoryEvent) bool {
		return ev.InstanceID == id
	}
}

// InstanceEvent matches events of one instance with the given types
func InstanceEvent(
	id api.InstanceID, eventTypes ...api.EventType,
) EventFilter {
	return And(Instance(id), Types(eventTypes...))
}
