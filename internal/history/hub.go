package history

import (
	"sync"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/braid/pkg/api"
)

// Hub fans appended history events out to any number of consumers
type Hub struct {
	topic     topic.Topic[*api.HistoryEvent]
	prod      topic.Producer[*api.HistoryEvent]
	closeOnce sync.Once
}

// NewHub creates an event hub
func NewHub() *Hub {
	t := caravan.NewTopic[*api.HistoryEvent]()
	return &Hub{
		topic: t,
		prod:  t.NewProducer(),
	}
}

// Publish sends events to every consumer
func (h *Hub) Publish(evs ...*api.HistoryEvent) {
	for _, ev := range evs {
		message.Send(h.prod, ev)
	}
}

// NewConsumer returns a consumer of published events. The caller must
// close it when done
func (h *Hub) NewConsumer() topic.Consumer[*api.HistoryEvent] {
	return h.topic.NewConsumer()
}

// Close stops publishing
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.prod.Close()
	})
}
