package history

import (
	"context"

	"github.com/kode4food/braid/pkg/api"
)

type publishing struct {
	Store
	hub *Hub
}

// Publish decorates a Store so every successful Append is announced on the
// provided Hub
func Publish(store Store, hub *Hub) Store {
	return &publishing{
		Store: store,
		hub:   hub,
	}
}

// Append implements Store
func (p *publishing) Append(
	ctx context.Context, id api.InstanceID, expected int64,
	evs ...*api.HistoryEvent,
) error {
	if err := p.Store.Append(ctx, id, expected, evs...); err != nil {
		return err
	}
	p.hub.Publish(evs...)
	return nil
}
