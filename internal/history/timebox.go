package history

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/kode4food/timebox"

	"github.com/kode4food/braid/pkg/api"
)

// TimeboxStore adapts a timebox event store so each instance is one
// aggregate
type TimeboxStore struct {
	store *timebox.Store
}

const InstancePrefix = "instance"

var _ Store = (*TimeboxStore)(nil)

// NewTimeboxStore wraps an existing timebox store
func NewTimeboxStore(store *timebox.Store) *TimeboxStore {
	return &TimeboxStore{store: store}
}

// InstanceKey returns the aggregate ID for an instance
func InstanceKey[T ~string](id T) timebox.AggregateID {
	return timebox.NewAggregateID(InstancePrefix, timebox.ID(id))
}

// Append implements Store
func (s *TimeboxStore) Append(
	ctx context.Context, id api.InstanceID, expected int64,
	evs ...*api.HistoryEvent,
) error {
	if len(evs) == 0 {
		return ErrEmptyAppend
	}
	stamp(id, expected, evs)

	key := InstanceKey(id)
	tevs := make([]*timebox.Event, len(evs))
	for i, ev := range evs {
		tevs[i] = &timebox.Event{
			Timestamp:   ev.Timestamp,
			AggregateID: key,
			Sequence:    ev.Sequence,
			Type:        timebox.EventType(ev.Type),
			Data:        ev.Data,
		}
	}

	err := s.store.AppendEvents(ctx, key, expected, tevs)
	if err == nil {
		return nil
	}
	conflict := new(timebox.VersionConflictError)
	if errors.As(err, &conflict) {
		return &ConflictError{
			Expected: expected,
			Actual:   conflict.ActualSequence,
		}
	}
	return err
}

// Read implements Store
func (s *TimeboxStore) Read(
	ctx context.Context, id api.InstanceID,
) ([]*api.HistoryEvent, error) {
	tevs, err := s.store.GetEvents(ctx, InstanceKey(id), 0)
	if err != nil {
		return nil, err
	}
	res := make([]*api.HistoryEvent, len(tevs))
	for i, ev := range tevs {
		res[i] = &api.HistoryEvent{
			InstanceID: id,
			Type:       api.EventType(ev.Type),
			Sequence:   ev.Sequence,
			Timestamp:  ev.Timestamp,
			Data:       ev.Data,
		}
	}
	return res, nil
}

// Instances implements Store
func (s *TimeboxStore) Instances(
	ctx context.Context,
) ([]api.InstanceID, error) {
	ids, err := s.store.ListAggregates(ctx, InstanceKey("*"))
	if err != nil {
		return nil, err
	}
	var res []api.InstanceID
	for _, id := range ids {
		if len(id) < 2 || id[0] != InstancePrefix {
			continue
		}
		res = append(res, instanceID(id[1:]))
	}
	slices.Sort(res)
	return slices.Compact(res), nil
}

// instanceID rejoins the parts timebox split a key into. Sub-orchestration
// IDs contain the separator, so every part after the prefix belongs to the
// instance ID
func instanceID(parts []timebox.ID) api.InstanceID {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = string(p)
	}
	return api.InstanceID(strings.Join(strs, api.ChildIDSeparator))
}
