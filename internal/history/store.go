package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kode4food/braid/pkg/api"
)

type (
	// Store is an append-only, per-instance event log. Append succeeds only
	// when expected equals the instance's current event count, and events
	// are assigned contiguous sequence numbers starting at expected
	Store interface {
		Append(
			ctx context.Context, id api.InstanceID, expected int64,
			evs ...*api.HistoryEvent,
		) error
		Read(ctx context.Context, id api.InstanceID) ([]*api.HistoryEvent, error)
		Instances(ctx context.Context) ([]api.InstanceID, error)
	}

	// ConflictError reports that the expected sequence no longer matches
	// the stored history
	ConflictError struct {
		Expected int64
		Actual   int64
	}
)

var (
	ErrConflict    = errors.New("history sequence conflict")
	ErrEmptyAppend = errors.New("no events to append")
)

// Error implements error
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: expected %d, actual %d",
		ErrConflict, e.Expected, e.Actual)
}

// Is allows errors.Is(err, ErrConflict)
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsConflict reports whether err is a sequence conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// stamp assigns instance, sequence, and timestamp to events about to be
// appended
func stamp(id api.InstanceID, expected int64, evs []*api.HistoryEvent) {
	now := time.Now()
	for i, ev := range evs {
		ev.InstanceID = id
		ev.Sequence = expected + int64(i)
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
	}
}
