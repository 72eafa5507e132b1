package engine

import (
	"encoding/json"
	"fmt"

	"github.com/kode4food/braid/pkg/api"
)

// FanOut is a set of actions scheduled together. Join fans their results
// back in, in call order
type FanOut struct {
	futures []*Future
}

// Futures returns the member futures in call order
func (f *FanOut) Futures() []*Future {
	return f.futures
}

// Len returns the number of members
func (f *FanOut) Len() int {
	return len(f.futures)
}

// Join returns every member's output in call order once all have
// completed. If any member has failed, Join returns the failure that was
// recorded first, even while other members are still pending
func (f *FanOut) Join() ([]json.RawMessage, error) {
	if len(f.futures) == 0 {
		return []json.RawMessage{}, nil
	}
	p := f.futures[0].ctx.pass

	var failed *api.ActionState
	pending := false
	for _, fut := range f.futures {
		act, ok := p.resolved(fut.id)
		if !ok {
			pending = true
			continue
		}
		if act.Status != api.ActionFailed {
			continue
		}
		if failed == nil || act.ResolvedSeq < failed.ResolvedSeq {
			failed = act
		}
	}

	if failed != nil {
		p.observe(failed)
		return nil, newActionError(failed)
	}
	if pending {
		p.suspend()
	}

	res := make([]json.RawMessage, len(f.futures))
	for i, fut := range f.futures {
		act, _ := p.resolved(fut.id)
		p.observe(act)
		res[i] = act.Output
	}
	return res, nil
}

// JoinAs joins the fan-out and decodes each result as T
func JoinAs[T any](f *FanOut) ([]T, error) {
	raw, err := f.Join()
	if err != nil {
		return nil, err
	}
	res := make([]T, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &res[i]); err != nil {
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
	}
	return res, nil
}
