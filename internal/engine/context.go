package engine

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kode4food/braid/pkg/api"
	"github.com/kode4food/braid/pkg/log"
)

// Context is handed to an orchestration function for the duration of one
// replay pass. It must only be used from the goroutine running the
// function, and the function must not recover panics raised through it
type Context struct {
	pass   *pass
	logger *slog.Logger
}

func newContext(p *pass, base slog.Handler) *Context {
	logger := slog.New(&replayHandler{Handler: base, pass: p}).With(
		log.InstanceID(p.state.ID),
		log.Orchestration(p.state.Name),
	)
	return &Context{
		pass:   p,
		logger: logger,
	}
}

// InstanceID returns the ID of the running instance
func (c *Context) InstanceID() api.InstanceID {
	return c.pass.state.ID
}

// Name returns the orchestration name of the running instance
func (c *Context) Name() string {
	return c.pass.state.Name
}

// Parent returns the scheduling parent of a sub-orchestration, if any
func (c *Context) Parent() *api.ParentRef {
	return c.pass.state.Parent
}

// IsReplaying reports whether the function is re-executing steps already
// observed by an earlier pass
func (c *Context) IsReplaying() bool {
	return c.pass.replaying
}

// Now returns a deterministic timestamp: the instance creation time, or the
// latest result timestamp the function has observed so far
func (c *Context) Now() time.Time {
	return c.pass.now
}

// Logger returns a logger that discards output while replaying
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// CallWorkUnit schedules a work unit
func (c *Context) CallWorkUnit(name string, input any) *Future {
	return c.call(WorkUnit(name, input))
}

// CallSubOrchestration schedules a child orchestration with its own
// instance and history
func (c *Context) CallSubOrchestration(name string, input any) *Future {
	return c.call(SubOrchestration(name, input))
}

// FanOut schedules every call in a single step. Correlation IDs are
// assigned contiguously in call order
func (c *Context) FanOut(calls ...Call) *FanOut {
	ids := c.pass.schedule(calls)
	futures := make([]*Future, len(ids))
	for i, id := range ids {
		futures[i] = &Future{ctx: c, id: id}
	}
	return &FanOut{futures: futures}
}

// Retry awaits call, scheduling it again under a new correlation ID after
// each failure, up to attempts times. The last failure is returned
func (c *Context) Retry(attempts int, call Call, out any) error {
	var err error
	for range max(attempts, 1) {
		if err = c.call(call).Await(out); err == nil {
			return nil
		}
	}
	return err
}

func (c *Context) call(call Call) *Future {
	ids := c.pass.schedule([]Call{call})
	return &Future{ctx: c, id: ids[0]}
}

// Input returns the raw instance input
func (c *Context) Input() json.RawMessage {
	return c.pass.state.Input
}
