package assert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/braid/internal/config"
	"github.com/kode4food/braid/pkg/api"
)

// Wrapper wraps testify assertions with orchestration-specific helpers
type Wrapper struct {
	*testing.T
	*assert.Assertions
}

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 10 * time.Millisecond

// New creates a new test assertion wrapper
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
	}
}

// InstanceStatus asserts the status of an instance
func (w *Wrapper) InstanceStatus(
	st *api.InstanceStatusResponse, expected api.InstanceStatus,
) {
	w.Helper()
	if w.NotNil(st) {
		w.Equal(expected, st.Status, "instance error: %s", st.Error)
	}
}

// OutputEquals asserts that a JSON payload matches the expected value
func (w *Wrapper) OutputEquals(raw json.RawMessage, expected any) {
	w.Helper()
	exp, err := json.Marshal(expected)
	w.NoError(err)
	w.JSONEq(string(exp), string(raw))
}

// HistoryTypes asserts the exact sequence of event types in a history
func (w *Wrapper) HistoryTypes(
	evs []*api.HistoryEvent, expected ...api.EventType,
) {
	w.Helper()
	actual := make([]api.EventType, len(evs))
	for i, ev := range evs {
		actual[i] = ev.Type
	}
	w.Equal(expected, actual)
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= config.MaxTCPPort)
	w.True(cfg.PassWorkers > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	if w.Error(err) && contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}
