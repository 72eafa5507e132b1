package api

import (
	"encoding/json"
	"time"
)

type (
	// EventType identifies the kind of a history event
	EventType string

	// HistoryEvent is one entry of an instance's append-only history.
	// Sequence numbers are contiguous per instance, starting at 0
	HistoryEvent struct {
		InstanceID InstanceID      `json:"instance_id"`
		Type       EventType       `json:"type"`
		Sequence   int64           `json:"sequence"`
		Timestamp  time.Time       `json:"timestamp"`
		Data       json.RawMessage `json:"data"`
	}

	// OrchestratorStartedEvent seeds a new instance
	OrchestratorStartedEvent struct {
		Name   string          `json:"name"`
		Input  json.RawMessage `json:"input,omitempty"`
		Parent *ParentRef      `json:"parent,omitempty"`
	}

	// TaskScheduledEvent records a work unit scheduled by a replay pass
	TaskScheduledEvent struct {
		CorrelationID CorrelationID   `json:"correlation_id"`
		Name          string          `json:"name"`
		Input         json.RawMessage `json:"input,omitempty"`
		Batch         int             `json:"batch"`
	}

	// TaskCompletedEvent records a work unit's output
	TaskCompletedEvent struct {
		CorrelationID CorrelationID   `json:"correlation_id"`
		Output        json.RawMessage `json:"output,omitempty"`
	}

	// TaskFailedEvent records a work unit's failure
	TaskFailedEvent struct {
		CorrelationID CorrelationID `json:"correlation_id"`
		Error         string        `json:"error"`
	}

	// SubOrchestrationScheduledEvent records a child instance scheduled by a
	// replay pass
	SubOrchestrationScheduledEvent struct {
		CorrelationID CorrelationID   `json:"correlation_id"`
		Name          string          `json:"name"`
		Input         json.RawMessage `json:"input,omitempty"`
		ChildID       InstanceID      `json:"child_id"`
		Batch         int             `json:"batch"`
	}

	// SubOrchestrationCompletedEvent carries a child's output back to the
	// parent's history
	SubOrchestrationCompletedEvent struct {
		CorrelationID CorrelationID   `json:"correlation_id"`
		Output        json.RawMessage `json:"output,omitempty"`
	}

	// SubOrchestrationFailedEvent carries a child's failure back to the
	// parent's history
	SubOrchestrationFailedEvent struct {
		CorrelationID CorrelationID `json:"correlation_id"`
		Error         string        `json:"error"`
	}

	// OrchestratorCompletedEvent records the function's return value
	OrchestratorCompletedEvent struct {
		Output json.RawMessage `json:"output,omitempty"`
	}

	// OrchestratorFailedEvent records the first unhandled error
	OrchestratorFailedEvent struct {
		Error string `json:"error"`
	}

	// TerminatedEvent records an explicit cancellation
	TerminatedEvent struct {
		Reason string `json:"reason,omitempty"`
	}
)

const (
	EventTypeOrchestratorStarted       EventType = "orchestrator_started"
	EventTypeTaskScheduled             EventType = "task_scheduled"
	EventTypeTaskCompleted             EventType = "task_completed"
	EventTypeTaskFailed                EventType = "task_failed"
	EventTypeSubOrchestrationScheduled EventType = "sub_orchestration_scheduled"
	EventTypeSubOrchestrationCompleted EventType = "sub_orchestration_completed"
	EventTypeSubOrchestrationFailed    EventType = "sub_orchestration_failed"
	EventTypeOrchestratorCompleted     EventType = "orchestrator_completed"
	EventTypeOrchestratorFailed        EventType = "orchestrator_failed"
	EventTypeTerminated                EventType = "terminated"
)
