package api

type (
	// InstanceStatus is the lifecycle status of an orchestration instance
	InstanceStatus string

	// ActionKind distinguishes work units from sub-orchestrations
	ActionKind string

	// ActionStatus is the resolution status of a scheduled action
	ActionStatus string
)

const (
	StatusPending    InstanceStatus = "pending"
	StatusRunning    InstanceStatus = "running"
	StatusCompleted  InstanceStatus = "completed"
	StatusFailed     InstanceStatus = "failed"
	StatusTerminated InstanceStatus = "terminated"
)

const (
	ActionTask             ActionKind = "task"
	ActionSubOrchestration ActionKind = "sub_orchestration"
)

const (
	ActionPending   ActionStatus = "pending"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// IsTerminal reports whether no further history may be appended for an
// instance in this status
func (s InstanceStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated:
		return true
	default:
		return false
	}
}

// IsResolved reports whether the action has a completion or failure
func (s ActionStatus) IsResolved() bool {
	return s == ActionCompleted || s == ActionFailed
}
