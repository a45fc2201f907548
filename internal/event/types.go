package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier, e.g. "task.phase".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Task event types.
const (
	TypeTaskStarted   = "task.started"
	TypeTaskPhase     = "task.phase"
	TypeTaskCompleted = "task.completed"
	TypeTaskFailed    = "task.failed"
	TypeTaskCancelled = "task.cancelled"
	TypeTaskReset     = "task.reset"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// TaskEvent describes a transition of the persisted task state. Fields that
// do not apply to a transition are left zero.
type TaskEvent struct {
	baseEvent
	RunID      string `json:"runId,omitempty"`
	Status     string `json:"status"`
	Phase      string `json:"phase,omitempty"`
	GroupCount int    `json:"groupCount,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NewTaskStartedEvent creates a task.started event.
func NewTaskStartedEvent(runID, phase string) TaskEvent {
	return TaskEvent{baseEvent: newBaseEvent(TypeTaskStarted), RunID: runID, Status: "running", Phase: phase}
}

// NewTaskPhaseEvent creates a task.phase event.
func NewTaskPhaseEvent(runID, phase string) TaskEvent {
	return TaskEvent{baseEvent: newBaseEvent(TypeTaskPhase), RunID: runID, Status: "running", Phase: phase}
}

// NewTaskCompletedEvent creates a task.completed event.
func NewTaskCompletedEvent(runID string, groupCount int) TaskEvent {
	return TaskEvent{baseEvent: newBaseEvent(TypeTaskCompleted), RunID: runID, Status: "completed", GroupCount: groupCount}
}

// NewTaskFailedEvent creates a task.failed event.
func NewTaskFailedEvent(runID, errMsg string) TaskEvent {
	return TaskEvent{baseEvent: newBaseEvent(TypeTaskFailed), RunID: runID, Status: "error", Error: errMsg}
}

// NewTaskCancelledEvent creates a task.cancelled event.
func NewTaskCancelledEvent(runID string) TaskEvent {
	return TaskEvent{baseEvent: newBaseEvent(TypeTaskCancelled), RunID: runID, Status: "cancelled"}
}

// NewTaskResetEvent creates a task.reset event.
func NewTaskResetEvent() TaskEvent {
	return TaskEvent{baseEvent: newBaseEvent(TypeTaskReset), Status: "idle"}
}
