package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Phase is one step of the organize workflow.
type Phase string

// Phases in execution order.
const (
	PhaseFetchingTabs   Phase = "fetching-tabs"
	PhaseUngrouping     Phase = "ungrouping"
	PhaseCallingAI      Phase = "calling-ai"
	PhaseCreatingGroups Phase = "creating-groups"
)

var phaseOrder = []Phase{
	PhaseFetchingTabs,
	PhaseUngrouping,
	PhaseCallingAI,
	PhaseCreatingGroups,
}

// Phases returns all phases in execution order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// Index returns the position of p in the execution order, or -1 if p is not
// a known phase.
func (p Phase) Index() int {
	for i, q := range phaseOrder {
		if q == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Status is the discriminator of a persisted State.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// IsTerminal reports whether s is completed, cancelled or error.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	}
	return false
}

// State is the persisted task state. The concrete type is one of Idle,
// Running, Completed, Cancelled or Failed.
type State interface {
	Status() Status
	isState()
}

// Idle means no task has run, or the last one was reset.
type Idle struct{}

// Running means a task is in flight.
type Running struct {
	RunID     string
	Phase     Phase
	StartedAt time.Time
}

// Completed is terminal success.
type Completed struct {
	Result      Result
	CompletedAt time.Time
}

// Cancelled is terminal and only set by an explicit cancel.
type Cancelled struct {
	CancelledAt time.Time
}

// Failed is terminal failure with a human-readable message.
type Failed struct {
	Error    string
	FailedAt time.Time
}

// Result is the outcome of a successful run.
type Result struct {
	GroupCount int      `json:"groupCount"`
	Debug      []string `json:"debug,omitempty"`
}

func (Idle) Status() Status      { return StatusIdle }
func (Running) Status() Status   { return StatusRunning }
func (Completed) Status() Status { return StatusCompleted }
func (Cancelled) Status() Status { return StatusCancelled }
func (Failed) Status() Status    { return StatusError }

func (Idle) isState()      {}
func (Running) isState()   {}
func (Completed) isState() {}
func (Cancelled) isState() {}
func (Failed) isState()    {}

// ErrUnknownStatus is returned by Decode for a status it does not recognise.
var ErrUnknownStatus = errors.New("unknown task status")

// wireState is the persisted JSON shape. Timestamps are Unix milliseconds.
type wireState struct {
	Status      Status  `json:"status"`
	RunID       string  `json:"runId,omitempty"`
	Phase       Phase   `json:"phase,omitempty"`
	StartedAt   int64   `json:"startedAt,omitempty"`
	Result      *Result `json:"result,omitempty"`
	CompletedAt int64   `json:"completedAt,omitempty"`
	CancelledAt int64   `json:"cancelledAt,omitempty"`
	Error       string  `json:"error,omitempty"`
	FailedAt    int64   `json:"failedAt,omitempty"`
}

// Envelope wraps a State so it can be embedded in other JSON values.
type Envelope struct {
	State State
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return Encode(e.State)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	s, err := Decode(data)
	if err != nil {
		return err
	}
	e.State = s
	return nil
}

// Encode serialises s in its persisted form. A nil state encodes as idle.
func Encode(s State) ([]byte, error) {
	var w wireState
	switch v := s.(type) {
	case nil, Idle:
		w.Status = StatusIdle
	case Running:
		w.Status = StatusRunning
		w.RunID = v.RunID
		w.Phase = v.Phase
		w.StartedAt = toMillis(v.StartedAt)
	case Completed:
		w.Status = StatusCompleted
		r := v.Result
		w.Result = &r
		w.CompletedAt = toMillis(v.CompletedAt)
	case Cancelled:
		w.Status = StatusCancelled
		w.CancelledAt = toMillis(v.CancelledAt)
	case Failed:
		w.Status = StatusError
		w.Error = v.Error
		w.FailedAt = toMillis(v.FailedAt)
	default:
		return nil, fmt.Errorf("encode task state: unsupported type %T", s)
	}
	return json.Marshal(w)
}

// Decode parses a persisted state.
func Decode(data []byte) (State, error) {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode task state: %w", err)
	}

	switch w.Status {
	case StatusIdle:
		return Idle{}, nil
	case StatusRunning:
		if !w.Phase.Valid() {
			return nil, fmt.Errorf("decode task state: unknown phase %q", w.Phase)
		}
		return Running{RunID: w.RunID, Phase: w.Phase, StartedAt: fromMillis(w.StartedAt)}, nil
	case StatusCompleted:
		var r Result
		if w.Result != nil {
			r = *w.Result
		}
		return Completed{Result: r, CompletedAt: fromMillis(w.CompletedAt)}, nil
	case StatusCancelled:
		return Cancelled{CancelledAt: fromMillis(w.CancelledAt)}, nil
	case StatusError:
		return Failed{Error: w.Error, FailedAt: fromMillis(w.FailedAt)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, w.Status)
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
