package task

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestPhaseOrder(t *testing.T) {
	want := []Phase{PhaseFetchingTabs, PhaseUngrouping, PhaseCallingAI, PhaseCreatingGroups}
	got := Phases()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Phases() = %v, want %v", got, want)
	}
	for i, p := range got {
		if p.Index() != i {
			t.Errorf("%s.Index() = %d, want %d", p, p.Index(), i)
		}
		if !p.Valid() {
			t.Errorf("%s.Valid() = false", p)
		}
	}
	if Phase("sleeping").Valid() {
		t.Error("unknown phase reported valid")
	}

	got[0] = "mutated"
	if Phases()[0] != PhaseFetchingTabs {
		t.Error("Phases() must return a copy")
	}
}

func TestStatusOfVariants(t *testing.T) {
	tests := []struct {
		state    State
		want     Status
		terminal bool
	}{
		{Idle{}, StatusIdle, false},
		{Running{}, StatusRunning, false},
		{Completed{}, StatusCompleted, true},
		{Cancelled{}, StatusCancelled, true},
		{Failed{}, StatusError, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			if got := tt.state.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
			if got := tt.state.Status().IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestEncodeWireShape(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	tests := []struct {
		name  string
		state State
		want  map[string]any
	}{
		{
			name:  "idle",
			state: Idle{},
			want:  map[string]any{"status": "idle"},
		},
		{
			name:  "running",
			state: Running{RunID: "r1", Phase: PhaseCallingAI, StartedAt: at},
			want: map[string]any{
				"status": "running", "runId": "r1", "phase": "calling-ai", "startedAt": float64(1700000000123),
			},
		},
		{
			name:  "completed",
			state: Completed{Result: Result{GroupCount: 2}, CompletedAt: at},
			want: map[string]any{
				"status": "completed", "result": map[string]any{"groupCount": float64(2)}, "completedAt": float64(1700000000123),
			},
		},
		{
			name:  "cancelled",
			state: Cancelled{CancelledAt: at},
			want:  map[string]any{"status": "cancelled", "cancelledAt": float64(1700000000123)},
		},
		{
			name:  "error",
			state: Failed{Error: "boom", FailedAt: at},
			want:  map[string]any{"status": "error", "error": "boom", "failedAt": float64(1700000000123)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.state)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Encode = %s, want %v", data, tt.want)
			}

			back, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(back, tt.state) {
				t.Errorf("Decode = %#v, want %#v", back, tt.state)
			}
		})
	}
}

func TestDecodeOriginalShape(t *testing.T) {
	// States written without a run id still decode.
	s, err := Decode([]byte(`{"status":"running","phase":"ungrouping","startedAt":1000}`))
	if err != nil {
		t.Fatal(err)
	}
	r, ok := s.(Running)
	if !ok || r.Phase != PhaseUngrouping || r.StartedAt.UnixMilli() != 1000 || r.RunID != "" {
		t.Errorf("Decode = %#v", s)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		unknown bool
	}{
		{"bad json", `{`, false},
		{"unknown status", `{"status":"paused"}`, true},
		{"missing status", `{}`, true},
		{"bad phase", `{"status":"running","phase":"sleeping"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrUnknownStatus); got != tt.unknown {
				t.Errorf("errors.Is(err, ErrUnknownStatus) = %v, want %v (err=%v)", got, tt.unknown, err)
			}
		})
	}
}

func TestEnvelopeNilEncodesIdle(t *testing.T) {
	data, err := json.Marshal(Envelope{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"status":"idle"}` {
		t.Errorf("Envelope{} = %s", data)
	}
}
