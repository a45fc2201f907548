package organizer

import (
	"fmt"
	"sync"
)

// trace accumulates debug lines when enabled and drops them otherwise.
type trace struct {
	enabled bool
	mu      sync.Mutex
	entries []string
}

func newTrace(enabled bool) *trace {
	return &trace{enabled: enabled}
}

func (t *trace) add(format string, args ...any) {
	if !t.enabled {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	t.mu.Lock()
	t.entries = append(t.entries, msg)
	t.mu.Unlock()
}

// debug records msg verbatim. It matches ai.DebugFunc.
func (t *trace) debug(msg string) {
	t.add("%s", msg)
}

func (t *trace) lines() []string {
	if !t.enabled {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.entries))
	copy(out, t.entries)
	return out
}
