package organizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/tabgroup/internal/ai"
	"github.com/Iron-Ham/tabgroup/internal/browser"
	"github.com/Iron-Ham/tabgroup/internal/grouping"
	"github.com/Iron-Ham/tabgroup/internal/kvstore"
	"github.com/Iron-Ham/tabgroup/internal/settings"
	"github.com/Iron-Ham/tabgroup/internal/task"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeSettings struct {
	s   settings.Settings
	err error
}

func (f *fakeSettings) Get() (settings.Settings, error) { return f.s, f.err }
func (f *fakeSettings) Set(settings.Patch) error        { return nil }

type createdGroup struct {
	id     int
	tabIDs []int
	update browser.GroupUpdate
}

type fakeWindow struct {
	mu        sync.Mutex
	tasks     *task.Controller
	tabs      browser.Snapshot
	active    int
	hasActive bool
	listErr   error
	clearErr  error
	groupErr  error

	cleared int
	groups  []createdGroup
	phases  []task.Phase // persisted phase observed at each call
}

func (w *fakeWindow) observe() {
	if w.tasks == nil {
		return
	}
	if st, err := w.tasks.Query(); err == nil {
		if r, ok := st.(task.Running); ok {
			w.phases = append(w.phases, r.Phase)
		}
	}
}

func (w *fakeWindow) ListTabs(context.Context) (browser.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observe()
	return w.tabs, w.listErr
}

func (w *fakeWindow) ActiveTab(context.Context) (int, bool, error) {
	return w.active, w.hasActive, nil
}

func (w *fakeWindow) ClearGroups(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observe()
	if w.clearErr != nil {
		return w.clearErr
	}
	w.cleared++
	return nil
}

func (w *fakeWindow) GroupTabs(_ context.Context, ids []int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observe()
	if w.groupErr != nil && len(w.groups) == 1 {
		return 0, w.groupErr
	}
	id := 500 + len(w.groups)
	w.groups = append(w.groups, createdGroup{id: id, tabIDs: ids})
	return id, nil
}

func (w *fakeWindow) UpdateGroup(_ context.Context, groupID int, u browser.GroupUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.groups {
		if w.groups[i].id == groupID {
			w.groups[i].update = u
			return nil
		}
	}
	return errors.New("no such group")
}

type classifyFunc func(ctx context.Context, snap browser.Snapshot, s settings.Settings, onDebug ai.DebugFunc) (grouping.Plan, error)

func (f classifyFunc) Classify(ctx context.Context, snap browser.Snapshot, s settings.Settings, onDebug ai.DebugFunc) (grouping.Plan, error) {
	return f(ctx, snap, s, onDebug)
}

func returnPlan(plan grouping.Plan) classifyFunc {
	return func(_ context.Context, _ browser.Snapshot, _ settings.Settings, onDebug ai.DebugFunc) (grouping.Plan, error) {
		onDebug("classifier saw the request")
		return plan, nil
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

var threeTabs = browser.Snapshot{
	{ID: 1, Title: "Go", URL: "https://go.dev"},
	{ID: 2, Title: "Rust", URL: "https://rust-lang.org"},
	{ID: 3, Title: "News", URL: "https://news.example"},
}

var twoGroupPlan = grouping.Plan{Groups: []grouping.Group{
	{Name: "Languages", Color: grouping.ColorBlue, TabIDs: []int{1, 2}},
	{Name: "News", Color: grouping.ColorRed, TabIDs: []int{3}},
}}

func configured() settings.Settings {
	return settings.Settings{
		Provider:       "openai",
		Endpoint:       "https://openrouter.ai/api/v1",
		APIKey:         "sk-test",
		Model:          "m",
		CollapseGroups: true,
	}
}

type harness struct {
	org    *Organizer
	tasks  *task.Controller
	window *fakeWindow
	store  *fakeSettings
}

func newHarness(t *testing.T, c ai.Classifier) *harness {
	t.Helper()
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tasks := task.NewController(kv)
	window := &fakeWindow{tasks: tasks, tabs: threeTabs, active: 3, hasActive: true}
	store := &fakeSettings{s: configured()}
	return &harness{
		org:    New(tasks, window, c, store),
		tasks:  tasks,
		window: window,
		store:  store,
	}
}

func (h *harness) state(t *testing.T) task.State {
	t.Helper()
	s, err := h.tasks.Query()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestOrganizeSuccess(t *testing.T) {
	h := newHarness(t, returnPlan(twoGroupPlan))

	out := h.org.Organize(context.Background())

	if !out.Success || out.GroupCount != 2 || out.Error != "" {
		t.Fatalf("Outcome = %+v, want success with 2 groups", out)
	}
	done, ok := h.state(t).(task.Completed)
	if !ok {
		t.Fatalf("state = %#v, want Completed", h.state(t))
	}
	if done.Result.GroupCount != 2 {
		t.Errorf("Result.GroupCount = %d, want 2", done.Result.GroupCount)
	}
	if h.window.cleared != 1 {
		t.Errorf("ClearGroups called %d times, want 1", h.window.cleared)
	}
	if len(h.window.groups) != 2 {
		t.Fatalf("created %d groups, want 2", len(h.window.groups))
	}

	// Active tab 3 lives in the second group, so only the first collapses.
	if g := h.window.groups[0]; !g.update.Collapsed || g.update.Title != "Languages" || g.update.Color != "blue" {
		t.Errorf("group 0 = %+v", g)
	}
	if g := h.window.groups[1]; g.update.Collapsed {
		t.Errorf("group with the active tab should stay expanded: %+v", g)
	}
}

func TestOrganizePhasesAreMonotonic(t *testing.T) {
	h := newHarness(t, nil)
	var atClassify task.Phase
	h.org.classifier = classifyFunc(func(ctx context.Context, snap browser.Snapshot, s settings.Settings, onDebug ai.DebugFunc) (grouping.Plan, error) {
		if st, _ := h.tasks.Query(); st != nil {
			if r, ok := st.(task.Running); ok {
				atClassify = r.Phase
			}
		}
		return twoGroupPlan, nil
	})

	h.org.Organize(context.Background())

	if atClassify != task.PhaseCallingAI {
		t.Errorf("phase during classify = %q, want calling-ai", atClassify)
	}
	want := []task.Phase{
		task.PhaseFetchingTabs,   // ListTabs
		task.PhaseUngrouping,     // ClearGroups
		task.PhaseCreatingGroups, // GroupTabs
		task.PhaseCreatingGroups, // GroupTabs
	}
	got := h.window.phases
	if len(got) != len(want) {
		t.Fatalf("observed phases %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phase[%d] = %s, want %s", i, got[i], want[i])
		}
		if i > 0 && got[i].Index() < got[i-1].Index() {
			t.Errorf("phase regressed from %s to %s", got[i-1], got[i])
		}
	}
}

func TestOrganizeMissingConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*settings.Settings)
	}{
		{"empty key", func(s *settings.Settings) { s.APIKey = "" }},
		{"empty endpoint", func(s *settings.Settings) { s.Endpoint = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, returnPlan(twoGroupPlan))
			if err := h.tasks.Complete(task.Result{GroupCount: 9}); err != nil {
				t.Fatal(err)
			}
			before := h.state(t)
			tt.modify(&h.store.s)

			out := h.org.Organize(context.Background())

			if out.Success || out.Error != settings.NotConfiguredMessage {
				t.Errorf("Outcome = %+v, want configuration error", out)
			}
			after := h.state(t)
			if after.Status() != before.Status() || after.(task.Completed).Result.GroupCount != 9 {
				t.Errorf("state changed from %#v to %#v", before, after)
			}
			if h.window.cleared != 0 || len(h.window.phases) != 0 {
				t.Error("no tab operation should run without configuration")
			}
		})
	}
}

func TestOrganizeSettingsError(t *testing.T) {
	h := newHarness(t, returnPlan(twoGroupPlan))
	h.store.err = errors.New("settings file unreadable")

	out := h.org.Organize(context.Background())
	if out.Success || !strings.Contains(out.Error, "settings file unreadable") {
		t.Errorf("Outcome = %+v", out)
	}
	if _, idle := h.state(t).(task.Idle); !idle {
		t.Errorf("state = %#v, want Idle", h.state(t))
	}
}

func TestOrganizeNoTabs(t *testing.T) {
	h := newHarness(t, returnPlan(twoGroupPlan))
	h.window.tabs = nil

	out := h.org.Organize(context.Background())

	if out.Success || out.Error != NoTabsMessage {
		t.Errorf("Outcome = %+v, want %q", out, NoTabsMessage)
	}
	f, ok := h.state(t).(task.Failed)
	if !ok || f.Error != NoTabsMessage {
		t.Errorf("state = %#v, want Failed{%q}", h.state(t), NoTabsMessage)
	}
	if h.window.cleared != 0 {
		t.Error("groups must not be cleared when there are no tabs")
	}
}

func TestOrganizeCollaboratorErrors(t *testing.T) {
	classifierErr := errors.New("AI request failed: connection refused")

	tests := []struct {
		name      string
		setup     func(h *harness)
		wantInErr string
		wantCount int
	}{
		{
			name:      "list tabs fails",
			setup:     func(h *harness) { h.window.listErr = errors.New("tabs.query failed") },
			wantInErr: "tabs.query failed",
		},
		{
			name:      "clear groups fails",
			setup:     func(h *harness) { h.window.clearErr = errors.New("tabs.ungroup failed") },
			wantInErr: "tabs.ungroup failed",
		},
		{
			name: "classifier fails",
			setup: func(h *harness) {
				h.org.classifier = classifyFunc(func(context.Context, browser.Snapshot, settings.Settings, ai.DebugFunc) (grouping.Plan, error) {
					return grouping.Plan{}, classifierErr
				})
			},
			wantInErr: "connection refused",
		},
		{
			name: "plan references unknown tab",
			setup: func(h *harness) {
				h.org.classifier = returnPlan(grouping.Plan{Groups: []grouping.Group{
					{Name: "Ghost", Color: grouping.ColorGrey, TabIDs: []int{1, 77}},
				}})
			},
			wantInErr: "unknown tab",
		},
		{
			name: "plan assigns tab twice",
			setup: func(h *harness) {
				h.org.classifier = returnPlan(grouping.Plan{Groups: []grouping.Group{
					{Name: "A", Color: grouping.ColorGrey, TabIDs: []int{1}},
					{Name: "B", Color: grouping.ColorBlue, TabIDs: []int{1, 2}},
				}})
			},
			wantInErr: "more than one group",
		},
		{
			name:      "partial application",
			setup:     func(h *harness) { h.window.groupErr = errors.New("tabs.group failed") },
			wantInErr: "tabs.group failed",
			wantCount: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, returnPlan(twoGroupPlan))
			tt.setup(h)

			out := h.org.Organize(context.Background())

			if out.Success || !strings.Contains(out.Error, tt.wantInErr) {
				t.Errorf("Outcome = %+v, want error containing %q", out, tt.wantInErr)
			}
			f, ok := h.state(t).(task.Failed)
			if !ok || f.Error != out.Error {
				t.Errorf("state = %#v, want Failed with the same message", h.state(t))
			}
			if len(h.window.groups) != tt.wantCount {
				t.Errorf("groups left in place = %d, want %d", len(h.window.groups), tt.wantCount)
			}
		})
	}
}

func TestOrganizeSkipsEmptyGroups(t *testing.T) {
	plan := grouping.Plan{Groups: []grouping.Group{
		{Name: "Empty", Color: grouping.ColorGrey, TabIDs: []int{}},
		{Name: "All", Color: grouping.ColorGreen, TabIDs: []int{1, 2, 3}},
	}}
	h := newHarness(t, returnPlan(plan))

	out := h.org.Organize(context.Background())

	if !out.Success || out.GroupCount != 1 {
		t.Errorf("Outcome = %+v, want 1 group", out)
	}
	if done := h.state(t).(task.Completed); done.Result.GroupCount != 1 {
		t.Errorf("Result.GroupCount = %d, want 1", done.Result.GroupCount)
	}
}

func TestOrganizeCancelledDuringClassify(t *testing.T) {
	h := newHarness(t, nil)
	h.org.classifier = classifyFunc(func(ctx context.Context, _ browser.Snapshot, _ settings.Settings, _ ai.DebugFunc) (grouping.Plan, error) {
		if ok, err := h.tasks.Cancel(); !ok || err != nil {
			t.Errorf("Cancel = %v, %v", ok, err)
		}
		<-ctx.Done()
		return grouping.Plan{}, ctx.Err()
	})

	out := h.org.Organize(context.Background())

	if out.Success || out.Error != CancelledMessage {
		t.Errorf("Outcome = %+v, want %q", out, CancelledMessage)
	}
	if _, ok := h.state(t).(task.Cancelled); !ok {
		t.Errorf("state = %#v, want Cancelled to survive finalization", h.state(t))
	}
	if len(h.window.groups) != 0 {
		t.Error("no group should be created after cancellation")
	}
}

func TestOrganizeAbortedByCallerContext(t *testing.T) {
	tests := []struct {
		name  string
		abort func(cancel context.CancelCauseFunc)
		want  string
	}{
		{"plain cancel", func(cancel context.CancelCauseFunc) { cancel(nil) }, AbortedMessage},
		{"with cause", func(cancel context.CancelCauseFunc) { cancel(errors.New("bridge closed")) }, AbortedMessage + ": bridge closed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancelCause(context.Background())
			defer cancel(nil)

			h := newHarness(t, nil)
			h.org.classifier = classifyFunc(func(runCtx context.Context, _ browser.Snapshot, _ settings.Settings, _ ai.DebugFunc) (grouping.Plan, error) {
				tt.abort(cancel)
				<-runCtx.Done()
				return grouping.Plan{}, fmt.Errorf("AI request aborted: %w", runCtx.Err())
			})

			out := h.org.Organize(ctx)

			if out.Success || out.Error != tt.want {
				t.Errorf("Outcome = %+v, want %q", out, tt.want)
			}
			f, ok := h.state(t).(task.Failed)
			if !ok || f.Error != tt.want {
				t.Errorf("state = %#v, want Failed(%q), not a user cancel", h.state(t), tt.want)
			}
		})
	}
}

func TestOrganizeRefusedWhileAnotherProcessRuns(t *testing.T) {
	kv, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	other := kv.RunLock()
	if ok, err := other.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer func() { _ = other.Unlock() }()

	tasks := task.NewController(kv, task.WithRunLock(kv.RunLock()))
	window := &fakeWindow{tasks: tasks, tabs: threeTabs}
	org := New(tasks, window, returnPlan(twoGroupPlan), &fakeSettings{s: configured()})

	out := org.Organize(context.Background())

	if out.Success || out.Error != task.AlreadyRunningMessage {
		t.Errorf("Outcome = %+v, want %q", out, task.AlreadyRunningMessage)
	}
	if window.cleared != 0 || len(window.groups) != 0 {
		t.Error("window touched while another run is live")
	}
}

func TestOrganizeCancelledAfterClassifierReturned(t *testing.T) {
	// The classifier ignores cancellation and returns a plan anyway.
	h := newHarness(t, nil)
	h.org.classifier = classifyFunc(func(context.Context, browser.Snapshot, settings.Settings, ai.DebugFunc) (grouping.Plan, error) {
		_, _ = h.tasks.Cancel()
		return twoGroupPlan, nil
	})

	out := h.org.Organize(context.Background())

	if out.Success {
		t.Errorf("Outcome = %+v, want failure", out)
	}
	if _, ok := h.state(t).(task.Cancelled); !ok {
		t.Errorf("state = %#v, want Cancelled", h.state(t))
	}
}

func TestOrganizeDebugTrace(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t, returnPlan(twoGroupPlan))
		out := h.org.Organize(context.Background())
		if len(out.Debug) != 0 {
			t.Errorf("Debug = %v, want none when debug mode is off", out.Debug)
		}
		if done := h.state(t).(task.Completed); len(done.Result.Debug) != 0 {
			t.Errorf("persisted debug = %v, want none", done.Result.Debug)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		h := newHarness(t, returnPlan(twoGroupPlan))
		h.store.s.DebugMode = true

		out := h.org.Organize(context.Background())

		joined := strings.Join(out.Debug, "\n")
		for _, want := range []string{"Found 3 tabs", "Active tab ID: 3", "classifier saw the request", "AI returned 2 groups", "Done!"} {
			if !strings.Contains(joined, want) {
				t.Errorf("debug trace missing %q:\n%s", want, joined)
			}
		}
		if done := h.state(t).(task.Completed); len(done.Result.Debug) == 0 {
			t.Error("completed result should carry the debug trace")
		}
	})

	t.Run("enabled on failure", func(t *testing.T) {
		h := newHarness(t, returnPlan(twoGroupPlan))
		h.store.s.DebugMode = true
		h.window.tabs = nil

		out := h.org.Organize(context.Background())
		if len(out.Debug) == 0 || out.Debug[len(out.Debug)-1] != "Error: "+NoTabsMessage {
			t.Errorf("Debug = %v, want trailing error line", out.Debug)
		}
	})
}

func TestOrganizeNoActiveTab(t *testing.T) {
	h := newHarness(t, returnPlan(twoGroupPlan))
	h.window.hasActive = false

	if out := h.org.Organize(context.Background()); !out.Success {
		t.Fatalf("Outcome = %+v", out)
	}
	for i, g := range h.window.groups {
		if !g.update.Collapsed {
			t.Errorf("group %d should be collapsed when no tab was active", i)
		}
	}
}

func TestUngroupAll(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.org.UngroupAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.window.cleared != 1 {
		t.Errorf("cleared = %d, want 1", h.window.cleared)
	}
	if _, idle := h.state(t).(task.Idle); !idle {
		t.Error("UngroupAll must not touch the task state")
	}

	h.window.clearErr = errors.New("boom")
	if err := h.org.UngroupAll(context.Background()); err == nil {
		t.Error("expected error")
	}
}
