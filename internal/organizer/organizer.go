// Package organizer drives one organize run: snapshot tabs, clear existing
// groups, classify with the AI backend, and materialize the plan.
//
// The run is a finite-state machine. Each phase is a step function that
// returns the next step, or an error that ends the run. The task controller
// records the phase before each step so status queries can follow progress.
package organizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Iron-Ham/tabgroup/internal/ai"
	"github.com/Iron-Ham/tabgroup/internal/browser"
	"github.com/Iron-Ham/tabgroup/internal/grouping"
	"github.com/Iron-Ham/tabgroup/internal/logging"
	"github.com/Iron-Ham/tabgroup/internal/settings"
	"github.com/Iron-Ham/tabgroup/internal/task"
)

// CancelledMessage is reported when a run ends because it was cancelled.
const CancelledMessage = "Task cancelled"

// AbortedMessage is recorded when the run's context ends without an explicit
// cancel, for example when the extension disconnects mid-run.
const AbortedMessage = "Task aborted"

// NoTabsMessage is the failure recorded when the window has no usable tabs.
const NoTabsMessage = "No tabs found"

var errNoTabs = errors.New(NoTabsMessage)

// Tasks is the subset of the task controller the organizer drives.
type Tasks interface {
	Start(ctx context.Context) (context.Context, error)
	AdvancePhase(phase task.Phase) error
	CompleteIfRunning(result task.Result) (bool, error)
	FailIfRunning(message string) (bool, error)
	Query() (task.State, error)
}

// Outcome is the result of one Organize call.
type Outcome struct {
	Success    bool
	GroupCount int
	Error      string
	Debug      []string
}

// Organizer runs the organize workflow. Callers enforce single-flight.
type Organizer struct {
	tasks      Tasks
	window     browser.Window
	classifier ai.Classifier
	settings   settings.Store
	logger     *logging.Logger
}

// Option configures an Organizer.
type Option func(*Organizer)

// WithLogger sets the organizer's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Organizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Organizer.
func New(tasks Tasks, window browser.Window, classifier ai.Classifier, store settings.Store, opts ...Option) *Organizer {
	o := &Organizer{
		tasks:      tasks,
		window:     window,
		classifier: classifier,
		settings:   store,
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the data threaded through the step functions.
type run struct {
	ctx      context.Context // the task's cancellation handle
	settings settings.Settings
	trace    *trace
	logger   *logging.Logger

	snapshot    browser.Snapshot
	activeTabID *int
	plan        grouping.Plan
	groupCount  int
}

type stepFunc func(r *run) (stepFunc, error)

// Organize runs the workflow once. Every failure is reported in the
// Outcome; nothing is returned as an error.
func (o *Organizer) Organize(ctx context.Context) Outcome {
	s, err := o.settings.Get()
	if err != nil {
		return Outcome{Error: fmt.Sprintf("read settings: %v", err)}
	}
	tr := newTrace(s.DebugMode)
	if err := s.Validate(); err != nil {
		if errors.Is(err, settings.ErrNotConfigured) {
			return Outcome{Error: settings.NotConfiguredMessage, Debug: tr.lines()}
		}
		return Outcome{Error: err.Error(), Debug: tr.lines()}
	}

	runCtx, err := o.tasks.Start(ctx)
	if errors.Is(err, task.ErrRunInProgress) {
		return Outcome{Error: task.AlreadyRunningMessage, Debug: tr.lines()}
	}
	if err != nil {
		o.logger.Error("failed to start task", "error", err)
		return Outcome{Error: err.Error(), Debug: tr.lines()}
	}

	r := &run{ctx: runCtx, settings: s, trace: tr, logger: o.logger}
	if st, qerr := o.tasks.Query(); qerr == nil {
		if running, ok := st.(task.Running); ok {
			r.logger = o.logger.WithRun(running.RunID)
		}
	}
	tr.add("Starting organization...")

	err = o.execute(r)
	if err != nil {
		return o.finishFailed(r, err)
	}
	return o.finishCompleted(r)
}

// execute steps through the machine until a step returns no successor.
func (o *Organizer) execute(r *run) error {
	for step := o.fetchTabs; step != nil; {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		next, err := step(r)
		if err != nil {
			return err
		}
		step = next
	}
	return nil
}

func (o *Organizer) enter(r *run, phase task.Phase) error {
	r.logger.WithPhase(string(phase)).Debug("entering phase")
	return o.tasks.AdvancePhase(phase)
}

func (o *Organizer) fetchTabs(r *run) (stepFunc, error) {
	r.trace.add("Fetching tabs...")
	snapshot, err := o.window.ListTabs(r.ctx)
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	r.trace.add("Found %d tabs", len(snapshot))
	if len(snapshot) == 0 {
		return nil, errNoTabs
	}
	r.snapshot = snapshot

	// Group membership changes below, so the active tab is read first.
	id, ok, err := o.window.ActiveTab(r.ctx)
	if err != nil {
		return nil, fmt.Errorf("get active tab: %w", err)
	}
	if ok {
		r.activeTabID = &id
		r.trace.add("Active tab ID: %d", id)
	} else {
		r.trace.add("Active tab ID: none")
	}

	if err := o.enter(r, task.PhaseUngrouping); err != nil {
		return nil, err
	}
	return o.ungroup, nil
}

func (o *Organizer) ungroup(r *run) (stepFunc, error) {
	r.trace.add("Ungrouping existing groups...")
	if err := o.window.ClearGroups(r.ctx); err != nil {
		return nil, fmt.Errorf("ungroup tabs: %w", err)
	}

	if err := o.enter(r, task.PhaseCallingAI); err != nil {
		return nil, err
	}
	return o.classify, nil
}

func (o *Organizer) classify(r *run) (stepFunc, error) {
	r.trace.add("Calling AI...")
	plan, err := o.classifier.Classify(r.ctx, r.snapshot, r.settings, r.trace.debug)
	if err != nil {
		return nil, err
	}
	r.trace.add("AI returned %d groups", len(plan.Groups))
	if err := grouping.Validate(plan, r.snapshot); err != nil {
		return nil, err
	}
	r.plan = plan

	if err := o.enter(r, task.PhaseCreatingGroups); err != nil {
		return nil, err
	}
	return o.createGroups, nil
}

func (o *Organizer) createGroups(r *run) (stepFunc, error) {
	r.trace.add("Creating groups...")
	if r.settings.CollapseGroups {
		r.trace.add("Collapse others enabled, active tab's group will stay expanded")
	}
	n, err := grouping.Apply(r.ctx, o.window, r.plan, grouping.Options{
		CollapseOthers: r.settings.CollapseGroups,
		ActiveTabID:    r.activeTabID,
	})
	r.groupCount = n
	if err != nil {
		r.trace.add("Created %d of %d groups before failing", n, r.plan.NonEmpty())
		return nil, err
	}
	return nil, nil
}

func (o *Organizer) finishCompleted(r *run) Outcome {
	r.trace.add("Done!")
	result := task.Result{GroupCount: r.groupCount, Debug: r.trace.lines()}

	ok, err := o.tasks.CompleteIfRunning(result)
	if err != nil {
		r.logger.Error("failed to record completion", "error", err)
		return Outcome{Error: err.Error(), Debug: r.trace.lines()}
	}
	if !ok {
		return o.superseded(r)
	}
	return Outcome{Success: true, GroupCount: r.groupCount, Debug: r.trace.lines()}
}

func (o *Organizer) finishFailed(r *run, cause error) Outcome {
	msg := cause.Error()
	if r.ctx.Err() != nil {
		// An explicit cancel has already written Cancelled, so a context
		// that ended while the state is still running was aborted from
		// outside the task.
		msg = abortMessage(r.ctx)
	}
	r.logger.Warn("organize failed", "error", cause)

	ok, err := o.tasks.FailIfRunning(msg)
	if err != nil {
		r.logger.Error("failed to record failure", "error", err)
		r.trace.add("Error: %s", msg)
		return Outcome{Error: msg, Debug: r.trace.lines()}
	}
	if !ok {
		return o.superseded(r)
	}
	r.trace.add("Error: %s", msg)
	return Outcome{Error: msg, Debug: r.trace.lines()}
}

// abortMessage names why ctx ended, when its cause says more than
// context.Canceled.
func abortMessage(ctx context.Context) string {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		return AbortedMessage
	}
	return fmt.Sprintf("%s: %v", AbortedMessage, cause)
}

// superseded reports a run whose terminal state was written by someone
// else, normally a concurrent cancel.
func (o *Organizer) superseded(r *run) Outcome {
	st, err := o.tasks.Query()
	if err == nil && st.Status() == task.StatusCancelled {
		r.trace.add("Error: %s", CancelledMessage)
		r.logger.Info("run finished after cancellation, keeping cancelled state")
		return Outcome{Error: CancelledMessage, Debug: r.trace.lines()}
	}
	status := "unknown"
	if err == nil {
		status = string(st.Status())
	}
	return Outcome{Error: fmt.Sprintf("task is no longer running (status %s)", status), Debug: r.trace.lines()}
}

// UngroupAll removes every tab group in the focused window without touching
// the task state.
func (o *Organizer) UngroupAll(ctx context.Context) error {
	if err := o.window.ClearGroups(ctx); err != nil {
		o.logger.Warn("ungroup failed", "error", err)
		return err
	}
	return nil
}
