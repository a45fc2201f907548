package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/tabgroup/internal/event"
	"github.com/Iron-Ham/tabgroup/internal/logging"
)

// StateKey is the persistence key holding the task state.
const StateKey = "task_state"

// InterruptedMessage is the error recorded by Recover for an orphaned run.
const InterruptedMessage = "task interrupted: host restarted"

// AlreadyRunningMessage is what the user sees when a run is refused because
// another one is live.
const AlreadyRunningMessage = "A task is already running"

// ErrRunInProgress is returned by Start when another process holds the run
// lock.
var ErrRunInProgress = errors.New("task already running in another process")

// Store is the key/value persistence the controller writes through.
type Store interface {
	Get(key string, out any) (bool, error)
	Set(key string, value any) error
	Delete(key string) error
}

// RunLock marks a run as live across processes sharing one store. It is
// held from Start until the run's handle is discarded. TryLock must not
// block.
type RunLock interface {
	TryLock() (bool, error)
	Unlock() error
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source used for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBus publishes a task event for every committed transition.
func WithBus(bus *event.Bus) Option {
	return func(c *Controller) {
		c.bus = bus
	}
}

// WithLogger sets the controller's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRunLock makes runs visible to other processes sharing the store.
// Without it, Recover treats any running state this process does not own
// as orphaned.
func WithRunLock(l RunLock) Option {
	return func(c *Controller) {
		c.runLock = l
	}
}

// WithIDGenerator overrides how run ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// Controller is the task state machine. It is safe for concurrent use; the
// internal mutex serialises read-modify-write sequences within one process.
type Controller struct {
	store   Store
	runLock RunLock
	bus     *event.Bus
	logger  *logging.Logger
	now     func() time.Time
	newID   func() string

	mu     sync.Mutex
	cancel context.CancelFunc // nil when no handle exists
	runID  string
}

// NewController creates a Controller persisting through store.
func NewController(store Store, opts ...Option) *Controller {
	if store == nil {
		panic("task: Store must not be nil")
	}
	c := &Controller{
		store:  store,
		logger: logging.NopLogger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start creates a fresh cancellation handle derived from ctx and writes
// Running{fetching-tabs}. Any existing handle is cancelled and replaced.
// Start does not check the persisted state; callers enforce single-flight.
// With a run lock, Start fails with ErrRunInProgress while another process
// holds it.
func (c *Controller) Start(ctx context.Context) (context.Context, error) {
	c.mu.Lock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	} else if err := c.acquireLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	runID := c.newID()
	state := Running{RunID: runID, Phase: PhaseFetchingTabs, StartedAt: c.now()}

	if err := c.write(state); err != nil {
		cancel()
		c.runID = ""
		c.releaseLocked()
		c.mu.Unlock()
		return nil, fmt.Errorf("start task: %w", err)
	}
	c.cancel = cancel
	c.runID = runID
	c.mu.Unlock()

	c.logger.WithRun(runID).Info("task started", "phase", string(PhaseFetchingTabs))
	c.publish(event.NewTaskStartedEvent(runID, string(PhaseFetchingTabs)))
	return runCtx, nil
}

// AdvancePhase records phase while the task is running. It is a no-op when
// the task is not running or phase would move backwards.
func (c *Controller) AdvancePhase(phase Phase) error {
	if !phase.Valid() {
		return fmt.Errorf("advance phase: unknown phase %q", phase)
	}

	c.mu.Lock()
	current, err := c.read()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("advance phase: %w", err)
	}
	running, ok := current.(Running)
	if !ok || phase.Index() <= running.Phase.Index() {
		c.mu.Unlock()
		return nil
	}
	running.Phase = phase
	if err := c.write(running); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("advance phase: %w", err)
	}
	c.mu.Unlock()

	c.logger.WithRun(running.RunID).WithPhase(string(phase)).Debug("phase advanced")
	c.publish(event.NewTaskPhaseEvent(running.RunID, string(phase)))
	return nil
}

// Complete writes Completed unconditionally and discards the handle.
func (c *Controller) Complete(result Result) error {
	c.mu.Lock()
	runID, err := c.completeLocked(result)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.afterComplete(runID, result)
	return nil
}

// CompleteIfRunning writes Completed only if the persisted state is still
// running. It reports whether the write happened.
func (c *Controller) CompleteIfRunning(result Result) (bool, error) {
	c.mu.Lock()
	if ok, err := c.runningLocked(); !ok || err != nil {
		c.mu.Unlock()
		return false, err
	}
	runID, err := c.completeLocked(result)
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	c.afterComplete(runID, result)
	return true, nil
}

// Fail writes Failed unconditionally and discards the handle.
func (c *Controller) Fail(message string) error {
	c.mu.Lock()
	runID, err := c.failLocked(message)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.afterFail(runID, message)
	return nil
}

// FailIfRunning writes Failed only if the persisted state is still running.
// It reports whether the write happened.
func (c *Controller) FailIfRunning(message string) (bool, error) {
	c.mu.Lock()
	if ok, err := c.runningLocked(); !ok || err != nil {
		c.mu.Unlock()
		return false, err
	}
	runID, err := c.failLocked(message)
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	c.afterFail(runID, message)
	return true, nil
}

// Cancel aborts the running task. It returns false without mutating anything
// unless the task is running and this process holds its handle.
func (c *Controller) Cancel() (bool, error) {
	c.mu.Lock()
	running, err := c.runningLocked()
	if err != nil {
		c.mu.Unlock()
		return false, fmt.Errorf("cancel task: %w", err)
	}
	if !running || c.cancel == nil {
		c.mu.Unlock()
		return false, nil
	}

	runID := c.runID
	c.cancel()
	err = c.write(Cancelled{CancelledAt: c.now()})
	c.discardLocked()
	c.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("cancel task: %w", err)
	}

	c.logger.WithRun(runID).Info("task cancelled")
	c.publish(event.NewTaskCancelledEvent(runID))
	return true, nil
}

// Reset returns a finished task to Idle by removing the persisted state. It
// refuses, returning false, while a task is running. Resetting from Idle
// succeeds.
func (c *Controller) Reset() (bool, error) {
	c.mu.Lock()
	running, err := c.runningLocked()
	if err != nil {
		c.mu.Unlock()
		return false, fmt.Errorf("reset task: %w", err)
	}
	if running {
		c.mu.Unlock()
		return false, nil
	}
	c.discardLocked()
	if err := c.store.Delete(StateKey); err != nil {
		c.mu.Unlock()
		return false, fmt.Errorf("reset task: %w", err)
	}
	c.mu.Unlock()

	c.logger.Debug("task reset")
	c.publish(event.NewTaskResetEvent())
	return true, nil
}

// Query returns the persisted state. An absent state reads as Idle.
func (c *Controller) Query() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.read()
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return s, nil
}

// IsRunning reports whether the persisted status is running.
func (c *Controller) IsRunning() (bool, error) {
	s, err := c.Query()
	if err != nil {
		return false, err
	}
	return s.Status() == StatusRunning, nil
}

// Recover settles a running state left behind by a dead process. When this
// process holds no handle, the persisted state is running and no other
// process holds the run lock, the state is rewritten as Failed. Recover
// reports whether it rewrote the state.
func (c *Controller) Recover() (bool, error) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return false, nil
	}
	current, err := c.read()
	if err != nil {
		c.mu.Unlock()
		return false, fmt.Errorf("recover task: %w", err)
	}
	running, ok := current.(Running)
	if !ok {
		c.mu.Unlock()
		return false, nil
	}
	if err := c.acquireLocked(); err != nil {
		c.mu.Unlock()
		if errors.Is(err, ErrRunInProgress) {
			c.logger.WithRun(running.RunID).Debug("running task is live in another process")
			return false, nil
		}
		return false, fmt.Errorf("recover task: %w", err)
	}
	err = c.write(Failed{Error: InterruptedMessage, FailedAt: c.now()})
	c.releaseLocked()
	c.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("recover task: %w", err)
	}

	c.logger.WithRun(running.RunID).Warn("orphaned task marked failed",
		"phase", string(running.Phase),
		"started_at", running.StartedAt,
	)
	c.afterFail(running.RunID, InterruptedMessage)
	return true, nil
}

func (c *Controller) completeLocked(result Result) (string, error) {
	runID := c.runID
	c.discardLocked()
	if err := c.write(Completed{Result: result, CompletedAt: c.now()}); err != nil {
		return "", fmt.Errorf("complete task: %w", err)
	}
	return runID, nil
}

func (c *Controller) failLocked(message string) (string, error) {
	runID := c.runID
	c.discardLocked()
	if err := c.write(Failed{Error: message, FailedAt: c.now()}); err != nil {
		return "", fmt.Errorf("fail task: %w", err)
	}
	return runID, nil
}

func (c *Controller) afterComplete(runID string, result Result) {
	c.logger.WithRun(runID).Info("task completed", "group_count", result.GroupCount)
	c.publish(event.NewTaskCompletedEvent(runID, result.GroupCount))
}

func (c *Controller) afterFail(runID, message string) {
	c.logger.WithRun(runID).Warn("task failed", "error", message)
	c.publish(event.NewTaskFailedEvent(runID, message))
}

func (c *Controller) runningLocked() (bool, error) {
	s, err := c.read()
	if err != nil {
		return false, err
	}
	return s.Status() == StatusRunning, nil
}

// discardLocked releases the handle and the run lock. The context is
// cancelled so its resources are freed; a finished workflow no longer
// observes it.
func (c *Controller) discardLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.runID = ""
	c.releaseLocked()
}

func (c *Controller) acquireLocked() error {
	if c.runLock == nil {
		return nil
	}
	ok, err := c.runLock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRunInProgress
	}
	return nil
}

func (c *Controller) releaseLocked() {
	if c.runLock == nil {
		return
	}
	if err := c.runLock.Unlock(); err != nil {
		c.logger.Warn("failed to release run lock", "error", err)
	}
}

func (c *Controller) read() (State, error) {
	var env Envelope
	found, err := c.store.Get(StateKey, &env)
	if err != nil {
		return nil, err
	}
	if !found || env.State == nil {
		return Idle{}, nil
	}
	return env.State, nil
}

func (c *Controller) write(s State) error {
	return c.store.Set(StateKey, Envelope{State: s})
}

func (c *Controller) publish(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}
