// Package task owns the lifecycle of the organize workflow.
//
// The persisted [State] is the single source of truth for workflow progress
// and outlives the host process. The cancellation handle (a context and its
// CancelFunc) lives only in memory: it is created on every [Controller.Start]
// and discarded on every transition out of running. A running state found
// with no live handle, as after a restart, is an orphan and is settled by
// [Controller.Recover].
//
// Finalization by the workflow goes through [Controller.CompleteIfRunning]
// and [Controller.FailIfRunning], which re-read the persisted state and skip
// the write when a concurrent [Controller.Cancel] already committed
// cancelled.
package task
