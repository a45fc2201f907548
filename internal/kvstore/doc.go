// Package kvstore persists small JSON values under string keys in a single
// document inside the host's state directory.
//
// Every Get and Set takes an exclusive flock(2) on a sibling lock file, so
// the native messaging host and CLI commands such as "tabgroup status" or
// "tabgroup reset" observe a consistent document. Writes go to a temporary
// file that is renamed over the document, so a crash mid-write never leaves
// a truncated file behind.
//
// RunLock is a second, non-blocking flock on its own file. A host holds it
// for the whole of a task run, so another host starting on the same state
// directory can tell a live run from one left behind by a crashed process.
//
// The store satisfies task.Store and is the only persistence layer the task
// controller uses.
package kvstore
