package kvstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const runLockSuffix = ".run.lock"

// RunLock marks a task run as live across every process sharing the store.
// The holder keeps it for the whole run; the kernel drops it if the process
// dies, so a lock that can be taken means no run is live.
//
// Locks are per RunLock value: two RunLocks on the same store exclude each
// other even inside one process.
type RunLock struct {
	mu sync.Mutex
	fl *fileLock
}

// RunLock returns a new lock handle for the store's run lock file.
func (s *Store) RunLock() *RunLock {
	return &RunLock{fl: newFileLock(s.path + runLockSuffix)}
}

// TryLock acquires the lock without blocking. It reports false when another
// holder has it. Calling TryLock while already holding the lock succeeds.
func (l *RunLock) TryLock() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.fl.path), 0o755); err != nil {
		return false, fmt.Errorf("run lock: create state directory: %w", err)
	}
	ok, err := l.fl.tryLock()
	if err != nil {
		return false, fmt.Errorf("run lock: %w", err)
	}
	return ok, nil
}

// Unlock releases the lock. Unlocking a lock that is not held is a no-op.
func (l *RunLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fl.unlock()
}
