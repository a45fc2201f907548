package statusview

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events one atomic write produces.
const DefaultDebounce = 50 * time.Millisecond

// Watch reports changes to the file at path. The parent directory is
// watched because writers replace the file by rename. The returned channel
// has a buffer of one and drops signals while one is pending; it is closed
// when ctx is done.
func Watch(ctx context.Context, path string, debounce time.Duration) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	changes := make(chan struct{}, 1)
	go watchLoop(ctx, watcher, filepath.Clean(path), debounce, changes)
	return changes, nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, debounce time.Duration, changes chan<- struct{}) {
	defer close(changes)
	defer func() { _ = watcher.Close() }()

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			select {
			case changes <- struct{}{}:
			default:
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
