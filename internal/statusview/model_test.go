package statusview

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/tabgroup/internal/task"
)

func TestModel_StateUpdates(t *testing.T) {
	m := NewModel(func() (task.State, error) { return task.Idle{}, nil }, nil)
	m.theme = plainTheme()

	next, _ := m.Update(stateMsg{state: task.Failed{Error: "AI request failed"}})
	m = next.(Model)
	if !strings.Contains(m.View(), "AI request failed") {
		t.Errorf("View() missing failure:\n%s", m.View())
	}

	next, _ = m.Update(stateMsg{err: errors.New("disk gone")})
	m = next.(Model)
	view := m.View()
	if !strings.Contains(view, "read state: disk gone") {
		t.Errorf("View() missing read error:\n%s", view)
	}
	if !strings.Contains(view, "AI request failed") {
		t.Error("read error discarded the last good state")
	}
}

func TestModel_Quit(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyEsc},
	} {
		m := NewModel(nil, nil)
		_, cmd := m.Update(key)
		if cmd == nil {
			t.Fatalf("Update(%q) returned no command", key.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("Update(%q) did not quit", key.String())
		}
	}
}

func TestModel_ChangeReloads(t *testing.T) {
	loads := 0
	changes := make(chan struct{}, 1)
	m := NewModel(func() (task.State, error) {
		loads++
		return task.Running{Phase: task.PhaseUngrouping}, nil
	}, changes)

	_, cmd := m.Update(changedMsg{})
	if cmd == nil {
		t.Fatal("changedMsg returned no command")
	}
	m.loadCmd()()
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}

	changes <- struct{}{}
	if _, ok := m.waitCmd()().(changedMsg); !ok {
		t.Error("waitCmd did not report the change")
	}
	close(changes)
	if msg := m.waitCmd()(); msg != nil {
		t.Errorf("waitCmd on closed channel = %v, want nil", msg)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := Watch(ctx, path, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Unrelated files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changes:
		t.Fatal("change reported for unrelated file")
	case <-time.After(100 * time.Millisecond):
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(`{"task_state":{"status":"idle"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported after rename")
	}

	cancel()
	select {
	case _, ok := <-changes:
		if ok {
			// A trailing debounced signal may still be queued.
			if _, ok := <-changes; ok {
				t.Fatal("changes not closed after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("changes not closed after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	_, err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "state.json"), DefaultDebounce)
	if err == nil {
		t.Fatal("Watch() on missing directory succeeded")
	}
}
