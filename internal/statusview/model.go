// Package statusview renders the persisted task state for the status
// command, either once or as a live terminal view that follows the state
// file.
package statusview

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/tabgroup/internal/task"
)

// Loader reads the current task state.
type Loader func() (task.State, error)

type stateMsg struct {
	state task.State
	err   error
}

type changedMsg struct{}

// Model is the Bubble Tea model behind `status --watch`.
type Model struct {
	load    Loader
	changes <-chan struct{}
	spinner spinner.Model
	theme   theme
	now     func() time.Time

	state task.State
	err   error
}

// NewModel returns a model that reloads state whenever changes fires.
func NewModel(load Loader, changes <-chan struct{}) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styledTheme().running
	return Model{
		load:    load,
		changes: changes,
		spinner: s,
		theme:   styledTheme(),
		now:     time.Now,
		state:   task.Idle{},
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCmd(), m.waitCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case stateMsg:
		m.err = msg.err
		if msg.err == nil {
			m.state = msg.state
		}
		return m, nil

	case changedMsg:
		return m, tea.Batch(m.loadCmd(), m.waitCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	out := render(m.state, m.now(), m.spinner.View(), m.theme)
	if m.err != nil {
		out += "\n" + m.theme.failed.Render("read state: "+m.err.Error()) + "\n"
	}
	return out + "\n" + m.theme.muted.Render("q to quit") + "\n"
}

func (m Model) loadCmd() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		s, err := load()
		return stateMsg{state: s, err: err}
	}
}

func (m Model) waitCmd() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	changes := m.changes
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return changedMsg{}
	}
}

// Run shows the live view until the user quits or ctx is done. statePath
// is the file whose changes trigger a reload.
func Run(ctx context.Context, load Loader, statePath string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes, err := Watch(ctx, statePath, DefaultDebounce)
	if err != nil {
		return err
	}

	p := tea.NewProgram(NewModel(load, changes),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
