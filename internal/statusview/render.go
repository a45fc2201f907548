package statusview

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/tabgroup/internal/task"
)

var phaseLabels = map[task.Phase]string{
	task.PhaseFetchingTabs:   "Fetching tabs",
	task.PhaseUngrouping:     "Ungrouping existing groups",
	task.PhaseCallingAI:      "Calling AI",
	task.PhaseCreatingGroups: "Creating groups",
}

// PhaseLabel returns a human-readable description of p.
func PhaseLabel(p task.Phase) string {
	if label, ok := phaseLabels[p]; ok {
		return label
	}
	return string(p)
}

// PhaseProgress formats p as "n/total", or "?/total" for an unknown phase.
func PhaseProgress(p task.Phase) string {
	total := len(task.Phases())
	if i := p.Index(); i >= 0 {
		return fmt.Sprintf("%d/%d", i+1, total)
	}
	return fmt.Sprintf("?/%d", total)
}

// Render renders s with terminal styling.
func Render(s task.State, now time.Time) string {
	return render(s, now, "●", styledTheme())
}

// RenderPlain renders s without styling, for pipes and scripts.
func RenderPlain(s task.State, now time.Time) string {
	return render(s, now, "*", plainTheme())
}

// render formats s. spin is the glyph shown while running.
func render(s task.State, now time.Time, spin string, th theme) string {
	var b strings.Builder
	b.WriteString(th.title.Render("tabgroup"))
	b.WriteString("\n\n")

	switch st := s.(type) {
	case task.Running:
		fmt.Fprintf(&b, "%s %s  %s (%s)\n", spin, th.running.Render("running"),
			PhaseLabel(st.Phase), PhaseProgress(st.Phase))
		b.WriteString(th.muted.Render(fmt.Sprintf("  started %s ago, run %s", since(now, st.StartedAt), st.RunID)))
		b.WriteString("\n")
	case task.Completed:
		fmt.Fprintf(&b, "✓ %s  %s\n", th.completed.Render("completed"), groupsLabel(st.Result.GroupCount))
		b.WriteString(th.muted.Render(fmt.Sprintf("  finished %s ago", since(now, st.CompletedAt))))
		b.WriteString("\n")
		if len(st.Result.Debug) > 0 {
			b.WriteString("\n")
			b.WriteString(th.muted.Render("debug:"))
			b.WriteString("\n")
			for _, line := range st.Result.Debug {
				b.WriteString(th.muted.Render("  " + line))
				b.WriteString("\n")
			}
		}
	case task.Cancelled:
		fmt.Fprintf(&b, "○ %s\n", th.cancelled.Render("cancelled"))
		b.WriteString(th.muted.Render(fmt.Sprintf("  cancelled %s ago", since(now, st.CancelledAt))))
		b.WriteString("\n")
	case task.Failed:
		fmt.Fprintf(&b, "✗ %s  %s\n", th.failed.Render("error"), st.Error)
		b.WriteString(th.muted.Render(fmt.Sprintf("  failed %s ago", since(now, st.FailedAt))))
		b.WriteString("\n")
	default:
		fmt.Fprintf(&b, "· %s  %s\n", th.muted.Render("idle"), th.muted.Render("no task has run"))
	}
	return b.String()
}

func groupsLabel(n int) string {
	if n == 1 {
		return "1 group"
	}
	return fmt.Sprintf("%d groups", n)
}

func since(now, t time.Time) time.Duration {
	d := now.Sub(t).Round(time.Second)
	if d < 0 {
		return 0
	}
	return d
}
