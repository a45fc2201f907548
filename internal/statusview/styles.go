package statusview

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
)

// theme holds the styles used by Render. The plain theme renders text
// unchanged for pipes and non-interactive output.
type theme struct {
	title     lipgloss.Style
	running   lipgloss.Style
	completed lipgloss.Style
	cancelled lipgloss.Style
	failed    lipgloss.Style
	muted     lipgloss.Style
}

func styledTheme() theme {
	return theme{
		title:     lipgloss.NewStyle().Bold(true).Foreground(primaryColor),
		running:   lipgloss.NewStyle().Bold(true).Foreground(primaryColor),
		completed: lipgloss.NewStyle().Bold(true).Foreground(successColor),
		cancelled: lipgloss.NewStyle().Bold(true).Foreground(warningColor),
		failed:    lipgloss.NewStyle().Bold(true).Foreground(errorColor),
		muted:     lipgloss.NewStyle().Foreground(mutedColor),
	}
}

func plainTheme() theme {
	plain := lipgloss.NewStyle()
	return theme{
		title:     plain,
		running:   plain,
		completed: plain,
		cancelled: plain,
		failed:    plain,
		muted:     plain,
	}
}
