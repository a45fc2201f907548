package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/tabgroup/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View host logs",
	Long: `View and filter the native messaging host's log.

The host writes JSON lines to host.log in the state directory and keeps
rotated copies as host.log.1, host.log.2, ...

Examples:
  # Show the last 50 entries
  tabgroup logs

  # Everything logged for one organize run
  tabgroup logs --run 6f1c... -n 0

  # Follow new entries
  tabgroup logs -f --level warn

  # Search messages and attributes
  tabgroup logs --grep "timeout|refused"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail   int
	logsFollow bool
	logsLevel  string
	logsSince  string
	logsRun    string
	logsPhase  string
	logsGrep   string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsRun, "run", "", "Only entries for this task run id")
	logsCmd.Flags().StringVar(&logsPhase, "phase", "", "Only entries for this phase (e.g., calling-ai)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
}

var levelStyles = map[string]lipgloss.Style{
	logging.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
	logging.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
	logging.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	logging.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")),
}

// logsFilter builds the filter from the command flags.
func logsFilter(now time.Time) (logging.LogFilter, error) {
	filter := logging.LogFilter{RunID: logsRun, Phase: logsPhase}
	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return filter, fmt.Errorf("invalid duration format: %w", err)
		}
		filter.Since = now.Add(-d)
	}
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return filter, fmt.Errorf("invalid grep pattern: %w", err)
		}
		filter.Pattern = re
	}
	return filter, nil
}

func formatLogLine(entry logging.LogEntry, color bool) string {
	line := logging.FormatEntry(entry)
	if !color {
		return line
	}
	if style, ok := levelStyles[strings.ToUpper(entry.Level)]; ok {
		return style.Render(line)
	}
	return line
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Paths.ResolveStateDir()
	out := cmd.OutOrStdout()
	color := isTerminal(out)

	filter, err := logsFilter(time.Now())
	if err != nil {
		return err
	}

	if logsFollow {
		return followLogs(cmd.Context(), filepath.Join(dir, logging.LogFileName), filter, out, color)
	}

	entries, err := logging.ReadLogs(dir)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(out, "No logs yet. The host writes to %s\n", filepath.Join(dir, logging.LogFileName))
		return nil
	}
	if err != nil {
		return err
	}

	entries = logging.FilterLogs(entries, filter)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}
	for _, entry := range entries {
		fmt.Fprintln(out, formatLogLine(entry, color))
	}
	return nil
}

// followPollInterval is how often followLogs checks for new lines.
const followPollInterval = 100 * time.Millisecond

// followLogs implements tail -f behavior for the log file. It reopens the
// file when rotation replaces it.
func followLogs(ctx context.Context, logPath string, filter logging.LogFilter, out io.Writer, color bool) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(out, "Following %s... (Ctrl+C to stop)\n\n", logPath)

	reader := bufio.NewReader(file)
	var partial string
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			printFollowedLine(out, partial+line, filter, color)
			partial = ""
			continue
		}
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("error reading log file: %w", err)
		}
		partial += line

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(followPollInterval):
		}

		if rotated(file, logPath) {
			next, err := os.Open(logPath)
			if err != nil {
				continue
			}
			_ = file.Close()
			file = next
			reader = bufio.NewReader(file)
			partial = ""
		}
	}
}

func printFollowedLine(out io.Writer, line string, filter logging.LogFilter, color bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	entry, err := logging.ParseLogEntry(line)
	if err != nil {
		fmt.Fprintln(out, line)
		return
	}
	if filter.Match(entry) {
		fmt.Fprintln(out, formatLogLine(entry, color))
	}
}

// rotated reports whether path now names a different file than f.
func rotated(f *os.File, path string) bool {
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	open, err := f.Stat()
	if err != nil {
		return true
	}
	return !os.SameFile(open, current)
}
