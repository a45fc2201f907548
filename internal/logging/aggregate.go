package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// LogEntry is one parsed host.log line.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	RunID     string         `json:"run_id,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects log entries. Criteria are combined with AND; zero
// fields match everything.
type LogFilter struct {
	// Level keeps entries at or above this level (DEBUG < INFO < WARN < ERROR).
	Level string
	// Since keeps entries at or after this time.
	Since time.Time
	// RunID keeps entries logged for one task run.
	RunID string
	// Phase keeps entries logged during one workflow phase.
	Phase string
	// Pattern keeps entries whose message or attribute values match.
	Pattern *regexp.Regexp
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// LogFiles returns the host log and its rotated backups in dir, oldest
// first. Missing files are skipped.
func LogFiles(dir string) ([]string, error) {
	base := filepath.Join(dir, LogFileName)
	backups, err := filepath.Glob(base + ".*")
	if err != nil {
		return nil, err
	}

	type numbered struct {
		path string
		n    int
	}
	var rotated []numbered
	for _, p := range backups {
		var n int
		if _, err := fmt.Sscanf(strings.TrimPrefix(p, base+"."), "%d", &n); err == nil && n > 0 {
			rotated = append(rotated, numbered{p, n})
		}
	}
	// host.log.N is the oldest.
	sort.Slice(rotated, func(i, j int) bool { return rotated[i].n > rotated[j].n })

	files := make([]string, 0, len(rotated)+1)
	for _, r := range rotated {
		files = append(files, r.path)
	}
	if _, err := os.Stat(base); err == nil {
		files = append(files, base)
	}
	return files, nil
}

// ReadLogs parses the host log and its backups in dir. Lines that are not
// JSON are skipped. Entries are returned in timestamp order.
func ReadLogs(dir string) ([]LogEntry, error) {
	files, err := LogFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no log file in %s: %w", dir, os.ErrNotExist)
	}

	var entries []LogEntry
	for _, path := range files {
		fileEntries, err := readLogFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func readLogFile(path string) ([]LogEntry, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		// Rotated away between listing and opening.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var entries []LogEntry
	scanner := bufio.NewScanner(file)

	// Debug traces can make long lines
	const maxScanTokenSize = 1024 * 1024 // 1MB
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := ParseLogEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}
	return entries, nil
}

// ParseLogEntry parses a single JSON log line.
func ParseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var entry LogEntry
	if timeStr, ok := raw["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, timeStr); err == nil {
			entry.Timestamp = t
		}
	}
	entry.Level, _ = raw["level"].(string)
	entry.Message, _ = raw["msg"].(string)
	entry.RunID, _ = raw["run_id"].(string)
	entry.Phase, _ = raw["phase"].(string)

	for _, k := range []string{"time", "level", "msg", "run_id", "phase"} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		entry.Attrs = raw
	}
	return entry, nil
}

// FilterLogs returns the entries that match filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	var filtered []LogEntry
	for _, entry := range entries {
		if filter.Match(entry) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// Match reports whether entry satisfies every criterion of f.
func (f LogFilter) Match(entry LogEntry) bool {
	if f.Level != "" {
		minLevel, minOK := levelOrder[strings.ToUpper(f.Level)]
		got, gotOK := levelOrder[strings.ToUpper(entry.Level)]
		if minOK && gotOK && got < minLevel {
			return false
		}
	}
	if !f.Since.IsZero() && entry.Timestamp.Before(f.Since) {
		return false
	}
	if f.RunID != "" && entry.RunID != f.RunID {
		return false
	}
	if f.Phase != "" && entry.Phase != f.Phase {
		return false
	}
	if f.Pattern != nil {
		text := entry.Message
		for _, v := range entry.Attrs {
			text += " " + fmt.Sprint(v)
		}
		if !f.Pattern.MatchString(text) {
			return false
		}
	}
	return true
}

// FormatEntry renders entry as a single human-readable line:
// [15:04:05.000] LEVEL message run_id=... phase=... key=value
func FormatEntry(entry LogEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %-5s %s", entry.Timestamp.Local().Format("15:04:05.000"),
		strings.ToUpper(entry.Level), entry.Message)

	if entry.RunID != "" {
		fmt.Fprintf(&sb, " run_id=%s", entry.RunID)
	}
	if entry.Phase != "" {
		fmt.Fprintf(&sb, " phase=%s", entry.Phase)
	}

	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Attrs[k])
	}
	return sb.String()
}
