package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Iron-Ham/tabgroup/internal/browser"
	"github.com/Iron-Ham/tabgroup/internal/grouping"
)

// ErrMalformedResponse means the model's reply could not be read as a plan.
var ErrMalformedResponse = errors.New("malformed AI response")

// maxFieldLen truncates long titles and URLs so huge tab sets stay within
// typical context windows.
const maxFieldLen = 200

// SystemPrompt instructs the model on the expected output.
func SystemPrompt() string {
	names := make([]string, 0, len(grouping.Colors()))
	for _, c := range grouping.Colors() {
		names = append(names, string(c))
	}
	return `You organize browser tabs into groups.
Group the tabs the user sends by topic or task. Prefer a few meaningful groups over many small ones.
Every tab id must appear in at most one group. Tabs that fit nowhere may be left out.
Group names are short, one to three words.
Pick a distinct color for each group from: ` + strings.Join(names, ", ") + `.
Reply with JSON only, no prose, in exactly this shape:
{"groups":[{"name":"News","color":"blue","tabIds":[1,2]}]}`
}

type promptTab struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// UserPrompt renders the snapshot as the user message.
func UserPrompt(snapshot browser.Snapshot) (string, error) {
	tabs := make([]promptTab, len(snapshot))
	for i, t := range snapshot {
		tabs[i] = promptTab{ID: t.ID, Title: truncate(t.Title), URL: truncate(t.URL)}
	}
	data, err := json.Marshal(tabs)
	if err != nil {
		return "", fmt.Errorf("encode tabs: %w", err)
	}
	return "Organize these tabs:\n" + string(data), nil
}

// ParsePlan extracts a plan from a model reply. Markdown code fences and
// text around the JSON object are ignored.
func ParsePlan(content string) (grouping.Plan, error) {
	body := stripFences(strings.TrimSpace(content))
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return grouping.Plan{}, fmt.Errorf("%w: no JSON object in reply", ErrMalformedResponse)
	}

	var raw struct {
		Groups *[]grouping.Group `json:"groups"`
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), &raw); err != nil {
		return grouping.Plan{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Groups == nil {
		return grouping.Plan{}, fmt.Errorf("%w: missing \"groups\"", ErrMalformedResponse)
	}
	return grouping.Plan{Groups: *raw.Groups}, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, "```")
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxFieldLen {
		return s
	}
	return string(r[:maxFieldLen]) + "..."
}

func preview(s string) string {
	const n = 500
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
