package grouping

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Color is a tab-group color supported by the browser.
type Color string

const (
	ColorGrey   Color = "grey"
	ColorBlue   Color = "blue"
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorPink   Color = "pink"
	ColorPurple Color = "purple"
	ColorCyan   Color = "cyan"
	ColorOrange Color = "orange"
)

var colors = []Color{
	ColorGrey, ColorBlue, ColorRed, ColorYellow, ColorGreen,
	ColorPink, ColorPurple, ColorCyan, ColorOrange,
}

// Colors returns every supported color.
func Colors() []Color {
	out := make([]Color, len(colors))
	copy(out, colors)
	return out
}

// ParseColor normalises s and returns the matching Color. "gray" is accepted
// as an alias of grey.
func ParseColor(s string) (Color, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "gray" {
		name = string(ColorGrey)
	}
	for _, c := range colors {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown group color %q", s)
}

// UnmarshalJSON accepts any spelling ParseColor accepts.
func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("group color: %w", err)
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
