// Package ui renders the end-of-run summary for the apkmerge CLI.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette is the set of colors a summary is drawn with.
type Palette struct {
	Text   lipgloss.Color
	Accent lipgloss.Color
	Faint  lipgloss.Color
	Good   lipgloss.Color
	Bad    lipgloss.Color
	Notice lipgloss.Color
	Dark   bool
}

var (
	lightPalette = Palette{
		Text:   "#101F38",
		Accent: "#101F38",
		Faint:  "#8a94a6",
		Good:   "#558B2F",
		Bad:    "#e53935",
		Notice: "#b28704",
	}
	darkPalette = Palette{
		Text:   "#f2f2f2",
		Accent: "#8BC34A",
		Faint:  "#6b7a94",
		Good:   "#8BC34A",
		Bad:    "#ef5350",
		Notice: "#FFC107",
		Dark:   true,
	}
)

// DetectPalette picks the dark palette when COLORFGBG reports a dark
// background or APKMERGE_DARK_MODE=1.
func DetectPalette() Palette {
	if _, bg, ok := strings.Cut(os.Getenv("COLORFGBG"), ";"); ok {
		// 0-6 and 8 (dark grey)
		if n, err := strconv.Atoi(bg); err == nil && (n <= 6 || n == 8) && n >= 0 {
			return darkPalette
		}
	}
	if os.Getenv("APKMERGE_DARK_MODE") == "1" {
		return darkPalette
	}
	return lightPalette
}

// Styles are the rendered text roles.
type Styles struct {
	Title lipgloss.Style
	Cell  lipgloss.Style
	Head  lipgloss.Style
	Rule  lipgloss.Style

	Completed lipgloss.Style
	Failed    lipgloss.Style
	Skipped   lipgloss.Style
}

// NewStyles derives Styles from p.
func NewStyles(p Palette) Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Foreground(p.Accent).Bold(true),
		Cell:      lipgloss.NewStyle().Foreground(p.Text),
		Head:      lipgloss.NewStyle().Foreground(p.Text).Bold(true),
		Rule:      lipgloss.NewStyle().Foreground(p.Faint),
		Completed: lipgloss.NewStyle().Foreground(p.Good),
		Failed:    lipgloss.NewStyle().Foreground(p.Bad).Bold(true),
		Skipped:   lipgloss.NewStyle().Foreground(p.Notice),
	}
}

// DefaultStyles returns styles for the detected palette.
func DefaultStyles() Styles {
	return NewStyles(DetectPalette())
}
