package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders rows of static text in aligned columns.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// NewTable creates a Table with the given title and headers.
func NewTable(title string, headers ...string) *Table {
	return &Table{Title: title, Headers: headers}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(row ...string) {
	t.Rows = append(t.Rows, row)
}

// View renders the table. An empty table renders as "".
func (t *Table) View(styles Styles) string {
	if len(t.Rows) == 0 {
		return ""
	}

	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString(styles.Title.Render(t.Title))
		sb.WriteString("\n")
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}
	// Padding is counted in the style width
	for i := range widths {
		widths[i] += 2
	}

	header := styles.Head.Padding(0, 1)
	body := styles.Cell.Padding(0, 1)
	sep := styles.Rule.Render("|")

	writeRow := func(cells []string, style lipgloss.Style) {
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			sb.WriteString(style.Width(widths[i]).Render(cell))
			if i < len(widths)-1 {
				sb.WriteString(sep)
			}
		}
		sb.WriteString("\n")
	}

	writeRow(t.Headers, header)

	total := len(widths) - 1
	for _, w := range widths {
		total += w
	}
	sb.WriteString(styles.Rule.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")

	for _, row := range t.Rows {
		writeRow(row, body)
	}
	return sb.String()
}
