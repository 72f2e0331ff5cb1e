package ui

import (
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	table := NewTable("Splits", "split", "new")
	table.AddRow("config.en", "3")
	table.AddRow("config.xxhdpi")

	view := table.View(NewStyles(lightPalette))
	t.Logf("View:\n%s", view)

	if !strings.Contains(view, "Splits") {
		t.Error("View missing title")
	}
	if !strings.Contains(view, "config.en") || !strings.Contains(view, "config.xxhdpi") {
		t.Error("View missing cell content")
	}
	lines := strings.Split(strings.TrimRight(view, "\n"), "\n")
	if len(lines) != 5 {
		t.Errorf("expected title, header, divider and 2 rows, got %d lines", len(lines))
	}
}

func TestTable_Empty(t *testing.T) {
	if got := NewTable("x", "a").View(DefaultStyles()); got != "" {
		t.Errorf("empty table rendered %q", got)
	}
}

func TestDetectPalette(t *testing.T) {
	t.Setenv("APKMERGE_DARK_MODE", "")

	t.Setenv("COLORFGBG", "15;0")
	if !DetectPalette().Dark {
		t.Error("COLORFGBG 15;0 should select the dark palette")
	}

	t.Setenv("COLORFGBG", "0;15")
	if DetectPalette().Dark {
		t.Error("COLORFGBG 0;15 should select the light palette")
	}

	t.Setenv("COLORFGBG", "")
	t.Setenv("APKMERGE_DARK_MODE", "1")
	if !DetectPalette().Dark {
		t.Error("APKMERGE_DARK_MODE=1 should select the dark palette")
	}
}
