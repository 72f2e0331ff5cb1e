// Package diff renders line diffs of rewritten documents for verbose traces.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

// Line represents a single line in the diff
type Line struct {
	Content string
	Type    LineType
}

// Hunk represents a group of changes
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff represents changes to a single document
type FileDiff struct {
	Path    string
	Hunks   []Hunk
	Added   int
	Removed int
}

// Empty reports whether the two inputs were identical.
func (f *FileDiff) Empty() bool {
	return len(f.Hunks) == 0
}

// Engine computes line diffs
type Engine struct {
	dmp     *diffmatchpatch.DiffMatchPatch
	context int
}

// NewEngine creates a diff engine emitting contextLines lines of context
// around each change.
func NewEngine(contextLines int) *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // Disable timeout for accuracy
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{dmp: dmp, context: contextLines}
}

// Compute diffs oldContent against newContent line by line.
func (e *Engine) Compute(path, oldContent, newContent string) *FileDiff {
	fd := &FileDiff{Path: path}
	if oldContent == newContent {
		return fd
	}

	// Line-level reduction avoids newline boundary artifacts
	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	ops := toOperations(diffs)
	for _, op := range ops {
		switch op.typ {
		case LineAdded:
			fd.Added++
		case LineRemoved:
			fd.Removed++
		}
	}
	fd.Hunks = e.group(ops)
	return fd
}

// operation is one line with its 1-based positions in either side.
type operation struct {
	typ     LineType
	oldLine int
	newLine int
	content string
}

func toOperations(diffs []diffmatchpatch.Diff) []operation {
	var ops []operation
	oldLine, newLine := 1, 1

	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if d.Text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, operation{LineContext, oldLine, newLine, line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, operation{LineRemoved, oldLine, newLine, line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, operation{LineAdded, oldLine, newLine, line})
				newLine++
			}
		}
	}
	return ops
}

// group merges changes closer than twice the context into one hunk.
func (e *Engine) group(ops []operation) []Hunk {
	var hunks []Hunk

	i := 0
	for i < len(ops) {
		if ops[i].typ == LineContext {
			i++
			continue
		}

		start := i - e.context
		if start < 0 {
			start = 0
		}

		// Extend while the next change is within reach
		end := i
		for j := i; j < len(ops); j++ {
			if ops[j].typ != LineContext {
				end = j
				continue
			}
			if j-end > 2*e.context {
				break
			}
		}
		stop := end + e.context + 1
		if stop > len(ops) {
			stop = len(ops)
		}

		h := Hunk{OldStart: ops[start].oldLine, NewStart: ops[start].newLine}
		for _, op := range ops[start:stop] {
			h.Lines = append(h.Lines, Line{Content: op.content, Type: op.typ})
			if op.typ != LineAdded {
				h.OldCount++
			}
			if op.typ != LineRemoved {
				h.NewCount++
			}
		}
		hunks = append(hunks, h)
		i = stop
	}
	return hunks
}

// Unified renders the diff in unified format.
func (f *FileDiff) Unified() string {
	if f.Empty() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", f.Path, f.Path)
	for _, h := range f.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				b.WriteByte('+')
			case LineRemoved:
				b.WriteByte('-')
			default:
				b.WriteByte(' ')
			}
			b.WriteString(l.Content)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
