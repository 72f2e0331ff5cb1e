package markup

import (
	"fmt"
	"sort"
)

type edit struct {
	span Span
	repl string
	seq  int
}

// ReplaceSpan schedules replacing the bytes in s with repl.
func (doc *Document) ReplaceSpan(s Span, repl string) {
	doc.edits = append(doc.edits, edit{span: s, repl: repl, seq: len(doc.edits)})
}

// SetAttrValue replaces the attribute's value, keeping its quote character.
func (doc *Document) SetAttrValue(a *Attr, value string) {
	if a.Value == value {
		return
	}
	doc.ReplaceSpan(a.ValueSpan, EscapeAttr(value, a.Quote))
}

// RemoveAttr removes the attribute together with the whitespace before it.
func (doc *Document) RemoveAttr(a *Attr) {
	start := a.Full.Start
	for start > 0 && isSpace(doc.src[start-1]) {
		start--
	}
	doc.ReplaceSpan(Span{start, a.Full.End}, "")
}

// InsertAttr appends name="value" after the element's last attribute.
// When the element has attributes on separate lines the new one follows the
// same indentation.
func (doc *Document) InsertAttr(e *Element, name, value string) {
	sep := " "
	pos := e.StartTag.Start + 1 + len(e.QName())
	if n := len(e.Attrs); n > 0 {
		last := e.Attrs[n-1]
		pos = last.Full.End
		ws := doc.leadingSpace(last.Full.Start)
		if ws != "" {
			sep = ws
		}
	}
	doc.ReplaceSpan(Span{pos, pos}, sep+name+"="+string('"')+EscapeAttr(value, '"')+string('"'))
}

// RemoveElement removes the element and everything inside it. When the
// element sits on its own line the whole line goes.
func (doc *Document) RemoveElement(e *Element) {
	outer := e.Outer()
	start, end := outer.Start, outer.End

	lineStart := start
	for lineStart > 0 && (doc.src[lineStart-1] == ' ' || doc.src[lineStart-1] == '\t') {
		lineStart--
	}
	if lineStart == 0 || doc.src[lineStart-1] == '\n' {
		lineEnd := end
		for lineEnd < len(doc.src) && (doc.src[lineEnd] == ' ' || doc.src[lineEnd] == '\t') {
			lineEnd++
		}
		switch {
		case lineEnd < len(doc.src) && doc.src[lineEnd] == '\n':
			start, end = lineStart, lineEnd+1
		case lineEnd+1 < len(doc.src) && doc.src[lineEnd] == '\r' && doc.src[lineEnd+1] == '\n':
			start, end = lineStart, lineEnd+2
		}
	}
	doc.ReplaceSpan(Span{start, end}, "")
}

// Changed reports whether any edit is pending.
func (doc *Document) Changed() bool {
	return len(doc.edits) > 0
}

// Bytes returns the source with all pending edits applied.
func (doc *Document) Bytes() ([]byte, error) {
	if len(doc.edits) == 0 {
		return doc.src, nil
	}

	edits := make([]edit, len(doc.edits))
	copy(edits, doc.edits)
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].span.Start != edits[j].span.Start {
			return edits[i].span.Start < edits[j].span.Start
		}
		// Insertions before replacements starting at the same offset
		if edits[i].span.Len() != edits[j].span.Len() {
			return edits[i].span.Len() < edits[j].span.Len()
		}
		return edits[i].seq < edits[j].seq
	})

	out := make([]byte, 0, len(doc.src))
	pos := 0
	for _, e := range edits {
		if e.span.Start < pos {
			return nil, fmt.Errorf("overlapping edits at offset %d", e.span.Start)
		}
		out = append(out, doc.src[pos:e.span.Start]...)
		out = append(out, e.repl...)
		pos = e.span.End
	}
	out = append(out, doc.src[pos:]...)
	return out, nil
}

// leadingSpace returns the whitespace run that ends at pos if it contains a
// newline, otherwise "".
func (doc *Document) leadingSpace(pos int) string {
	start := pos
	for start > 0 && isSpace(doc.src[start-1]) {
		start--
	}
	ws := string(doc.src[start:pos])
	for i := 0; i < len(ws); i++ {
		if ws[i] == '\n' {
			return ws[i:]
		}
	}
	return ""
}
