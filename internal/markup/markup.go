// Package markup locates elements, attributes and text in an XML document by
// byte offset and applies edits as splices into the original bytes.
//
// Nothing outside an edited span is re-encoded, so namespace declarations,
// prefixes, comments, quoting and attribute order survive untouched.
package markup

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Span is a half-open byte range [Start, End) into the source document.
type Span struct {
	Start, End int
}

// Len returns the number of bytes covered.
func (s Span) Len() int { return s.End - s.Start }

// Attr is an attribute inside a start tag.
type Attr struct {
	// Name.Space holds the raw prefix ("android"), not a namespace URI.
	Name  xml.Name
	Value string // unescaped

	Full      Span // name="value"
	ValueSpan Span // raw bytes between the quotes
	Quote     byte
}

// QName returns the attribute name as written.
func (a *Attr) QName() string {
	return qname(a.Name)
}

// Element is one element of the document.
type Element struct {
	Name        xml.Name // raw prefix in Space
	Attrs       []*Attr
	StartTag    Span
	EndTag      Span // equal to StartTag for self-closing elements
	SelfClosing bool
	Depth       int

	Parent   *Element
	Children []*Element
	Texts    []*Text
}

// QName returns the element name as written.
func (e *Element) QName() string {
	return qname(e.Name)
}

// Attr returns the attribute with the given prefix and local name.
func (e *Element) Attr(prefix, local string) *Attr {
	for _, a := range e.Attrs {
		if a.Name.Space == prefix && a.Name.Local == local {
			return a
		}
	}
	return nil
}

// Outer returns the span from the start tag through the end tag.
func (e *Element) Outer() Span {
	return Span{e.StartTag.Start, e.EndTag.End}
}

// Text is a run of character data.
type Text struct {
	Span   Span
	Value  string // unescaped
	CDATA  bool
	Parent *Element
}

// Document is a parsed XML document plus its pending edits.
type Document struct {
	src      []byte
	Root     *Element
	Elements []*Element // document order
	Texts    []*Text

	edits []edit
}

// Parse scans src. Tag nesting is verified; namespaces are not resolved.
func Parse(src []byte) (*Document, error) {
	doc := &Document{src: src}

	d := xml.NewDecoder(bytes.NewReader(src))
	d.Strict = true

	var stack []*Element
	for {
		start := int(d.InputOffset())
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		end := int(d.InputOffset())

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{
				Name:     t.Name,
				StartTag: Span{start, end},
				Depth:    len(stack),
			}
			attrs, err := scanAttrs(src[start:end], start)
			if err != nil {
				return nil, fmt.Errorf("offset %d: %w", start, err)
			}
			if len(attrs) != len(t.Attr) {
				return nil, fmt.Errorf("offset %d: attribute scan mismatch", start)
			}
			for i, a := range attrs {
				a.Name = t.Attr[i].Name
				a.Value = t.Attr[i].Value
			}
			el.Attrs = attrs
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				el.Parent = parent
				parent.Children = append(parent.Children, el)
			} else if doc.Root == nil {
				doc.Root = el
			} else {
				return nil, fmt.Errorf("offset %d: multiple root elements", start)
			}
			doc.Elements = append(doc.Elements, el)
			stack = append(stack, el)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("offset %d: unexpected end element </%s>", start, qname(t.Name))
			}
			el := stack[len(stack)-1]
			if el.Name != t.Name {
				return nil, fmt.Errorf("offset %d: element <%s> closed by </%s>", start, el.QName(), qname(t.Name))
			}
			stack = stack[:len(stack)-1]
			if start == end {
				el.SelfClosing = true
				el.EndTag = el.StartTag
			} else {
				el.EndTag = Span{start, end}
			}

		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			txt := &Text{
				Span:   Span{start, end},
				Value:  string(t),
				CDATA:  bytes.HasPrefix(src[start:end], []byte("<![CDATA[")),
				Parent: stack[len(stack)-1],
			}
			txt.Parent.Texts = append(txt.Parent.Texts, txt)
			doc.Texts = append(doc.Texts, txt)
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].QName())
	}
	if doc.Root == nil {
		return nil, errors.New("no root element")
	}
	return doc, nil
}

// Source returns the original bytes.
func (doc *Document) Source() []byte {
	return doc.src
}

// Raw returns the original bytes covered by s.
func (doc *Document) Raw(s Span) string {
	return string(doc.src[s.Start:s.End])
}

// Namespaces maps every declared prefix to its URI. The default namespace is
// stored under "". The first declaration of a prefix wins.
func (doc *Document) Namespaces() map[string]string {
	ns := make(map[string]string)
	for _, el := range doc.Elements {
		for _, a := range el.Attrs {
			var prefix string
			switch {
			case a.Name.Space == "xmlns":
				prefix = a.Name.Local
			case a.Name.Space == "" && a.Name.Local == "xmlns":
				prefix = ""
			default:
				continue
			}
			if _, ok := ns[prefix]; !ok {
				ns[prefix] = a.Value
			}
		}
	}
	return ns
}

// PrefixFor returns the first prefix bound to uri.
func (doc *Document) PrefixFor(uri string) (string, bool) {
	for _, el := range doc.Elements {
		for _, a := range el.Attrs {
			if a.Name.Space == "xmlns" && a.Value == uri {
				return a.Name.Local, true
			}
		}
	}
	return "", false
}

func qname(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// scanAttrs locates name="value" pairs inside a raw start tag.
func scanAttrs(tag []byte, base int) ([]*Attr, error) {
	i := 1 // skip '<'
	for i < len(tag) && !isSpace(tag[i]) && tag[i] != '/' && tag[i] != '>' {
		i++
	}

	var attrs []*Attr
	for {
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || tag[i] == '/' || tag[i] == '>' {
			return attrs, nil
		}

		nameStart := i
		for i < len(tag) && tag[i] != '=' && !isSpace(tag[i]) && tag[i] != '/' && tag[i] != '>' {
			i++
		}
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || tag[i] != '=' {
			return nil, fmt.Errorf("attribute %q has no value", tag[nameStart:i])
		}
		i++
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || (tag[i] != '"' && tag[i] != '\'') {
			return nil, errors.New("unquoted attribute value")
		}
		quote := tag[i]
		i++
		valueStart := i
		for i < len(tag) && tag[i] != quote {
			i++
		}
		if i >= len(tag) {
			return nil, errors.New("unterminated attribute value")
		}
		attrs = append(attrs, &Attr{
			Full:      Span{base + nameStart, base + i + 1},
			ValueSpan: Span{base + valueStart, base + i},
			Quote:     quote,
		})
		i++
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// EscapeAttr escapes s for use between the given quote characters.
func EscapeAttr(s string, quote byte) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '"':
			if quote == '"' {
				b.WriteString("&quot;")
			} else {
				b.WriteByte(c)
			}
		case '\'':
			if quote == '\'' {
				b.WriteString("&apos;")
			} else {
				b.WriteByte(c)
			}
		case '\n':
			b.WriteString("&#10;")
		case '\t':
			b.WriteString("&#9;")
		case '\r':
			b.WriteString("&#13;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// EscapeText escapes s for use as character data.
func EscapeText(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return strings.NewReplacer("&#xA;", "\n", "&#x9;", "\t").Replace(b.String())
}
