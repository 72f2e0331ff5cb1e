package rewrite

import (
	"strings"

	"apkmerge/internal/markup"
)

// ShapeKind classifies a value before any rewrite decision.
type ShapeKind int

const (
	// Unrelated values are never touched.
	Unrelated ShapeKind = iota
	// Qualified is @type/name, @+type/name, ?type/name or ?name.
	Qualified
	// BareTyped is a plain name whose type comes from the surrounding element.
	BareTyped
)

func (k ShapeKind) String() string {
	switch k {
	case Qualified:
		return "qualified"
	case BareTyped:
		return "bare-typed"
	default:
		return "unrelated"
	}
}

// Shape is a recognized reference inside a value. Offsets index the
// unescaped value.
type Shape struct {
	Kind ShapeKind
	Type string
	Name string

	// TokenStart/TokenEnd bound the value without surrounding whitespace.
	TokenStart, TokenEnd int
	// NameStart/NameEnd bound Name.
	NameStart, NameEnd int
}

// Token returns the trimmed part of value the shape was read from.
func (s Shape) Token(value string) string {
	return value[s.TokenStart:s.TokenEnd]
}

// Replace returns value with Name replaced by name.
func (s Shape) Replace(value, name string) string {
	return value[:s.NameStart] + name + value[s.NameEnd:]
}

var unrelated = Shape{Kind: Unrelated}

// valueTags maps value-document tags to the resource type they declare.
var valueTags = map[string]string{
	"attr":              "attr",
	"bool":              "bool",
	"color":             "color",
	"declare-styleable": "styleable",
	"dimen":             "dimen",
	"drawable":          "drawable",
	"fraction":          "fraction",
	"id":                "id",
	"integer":           "integer",
	"integer-array":     "array",
	"array":             "array",
	"plurals":           "plurals",
	"string":            "string",
	"string-array":      "array",
	"style":             "style",
}

// trimmed returns the bounds of value without leading/trailing whitespace.
func trimmed(value string) (int, int) {
	start, end := 0, len(value)
	for start < end && isSpace(value[start]) {
		start++
	}
	for end > start && isSpace(value[end-1]) {
		end--
	}
	return start, end
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// ClassifyValue recognizes a qualified reference. Framework or
// package-qualified references (@android:string/x, @*android:id/y) are
// Unrelated.
func ClassifyValue(value string) Shape {
	start, end := trimmed(value)
	if end-start < 2 {
		return unrelated
	}
	tok := value[start:end]

	sigil := tok[0]
	if sigil != '@' && sigil != '?' {
		return unrelated
	}
	i := 1
	if sigil == '@' && tok[i] == '+' {
		i++
	}
	body := tok[i:]
	if body == "" || body[0] == '*' || strings.ContainsAny(body, ": \t\r\n") {
		return unrelated
	}

	slash := strings.IndexByte(body, '/')
	var typ, name string
	nameOff := i
	switch {
	case slash < 0 && sigil == '?':
		// ?name is shorthand for ?attr/name
		typ, name = "attr", body
	case slash <= 0 || slash == len(body)-1:
		return unrelated
	default:
		typ, name = body[:slash], body[slash+1:]
		nameOff = i + slash + 1
		if strings.IndexByte(name, '/') >= 0 {
			return unrelated
		}
	}

	return Shape{
		Kind:       Qualified,
		Type:       typ,
		Name:       name,
		TokenStart: start,
		TokenEnd:   end,
		NameStart:  start + nameOff,
		NameEnd:    end,
	}
}

// ClassifyAttr classifies one attribute. valuesDoc marks documents under
// res/values*, where a value element's tag implies the declared type.
func ClassifyAttr(el *markup.Element, a *markup.Attr, valuesDoc bool) Shape {
	if a.Name.Space == "" && a.Name.Local == "name" {
		if typ := bareType(el, valuesDoc); typ != "" {
			start, end := trimmed(a.Value)
			// package-qualified names belong to another package
			if start == end || strings.Contains(a.Value[start:end], ":") {
				return unrelated
			}
			return Shape{
				Kind:       BareTyped,
				Type:       typ,
				Name:       a.Value[start:end],
				TokenStart: start,
				TokenEnd:   end,
				NameStart:  start,
				NameEnd:    end,
			}
		}
		return unrelated
	}
	return ClassifyValue(a.Value)
}

// bareType returns the type a bare name attribute on el refers to.
func bareType(el *markup.Element, valuesDoc bool) string {
	if t := el.Attr("", "type"); t != nil && strings.TrimSpace(t.Value) != "" {
		return strings.TrimSpace(t.Value)
	}
	if !valuesDoc || el.Name.Space != "" || el.Parent == nil || el.Parent.Name.Space != "" {
		return ""
	}
	switch el.Parent.Name.Local {
	case "resources":
		return valueTags[el.Name.Local]
	case "declare-styleable":
		if el.Name.Local == "attr" {
			return "attr"
		}
	case "style":
		// a style item names the attribute it sets
		if el.Name.Local == "item" {
			return "attr"
		}
	}
	return ""
}

// ClassifyText classifies element character data.
func ClassifyText(t *markup.Text) Shape {
	return ClassifyValue(t.Value)
}
