// Package restable models the public resource declaration table of a
// decompiled tree (res/values/public.xml).
package restable

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"apkmerge/internal/markup"
)

// DeclarationFile is the table location relative to a tree root.
const DeclarationFile = "res/values/public.xml"

// DefaultPlaceholderPrefix is the prefix apktool gives unrecovered names.
const DefaultPlaceholderPrefix = "APKTOOL_DUMMY_"

const provenanceTag = "provenance:"

var (
	// ErrMalformedTable is returned when the table is absent or unreadable.
	ErrMalformedTable = errors.New("malformed resource table")

	// ErrDuplicateKey is returned when a (type, id) pair is declared twice.
	ErrDuplicateKey = errors.New("duplicate resource key")
)

// Key identifies a declaration. IDs are only unique together with the type.
type Key struct {
	Type string
	ID   string
}

func (k Key) String() string {
	return k.Type + "/" + k.ID
}

// Declaration is one <public/> entry.
type Declaration struct {
	Type string
	ID   string
	Name string

	// Provenance names the split that contributed the declaration.
	// Empty for declarations the base already had.
	Provenance string
}

// Key returns the declaration's (type, id) key.
func (d Declaration) Key() Key {
	return Key{Type: d.Type, ID: d.ID}
}

func (d Declaration) String() string {
	return fmt.Sprintf("%s %s %s", d.Type, d.ID, d.Name)
}

// IsPlaceholder reports whether name was synthesized by the decompiler.
func IsPlaceholder(name, prefix string) bool {
	if prefix == "" {
		prefix = DefaultPlaceholderPrefix
	}
	return strings.HasPrefix(name, prefix)
}

// Table is an ordered list of declarations.
type Table struct {
	decls []Declaration
}

// New returns a table holding decls. Duplicate keys are rejected.
func New(decls ...Declaration) (*Table, error) {
	t := &Table{}
	seen := make(map[Key]struct{}, len(decls))
	for _, d := range decls {
		if _, dup := seen[d.Key()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, d.Key())
		}
		seen[d.Key()] = struct{}{}
		t.decls = append(t.decls, d)
	}
	return t, nil
}

// Load reads the declaration table of the tree rooted at treeRoot.
// An absent file yields ErrMalformedTable wrapping fs.ErrNotExist.
func Load(treeRoot string) (*Table, error) {
	path := filepath.Join(treeRoot, filepath.FromSlash(DeclarationFile))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTable, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a declaration table document.
func Parse(data []byte) (*Table, error) {
	d := xml.NewDecoder(bytes.NewReader(data))

	var (
		decls   []Declaration
		depth   int
		sawRoot bool
		last    = -1
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedTable, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				if t.Name.Local != "resources" {
					return nil, fmt.Errorf("%w: root element is <%s>, want <resources>", ErrMalformedTable, t.Name.Local)
				}
				sawRoot = true
				continue
			}
			last = -1
			if depth != 2 || t.Name.Local != "public" {
				continue
			}
			decl := Declaration{}
			for _, a := range t.Attr {
				switch a.Name.Local {
				case "type":
					decl.Type = a.Value
				case "name":
					decl.Name = a.Value
				case "id":
					decl.ID = a.Value
				}
			}
			if decl.Type == "" || decl.Name == "" || decl.ID == "" {
				return nil, fmt.Errorf("%w: <public> needs type, name and id (got %s)", ErrMalformedTable, decl)
			}
			decls = append(decls, decl)
			last = len(decls) - 1

		case xml.EndElement:
			depth--

		case xml.Comment:
			text := strings.TrimSpace(string(t))
			if last >= 0 && strings.HasPrefix(text, provenanceTag) {
				decls[last].Provenance = strings.TrimSpace(strings.TrimPrefix(text, provenanceTag))
			}
		}
	}
	if !sawRoot {
		return nil, fmt.Errorf("%w: no <resources> element", ErrMalformedTable)
	}
	return New(decls...)
}

// Len returns the number of declarations.
func (t *Table) Len() int {
	return len(t.decls)
}

// Declarations returns a copy of the declarations in table order.
func (t *Table) Declarations() []Declaration {
	out := make([]Declaration, len(t.decls))
	copy(out, t.decls)
	return out
}

// IndexByID indexes the table by (type, id).
func (t *Table) IndexByID() map[Key]Declaration {
	idx := make(map[Key]Declaration, len(t.decls))
	for _, d := range t.decls {
		idx[d.Key()] = d
	}
	return idx
}

// TypesByID maps each id to the types that declare it.
func (t *Table) TypesByID() map[string][]string {
	idx := make(map[string][]string, len(t.decls))
	for _, d := range t.decls {
		idx[d.ID] = append(idx[d.ID], d.Type)
	}
	return idx
}

// Append adds decls in front of the existing declarations, keeping their
// relative order. Keys already present are rejected and nothing is added.
func (t *Table) Append(decls ...Declaration) error {
	if len(decls) == 0 {
		return nil
	}
	merged := make([]Declaration, 0, len(decls)+len(t.decls))
	merged = append(merged, decls...)
	merged = append(merged, t.decls...)
	next, err := New(merged...)
	if err != nil {
		return err
	}
	t.decls = next.decls
	return nil
}

// Rename renames every declaration of type typ named from. It returns the
// number of declarations changed.
func (t *Table) Rename(typ, from, to string) int {
	n := 0
	for i := range t.decls {
		if t.decls[i].Type == typ && t.decls[i].Name == from {
			t.decls[i].Name = to
			n++
		}
	}
	return n
}

// Marshal renders the table in apktool's layout.
func (t *Table) Marshal() []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString("<resources>\n")
	for _, d := range t.decls {
		fmt.Fprintf(&b, "    <public type=\"%s\" name=\"%s\" id=\"%s\" />\n",
			markup.EscapeAttr(d.Type, '"'), markup.EscapeAttr(d.Name, '"'), markup.EscapeAttr(d.ID, '"'))
		if d.Provenance != "" {
			fmt.Fprintf(&b, "    <!-- %s %s -->\n", provenanceTag, sanitizeComment(d.Provenance))
		}
	}
	b.WriteString("</resources>\n")
	return b.Bytes()
}

// Save writes the table under treeRoot unless the file already holds the
// same bytes. It reports whether it wrote.
func (t *Table) Save(treeRoot string) (bool, error) {
	path := filepath.Join(treeRoot, filepath.FromSlash(DeclarationFile))
	data := t.Marshal()

	existing, err := os.ReadFile(path)
	switch {
	case err == nil && bytes.Equal(existing, data):
		return false, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, err
	}
	return true, nil
}

func sanitizeComment(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.TrimSuffix(s, "-")
}
