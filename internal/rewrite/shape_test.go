package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apkmerge/internal/markup"
)

func TestClassifyValue(t *testing.T) {
	tests := []struct {
		value string
		kind  ShapeKind
		typ   string
		name  string
	}{
		{"@string/app_name", Qualified, "string", "app_name"},
		{"@+id/toolbar", Qualified, "id", "toolbar"},
		{"?attr/colorAccent", Qualified, "attr", "colorAccent"},
		{"?colorAccent", Qualified, "attr", "colorAccent"},
		{"  @drawable/APKTOOL_DUMMY_3\n", Qualified, "drawable", "APKTOOL_DUMMY_3"},
		{"@android:string/ok", Unrelated, "", ""},
		{"@*android:id/title", Unrelated, "", ""},
		{"?android:attr/textColorPrimary", Unrelated, "", ""},
		{"?android:textColorPrimary", Unrelated, "", ""},
		{"@null", Unrelated, "", ""},
		{"@string/", Unrelated, "", ""},
		{"@/name", Unrelated, "", ""},
		{"@a/b/c", Unrelated, "", ""},
		{"Hello @string/x", Unrelated, "", ""},
		{"fill_parent", Unrelated, "", ""},
		{"@", Unrelated, "", ""},
		{"", Unrelated, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			s := ClassifyValue(tt.value)
			assert.Equal(t, tt.kind, s.Kind)
			assert.Equal(t, tt.typ, s.Type)
			assert.Equal(t, tt.name, s.Name)
			if s.Kind != Unrelated {
				assert.Equal(t, tt.name, tt.value[s.NameStart:s.NameEnd])
			}
		})
	}
}

func TestShape_ReplaceKeepsSurroundings(t *testing.T) {
	value := "  @+id/APKTOOL_DUMMY_9 \n"
	s := ClassifyValue(value)
	require.Equal(t, Qualified, s.Kind)
	assert.Equal(t, "  @+id/content \n", s.Replace(value, "content"))
	assert.Equal(t, "@+id/APKTOOL_DUMMY_9", s.Token(value))
}

func parseDoc(t *testing.T, src string) *markup.Document {
	t.Helper()
	doc, err := markup.Parse([]byte(src))
	require.NoError(t, err)
	return doc
}

func TestClassifyAttr_BareTyped(t *testing.T) {
	doc := parseDoc(t, `<resources>
    <item type="id" name="APKTOOL_DUMMY_1"/>
    <string name="app_name">App</string>
    <string-array name="planets"/>
    <declare-styleable name="Chip">
        <attr name="chipIcon"/>
    </declare-styleable>
    <style name="Theme" parent="@style/Base">
        <item name="android:windowBackground">@drawable/bg</item>
        <item name="APKTOOL_DUMMY_5">#ff0000</item>
    </style>
    <unknown name="x"/>
</resources>`)

	byTag := func(tag string, n int) *markup.Element {
		for _, el := range doc.Elements {
			if el.QName() == tag {
				if n == 0 {
					return el
				}
				n--
			}
		}
		t.Fatalf("no <%s>", tag)
		return nil
	}
	classify := func(el *markup.Element, attr string, values bool) Shape {
		return ClassifyAttr(el, el.Attr("", attr), values)
	}

	s := classify(byTag("item", 0), "name", false)
	assert.Equal(t, BareTyped, s.Kind)
	assert.Equal(t, "id", s.Type)

	s = classify(byTag("string", 0), "name", true)
	assert.Equal(t, BareTyped, s.Kind)
	assert.Equal(t, "string", s.Type)

	assert.Equal(t, Unrelated, classify(byTag("string", 0), "name", false).Kind, "tag-implied types only apply in values documents")
	assert.Equal(t, "array", classify(byTag("string-array", 0), "name", true).Type)
	assert.Equal(t, "styleable", classify(byTag("declare-styleable", 0), "name", true).Type)
	assert.Equal(t, "attr", classify(byTag("attr", 0), "name", true).Type)
	assert.Equal(t, "style", classify(byTag("style", 0), "name", true).Type)

	parent := classify(byTag("style", 0), "parent", true)
	assert.Equal(t, Qualified, parent.Kind)
	assert.Equal(t, "Base", parent.Name)

	assert.Equal(t, Unrelated, classify(byTag("item", 1), "name", true).Kind, "framework attributes are left alone")

	s = classify(byTag("item", 2), "name", true)
	assert.Equal(t, BareTyped, s.Kind)
	assert.Equal(t, "attr", s.Type)
	assert.Equal(t, "APKTOOL_DUMMY_5", s.Name)
	assert.Equal(t, Unrelated, classify(byTag("item", 2), "name", false).Kind)
	assert.Equal(t, Unrelated, classify(byTag("unknown", 0), "name", true).Kind)
}

func TestShapeKind_String(t *testing.T) {
	assert.Equal(t, "qualified", Qualified.String())
	assert.Equal(t, "bare-typed", BareTyped.String())
	assert.Equal(t, "unrelated", Unrelated.String())
}
