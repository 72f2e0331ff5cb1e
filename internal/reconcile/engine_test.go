package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"apkmerge/internal/config"
	"apkmerge/internal/restable"
	"apkmerge/internal/rewrite"
	"apkmerge/internal/treemerge"
)

const header = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func read(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func publicXML(decls ...string) string {
	s := header + "<resources>\n"
	for _, d := range decls {
		s += "    " + d + "\n"
	}
	return s + "</resources>\n"
}

func newTestEngine(t *testing.T, logger *zap.Logger) *Engine {
	t.Helper()
	mg, err := treemerge.New(config.DefaultTableFiles, logger)
	require.NoError(t, err)
	return New("", rewrite.New(logger), mg, logger)
}

func TestRun_RenamesBasePlaceholder(t *testing.T) {
	work := t.TempDir()
	base := filepath.Join(work, "base")
	split := filepath.Join(work, "config.en")

	writeFiles(t, base, map[string]string{
		"AndroidManifest.xml":   header + `<manifest xmlns:android="http://schemas.android.com/apk/res/android" package="com.example"><application android:label="@string/APKTOOL_DUMMY_1"/></manifest>`,
		"res/values/public.xml": publicXML(`<public type="string" name="APKTOOL_DUMMY_1" id="0x7f1" />`),
		"res/layout/main.xml":   header + `<TextView xmlns:android="http://schemas.android.com/apk/res/android" android:text="@string/APKTOOL_DUMMY_1" />`,
	})
	writeFiles(t, split, map[string]string{
		"AndroidManifest.xml":       header + `<manifest package="com.example" split="config.en"/>`,
		"apktool.yml":               "version: 2.9.3\n",
		"res/values/public.xml":     publicXML(`<public type="string" name="app_title" id="0x7f1" />`),
		"res/values-en/strings.xml": header + `<resources><string name="app_title">Title</string></resources>`,
	})

	core, logs := observer.New(zap.DebugLevel)
	out, err := newTestEngine(t, zap.New(core)).Run(context.Background(),
		Tree{Name: "base", Root: base},
		[]Tree{{Name: "config.en", Root: split}})
	require.NoError(t, err)

	assert.Equal(t, 1, out.BaseRules)
	assert.True(t, out.TableWritten)
	require.Len(t, out.Splits, 1)
	assert.Equal(t, 1, out.Splits[0].BaseRenames)
	assert.Equal(t, 1, out.Splits[0].Merge.Moved)
	assert.Equal(t, 1, out.BaseRewrite.Substitutions)

	assert.Contains(t, read(t, base, "res/layout/main.xml"), `android:text="@string/app_title"`)
	// Only the resource subtree is rewritten
	assert.Contains(t, read(t, base, "AndroidManifest.xml"), `android:label="@string/APKTOOL_DUMMY_1"`)
	assert.Contains(t, read(t, base, "res/values-en/strings.xml"), "Title")

	tbl, err := restable.Load(base)
	require.NoError(t, err)
	assert.Equal(t, []restable.Declaration{{Type: "string", ID: "0x7f1", Name: "app_title"}}, tbl.Declarations())

	assert.Equal(t, 1, logs.FilterMessage("base rename").Len())
	assert.Equal(t, 1, logs.FilterMessage("split classified").Len())
}

func TestRun_RewritesSplitBeforeMerging(t *testing.T) {
	work := t.TempDir()
	base := filepath.Join(work, "base")
	split := filepath.Join(work, "config.xhdpi")

	writeFiles(t, base, map[string]string{
		"res/values/public.xml": publicXML(`<public type="drawable" name="ic_launcher" id="0x7f2" />`),
	})
	writeFiles(t, split, map[string]string{
		"res/values/public.xml":          publicXML(`<public type="drawable" name="APKTOOL_DUMMY_2" id="0x7f2" />`),
		"res/drawable-xhdpi/inset.xml":   header + `<inset xmlns:android="http://schemas.android.com/apk/res/android" android:drawable="@drawable/APKTOOL_DUMMY_2" />`,
		"res/drawable-xhdpi/ic_logo.png": "png",
	})

	out, err := newTestEngine(t, nil).Run(context.Background(),
		Tree{Name: "base", Root: base},
		[]Tree{{Name: "config.xhdpi", Root: split}})
	require.NoError(t, err)

	assert.Equal(t, 0, out.BaseRules)
	assert.Equal(t, 1, out.Splits[0].Rewrite.Substitutions)
	assert.Contains(t, read(t, base, "res/drawable-xhdpi/inset.xml"), `@drawable/ic_launcher`)
	assert.Equal(t, "png", read(t, base, "res/drawable-xhdpi/ic_logo.png"))
	assert.False(t, out.TableWritten)
}

func TestRun_TypeMismatchTouchesNothing(t *testing.T) {
	work := t.TempDir()
	base := filepath.Join(work, "base")
	split := filepath.Join(work, "config.xhdpi")

	basePublic := publicXML(`<public type="string" name="app_title" id="0x7f1" />`)
	writeFiles(t, base, map[string]string{"res/values/public.xml": basePublic})
	writeFiles(t, split, map[string]string{
		"res/values/public.xml":       publicXML(`<public type="drawable" name="icon" id="0x7f1" />`),
		"res/drawable-xhdpi/icon.png": "png",
	})

	_, err := newTestEngine(t, nil).Run(context.Background(),
		Tree{Name: "base", Root: base},
		[]Tree{{Name: "config.xhdpi", Root: split}})
	require.ErrorIs(t, err, ErrTypeMismatch)

	assert.Equal(t, basePublic, read(t, base, "res/values/public.xml"))
	assert.NoFileExists(t, filepath.Join(base, "res", "drawable-xhdpi", "icon.png"))
	assert.FileExists(t, filepath.Join(split, "res", "drawable-xhdpi", "icon.png"))
}

func TestRun_NewDeclarationRecordsProvenance(t *testing.T) {
	work := t.TempDir()
	base := filepath.Join(work, "base")
	split := filepath.Join(work, "config.xhdpi")

	writeFiles(t, base, map[string]string{
		"res/values/public.xml": publicXML(`<public type="string" name="app_title" id="0x7f1" />`),
	})
	writeFiles(t, split, map[string]string{
		"res/values/public.xml": publicXML(`<public type="color" name="brand_blue" id="0x7f9" />`),
	})

	out, err := newTestEngine(t, nil).Run(context.Background(),
		Tree{Name: "base", Root: base},
		[]Tree{{Name: "config.xhdpi", Root: split}})
	require.NoError(t, err)
	assert.True(t, out.TableWritten)
	assert.Equal(t, 1, out.Splits[0].New)
	assert.Equal(t, 1, out.Splits[0].Merge.Excluded)

	tbl, err := restable.Load(base)
	require.NoError(t, err)
	assert.Equal(t, []restable.Declaration{
		{Type: "color", ID: "0x7f9", Name: "brand_blue", Provenance: "config.xhdpi"},
		{Type: "string", ID: "0x7f1", Name: "app_title"},
	}, tbl.Declarations())
}

func TestRun_BaseWithoutTableMergesOnly(t *testing.T) {
	work := t.TempDir()
	base := filepath.Join(work, "base")
	split := filepath.Join(work, "config.arm64_v8a")

	writeFiles(t, base, map[string]string{"AndroidManifest.xml": header + `<manifest package="com.example"/>`})
	writeFiles(t, split, map[string]string{
		"res/values/public.xml":      publicXML(`<public type="string" name="x" id="0x7f1" />`),
		"lib/arm64-v8a/libnative.so": "elf",
	})

	core, logs := observer.New(zap.InfoLevel)
	out, err := newTestEngine(t, zap.New(core)).Run(context.Background(),
		Tree{Name: "base", Root: base},
		[]Tree{{Name: "config.arm64_v8a", Root: split}})
	require.NoError(t, err)

	assert.False(t, out.TableWritten)
	assert.Equal(t, "elf", read(t, base, "lib/arm64-v8a/libnative.so"))
	assert.NoFileExists(t, filepath.Join(base, "res", "values", "public.xml"))
	assert.Equal(t, 1, logs.FilterMessage("base has no declaration table, skipping reconciliation").Len())
}

func TestLoad_MalformedSplitTable(t *testing.T) {
	work := t.TempDir()
	base := filepath.Join(work, "base")
	split := filepath.Join(work, "broken")

	writeFiles(t, base, map[string]string{"res/values/public.xml": publicXML()})
	writeFiles(t, split, map[string]string{"res/values/public.xml": "<resources><public"})

	_, _, err := newTestEngine(t, nil).Load(Tree{Name: "base", Root: base}, []Tree{{Name: "broken", Root: split}})
	require.ErrorIs(t, err, restable.ErrMalformedTable)
	assert.Contains(t, err.Error(), "split broken")
}

func TestRun_WarnsOnDuplicateNames(t *testing.T) {
	work := t.TempDir()
	base := filepath.Join(work, "base")
	split := filepath.Join(work, "s")

	writeFiles(t, base, map[string]string{
		"res/values/public.xml": publicXML(`<public type="string" name="title" id="0x7f1" />`),
	})
	writeFiles(t, split, map[string]string{
		"res/values/public.xml": publicXML(`<public type="string" name="title" id="0x7f2" />`),
	})

	core, logs := observer.New(zap.WarnLevel)
	_, err := newTestEngine(t, zap.New(core)).Run(context.Background(),
		Tree{Name: "base", Root: base}, []Tree{{Name: "s", Root: split}})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("name bound to several identifiers").Len())
}

func TestApply_Canceled(t *testing.T) {
	work := t.TempDir()
	base := filepath.Join(work, "base")
	split := filepath.Join(work, "s")
	writeFiles(t, base, map[string]string{"res/values/public.xml": publicXML()})
	writeFiles(t, split, map[string]string{"res/raw/a.bin": "a"})

	e := newTestEngine(t, nil)
	baseTable, splits, err := e.Load(Tree{Name: "base", Root: base}, []Tree{{Name: "s", Root: split}})
	require.NoError(t, err)
	plan, err := e.Plan(baseTable, splits)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Apply(ctx, plan, base)
	assert.ErrorIs(t, err, context.Canceled)
}
