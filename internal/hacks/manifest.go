package hacks

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"apkmerge/internal/markup"
	"apkmerge/internal/restable"
	"apkmerge/internal/rewrite"
)

// ManifestFile is the decoded manifest at a tree root.
const ManifestFile = "AndroidManifest.xml"

// ErrNoApplication is returned when the manifest has no <application>.
var ErrNoApplication = errors.New("manifest has no <application> element")

// splitMarkers are the meta-data names the store uses to declare splits.
var splitMarkers = map[string]bool{
	"com.android.vending.splits":          true,
	"com.android.vending.splits.required": true,
}

// ManifestChanges records what SuppressSplits did.
type ManifestChanges struct {
	SplitRequiredRemoved bool
	ExtractNativeLibs    string // "set", "inserted" or "" when already true
	LogoReplaced         bool
	MetaDataRemoved      int
	Written              bool
}

// SuppressSplits rewrites the manifest so the merged archive no longer asks
// for splits: isSplitRequired goes, extractNativeLibs becomes true, a
// placeholder logo falls back to the icon and the split meta-data entries
// are dropped.
func (h *Hacks) SuppressSplits(treeRoot string) (ManifestChanges, error) {
	var ch ManifestChanges

	path := filepath.Join(treeRoot, ManifestFile)
	doc, mode, ok, err := load(path)
	if err != nil {
		return ch, err
	}
	if !ok {
		return ch, fmt.Errorf("%s: not found", path)
	}

	android, found := doc.PrefixFor(rewrite.AndroidNamespace)
	if !found {
		h.logger.Warn("manifest does not declare the android namespace, assuming prefix android")
		android = "android"
	}

	var app *markup.Element
	for _, el := range doc.Root.Children {
		if el.Name.Space == "" && el.Name.Local == "application" {
			app = el
			break
		}
	}
	if app == nil {
		return ch, fmt.Errorf("%s: %w", path, ErrNoApplication)
	}

	if a := app.Attr(android, "isSplitRequired"); a != nil {
		doc.RemoveAttr(a)
		ch.SplitRequiredRemoved = true
	}

	switch a := app.Attr(android, "extractNativeLibs"); {
	case a == nil:
		doc.InsertAttr(app, android+":extractNativeLibs", "true")
		ch.ExtractNativeLibs = "inserted"
	case a.Value != "true":
		doc.SetAttrValue(a, "true")
		ch.ExtractNativeLibs = "set"
	}

	if logo := app.Attr(android, "logo"); logo != nil && h.isPlaceholderRef(logo.Value) {
		if icon := app.Attr(android, "icon"); icon != nil {
			doc.SetAttrValue(logo, icon.Value)
			ch.LogoReplaced = true
		} else {
			h.logger.Warn("logo references a placeholder but the application has no icon",
				zap.String("logo", logo.Value))
		}
	}

	for _, el := range app.Children {
		if el.Name.Space != "" || el.Name.Local != "meta-data" {
			continue
		}
		name := el.Attr(android, "name")
		if name == nil || !splitMarkers[name.Value] {
			continue
		}
		doc.RemoveElement(el)
		ch.MetaDataRemoved++
	}

	ch.Written, err = save(path, doc, mode)
	if err != nil {
		return ch, err
	}
	h.logger.Info("split suppression applied",
		zap.Bool("split_required_removed", ch.SplitRequiredRemoved),
		zap.String("extract_native_libs", ch.ExtractNativeLibs),
		zap.Bool("logo_replaced", ch.LogoReplaced),
		zap.Int("meta_data_removed", ch.MetaDataRemoved))
	return ch, nil
}

func (h *Hacks) isPlaceholderRef(value string) bool {
	s := rewrite.ClassifyValue(value)
	return s.Kind == rewrite.Qualified && restable.IsPlaceholder(s.Name, h.prefix)
}
