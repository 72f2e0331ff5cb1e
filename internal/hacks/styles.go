package hacks

import (
	"path/filepath"

	"go.uber.org/zap"

	"apkmerge/internal/markup"
)

// StylesFile is the style table apktool sometimes decodes with repeated items.
const StylesFile = "res/values/styles.xml"

// DedupStyles removes every <item> whose name already appeared earlier in
// the same <style> of res/values/styles.xml and returns how many it removed.
// A tree without the file is left alone.
func (h *Hacks) DedupStyles(treeRoot string) (int, error) {
	path := filepath.Join(treeRoot, filepath.FromSlash(StylesFile))
	doc, mode, ok, err := load(path)
	if err != nil || !ok {
		return 0, err
	}

	removed := 0
	for _, style := range doc.Root.Children {
		if style.Name.Local != "style" {
			continue
		}
		seen := make(map[string]bool)
		for _, item := range style.Children {
			if item.Name.Local != "item" {
				continue
			}
			name := item.Attr("", "name")
			if name == nil {
				continue
			}
			if seen[name.Value] {
				h.logger.Debug("dropping duplicate style item",
					zap.String("style", styleName(style.Attr("", "name"))),
					zap.String("item", name.Value))
				doc.RemoveElement(item)
				removed++
				continue
			}
			seen[name.Value] = true
		}
	}

	if _, err := save(path, doc, mode); err != nil {
		return 0, err
	}
	if removed > 0 {
		h.logger.Info("removed duplicate style items", zap.Int("count", removed))
	}
	return removed, nil
}

func styleName(a *markup.Attr) string {
	if a == nil {
		return ""
	}
	return a.Value
}
