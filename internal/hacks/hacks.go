// Package hacks applies the structural fix-ups a merged tree needs before
// apktool will rebuild it.
package hacks

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"apkmerge/internal/logging"
	"apkmerge/internal/markup"
	"apkmerge/internal/restable"
)

// Hacks holds what the fix-ups share.
type Hacks struct {
	prefix string
	logger *zap.Logger
}

// New creates Hacks. prefix identifies placeholder names.
func New(prefix string, logger *zap.Logger) *Hacks {
	if prefix == "" {
		prefix = restable.DefaultPlaceholderPrefix
	}
	return &Hacks{prefix: prefix, logger: logging.For(logger, logging.CategoryHacks)}
}

// load parses the document at path. ok is false when the file is absent.
func load(path string) (doc *markup.Document, mode os.FileMode, ok bool, err error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, false, err
	}
	doc, err = markup.Parse(src)
	if err != nil {
		return nil, 0, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, info.Mode().Perm(), true, nil
}

// save writes doc's edits back to path when there are any.
func save(path string, doc *markup.Document, mode os.FileMode) (bool, error) {
	if !doc.Changed() {
		return false, nil
	}
	out, err := doc.Bytes()
	if err != nil {
		return false, fmt.Errorf("edit %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, mode); err != nil {
		return false, err
	}
	return true, nil
}
