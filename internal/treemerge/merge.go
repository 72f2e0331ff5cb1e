// Package treemerge moves the files of a decompiled split into the base tree.
package treemerge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/otiai10/copy"
	"go.uber.org/zap"

	"apkmerge/internal/logging"
)

// Root-level files every decompiled tree carries; the base keeps its own.
var rootOnly = map[string]bool{
	"AndroidManifest.xml": true,
	"apktool.yml":         true,
}

// originalDir holds the archive's pre-decompilation files.
const originalDir = "original"

// Stats counts what a merge did with each entry of the split tree.
type Stats struct {
	Dirs       int // directories ensured under the base
	Moved      int // files moved
	Skipped    int // root manifest and build metadata
	Excluded   int // table-class files left to reconciliation
	Collisions int // files whose destination already existed
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Dirs += o.Dirs
	s.Moved += o.Moved
	s.Skipped += o.Skipped
	s.Excluded += o.Excluded
	s.Collisions += o.Collisions
}

// Merger merges split trees into a base tree.
type Merger struct {
	tableFiles []string
	logger     *zap.Logger
}

// New creates a Merger. tableFiles are doublestar patterns relative to a tree
// root naming files that are never moved.
func New(tableFiles []string, logger *zap.Logger) (*Merger, error) {
	for _, p := range tableFiles {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid table file pattern %q", p)
		}
	}
	return &Merger{
		tableFiles: tableFiles,
		logger:     logging.For(logger, logging.CategoryMerge),
	}, nil
}

// IsTableFile reports whether the slash-separated rel matches a table pattern.
func (m *Merger) IsTableFile(rel string) bool {
	for _, p := range m.tableFiles {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

type entry struct {
	rel   string // slash-separated
	depth int
	dir   bool
}

// Merge moves splitRoot's files into baseRoot, deepest paths first. Existing
// destinations are never overwritten.
func (m *Merger) Merge(ctx context.Context, splitRoot, baseRoot string) (Stats, error) {
	var stats Stats

	entries, err := walk(splitRoot)
	if err != nil {
		return stats, err
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		dst := filepath.Join(baseRoot, filepath.FromSlash(e.rel))
		if e.dir {
			if err := os.MkdirAll(dst, 0755); err != nil {
				return stats, err
			}
			stats.Dirs++
			continue
		}

		switch {
		case e.depth == 0 && rootOnly[e.rel]:
			stats.Skipped++
			continue
		case m.IsTableFile(e.rel):
			m.logger.Debug("leaving table file to reconciliation", zap.String("path", e.rel))
			stats.Excluded++
			continue
		}

		if _, err := os.Lstat(dst); err == nil {
			m.logger.Warn("destination exists, keeping base file",
				zap.String("path", e.rel), zap.String("split", filepath.Base(splitRoot)))
			stats.Collisions++
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return stats, err
		}

		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return stats, err
		}
		if err := move(filepath.Join(splitRoot, filepath.FromSlash(e.rel)), dst); err != nil {
			return stats, fmt.Errorf("move %s: %w", e.rel, err)
		}
		stats.Moved++
	}

	m.logger.Info("split files merged",
		zap.String("split", filepath.Base(splitRoot)),
		zap.Int("moved", stats.Moved),
		zap.Int("excluded", stats.Excluded),
		zap.Int("collisions", stats.Collisions))
	return stats, nil
}

// walk lists the tree below root, deepest first, lexicographic within a
// depth, without the originals subtree.
func walk(root string) ([]entry, error) {
	var entries []entry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() && rel == originalDir {
			return filepath.SkipDir
		}
		entries = append(entries, entry{
			rel:   rel,
			depth: strings.Count(rel, "/"),
			dir:   d.IsDir(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].depth != entries[j].depth {
			return entries[i].depth > entries[j].depth
		}
		return entries[i].rel < entries[j].rel
	})
	return entries, nil
}

// move renames src to dst, copying across filesystems when needed.
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copy.Copy(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
