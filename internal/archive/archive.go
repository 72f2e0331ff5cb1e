// Package archive finds the input archives, picks the base among them and
// reads what the binary manifests say about each one.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/otiai10/copy"
)

// DefaultGlob matches application archives.
const DefaultGlob = "*.apk"

var (
	// ErrNoArchives is returned when the input folder holds no archive.
	ErrNoArchives = errors.New("no archives found")

	// ErrAmbiguousBase is returned when the base archive cannot be told
	// apart from the splits.
	ErrAmbiguousBase = errors.New("cannot identify the base archive")
)

// Archive is one input file.
type Archive struct {
	Path string
	Name string // file name
}

// Stem returns the file name without its extension.
func (a Archive) Stem() string {
	return strings.TrimSuffix(a.Name, filepath.Ext(a.Name))
}

// Discover lists the regular files in dir whose names match pattern, sorted
// by name.
func Discover(dir, pattern string) ([]Archive, error) {
	if pattern == "" {
		pattern = DefaultGlob
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid archive pattern %q", pattern)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input folder: %w", err)
	}

	var out []Archive
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ok, err := doublestar.Match(pattern, e.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, Archive{Path: filepath.Join(dir, e.Name()), Name: e.Name()})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s (%s): %w", dir, pattern, ErrNoArchives)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SelectBase picks the archive whose name contains the package identifier.
// A single archive is the base whatever its name.
func SelectBase(archives []Archive, pkg string) (Archive, []Archive, error) {
	switch len(archives) {
	case 0:
		return Archive{}, nil, ErrNoArchives
	case 1:
		return archives[0], nil, nil
	}

	base := -1
	var matches []string
	for i, a := range archives {
		if strings.Contains(a.Name, pkg) {
			base = i
			matches = append(matches, a.Name)
		}
	}
	if len(matches) != 1 {
		return Archive{}, nil, fmt.Errorf("%w: %d of %d archive names contain %q %v",
			ErrAmbiguousBase, len(matches), len(archives), pkg, matches)
	}

	splits := make([]Archive, 0, len(archives)-1)
	splits = append(splits, archives[:base]...)
	splits = append(splits, archives[base+1:]...)
	return archives[base], splits, nil
}

// CopyFile copies an archive verbatim to dst, creating parent directories.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}
	if err := copy.Copy(src, dst, copy.Options{Sync: true}); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}
