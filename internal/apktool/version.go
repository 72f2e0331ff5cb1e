package apktool

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a dotted numeric version such as 2.9.3.
type Version struct {
	Parts []int
	Raw   string
}

// ParseVersion reads the leading numeric components of s. Suffixes such as
// "-dirty" or "-SNAPSHOT" are ignored, as is a leading "v".
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	v := strings.TrimPrefix(strings.TrimPrefix(raw, "v"), "V")
	if i := strings.IndexAny(v, "-+ "); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return Version{}, fmt.Errorf("empty version string %q", s)
	}

	var parts []int
	for _, field := range strings.Split(v, ".") {
		n, err := strconv.Atoi(field)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		parts = append(parts, n)
	}
	return Version{Parts: parts, Raw: raw}, nil
}

// MustParseVersion is ParseVersion for constants.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or 1. Missing components count as zero.
func (v Version) Compare(o Version) int {
	n := len(v.Parts)
	if len(o.Parts) > n {
		n = len(o.Parts)
	}
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(v.Parts) {
			a = v.Parts[i]
		}
		if i < len(o.Parts) {
			b = o.Parts[i]
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

// GreaterThan reports whether v > o.
func (v Version) GreaterThan(o Version) bool {
	return v.Compare(o) > 0
}

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool {
	return len(v.Parts) == 0
}

func (v Version) String() string {
	if v.IsZero() {
		return "unknown"
	}
	s := make([]string, len(v.Parts))
	for i, p := range v.Parts {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ".")
}
