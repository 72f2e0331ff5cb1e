package apktool

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MetadataFile is the build-metadata document apktool writes at the tree root.
const MetadataFile = "apktool.yml"

// Metadata is the part of apktool.yml apkmerge reads. Other keys are
// ignored on load.
type Metadata struct {
	Version string `yaml:"version,omitempty"`
}

// LoadMetadata reads apktool.yml from a decompiled tree.
//
// Older apktool releases prefix the document with a "!!brut.androlib..."
// tag line, which is skipped.
func LoadMetadata(treeRoot string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(treeRoot, MetadataFile))
	if err != nil {
		return nil, err
	}
	data = stripJavaTag(data)

	md := &Metadata{}
	if err := yaml.Unmarshal(data, md); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", MetadataFile, err)
	}
	return md, nil
}

// ToolVersion returns the apktool version that produced the tree.
func (m *Metadata) ToolVersion() (Version, error) {
	if m == nil || m.Version == "" {
		return Version{}, fmt.Errorf("%s has no version", MetadataFile)
	}
	return ParseVersion(m.Version)
}

func stripJavaTag(data []byte) []byte {
	if len(data) < 2 || data[0] != '!' || data[1] != '!' {
		return data
	}
	for i, c := range data {
		if c == '\n' {
			return data[i+1:]
		}
	}
	return nil
}
