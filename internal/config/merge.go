package config

// MergeConfig configures split merging.
type MergeConfig struct {
	// Prefix the decompiler gives to names it could not recover
	PlaceholderPrefix string `yaml:"placeholder_prefix" json:"placeholder_prefix,omitempty"`

	// Pattern selecting archives inside the input folder
	ArchiveGlob string `yaml:"archive_glob" json:"archive_glob,omitempty"`

	// Table-class files (relative to a tree root) never moved by the file merger
	TableFiles []string `yaml:"table_files" json:"table_files,omitempty"`

	// Remove duplicate <item> entries from res/values/styles.xml
	StyleDedup bool `yaml:"style_dedup" json:"style_dedup"`

	// Number of archives decompiled concurrently
	Jobs int `yaml:"jobs" json:"jobs,omitempty"`
}

// DefaultTableFiles are the declaration-class documents merged only through
// reconciliation and the style hack.
var DefaultTableFiles = []string{
	"res/**/public.xml",
	"res/**/ids.xml",
	"res/**/styles.xml",
	"res/**/drawables.xml",
}
