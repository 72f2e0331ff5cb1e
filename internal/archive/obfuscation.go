package archive

import (
	"bytes"
	"os"
	"path/filepath"
)

// DetectObfuscation looks for traces an obfuscator leaves in the original
// META-INF of a decoded tree and returns the evidence path.
func DetectObfuscation(treeRoot string) (string, bool) {
	metaInf := filepath.Join(treeRoot, "original", "META-INF")

	if _, err := os.Stat(filepath.Join(metaInf, "proguard")); err == nil {
		return filepath.Join("original", "META-INF", "proguard"), true
	}

	data, err := os.ReadFile(filepath.Join(metaInf, "MANIFEST.MF"))
	if err == nil && bytes.Contains(bytes.ToLower(data), []byte("proguard")) {
		return filepath.Join("original", "META-INF", "MANIFEST.MF"), true
	}
	return "", false
}
