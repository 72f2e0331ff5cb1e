package config

// ApktoolConfig locates the decompiler/compiler.
// When Jar is set the tool runs as `<Java> -jar <Jar>`, otherwise Binary is
// executed directly.
type ApktoolConfig struct {
	Java   string `yaml:"java" json:"java,omitempty"`
	Jar    string `yaml:"jar" json:"jar,omitempty"`
	Binary string `yaml:"binary" json:"binary,omitempty"`

	// Decompiler versions above this rebuild with the aapt2 backend.
	Aapt2After string `yaml:"aapt2_after" json:"aapt2_after,omitempty"`
}

// UsesJar reports whether the tool is launched through the JVM.
func (c ApktoolConfig) UsesJar() bool {
	return c.Jar != ""
}
