package archive

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/shogo82148/androidbinary"
)

// ManifestEntry is the binary manifest's path inside an archive.
const ManifestEntry = "AndroidManifest.xml"

// ErrNoManifest is returned for archives without a manifest entry.
var ErrNoManifest = errors.New("archive has no manifest")

// Manifest is the part of a binary manifest the merge cares about.
type Manifest struct {
	Package     string `xml:"package,attr"`
	Split       string `xml:"split,attr"`
	VersionCode string `xml:"versionCode,attr"`
	VersionName string `xml:"versionName,attr"`
	IsFeature   string `xml:"isFeatureSplit,attr"`

	Application struct {
		IsSplitRequired   string `xml:"isSplitRequired,attr"`
		ExtractNativeLibs string `xml:"extractNativeLibs,attr"`
	} `xml:"application"`
}

// IsSplit reports whether the manifest belongs to a split archive.
func (m *Manifest) IsSplit() bool {
	return m.Split != ""
}

// Inspect reads the binary manifest of the archive at path.
func Inspect(path string) (*Manifest, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	data, err := readEntry(&zr.Reader, ManifestEntry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	xf, err := androidbinary.NewXMLFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: decode manifest: %w", path, err)
	}
	plain, err := io.ReadAll(xf.Reader())
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := xml.Unmarshal(plain, &m); err != nil {
		return nil, fmt.Errorf("%s: parse manifest: %w", path, err)
	}
	return &m, nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, ErrNoManifest
}
