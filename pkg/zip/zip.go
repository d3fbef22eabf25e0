package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Asset is one named file inside a bundle.
type Asset struct {
	Filename string
	Data     []byte
}

// Bundle is an in-memory archive that remembers which member is the root
// design file, since downstream translation needs to know where to start.
type Bundle struct {
	Data         []byte
	RootFilename string
}

// BuildBundle archives the root design file together with every referenced
// asset under its given name.
func BuildBundle(root Asset, extras []Asset) (*Bundle, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, asset := range append([]Asset{root}, extras...) {
		w, err := zw.Create(asset.Filename)
		if err != nil {
			return nil, fmt.Errorf("zip: add %s: %w", asset.Filename, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", asset.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: finalize bundle: %w", err)
	}
	return &Bundle{Data: buf.Bytes(), RootFilename: root.Filename}, nil
}
