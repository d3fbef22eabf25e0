package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestBuildBundle(t *testing.T) {
	bundle, err := BuildBundle(
		Asset{Filename: "fixture.dxf", Data: []byte("dxf-bytes")},
		[]Asset{
			{Filename: "photo.png", Data: []byte{0x89, 'P', 'N', 'G'}},
			{Filename: "logo.png", Data: []byte{0x01}},
		},
	)
	if err != nil {
		t.Fatalf("build bundle: %v", err)
	}
	if bundle.RootFilename != "fixture.dxf" {
		t.Fatalf("root = %q, want fixture.dxf", bundle.RootFilename)
	}

	zr, err := zip.NewReader(bytes.NewReader(bundle.Data), int64(len(bundle.Data)))
	if err != nil {
		t.Fatalf("reopen bundle: %v", err)
	}
	if len(zr.File) != 3 {
		t.Fatalf("members = %d, want 3", len(zr.File))
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("open root: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if zr.File[0].Name != "fixture.dxf" || string(data) != "dxf-bytes" {
		t.Fatalf("root member = %q / %q", zr.File[0].Name, data)
	}
}
