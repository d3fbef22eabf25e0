package convert

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func newTestConverter() *Converter {
	return NewConverter(Options{})
}

// darkThemeFixture builds a 10x10 white-on-transparent line-art image:
// 60 fully transparent pixels, 40 visible near-white pixels.
func darkThemeFixture() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if y < 6 {
				img.SetNRGBA(x, y, color.NRGBA{})
				continue
			}
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: uint8(100 + x*10)})
		}
	}
	return img
}

func TestIsDarkTheme(t *testing.T) {
	c := newTestConverter()

	if !c.IsDarkTheme(darkThemeFixture()) {
		t.Fatalf("expected dark-theme fixture to match")
	}

	opaque := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			opaque.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	if c.IsDarkTheme(opaque) {
		t.Fatalf("opaque white image should not match")
	}

	colored := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if y < 6 {
				colored.SetNRGBA(x, y, color.NRGBA{})
				continue
			}
			colored.SetNRGBA(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	if c.IsDarkTheme(colored) {
		t.Fatalf("transparent-but-colored image should not match")
	}
}

func TestInvertAlphaPixelProperty(t *testing.T) {
	src := darkThemeFixture()
	out := invertAlpha(src)

	gray, ok := out.(*image.Gray)
	if !ok {
		t.Fatalf("inverted output is %T, want *image.Gray", out)
	}
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			want := 255 - src.NRGBAAt(x, y).A
			if got := gray.GrayAt(x, y).Y; got != want {
				t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestResizeToFitEnlarges(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 50, 25))
	out := resizeToFit(src, 200, 200)
	bounds := out.Bounds()
	if bounds.Dx() != 200 || bounds.Dy() != 100 {
		t.Fatalf("resized to %dx%d, want 200x100", bounds.Dx(), bounds.Dy())
	}
}

func TestConvertOpaqueJPEGWithWidthTarget(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2000, 2000))
	for y := 0; y < 2000; y++ {
		for x := 0; x < 2000; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, src, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	result, err := newTestConverter().Convert(context.Background(), Request{Data: buf.Bytes(), Width: 800})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if result.Meta.Width > 800 {
		t.Fatalf("width = %d, want <= 800", result.Meta.Width)
	}
	if result.Meta.Height != result.Meta.Width {
		t.Fatalf("aspect not preserved: %dx%d", result.Meta.Width, result.Meta.Height)
	}
	if result.Meta.Format != OutputFormat {
		t.Fatalf("format = %q, want %q", result.Meta.Format, OutputFormat)
	}
	if result.Status != StatusPassed {
		t.Fatalf("status = %q (issues %v), want %q", result.Status, result.Issues, StatusPassed)
	}
}

func TestConvertInvertsDarkThemeArtwork(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, darkThemeFixture()); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	result, err := newTestConverter().Convert(context.Background(), Request{Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	decoded, _, err := image.Decode(bytes.NewReader(result.Converted))
	if err != nil {
		t.Fatalf("decode converted: %v", err)
	}
	// Strong strokes (high alpha) must have turned dark, background white.
	r, g, b, _ := decoded.At(0, 0).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Fatalf("background pixel = %d,%d,%d, want white", r>>8, g>>8, b>>8)
	}
	r, _, _, _ = decoded.At(9, 9).RGBA()
	if r>>8 >= 128 {
		t.Fatalf("stroke pixel luminance = %d, want dark", r>>8)
	}
}

func TestStampAndReadDPI(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	for _, dpi := range []int{72, 96, 300} {
		stamped, err := stampDPI(buf.Bytes(), dpi)
		if err != nil {
			t.Fatalf("stamp %d dpi: %v", dpi, err)
		}
		if _, err := png.Decode(bytes.NewReader(stamped)); err != nil {
			t.Fatalf("stamped png no longer decodes: %v", err)
		}
		got, ok := readDPI(stamped)
		if !ok {
			t.Fatalf("pHYs chunk not found after stamping")
		}
		if got != dpi {
			t.Fatalf("readDPI = %d, want %d", got, dpi)
		}
	}
}
