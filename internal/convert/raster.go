package convert

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	_ "image/gif"
	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// IsDarkTheme reports whether raster artwork matches the white-on-transparent
// line-art signature: mostly fully transparent, with the visible remainder
// near-white in every channel.
func (c *Converter) IsDarkTheme(img image.Image) bool {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return false
	}

	nrgba := toNRGBA(img)
	var transparent, visible, white int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := nrgba.NRGBAAt(x-bounds.Min.X, y-bounds.Min.Y)
			if px.A == 0 {
				transparent++
				continue
			}
			visible++
			level := uint8(c.thresholds.WhiteLevel)
			if px.R >= level && px.G >= level && px.B >= level {
				white++
			}
		}
	}
	if transparent == 0 || visible == 0 {
		return false
	}
	if float64(transparent)/float64(total) <= c.thresholds.TransparentRatio {
		return false
	}
	return float64(white)/float64(visible) > c.thresholds.WhiteRatio
}

// invertAlpha reads the alpha channel as the drawing itself and emits a
// grayscale image where output = 255 - alpha: strong strokes turn black,
// empty background turns white. Must run before any resampling.
func invertAlpha(img image.Image) image.Image {
	bounds := img.Bounds()
	nrgba := toNRGBA(img)
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			out.SetGray(x, y, color.Gray{Y: 255 - nrgba.NRGBAAt(x, y).A})
		}
	}
	return out
}

// resizeToFit scales aspect-preserving into the requested box, enlarging
// undersized sources. Zero targets leave the source untouched on that axis.
func resizeToFit(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 || (width <= 0 && height <= 0) {
		return img
	}
	boxW, boxH := fitBox(float64(srcW), float64(srcH), width, height)
	scale := math.Min(float64(boxW)/float64(srcW), float64(boxH)/float64(srcH))
	dstW := int(math.Round(float64(srcW) * scale))
	dstH := int(math.Round(float64(srcH) * scale))
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	if dstW == srcW && dstH == srcH {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

// flattenWhite composites remaining transparency onto a white background.
func flattenWhite(img image.Image) image.Image {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Over)
	return out
}

// encodePNG serializes the image and stamps the physical-resolution chunk.
func encodePNG(img image.Image, dpi int) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("convert: encode png: %w", err)
	}
	stamped, err := stampDPI(buf.Bytes(), dpi)
	if err != nil {
		return nil, err
	}
	return stamped, nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && img.Bounds().Min == (image.Point{}) {
		return n
	}
	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)
	return out
}
