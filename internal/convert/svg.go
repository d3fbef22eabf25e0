package convert

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const sniffLen = 1000

// isVectorMarkup sniffs the leading bytes for an svg root tag.
func isVectorMarkup(data []byte) bool {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

// rasterizeSVG renders vector markup onto a white canvas using a contain
// fit: content is scaled to the largest size that fits the requested box,
// centered, and padded. With no requested size the intrinsic viewbox rules.
func rasterizeSVG(markup []byte, width, height int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(markup), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("convert: parse vector markup: %w", err)
	}

	vw, vh := icon.ViewBox.W, icon.ViewBox.H
	if vw <= 0 || vh <= 0 {
		return nil, fmt.Errorf("convert: vector markup has no drawable viewbox")
	}
	width, height = fitBox(vw, vh, width, height)

	scale := math.Min(float64(width)/vw, float64(height)/vh)
	tw, th := vw*scale, vh*scale
	icon.SetTarget((float64(width)-tw)/2, (float64(height)-th)/2, tw, th)

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(width, height, canvas, canvas.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1.0)
	return canvas, nil
}

// fitBox resolves the output box, deriving a missing axis from the source
// aspect ratio and falling back to the intrinsic size when none is given.
func fitBox(srcW, srcH float64, width, height int) (int, int) {
	switch {
	case width <= 0 && height <= 0:
		return int(math.Round(srcW)), int(math.Round(srcH))
	case width <= 0:
		return int(math.Round(srcW * float64(height) / srcH)), height
	case height <= 0:
		return width, int(math.Round(srcH * float64(width) / srcW))
	default:
		return width, height
	}
}
