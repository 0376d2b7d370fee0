// Package convert maps images onto the Spectra 6 color space and packs
// them into the panel's transmission buffer format.
package convert

import (
	"fmt"
	"image"
	"image/color"
)

// Code is a Spectra 6 color code as understood by the panel controller.
// The packed wire format carries two bits per pixel, so the blue and green
// codes contribute only their low bits on the wire.
type Code byte

const (
	Black  Code = 0x0
	White  Code = 0x1
	Red    Code = 0x2
	Yellow Code = 0x3
	Blue   Code = 0x4
	Green  Code = 0x5
)

// Palette holds the six anchor colors, indexed by Code.
var Palette = color.Palette{
	color.NRGBA{0, 0, 0, 255},       // Black
	color.NRGBA{255, 255, 255, 255}, // White
	color.NRGBA{255, 0, 0, 255},     // Red
	color.NRGBA{255, 255, 0, 255},   // Yellow
	color.NRGBA{0, 0, 255, 255},     // Blue
	color.NRGBA{0, 255, 0, 255},     // Green
}

// Classify maps an arbitrary pixel to the nearest Spectra 6 code.
// Transparent and semi-transparent pixels read as white, since they are
// invisible on paper.
func Classify(c color.Color) Code {
	_, _, _, a := c.RGBA()
	if a < 0x8000 {
		return White
	}
	return Code(Palette.Index(c))
}

// Pack converts an image into the transmission buffer: 4 pixels per byte,
// MSB-first, so pixel p of a group lands in bits (6 - 2p).
//
// The image width must match the panel width exactly (and be a multiple
// of 4). The height must be at least the panel height; taller images are
// center-cropped vertically.
func Pack(img image.Image, panelWidth, panelHeight int) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if w != panelWidth {
		return nil, fmt.Errorf("convert: expected width %d, got %d", panelWidth, w)
	}
	if panelWidth%4 != 0 {
		return nil, fmt.Errorf("convert: panel width %d is not a multiple of 4", panelWidth)
	}
	if h < panelHeight {
		return nil, fmt.Errorf("convert: expected height >= %d, got %d", panelHeight, h)
	}

	startY := b.Min.Y + (h-panelHeight)/2

	buf := make([]byte, panelWidth*panelHeight/4)
	i := 0
	for py := 0; py < panelHeight; py++ {
		srcY := startY + py
		for px := 0; px < panelWidth; px += 4 {
			var packed byte
			for p := 0; p < 4; p++ {
				code := Classify(img.At(b.Min.X+px+p, srcY))
				packed |= byte(code) << (6 - p*2)
			}
			buf[i] = packed
			i++
		}
	}

	return buf, nil
}

// StripeCode returns the test-card color for row y of an h-row panel:
// six equal horizontal bands in controller code order.
func StripeCode(y, h int) Code {
	band := h / 6
	switch {
	case y < band:
		return Black
	case y < band*2:
		return White
	case y < band*3:
		return Red
	case y < band*4:
		return Yellow
	case y < band*5:
		return Blue
	default:
		return Green
	}
}

// PackStripes generates the packed 6-stripe test pattern directly, without
// an intermediate image.
func PackStripes(panelWidth, panelHeight int) []byte {
	buf := make([]byte, panelWidth*panelHeight/4)
	i := 0
	for y := 0; y < panelHeight; y++ {
		code := byte(StripeCode(y, panelHeight))
		// All four pixels in a byte share the row color.
		packed := code<<6 | code<<4 | code<<2 | code
		for x := 0; x < panelWidth; x += 4 {
			buf[i] = packed
			i++
		}
	}
	return buf
}
