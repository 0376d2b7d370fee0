// Package pattern renders operator-facing test images for the Spectra 6
// panel.
package pattern

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"epdiag/internal/convert"
)

var stripeNames = []string{"Black", "White", "Red", "Yellow", "Blue", "Green"}

// TestCard renders the labelled 6-color test card: six horizontal stripes
// in controller code order, a name label per stripe and a title line.
func TestCard(w, h int) image.Image {
	dc := gg.NewContext(w, h)
	dc.SetFontFace(basicfont.Face7x13)

	band := float64(h) / 6

	for i, name := range stripeNames {
		r, g, b := stripeRGB(convert.Code(i))
		dc.SetRGB255(r, g, b)
		dc.DrawRectangle(0, float64(i)*band, float64(w), band)
		dc.Fill()

		// White label on the black stripe, black elsewhere.
		if i == 0 {
			dc.SetRGB255(255, 255, 255)
		} else {
			dc.SetRGB255(0, 0, 0)
		}
		label := fmt.Sprintf("Color %d: %s", i+1, name)
		dc.DrawString(label, 50, float64(i)*band+band/2)
	}

	dc.SetRGB255(0, 0, 0)
	dc.DrawString("Spectra 6 Panel Test", float64(w)/2-70, 20)

	return dc.Image()
}

func stripeRGB(c convert.Code) (int, int, int) {
	nrgba := convert.Palette[c]
	r, g, b, _ := nrgba.RGBA()
	return int(r >> 8), int(g >> 8), int(b >> 8)
}
