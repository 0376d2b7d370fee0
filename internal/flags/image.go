package flags

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
)

// renderCanvas decodes raw flag bytes (PNG or JPEG) and composes them onto
// the white e-ink canvas.
func renderCanvas(raw []byte, width, height int) (image.Image, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding flag image: %w", err)
	}
	return composeCanvas(src, width, height), nil
}

// composeCanvas scales src to fit width x height preserving aspect ratio
// and centers it on a white canvas of exactly that size.
func composeCanvas(src image.Image, width, height int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 {
		return canvas
	}

	scale := float64(width) / float64(sw)
	if s := float64(height) / float64(sh); s < scale {
		scale = s
	}
	dw := int(float64(sw) * scale)
	dh := int(float64(sh) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	x0 := (width - dw) / 2
	y0 := (height - dh) / 2
	dst := image.Rect(x0, y0, x0+dw, y0+dh)

	xdraw.CatmullRom.Scale(canvas, dst, src, sb, xdraw.Over, nil)

	return canvas
}

// saveBMP writes img as a BMP file.
func saveBMP(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := bmp.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// flagNeedsUpdate inspects a cached flag BMP. It reports true when the
// file is absent, unreadable, has the wrong resolution, or the flag
// covers less than half of the canvas (an earlier run rendered it too
// small). The returned reason is for logging.
func flagNeedsUpdate(path string, width, height int) (bool, string) {
	f, err := os.Open(path)
	if err != nil {
		return true, "not cached yet"
	}
	defer f.Close()

	img, err := bmp.Decode(f)
	if err != nil {
		return true, fmt.Sprintf("failed to validate existing flag: %v", err)
	}

	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return true, fmt.Sprintf("incorrect resolution (%dx%d)", b.Dx(), b.Dy())
	}

	if coverage(img) < 0.5 {
		return true, "appears too small on the canvas"
	}

	return false, ""
}

// coverage returns the fraction of pixels that are not the white
// background.
func coverage(img image.Image) float64 {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}

	nonBackground := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r != 0xffff || g != 0xffff || bl != 0xffff {
				nonBackground++
			}
		}
	}

	return float64(nonBackground) / float64(total)
}
