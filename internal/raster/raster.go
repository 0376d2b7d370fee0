// Package raster converts SVG flag art into PNG pixels. The REST Countries
// flag set is SVG-first and the PNG variants are low resolution, so the
// SVGs are rendered in a headless Chromium via chromedp at the exact
// e-ink canvas size.
package raster

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultTimeout bounds a single rasterization, including browser startup.
const DefaultTimeout = 30 * time.Second

// Rasterizer renders SVG bytes to a width x height PNG.
type Rasterizer interface {
	RasterizePNG(ctx context.Context, svg []byte, width, height int) ([]byte, error)
}

// Chrome is a chromedp-backed Rasterizer. The zero value is ready to use.
type Chrome struct {
	// Timeout bounds each rasterization; DefaultTimeout when zero.
	Timeout time.Duration
}

// RasterizePNG loads the SVG in a headless browser sized to the target
// canvas and takes a full screenshot. The flag is letterboxed onto a white
// background, preserving its aspect ratio.
func (c *Chrome) RasterizePNG(parentCtx context.Context, svg []byte, width, height int) ([]byte, error) {
	if len(svg) == 0 {
		return nil, fmt.Errorf("raster: empty SVG input")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster: invalid canvas %dx%d", width, height)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(pageURL(svg, width, height)),
		chromedp.WaitVisible("#flag", chromedp.ByID),
		// Small extra delay to allow final paints.
		chromedp.Sleep(200 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("raster: chromedp run failed: %w", err)
	}

	return png, nil
}

// pageURL builds a data: URL for a minimal page that letterboxes the SVG
// onto a white canvas of exactly width x height.
func pageURL(svg []byte, width, height int) string {
	page := fmt.Sprintf(
		`<!DOCTYPE html><html><body style="margin:0;background:#fff">`+
			`<img id="flag" src="data:image/svg+xml;base64,%s" `+
			`style="width:%dpx;height:%dpx;object-fit:contain"></body></html>`,
		base64.StdEncoding.EncodeToString(svg), width, height)

	return "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(page))
}
