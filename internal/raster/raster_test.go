package raster

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageURL(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`)

	u := pageURL(svg, 800, 480)
	require.True(t, strings.HasPrefix(u, "data:text/html;base64,"))

	html, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(u, "data:text/html;base64,"))
	require.NoError(t, err)

	page := string(html)
	assert.Contains(t, page, "width:800px")
	assert.Contains(t, page, "height:480px")
	assert.Contains(t, page, "object-fit:contain")
	assert.Contains(t, page, base64.StdEncoding.EncodeToString(svg))
}

func TestChromeRejectsBadInput(t *testing.T) {
	var c Chrome

	_, err := c.RasterizePNG(context.Background(), nil, 800, 480)
	assert.Error(t, err)

	_, err = c.RasterizePNG(context.Background(), []byte("<svg/>"), 0, 480)
	assert.Error(t, err)
}
