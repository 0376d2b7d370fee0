package flags

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/image/bmp"
)

const (
	testCanvasW = 64
	testCanvasH = 32
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeRasterizer returns a fixed PNG for any SVG input.
type fakeRasterizer struct {
	png   []byte
	calls int
}

func (f *fakeRasterizer) RasterizePNG(ctx context.Context, svg []byte, w, h int) ([]byte, error) {
	f.calls++
	return f.png, nil
}

func TestCountryID(t *testing.T) {
	var c Country
	c.Name.Common = "South Korea"
	assert.Equal(t, "south_korea", c.ID())
}

func TestMeta(t *testing.T) {
	var c Country
	c.Name.Common = "Testland"
	c.Name.Official = "Republic of Testland"
	c.Population = 1234
	c.Area = 56.7
	c.Capital = []string{"Test City", "Other City"}
	c.Region = "Testia"
	c.Subregion = "Upper Testia"
	c.Languages = map[string]string{"zzz": "Zetan", "aaa": "Alphan"}
	c.Currencies = map[string]struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	}{
		"TST": {Name: "Test dollar", Symbol: "$"},
		"ALT": {Name: "Alt franc", Symbol: "F"},
	}
	c.Timezones = []string{"UTC+01:00", "UTC+02:00"}
	c.Borders = []string{"AAA", "BBB"}

	m := c.Meta()
	assert.Equal(t, "Testland", m.Country)
	assert.Equal(t, "Republic of Testland", m.OfficialName)
	assert.Equal(t, "Test City", m.Capital)
	assert.Equal(t, "Alphan, Zetan", m.Languages)
	assert.Equal(t, "Alt franc (ALT), Test dollar (TST)", m.Currencies)
	assert.Equal(t, "UTC+01:00, UTC+02:00", m.Timezones)
	assert.Equal(t, "AAA, BBB", m.Borders)
}

func TestMetaDefaults(t *testing.T) {
	var c Country
	c.Name.Common = "Nowhere"

	m := c.Meta()
	assert.Equal(t, "Unknown", m.Capital)
	assert.Empty(t, m.Languages)
	assert.Empty(t, m.Currencies)
}

func TestComposeCanvas(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	red := color.RGBA{255, 0, 0, 255}
	src.Set(0, 0, red)
	src.Set(1, 0, red)

	canvas := composeCanvas(src, 10, 10)
	require.Equal(t, 10, canvas.Bounds().Dx())
	require.Equal(t, 10, canvas.Bounds().Dy())

	// A 2:1 flag on a square canvas is letterboxed: white above and
	// below, red in the middle band.
	r, g, b, _ := canvas.At(5, 5).RGBA()
	assert.True(t, r > 0xf000 && g < 0x1000 && b < 0x1000, "center should be red")

	r, g, b, _ = canvas.At(5, 0).RGBA()
	assert.True(t, r == 0xffff && g == 0xffff && b == 0xffff, "top edge should be white")
}

func TestFlagNeedsUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.bmp")

	needs, _ := flagNeedsUpdate(path, testCanvasW, testCanvasH)
	assert.True(t, needs, "missing file needs update")

	// Full-coverage flag at the right size: valid.
	full := image.NewRGBA(image.Rect(0, 0, testCanvasW, testCanvasH))
	for y := 0; y < testCanvasH; y++ {
		for x := 0; x < testCanvasW; x++ {
			full.Set(x, y, color.RGBA{0, 0, 255, 255})
		}
	}
	require.NoError(t, saveBMP(path, full))
	needs, _ = flagNeedsUpdate(path, testCanvasW, testCanvasH)
	assert.False(t, needs)

	// Wrong resolution.
	needs, reason := flagNeedsUpdate(path, testCanvasW*2, testCanvasH)
	assert.True(t, needs)
	assert.Contains(t, reason, "incorrect resolution")

	// Mostly white canvas: flag too small.
	sparse := composeCanvas(image.NewRGBA(image.Rect(0, 0, 1, 1)), testCanvasW, testCanvasH)
	require.NoError(t, saveBMP(path, sparse))
	needs, reason = flagNeedsUpdate(path, testCanvasW, testCanvasH)
	assert.True(t, needs)
	assert.Contains(t, reason, "too small")
}

func testServer(t *testing.T, failFlagFor string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/v3.1/all", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("fields"))
		fmt.Fprintf(w, `[
			{"name":{"common":"Redland","official":"Republic of Redland"},
			 "flags":{"png":"%s/flag/redland.png","svg":""},
			 "population":10,"capital":["Red City"],"region":"R","timezones":["UTC"]},
			{"name":{"common":"Blue Isles","official":"Kingdom of the Blue Isles"},
			 "flags":{"png":"","svg":"%s/flag/blue_isles.svg"},
			 "population":20,"capital":["Blue Town"],"region":"B","timezones":["UTC"]}
		]`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/flag/redland.png", func(w http.ResponseWriter, r *http.Request) {
		if failFlagFor == "redland" {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}
		w.Write(solidPNG(t, 32, 16, color.RGBA{255, 0, 0, 255}))
	})
	mux.HandleFunc("/flag/blue_isles.svg", func(w http.ResponseWriter, r *http.Request) {
		if failFlagFor == "blue_isles" {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`))
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSyncer(t *testing.T, srv *httptest.Server) (*Syncer, *fakeRasterizer) {
	t.Helper()
	base := t.TempDir()
	rast := &fakeRasterizer{
		png: solidPNG(t, testCanvasW, testCanvasH, color.RGBA{0, 0, 255, 255}),
	}
	return &Syncer{
		Client:       NewClient(srv.URL),
		Rasterizer:   rast,
		FlagsDir:     filepath.Join(base, "flags"),
		InfoDir:      filepath.Join(base, "info"),
		CanvasWidth:  testCanvasW,
		CanvasHeight: testCanvasH,
	}, rast
}

func TestSync(t *testing.T) {
	srv := testServer(t, "")
	s, rast := newTestSyncer(t, srv)

	stats, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Updated)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, rast.calls, "only the SVG flag goes through the rasterizer")

	// Rendered flags have canvas size.
	for _, id := range []string{"redland", "blue_isles"} {
		f, err := os.Open(filepath.Join(s.FlagsDir, id+".bmp"))
		require.NoError(t, err)
		img, err := bmp.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, testCanvasW, img.Bounds().Dx())
		assert.Equal(t, testCanvasH, img.Bounds().Dy())
	}

	// Metadata and index.
	data, err := os.ReadFile(filepath.Join(s.InfoDir, "redland.json"))
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "Redland", meta.Country)
	assert.Equal(t, "Red City", meta.Capital)

	data, err = os.ReadFile(filepath.Join(s.InfoDir, "index.json"))
	require.NoError(t, err)
	var index []string
	require.NoError(t, json.Unmarshal(data, &index))
	assert.ElementsMatch(t, []string{"redland.json", "blue_isles.json"}, index)

	// Second pass: everything cached and valid.
	stats, err = s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 0, stats.Updated)
}

func TestSyncIsolatesFailures(t *testing.T) {
	srv := testServer(t, "redland")
	s, _ := newTestSyncer(t, srv)

	stats, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Failed)

	var index []string
	data, err := os.ReadFile(filepath.Join(s.InfoDir, "index.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &index))
	assert.Equal(t, []string{"blue_isles.json"}, index)

	_, err = os.Stat(filepath.Join(s.FlagsDir, "redland.bmp"))
	assert.True(t, os.IsNotExist(err))
}
