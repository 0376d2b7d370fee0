package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epdiag/internal/convert"
)

func TestTestCardStripes(t *testing.T) {
	const w, h = 400, 300
	img := TestCard(w, h)

	require.Equal(t, w, img.Bounds().Dx())
	require.Equal(t, h, img.Bounds().Dy())

	band := h / 6
	want := []convert.Code{
		convert.Black, convert.White, convert.Red,
		convert.Yellow, convert.Blue, convert.Green,
	}

	// Sample near the right edge, away from the text labels.
	for i, code := range want {
		y := i*band + band/2
		got := convert.Classify(img.At(w-10, y))
		assert.Equal(t, code, got, "stripe %d", i)
	}
}

func TestTestCardPacksToStripeCodes(t *testing.T) {
	// The rendered card, packed, must match the direct stripe generator
	// outside the labelled regions.
	const w, h = 400, 300
	img := TestCard(w, h)

	packed, err := convert.Pack(img, w, h)
	require.NoError(t, err)

	direct := convert.PackStripes(w, h)
	require.Equal(t, len(direct), len(packed))

	// Compare the last two bytes of every row; labels sit on the left.
	stride := w / 4
	for y := 0; y < h; y++ {
		for x := stride - 2; x < stride; x++ {
			assert.Equal(t, direct[y*stride+x], packed[y*stride+x],
				"row %d byte %d", y, x)
		}
	}
}
