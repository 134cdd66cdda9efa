package normalizer

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeSolidJPEG(t *testing.T, w, h int, quality int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func TestNormalize_SmallImagePassesThroughUnclamped(t *testing.T) {
	data := encodeSolidJPEG(t, 100, 100, 90)
	res := Normalize(data)
	assert.False(t, res.DimensionClamped)
	assert.Equal(t, "image/jpeg", res.MimeType)
}

func TestNormalize_LargeImageClampedToLongSide(t *testing.T) {
	data := encodeSolidJPEG(t, 3000, 1500, 90)
	res := Normalize(data)
	require.True(t, res.DimensionClamped)

	decoded, _, err := image.Decode(bytes.NewReader(res.Bytes))
	require.NoError(t, err)
	bounds := decoded.Bounds()
	assert.Equal(t, maxLongSide, bounds.Dx())
	assert.LessOrEqual(t, bounds.Dy(), maxLongSide)
}

func TestNormalize_SquareImageClampsToSquare(t *testing.T) {
	data := encodeSolidJPEG(t, 3000, 3000, 90)
	res := Normalize(data)
	require.True(t, res.DimensionClamped)

	decoded, _, err := image.Decode(bytes.NewReader(res.Bytes))
	require.NoError(t, err)
	bounds := decoded.Bounds()
	assert.Equal(t, maxLongSide, bounds.Dx())
	assert.Equal(t, maxLongSide, bounds.Dy())
}

func TestNormalize_UnreadableDataPassesThroughWithWarning(t *testing.T) {
	res := Normalize([]byte("not an image"))
	assert.Equal(t, []byte("not an image"), res.Bytes)
	assert.NotEmpty(t, res.Warning)
}

func TestNormalize_OversizeBudgetReducesQuality(t *testing.T) {
	// A large, high-entropy-ish image that will clamp to 2200 and likely
	// still exceed budget at quality 90, forcing the byte-budget pass.
	data := encodeSolidJPEG(t, 4000, 4000, 100)
	res := Normalize(data)
	assert.True(t, res.DimensionClamped)
	assert.LessOrEqual(t, len(res.Bytes), byteBudget+1024*1024) // final attempt kept even if still over
}
