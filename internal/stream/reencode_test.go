package stream

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noisyJPEG(t *testing.T, quality int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x*7 + y*13) % 256),
				G: uint8((x * y) % 256),
				B: uint8((x ^ y) % 256),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func TestReencodeJPEG(t *testing.T) {
	original := noisyJPEG(t, 95)

	smaller := ReencodeJPEG(original, 10)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(smaller))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width, "dimensions survive the re-encode")
	assert.Equal(t, 48, cfg.Height)
	assert.Less(t, len(smaller), len(original))
}

func TestReencodeJPEG_Passthrough(t *testing.T) {
	original := noisyJPEG(t, 95)

	assert.Equal(t, original, ReencodeJPEG(original, 0), "zero quality means as-captured")
	assert.Equal(t, original, ReencodeJPEG(original, 100))
	assert.Equal(t, original, ReencodeJPEG(original, -5))

	junk := []byte("not a jpeg")
	assert.Equal(t, junk, ReencodeJPEG(junk, 50), "undecodable frames pass through")
}
