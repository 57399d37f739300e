package biometric

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func flatImage(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func checkerboard(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func TestLivenessFlatImageIsNotLive(t *testing.T) {
	s := NewLivenessScreen(50)
	res, err := s.Assess(encodePNG(t, flatImage(32, 32, 128)))
	require.NoError(t, err)
	assert.False(t, res.Live)
	assert.Equal(t, 0.0, res.Score)
}

func TestLivenessTexturedImageIsLive(t *testing.T) {
	s := NewLivenessScreen(50)
	res, err := s.Assess(encodePNG(t, checkerboard(8, 8)))
	require.NoError(t, err)
	assert.True(t, res.Live)
	// every response is ±4*255
	assert.InDelta(t, 1020.0*1020.0, res.Score, 1e-6)
}

func TestLivenessThresholdIsInclusive(t *testing.T) {
	data := encodePNG(t, checkerboard(8, 8))
	res, err := NewLivenessScreen(1020 * 1020).Assess(data)
	require.NoError(t, err)
	assert.True(t, res.Live)

	res, err = NewLivenessScreen(1020*1020 + 1).Assess(data)
	require.NoError(t, err)
	assert.False(t, res.Live)
}

func TestLivenessUndecodable(t *testing.T) {
	_, err := NewLivenessScreen(50).Assess([]byte("not an image"))
	require.ErrorIs(t, err, ErrUndecodableImage)
}

func TestLumaWeights(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	g := Luma(img)
	assert.Equal(t, uint8(76), g.Pix[0]) // 0.299*255 = 76.2
}

func TestLaplacianVarianceEdgeCases(t *testing.T) {
	assert.Equal(t, 0.0, LaplacianVariance(Gray{}))
	assert.Equal(t, 0.0, LaplacianVariance(Gray{W: 1, H: 1, Pix: []uint8{200}}))
}

func TestReflect101(t *testing.T) {
	assert.Equal(t, 1, reflect101(-1, 5))
	assert.Equal(t, 3, reflect101(5, 5))
	assert.Equal(t, 2, reflect101(2, 5))
	assert.Equal(t, 0, reflect101(-1, 1))
}
