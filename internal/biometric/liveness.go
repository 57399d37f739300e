package biometric

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ErrUndecodableImage is returned when capture bytes are not a supported image.
var ErrUndecodableImage = errors.New("undecodable image")

// maxPixels bounds the work a single liveness evaluation can do.
const maxPixels = 40_000_000

// LivenessResult is the outcome of the texture screen.
type LivenessResult struct {
	Live  bool
	Score float64
}

// LivenessScreen flags flat or replayed captures by their lack of
// high-frequency texture: the variance of the Laplacian of the luma channel.
// It is a cheap first-line filter, not an anti-spoof guarantee.
type LivenessScreen struct {
	Threshold float64
}

func NewLivenessScreen(threshold float64) *LivenessScreen {
	return &LivenessScreen{Threshold: threshold}
}

// Assess scores one image. Live is Score >= Threshold.
func (s *LivenessScreen) Assess(data []byte) (LivenessResult, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return LivenessResult{}, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return LivenessResult{}, fmt.Errorf("%w: %dx%d exceeds pixel limit", ErrUndecodableImage, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return LivenessResult{}, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}

	score := LaplacianVariance(Luma(img))
	return LivenessResult{Live: score >= s.Threshold, Score: score}, nil
}

// Gray is an 8-bit single-channel image stored row-major.
type Gray struct {
	W, H int
	Pix  []uint8
}

// Luma converts img to 8-bit luma using ITU-R BT.601 weights.
func Luma(img image.Image) Gray {
	b := img.Bounds()
	g := Gray{W: b.Dx(), H: b.Dy(), Pix: make([]uint8, b.Dx()*b.Dy())}
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			r, gr, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			v := 0.299*float64(r>>8) + 0.587*float64(gr>>8) + 0.114*float64(bl>>8)
			g.Pix[y*g.W+x] = uint8(v + 0.5)
		}
	}
	return g
}

// LaplacianVariance applies the 4-neighbour Laplacian kernel with reflect-101
// borders and returns the population variance of the response.
func LaplacianVariance(g Gray) float64 {
	n := g.W * g.H
	if n == 0 {
		return 0
	}

	at := func(x, y int) float64 {
		return float64(g.Pix[reflect101(y, g.H)*g.W+reflect101(x, g.W)])
	}

	var sum, sumSq float64
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			l := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += l
			sumSq += l * l
		}
	}
	mean := sum / float64(n)
	v := sumSq/float64(n) - mean*mean
	if v < 0 {
		return 0
	}
	return v
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - 2 - i
	}
	return i
}
