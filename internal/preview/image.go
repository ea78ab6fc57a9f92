package preview

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const jpegQuality = 80

// RenderPreview downscales an image so its longest side is at most maxDim
// and re-encodes it as JPEG. Images already inside the bound are only
// re-encoded.
func RenderPreview(data []byte, maxDim int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > maxDim || bounds.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// averageLuma returns the mean luminance of an image in [0, 1]. Pixels are
// sampled on a grid, decoding quality is good enough for a brightness
// heuristic.
func averageLuma(img image.Image) float64 {
	bounds := img.Bounds()
	if bounds.Empty() {
		return 0
	}
	stepX := bounds.Dx() / 64
	if stepX < 1 {
		stepX = 1
	}
	stepY := bounds.Dy() / 64
	if stepY < 1 {
		stepY = 1
	}
	var sum float64
	var count int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			lum := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			sum += lum / 0xffff
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
