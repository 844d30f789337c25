//go:build !gocv
// +build !gocv

package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

// Process validates, normalizes and scores one image without OpenCV.
// Build with the gocv tag for the CLAHE/glare-aware variant.
func (p *Preprocessor) Process(data []byte) (*Result, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &defect.PreprocessingError{Reason: fmt.Sprintf("undecodable image: %v", err)}
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if err := p.validateBounds(width, height); err != nil {
		return nil, err
	}

	// Standardize size so detector thresholds stay stable.
	if width > p.MaxSide || height > p.MaxSide {
		img = resize.Thumbnail(uint(p.MaxSide), uint(p.MaxSide), img, resize.Lanczos3)
		bounds = img.Bounds()
		width, height = bounds.Dx(), bounds.Dy()
	}

	lum := luminance(img)

	equalized := equalize(lum, width, height)
	edgeRatio := edgeRatio(equalized, width, height)
	over, under := exposureRatios(lum)

	score := p.qualityScore(edgeRatio, over, under)

	var warnings []string
	if score < p.QualityFloor {
		warnings = append(warnings, fmt.Sprintf("low image quality score %.0f (floor %.0f)", score, p.QualityFloor))
	}

	out := image.NewGray(image.Rect(0, 0, width, height))
	copy(out.Pix, equalized)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 90}); err != nil {
		return nil, &defect.PreprocessingError{Reason: fmt.Sprintf("re-encoding failed: %v", err)}
	}

	return &Result{
		Image:        buf.Bytes(),
		Width:        width,
		Height:       height,
		QualityScore: score,
		Warnings:     warnings,
	}, nil
}

// luminance flattens the image to an 8-bit luma plane.
func luminance(img image.Image) []uint8 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	lum := make([]uint8, w*h)

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// BT.601 luma, 16-bit channels.
			v := (299*r + 587*g + 114*b) / 1000
			lum[i] = uint8(v >> 8)
			i++
		}
	}
	return lum
}

// equalize applies global histogram equalization to flatten brightness
// and contrast variations across panels.
func equalize(lum []uint8, width, height int) []uint8 {
	var hist [256]int
	for _, v := range lum {
		hist[v]++
	}

	total := width * height
	var cdf [256]int
	running := 0
	cdfMin := 0
	for i := 0; i < 256; i++ {
		running += hist[i]
		cdf[i] = running
		if cdfMin == 0 && running > 0 {
			cdfMin = running
		}
	}

	out := make([]uint8, len(lum))
	denom := total - cdfMin
	if denom <= 0 {
		copy(out, lum)
		return out
	}
	for i, v := range lum {
		out[i] = uint8((cdf[v] - cdfMin) * 255 / denom)
	}
	return out
}

// edgeRatio estimates sharpness as the fraction of pixels whose gradient
// magnitude exceeds a fixed step, a cheap stand-in for a Canny pass.
func edgeRatio(lum []uint8, width, height int) float64 {
	if width < 3 || height < 3 {
		return 0
	}

	const gradientStep = 96
	edges := 0
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			gx := int(lum[i+1]) - int(lum[i-1])
			gy := int(lum[i+width]) - int(lum[i-width])
			if gx < 0 {
				gx = -gx
			}
			if gy < 0 {
				gy = -gy
			}
			if gx+gy > gradientStep {
				edges++
			}
		}
	}
	return float64(edges) / float64((width-2)*(height-2))
}

func exposureRatios(lum []uint8) (over, under float64) {
	if len(lum) == 0 {
		return 0, 0
	}
	overCount, underCount := 0, 0
	for _, v := range lum {
		if v >= 250 {
			overCount++
		}
		if v <= 20 {
			underCount++
		}
	}
	total := float64(len(lum))
	return float64(overCount) / total, float64(underCount) / total
}
