//go:build !gocv
// +build !gocv

package preprocess

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// checkerboard produces a sharp, well-exposed synthetic image.
func checkerboard(size, cell int) image.Image {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 200})
			} else {
				img.SetGray(x, y, color.Gray{Y: 60})
			}
		}
	}
	return img
}

func flatImage(size int, v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestProcessSharpImage(t *testing.T) {
	p := New()
	res, err := p.Process(encodeJPEG(t, checkerboard(800, 16)))
	require.NoError(t, err)

	require.Equal(t, 800, res.Width)
	require.Equal(t, 800, res.Height)
	require.GreaterOrEqual(t, res.QualityScore, p.QualityFloor)
	require.Empty(t, res.Warnings)
	require.NotEmpty(t, res.Image)
}

func TestProcessBlurryImageWarnsButSucceeds(t *testing.T) {
	p := New()
	// A flat mid-gray frame has no edges at all: hard blur signal.
	res, err := p.Process(encodeJPEG(t, flatImage(800, 128)))
	require.NoError(t, err)

	require.Less(t, res.QualityScore, p.QualityFloor)
	require.NotEmpty(t, res.Warnings, "low quality must warn, not fail")
}

func TestProcessRejectsBadDimensions(t *testing.T) {
	p := New()

	_, err := p.Process(encodeJPEG(t, checkerboard(320, 16)))
	var perr *defect.PreprocessingError
	require.True(t, errors.As(err, &perr), "small image must raise PreprocessingError, got %v", err)

	p.MaxDimension = 700
	_, err = p.Process(encodeJPEG(t, checkerboard(800, 16)))
	require.True(t, errors.As(err, &perr), "oversized image must raise PreprocessingError, got %v", err)
}

func TestProcessRejectsGarbage(t *testing.T) {
	p := New()
	_, err := p.Process([]byte("definitely not a jpeg"))

	var perr *defect.PreprocessingError
	require.True(t, errors.As(err, &perr))
}

func TestProcessDownscalesOversized(t *testing.T) {
	p := New()
	p.MaxDimension = 4096
	res, err := p.Process(encodeJPEG(t, checkerboard(2048, 32)))
	require.NoError(t, err)

	require.LessOrEqual(t, res.Width, p.MaxSide)
	require.LessOrEqual(t, res.Height, p.MaxSide)
}

func TestEqualizeSpreadsHistogram(t *testing.T) {
	// Narrow band 100..120 must stretch toward the full range.
	lum := make([]uint8, 64*64)
	for i := range lum {
		lum[i] = uint8(100 + i%21)
	}

	out := equalize(lum, 64, 64)

	minV, maxV := out[0], out[0]
	for _, v := range out {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	require.Less(t, int(minV), 10)
	require.Greater(t, int(maxV), 245)
}
