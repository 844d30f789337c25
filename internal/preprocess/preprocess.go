package preprocess

import (
	"fmt"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

// Result is the output of preprocessing one image: normalized pixel data
// ready for the detectors plus a quality assessment.
type Result struct {
	Image        []byte
	Width        int
	Height       int
	QualityScore float64
	Warnings     []string
}

// Preprocessor validates and normalizes incoming images. It is a pure
// transform: no shared state, safe for concurrent use.
type Preprocessor struct {
	MinDimension int
	MaxDimension int
	MaxSide      int
	QualityFloor float64

	// Quality-gate thresholds. Edge ratio below MinSharpnessEdgeRatio
	// counts as blur; pixel ratios above the exposure limits count as
	// over/underexposure.
	MinSharpnessEdgeRatio float64
	MaxOverexposedRatio   float64
	MaxUnderexposedRatio  float64
}

// New returns a preprocessor with production defaults.
func New() *Preprocessor {
	return &Preprocessor{
		MinDimension:          640,
		MaxDimension:          4096,
		MaxSide:               1024,
		QualityFloor:          60,
		MinSharpnessEdgeRatio: 0.008,
		MaxOverexposedRatio:   0.35,
		MaxUnderexposedRatio:  0.45,
	}
}

func (p *Preprocessor) validateBounds(width, height int) error {
	if width < p.MinDimension || height < p.MinDimension {
		return &defect.PreprocessingError{
			Reason: fmt.Sprintf("image too small (%dx%d, min side %d)", width, height, p.MinDimension),
		}
	}
	if width > p.MaxDimension || height > p.MaxDimension {
		return &defect.PreprocessingError{
			Reason: fmt.Sprintf("image too large (%dx%d, max side %d)", width, height, p.MaxDimension),
		}
	}
	return nil
}

// qualityScore folds sharpness and exposure statistics into a single
// [0,100] score. Each failing gate costs a fixed share of the score, the
// sharpness gate the most since blurry input degrades both detectors.
func (p *Preprocessor) qualityScore(edgeRatio, overexposed, underexposed float64) float64 {
	score := 100.0

	if edgeRatio < p.MinSharpnessEdgeRatio {
		frac := edgeRatio / p.MinSharpnessEdgeRatio
		score -= 50 * (1 - frac)
	}
	if overexposed > p.MaxOverexposedRatio {
		score -= 25 * minFloat(1, (overexposed-p.MaxOverexposedRatio)/p.MaxOverexposedRatio)
	}
	if underexposed > p.MaxUnderexposedRatio {
		score -= 25 * minFloat(1, (underexposed-p.MaxUnderexposedRatio)/p.MaxUnderexposedRatio)
	}

	if score < 0 {
		score = 0
	}
	return score
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
