//go:build gocv
// +build gocv

package preprocess

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

// Process validates, normalizes and scores one image using OpenCV.
// CLAHE gives better local contrast than the global equalization in the
// native build, and the glare mask feeds the quality score.
func (p *Preprocessor) Process(data []byte) (*Result, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil || mat.Empty() {
		if !mat.Empty() {
			mat.Close()
		}
		return nil, &defect.PreprocessingError{Reason: "undecodable image"}
	}
	defer mat.Close()

	width, height := mat.Cols(), mat.Rows()
	if err := p.validateBounds(width, height); err != nil {
		return nil, err
	}

	if width > p.MaxSide || height > p.MaxSide {
		scale := float64(p.MaxSide) / float64(maxInt(width, height))
		resized := gocv.NewMat()
		gocv.Resize(mat, &resized, image.Pt(int(float64(width)*scale), int(float64(height)*scale)), 0, 0, gocv.InterpolationArea)
		mat.Close()
		mat = resized
		width, height = mat.Cols(), mat.Rows()
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	clahe := gocv.NewCLAHE()
	defer clahe.Close()
	equalized := gocv.NewMat()
	defer equalized.Close()
	clahe.Apply(gray, &equalized)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(equalized, &edges, 80, 160)
	edgeRatio := maskRatio(edges)

	bright := gocv.NewMat()
	defer bright.Close()
	gocv.Threshold(gray, &bright, 250, 255, gocv.ThresholdBinary)
	over := maskRatio(bright)

	dark := gocv.NewMat()
	defer dark.Close()
	gocv.Threshold(gray, &dark, 20, 255, gocv.ThresholdBinaryInv)
	under := maskRatio(dark)

	score := p.qualityScore(edgeRatio, over, under)

	var warnings []string
	if score < p.QualityFloor {
		warnings = append(warnings, fmt.Sprintf("low image quality score %.0f (floor %.0f)", score, p.QualityFloor))
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, equalized)
	if err != nil {
		return nil, &defect.PreprocessingError{Reason: fmt.Sprintf("re-encoding failed: %v", err)}
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())

	return &Result{
		Image:        out,
		Width:        width,
		Height:       height,
		QualityScore: score,
		Warnings:     warnings,
	}, nil
}

func maskRatio(mask gocv.Mat) float64 {
	total := mask.Cols() * mask.Rows()
	if total <= 0 {
		return 0
	}
	return float64(gocv.CountNonZero(mask)) / float64(total)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
