package onnx

import (
	"log"
	"sort"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

// boxFields is the per-row prefix: center x, center y, width, height
// (all normalized to [0,1]) followed by objectness; class scores follow.
const boxFields = 5

// decodeDetections converts raw model output rows into canonical
// detections: rows below threshold are filtered, boxes are scaled to
// pixel space and clamped to the image, classes outside the known set are
// dropped, and the result is sorted by confidence descending.
func decodeDetections(raw []float32, classes []string, imgWidth, imgHeight int, threshold float64) []defect.Detection {
	rowLen := boxFields + len(classes)
	if rowLen <= boxFields || len(raw) < rowLen {
		return nil
	}

	detections := make([]defect.Detection, 0, 16)

	for off := 0; off+rowLen <= len(raw); off += rowLen {
		objectness := float64(raw[off+4])
		if objectness <= 0 {
			continue
		}

		bestIdx := 0
		bestScore := raw[off+boxFields]
		for i := 1; i < len(classes); i++ {
			if raw[off+boxFields+i] > bestScore {
				bestScore = raw[off+boxFields+i]
				bestIdx = i
			}
		}

		confidence := objectness * float64(bestScore)
		if confidence < threshold {
			continue
		}
		if confidence > 1 {
			confidence = 1
		}

		className := classes[bestIdx]
		if !defect.ValidClass(className) {
			log.Printf("[ONNX] Dropping detection with unknown class %q", className)
			continue
		}

		cx := float64(raw[off]) * float64(imgWidth)
		cy := float64(raw[off+1]) * float64(imgHeight)
		w := float64(raw[off+2]) * float64(imgWidth)
		h := float64(raw[off+3]) * float64(imgHeight)

		box := defect.ClampBox(defect.BoundingBox{
			X:      int(cx - w/2),
			Y:      int(cy - h/2),
			Width:  int(w),
			Height: int(h),
		}, imgWidth, imgHeight)
		if !box.Valid() {
			continue
		}

		detections = append(detections, defect.Detection{
			Class:      defect.Class(className),
			Confidence: confidence,
			Box:        box,
			Source:     defect.SourcePrimary,
		})
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	return detections
}
