package vlm

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

// rawDetection mirrors the entry shape the model is prompted to emit.
type rawDetection struct {
	Class       string             `json:"class"`
	Confidence  float64            `json:"confidence"`
	BBox        defect.BoundingBox `json:"bbox"`
	Description string             `json:"description"`
}

// ParseDetections extracts defect detections from a model reply. The
// reply may be a bare JSON array, an array wrapped in markdown code
// fences, or an array embedded in surrounding prose. Individual records
// with unknown classes or degenerate geometry are dropped (logged), never
// a parse failure. An error is returned only when no JSON array can be
// located or decoded at all.
func ParseDetections(content string, imgWidth, imgHeight int) ([]defect.Detection, error) {
	payload := extractJSONArray(content)
	if payload == "" {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var raw []rawDetection
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode detection array: %w", err)
	}

	detections := make([]defect.Detection, 0, len(raw))
	for _, r := range raw {
		class := strings.ToLower(strings.TrimSpace(r.Class))
		if !defect.ValidClass(class) {
			log.Printf("[VLM] Dropping detection with unknown class %q", r.Class)
			continue
		}

		box := defect.ClampBox(r.BBox, imgWidth, imgHeight)
		if !box.Valid() {
			log.Printf("[VLM] Dropping %s detection with degenerate bbox %+v", class, r.BBox)
			continue
		}

		confidence := r.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		detections = append(detections, defect.Detection{
			Class:      defect.Class(class),
			Confidence: confidence,
			Box:        box,
			Source:     defect.SourceSecondary,
		})
	}

	return detections, nil
}

// extractJSONArray strips markdown fencing and surrounding prose, leaving
// the first top-level JSON array in the text.
func extractJSONArray(content string) string {
	s := strings.TrimSpace(content)

	// Fenced block wins when present: ```json ... ``` or ``` ... ```.
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			// Skip the language marker line ("json", "JSON" or empty).
			marker := strings.TrimSpace(rest[:nl])
			if marker == "" || strings.EqualFold(marker, "json") {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexByte(s, '[')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}
