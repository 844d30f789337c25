package vlm

import (
	"testing"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

const validArray = `[
	{"class": "crack", "confidence": 0.8, "bbox": {"x": 100, "y": 100, "width": 50, "height": 50}, "description": "hairline crack"},
	{"class": "corrosion", "confidence": 0.6, "bbox": {"x": 300, "y": 200, "width": 80, "height": 40}, "description": "surface corrosion"}
]`

func TestParseDetections(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected int
	}{
		{"bare JSON array", validArray, 2},
		{"json code fence", "```json\n" + validArray + "\n```", 2},
		{"plain code fence", "```\n" + validArray + "\n```", 2},
		{"surrounding prose", "Here are the defects I found:\n" + validArray + "\nLet me know if you need more detail.", 2},
		{"empty array", "[]", 0},
		{"fenced empty array", "```json\n[]\n```", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dets, err := ParseDetections(tt.content, 1000, 1000)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(dets) != tt.expected {
				t.Fatalf("expected %d detections, got %d", tt.expected, len(dets))
			}
			for _, d := range dets {
				if d.Source != defect.SourceSecondary {
					t.Errorf("expected secondary source, got %s", d.Source)
				}
			}
		})
	}
}

func TestParseDetectionsDropsInvalidRecords(t *testing.T) {
	content := `[
		{"class": "crack", "confidence": 0.8, "bbox": {"x": 10, "y": 10, "width": 50, "height": 50}},
		{"class": "rust", "confidence": 0.9, "bbox": {"x": 10, "y": 10, "width": 50, "height": 50}},
		{"class": "dent", "confidence": 0.9, "bbox": {"x": 10, "y": 10, "width": 0, "height": 50}}
	]`

	dets, err := ParseDetections(content, 1000, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected only the valid record kept, got %d", len(dets))
	}
	if dets[0].Class != defect.ClassCrack {
		t.Errorf("expected crack, got %s", dets[0].Class)
	}
}

func TestParseDetectionsNormalizesClassCase(t *testing.T) {
	content := `[{"class": " Crack ", "confidence": 0.8, "bbox": {"x": 10, "y": 10, "width": 50, "height": 50}}]`

	dets, err := ParseDetections(content, 1000, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dets) != 1 || dets[0].Class != defect.ClassCrack {
		t.Fatalf("expected normalized crack class, got %+v", dets)
	}
}

func TestParseDetectionsClampsValues(t *testing.T) {
	content := `[{"class": "crack", "confidence": 1.7, "bbox": {"x": 950, "y": 10, "width": 200, "height": 50}}]`

	dets, err := ParseDetections(content, 1000, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].Confidence != 1.0 {
		t.Errorf("expected confidence clamped to 1.0, got %f", dets[0].Confidence)
	}
	if dets[0].Box.X+dets[0].Box.Width > 1000 {
		t.Errorf("box not clamped: %+v", dets[0].Box)
	}
}

func TestParseDetectionsFailsWithoutArray(t *testing.T) {
	for _, content := range []string{
		"I could not find any structured data in this image.",
		"",
		"{\"class\": \"crack\"}",
		"```json\nnot json at all\n```",
	} {
		if _, err := ParseDetections(content, 1000, 1000); err == nil {
			t.Errorf("expected error for content %q", content)
		}
	}
}

func TestExtractJSONArrayNestedBrackets(t *testing.T) {
	content := `prefix [{"class": "crack", "notes": ["a]b", "c"]}] suffix`
	got := extractJSONArray(content)
	expected := `[{"class": "crack", "notes": ["a]b", "c"]}]`
	if got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}
