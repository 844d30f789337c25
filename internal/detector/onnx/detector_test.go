package onnx

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

func TestDetectMissingMetadataReportsUnavailable(t *testing.T) {
	d := New(
		filepath.Join(t.TempDir(), "missing.onnx"),
		filepath.Join(t.TempDir(), "missing.json"),
		0.25)
	defer d.Close()

	set := d.Detect(context.Background(), []byte("image"), 1000, 1000)

	var unavailable *defect.DetectorUnavailableError
	if !errors.As(set.Err, &unavailable) {
		t.Fatalf("expected DetectorUnavailableError, got %v", set.Err)
	}
	if unavailable.Detector != "primary" {
		t.Errorf("expected primary detector tag, got %q", unavailable.Detector)
	}
	if len(set.Detections) != 0 {
		t.Errorf("expected no detections on init failure, got %d", len(set.Detections))
	}
}

func TestDetectInitFailureIsSticky(t *testing.T) {
	d := New("nope.onnx", "nope.json", 0.25)
	defer d.Close()

	first := d.Detect(context.Background(), nil, 100, 100)
	second := d.Detect(context.Background(), nil, 100, 100)

	if first.Err == nil || second.Err == nil {
		t.Fatal("expected both calls to fail")
	}
	if first.Err.Error() != second.Err.Error() {
		t.Errorf("init error must be cached: %v vs %v", first.Err, second.Err)
	}
}

func TestCloseWithoutInit(t *testing.T) {
	New("nope.onnx", "nope.json", 0.25).Close()
}
