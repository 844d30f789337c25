package defect

import (
	"errors"
	"fmt"
)

// ErrAllDetectorsUnavailable marks the only pipeline-fatal detector
// condition: neither adapter produced a usable detection set.
var ErrAllDetectorsUnavailable = errors.New("all inference backends unavailable")

// PreprocessingError means the input image is unusable. It fails the job
// before any detector runs.
type PreprocessingError struct {
	Reason string
}

func (e *PreprocessingError) Error() string {
	return fmt.Sprintf("preprocessing failed: %s", e.Reason)
}

// DetectorUnavailableError reports that a detector backend could not be
// reached or could not produce output. Never fatal on its own.
type DetectorUnavailableError struct {
	Detector string
	Err      error
}

func (e *DetectorUnavailableError) Error() string {
	return fmt.Sprintf("%s detector unavailable: %v", e.Detector, e.Err)
}

func (e *DetectorUnavailableError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that a detector branch did not finish before the
// job deadline. Soft: the job proceeds degraded with whatever completed.
type TimeoutError struct {
	Detector string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s detector timed out", e.Detector)
}
