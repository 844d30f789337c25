// Package detector defines the ports the inference pipeline calls into.
// Adapters never return an error directly: failures are recorded in the
// DetectionSet and the coordinator decides fatality.
package detector

import (
	"context"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

// Primary is the fast, deterministic, in-process detector.
type Primary interface {
	Detect(ctx context.Context, image []byte, width, height int) defect.DetectionSet
}

// Secondary is the slower, network-fallible detector. Candidate regions
// from the primary may be passed to focus it; they are optional.
type Secondary interface {
	Detect(ctx context.Context, image []byte, width, height int, candidates []defect.BoundingBox) defect.DetectionSet
}
