package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

// Inspection is the persisted record of one completed inspection job.
// The inference core itself keeps nothing; this is the collaborator-side
// audit trail.
type Inspection struct {
	ID               string
	Filename         string
	ContentType      string
	Size             int64
	SubmittedAt      time.Time
	ProcessingTimeMs int64
	Degraded         bool
	DefectCount      int
	ResultJSON       string
}

// NewInspection builds a record from a finished job's result.
func NewInspection(filename, contentType string, size int64, result *defect.EnsembleResult, resultJSON string) *Inspection {
	return &Inspection{
		ID:               uuid.New().String(),
		Filename:         filename,
		ContentType:      contentType,
		Size:             size,
		SubmittedAt:      time.Now(),
		ProcessingTimeMs: result.ProcessingTimeMs,
		Degraded:         result.Degraded,
		DefectCount:      len(result.Detections),
		ResultJSON:       resultJSON,
	}
}
