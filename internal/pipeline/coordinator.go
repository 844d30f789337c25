// Package pipeline coordinates one inspection job end to end:
// preprocessing, concurrent fan-out to both detectors under a single
// deadline, and ensemble aggregation, with admission control bounding
// the number of jobs in flight.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/avdeyev/aeroinspect/internal/defect"
	"github.com/avdeyev/aeroinspect/internal/detector"
	"github.com/avdeyev/aeroinspect/internal/ensemble"
	"github.com/avdeyev/aeroinspect/internal/preprocess"
)

// Preprocessor is what the coordinator needs from the image
// preprocessing stage.
type Preprocessor interface {
	Process(data []byte) (*preprocess.Result, error)
}

// Service runs inspection jobs. All dependencies are injected at startup
// and shared read-only across jobs.
type Service struct {
	pre       Preprocessor
	primary   detector.Primary
	secondary detector.Secondary
	agg       *ensemble.Aggregator
	governor  *Governor

	// JobTimeout is the per-job detection deadline; SlowJobThreshold
	// only triggers a diagnostic log line, never cancellation.
	JobTimeout       time.Duration
	SlowJobThreshold time.Duration
}

// NewService wires the pipeline.
func NewService(pre Preprocessor, primary detector.Primary, secondary detector.Secondary, agg *ensemble.Aggregator, governor *Governor) *Service {
	return &Service{
		pre:              pre,
		primary:          primary,
		secondary:        secondary,
		agg:              agg,
		governor:         governor,
		JobTimeout:       10 * time.Second,
		SlowJobThreshold: 30 * time.Second,
	}
}

// Submit runs one inspection synchronously from the caller's view. It
// blocks while the governor is at capacity, then drives the job through
// its states. The returned error is terminal: either the input image was
// unusable or every inference backend was.
func (s *Service) Submit(ctx context.Context, image []byte) (*defect.EnsembleResult, error) {
	if err := s.governor.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("waiting for job slot: %w", err)
	}
	defer s.governor.Release()

	job := newJob()

	slowTimer := time.AfterFunc(s.SlowJobThreshold, func() {
		log.Printf("[PIPELINE] Job %s: still running after %v, performance warning", job.ID, s.SlowJobThreshold)
	})
	defer slowTimer.Stop()

	job.setState(StatePreprocessing)
	pre, err := s.pre.Process(image)
	if err != nil {
		job.setState(StateFailed)
		return nil, err
	}

	warnings := append([]string(nil), pre.Warnings...)

	job.setState(StateDetecting)
	primarySet, secondarySet := s.detect(ctx, job, pre)

	degraded := false
	if primarySet.Err != nil {
		log.Printf("[PIPELINE] Job %s: primary detector failed: %v", job.ID, primarySet.Err)
		warnings = append(warnings, fmt.Sprintf("primary detector unusable: %v", primarySet.Err))
		degraded = true
	}
	if secondarySet.Err != nil {
		log.Printf("[PIPELINE] Job %s: secondary detector failed: %v", job.ID, secondarySet.Err)
		warnings = append(warnings, fmt.Sprintf("secondary detector unusable: %v", secondarySet.Err))
		degraded = true
	}

	if primarySet.Err != nil && secondarySet.Err != nil {
		job.setState(StateFailed)
		return nil, fmt.Errorf("%w: primary: %v; secondary: %v",
			defect.ErrAllDetectorsUnavailable, primarySet.Err, secondarySet.Err)
	}

	job.setState(StateAggregating)
	out := s.agg.Aggregate(primarySet.Detections, secondarySet.Detections)
	warnings = append(warnings, out.Warnings...)

	job.setState(StateCompleted)

	return &defect.EnsembleResult{
		Detections:       out.Detections,
		ProcessingTimeMs: time.Since(job.StartedAt).Milliseconds(),
		Degraded:         degraded,
		Warnings:         warnings,
	}, nil
}

// detect fans out to both adapters concurrently under one deadline. On
// expiry the still-pending branch is abandoned, not interrupted: its
// goroutine may finish later and its result is simply unused.
func (s *Service) detect(ctx context.Context, job *Job, pre *preprocess.Result) (primarySet, secondarySet defect.DetectionSet) {
	detectCtx, cancel := context.WithTimeout(ctx, s.JobTimeout)
	defer cancel()

	primaryCh := make(chan defect.DetectionSet, 1)
	secondaryCh := make(chan defect.DetectionSet, 1)

	go func() {
		primaryCh <- s.primary.Detect(detectCtx, pre.Image, pre.Width, pre.Height)
	}()
	go func() {
		// Candidate regions stay empty here: both branches start at
		// the same instant, so the primary's output cannot focus the
		// secondary without serializing the job.
		secondaryCh <- s.secondary.Detect(detectCtx, pre.Image, pre.Width, pre.Height, nil)
	}()

	primaryDone, secondaryDone := false, false
	for !primaryDone || !secondaryDone {
		select {
		case set := <-primaryCh:
			primarySet = set
			primaryDone = true
		case set := <-secondaryCh:
			secondarySet = set
			secondaryDone = true
		case <-detectCtx.Done():
			// Prefer a result already delivered over the deadline.
			if !primaryDone {
				select {
				case set := <-primaryCh:
					primarySet = set
				default:
					primarySet = defect.DetectionSet{Err: &defect.TimeoutError{Detector: "primary"}}
				}
				primaryDone = true
			}
			if !secondaryDone {
				select {
				case set := <-secondaryCh:
					secondarySet = set
				default:
					secondarySet = defect.DetectionSet{Err: &defect.TimeoutError{Detector: "secondary"}}
				}
				secondaryDone = true
			}
		}
	}

	return primarySet, secondarySet
}
