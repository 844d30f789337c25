package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avdeyev/aeroinspect/internal/defect"
	"github.com/avdeyev/aeroinspect/internal/ensemble"
	"github.com/avdeyev/aeroinspect/internal/preprocess"
)

type stubPreprocessor struct {
	err      error
	warnings []string
	calls    int32
}

func (s *stubPreprocessor) Process(data []byte) (*preprocess.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return &preprocess.Result{
		Image:        data,
		Width:        1000,
		Height:       1000,
		QualityScore: 90,
		Warnings:     s.warnings,
	}, nil
}

type stubPrimary struct {
	set   defect.DetectionSet
	block time.Duration
	calls int32
}

func (s *stubPrimary) Detect(ctx context.Context, image []byte, width, height int) defect.DetectionSet {
	atomic.AddInt32(&s.calls, 1)
	if s.block > 0 {
		select {
		case <-time.After(s.block):
		case <-ctx.Done():
			return defect.DetectionSet{Err: &defect.TimeoutError{Detector: "primary"}}
		}
	}
	return s.set
}

type stubSecondary struct {
	set   defect.DetectionSet
	block time.Duration
	calls int32
}

func (s *stubSecondary) Detect(ctx context.Context, image []byte, width, height int, candidates []defect.BoundingBox) defect.DetectionSet {
	atomic.AddInt32(&s.calls, 1)
	if s.block > 0 {
		select {
		case <-time.After(s.block):
		case <-ctx.Done():
			return defect.DetectionSet{Err: &defect.TimeoutError{Detector: "secondary"}}
		}
	}
	return s.set
}

func detections(class defect.Class, conf float64, src defect.Source) defect.DetectionSet {
	return defect.DetectionSet{
		Detections: []defect.Detection{{
			Class:      class,
			Confidence: conf,
			Box:        defect.BoundingBox{X: 100, Y: 100, Width: 50, Height: 50},
			Source:     src,
		}},
	}
}

func newTestService(t *testing.T, pre *stubPreprocessor, p *stubPrimary, sec *stubSecondary) *Service {
	t.Helper()
	agg, err := ensemble.New(defect.DefaultEnsembleConfig())
	require.NoError(t, err)

	svc := NewService(pre, p, sec, agg, NewGovernor(DefaultMaxConcurrentJobs))
	svc.JobTimeout = 200 * time.Millisecond
	return svc
}

func TestSubmitMergesBothDetectors(t *testing.T) {
	pre := &stubPreprocessor{}
	p := &stubPrimary{set: detections(defect.ClassCrack, 0.9, defect.SourcePrimary)}
	sec := &stubSecondary{set: detections(defect.ClassCrack, 0.8, defect.SourceSecondary)}
	svc := newTestService(t, pre, p, sec)

	res, err := svc.Submit(context.Background(), []byte("img"))
	require.NoError(t, err)

	require.False(t, res.Degraded)
	require.Len(t, res.Detections, 1)
	require.Equal(t, defect.SourceEnsemble, res.Detections[0].Source)
	require.InDelta(t, 0.85, res.Detections[0].Confidence, 1e-9)
}

func TestSubmitPreprocessingFailureSkipsDetectors(t *testing.T) {
	pre := &stubPreprocessor{err: &defect.PreprocessingError{Reason: "too small"}}
	p := &stubPrimary{}
	sec := &stubSecondary{}
	svc := newTestService(t, pre, p, sec)

	_, err := svc.Submit(context.Background(), []byte("img"))

	var perr *defect.PreprocessingError
	require.True(t, errors.As(err, &perr))
	require.Zero(t, atomic.LoadInt32(&p.calls), "primary must not be invoked")
	require.Zero(t, atomic.LoadInt32(&sec.calls), "secondary must not be invoked")
}

func TestSubmitSecondaryFailureDegrades(t *testing.T) {
	pre := &stubPreprocessor{}
	p := &stubPrimary{set: detections(defect.ClassScratch, 0.95, defect.SourcePrimary)}
	sec := &stubSecondary{set: defect.DetectionSet{
		Err: &defect.DetectorUnavailableError{Detector: "secondary", Err: errors.New("endpoint down")},
	}}
	svc := newTestService(t, pre, p, sec)

	res, err := svc.Submit(context.Background(), []byte("img"))
	require.NoError(t, err, "secondary failure alone must not fail the job")

	require.True(t, res.Degraded)
	require.NotEmpty(t, res.Warnings)
	require.Len(t, res.Detections, 1)
	require.Equal(t, defect.ClassScratch, res.Detections[0].Class)
}

func TestSubmitPrimaryFailureDegrades(t *testing.T) {
	pre := &stubPreprocessor{}
	p := &stubPrimary{set: defect.DetectionSet{
		Err: &defect.DetectorUnavailableError{Detector: "primary", Err: errors.New("weights missing")},
	}}
	sec := &stubSecondary{set: detections(defect.ClassCorrosion, 0.85, defect.SourceSecondary)}
	svc := newTestService(t, pre, p, sec)

	res, err := svc.Submit(context.Background(), []byte("img"))
	require.NoError(t, err, "primary failure alone must not fail the job")

	require.True(t, res.Degraded)
	require.Len(t, res.Detections, 1)
	require.Equal(t, defect.ClassCorrosion, res.Detections[0].Class)
}

func TestSubmitBothFailuresFailJob(t *testing.T) {
	pre := &stubPreprocessor{}
	p := &stubPrimary{set: defect.DetectionSet{
		Err: &defect.DetectorUnavailableError{Detector: "primary", Err: errors.New("boom")},
	}}
	sec := &stubSecondary{set: defect.DetectionSet{
		Err: &defect.DetectorUnavailableError{Detector: "secondary", Err: errors.New("down")},
	}}
	svc := newTestService(t, pre, p, sec)

	_, err := svc.Submit(context.Background(), []byte("img"))
	require.ErrorIs(t, err, defect.ErrAllDetectorsUnavailable)
}

func TestSubmitSlowSecondaryTimesOutToDegraded(t *testing.T) {
	pre := &stubPreprocessor{}
	p := &stubPrimary{set: detections(defect.ClassDent, 0.9, defect.SourcePrimary)}
	sec := &stubSecondary{
		set:   detections(defect.ClassDent, 0.8, defect.SourceSecondary),
		block: time.Second, // well past the 200ms job timeout
	}
	svc := newTestService(t, pre, p, sec)

	res, err := svc.Submit(context.Background(), []byte("img"))
	require.NoError(t, err)

	require.True(t, res.Degraded)
	require.Len(t, res.Detections, 1)
	require.Equal(t, defect.SourcePrimary, res.Detections[0].Source)
}

func TestSubmitCarriesQualityWarnings(t *testing.T) {
	pre := &stubPreprocessor{warnings: []string{"low image quality score 40 (floor 60)"}}
	p := &stubPrimary{set: detections(defect.ClassCrack, 0.9, defect.SourcePrimary)}
	sec := &stubSecondary{set: detections(defect.ClassCrack, 0.8, defect.SourceSecondary)}
	svc := newTestService(t, pre, p, sec)

	res, err := svc.Submit(context.Background(), []byte("img"))
	require.NoError(t, err)

	require.False(t, res.Degraded, "quality warning alone is not degradation")
	require.Contains(t, res.Warnings[0], "low image quality")
}

func TestSubmitHonorsGovernorLimit(t *testing.T) {
	// Six simultaneous jobs against a limit of five with blocking
	// detector stubs: exactly five progress immediately, the sixth only
	// after a slot frees.
	release := make(chan struct{})
	var entered int32

	pre := &stubPreprocessor{}
	p := &stubPrimary{set: detections(defect.ClassCrack, 0.9, defect.SourcePrimary)}
	sec := &blockingSecondary{entered: &entered, release: release}

	agg, err := ensemble.New(defect.DefaultEnsembleConfig())
	require.NoError(t, err)
	svc := NewService(pre, p, sec, agg, NewGovernor(5))
	svc.JobTimeout = 5 * time.Second

	results := make(chan error, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, err := svc.Submit(context.Background(), []byte("img"))
			results <- err
		}()
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&entered) == 5
	}, 2*time.Second, 5*time.Millisecond, "five jobs must reach the detectors")

	// The sixth stays queued while all slots are held.
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 5, atomic.LoadInt32(&entered))

	// Freeing one slot lets the sixth in.
	release <- struct{}{}
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&entered) == 6
	}, 2*time.Second, 5*time.Millisecond, "sixth job must start after a completion")

	close(release)
	for i := 0; i < 6; i++ {
		require.NoError(t, <-results)
	}
}

type blockingSecondary struct {
	entered *int32
	release chan struct{}
}

func (s *blockingSecondary) Detect(ctx context.Context, image []byte, width, height int, candidates []defect.BoundingBox) defect.DetectionSet {
	atomic.AddInt32(s.entered, 1)
	<-s.release
	return defect.DetectionSet{}
}
