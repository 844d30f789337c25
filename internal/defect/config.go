package defect

import "fmt"

const weightEpsilon = 1e-6

// EnsembleConfig holds the aggregation weights and thresholds. It is
// loaded once at startup, validated, and shared read-only across jobs.
type EnsembleConfig struct {
	PrimaryWeight               float64
	SecondaryWeight             float64
	MatchIoUThreshold           float64
	NMSIoUThreshold             float64
	SingleDetectorMinConfidence float64
	MinFinalConfidence          float64
}

// DefaultEnsembleConfig returns the production defaults: the primary
// detector is weighted higher because it is deterministic and tuned on
// the defect classes.
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{
		PrimaryWeight:               0.6,
		SecondaryWeight:             0.4,
		MatchIoUThreshold:           0.5,
		NMSIoUThreshold:             0.45,
		SingleDetectorMinConfidence: 0.7,
		MinFinalConfidence:          0.5,
	}
}

// Validate rejects configs whose weights do not sum to 1.0 or whose
// thresholds fall outside (0,1]. Weights are never silently normalized.
func (c EnsembleConfig) Validate() error {
	sum := c.PrimaryWeight + c.SecondaryWeight
	if sum < 1.0-weightEpsilon || sum > 1.0+weightEpsilon {
		return fmt.Errorf("detector weights must sum to 1.0, got %.4f", sum)
	}
	if c.PrimaryWeight < 0 || c.SecondaryWeight < 0 {
		return fmt.Errorf("detector weights must be non-negative")
	}

	thresholds := map[string]float64{
		"match IoU threshold":            c.MatchIoUThreshold,
		"NMS IoU threshold":              c.NMSIoUThreshold,
		"single-detector min confidence": c.SingleDetectorMinConfidence,
		"min final confidence":           c.MinFinalConfidence,
	}
	for name, v := range thresholds {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0,1], got %.4f", name, v)
		}
	}

	return nil
}

// Weight returns the voting weight for a detector source. Ensemble
// detections never vote, so only primary and secondary matter.
func (c EnsembleConfig) Weight(s Source) float64 {
	switch s {
	case SourcePrimary:
		return c.PrimaryWeight
	case SourceSecondary:
		return c.SecondaryWeight
	default:
		return 0
	}
}
