// Package ensemble resolves the two detectors' possibly conflicting,
// possibly overlapping predictions into one deterministic,
// confidence-ranked defect list.
package ensemble

import (
	"fmt"
	"sort"

	"github.com/avdeyev/aeroinspect/internal/defect"
)

// Aggregator merges, votes and deduplicates detection sets. It holds only
// the immutable config and is safe for concurrent use.
type Aggregator struct {
	cfg defect.EnsembleConfig
}

// New validates the config and returns an aggregator.
func New(cfg defect.EnsembleConfig) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ensemble config: %w", err)
	}
	return &Aggregator{cfg: cfg}, nil
}

// Output is the aggregation result plus any per-detection warnings
// recorded along the way.
type Output struct {
	Detections []defect.Detection
	Warnings   []string
}

type pair struct {
	p, s int
	iou  float64
}

// Aggregate runs the full pipeline: same-class matching, pair merging,
// cross-class weighted voting, the single-detector confidence floor,
// class-scoped NMS and the final confidence filter.
func (a *Aggregator) Aggregate(primary, secondary []defect.Detection) Output {
	var warnings []string
	primary, warnings = sanitize(primary, warnings)
	secondary, warnings = sanitize(secondary, warnings)

	usedP := make([]bool, len(primary))
	usedS := make([]bool, len(secondary))

	combined := make([]defect.Detection, 0, len(primary)+len(secondary))

	// Same-class matching, greedy best-IoU-first.
	for _, m := range a.matchPairs(primary, secondary, true) {
		if usedP[m.p] || usedS[m.s] {
			continue
		}
		usedP[m.p], usedS[m.s] = true, true
		combined = append(combined, mergePair(primary[m.p], secondary[m.s]))
	}

	// Cross-class geometric conflicts among the leftovers, resolved by
	// weighted voting.
	for _, m := range a.matchPairs(primary, secondary, false) {
		if usedP[m.p] || usedS[m.s] {
			continue
		}
		usedP[m.p], usedS[m.s] = true, true
		combined = append(combined, a.resolveConflict(primary[m.p], secondary[m.s]))
	}

	// Unmatched singles survive only above the single-detector floor;
	// they keep their original source tag.
	for i, d := range primary {
		if !usedP[i] && d.Confidence > a.cfg.SingleDetectorMinConfidence {
			combined = append(combined, d)
		}
	}
	for i, d := range secondary {
		if !usedS[i] && d.Confidence > a.cfg.SingleDetectorMinConfidence {
			combined = append(combined, d)
		}
	}

	final := a.nms(combined)

	kept := final[:0]
	for _, d := range final {
		if d.Confidence >= a.cfg.MinFinalConfidence {
			kept = append(kept, d)
		}
	}

	sortDetections(kept)

	return Output{Detections: kept, Warnings: warnings}
}

// sanitize drops malformed boxes so geometry never panics downstream.
func sanitize(dets []defect.Detection, warnings []string) ([]defect.Detection, []string) {
	out := make([]defect.Detection, 0, len(dets))
	for _, d := range dets {
		if !d.Box.Valid() {
			warnings = append(warnings,
				fmt.Sprintf("dropped %s detection from %s with malformed bbox", d.Class, d.Source))
			continue
		}
		out = append(out, d)
	}
	return out, warnings
}

// matchPairs lists primary×secondary pairs whose IoU clears the match
// threshold, sorted by IoU descending for greedy assignment. sameClass
// selects the matching pass; its inverse selects the conflict pass.
func (a *Aggregator) matchPairs(primary, secondary []defect.Detection, sameClass bool) []pair {
	var pairs []pair
	for i, p := range primary {
		for j, s := range secondary {
			if (p.Class == s.Class) != sameClass {
				continue
			}
			if iou := defect.IoU(p.Box, s.Box); iou >= a.cfg.MatchIoUThreshold {
				pairs = append(pairs, pair{p: i, s: j, iou: iou})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].iou > pairs[j].iou })
	return pairs
}

// mergePair fuses two same-class detections that agree geometrically.
func mergePair(p, s defect.Detection) defect.Detection {
	return defect.Detection{
		Class:      p.Class,
		Confidence: (p.Confidence + s.Confidence) / 2,
		Box:        defect.AverageBox(p.Box, s.Box),
		Source:     defect.SourceEnsemble,
	}
}

// resolveConflict applies weighted voting when the detectors agree on a
// region but disagree on the class. Ties go to the primary detector.
func (a *Aggregator) resolveConflict(p, s defect.Detection) defect.Detection {
	scoreP := p.Confidence * a.cfg.Weight(p.Source)
	scoreS := s.Confidence * a.cfg.Weight(s.Source)

	winner := p
	if scoreS > scoreP {
		winner = s
	}

	return defect.Detection{
		Class:      winner.Class,
		Confidence: winner.Confidence,
		Box:        defect.AverageBox(p.Box, s.Box),
		Source:     defect.SourceEnsemble,
	}
}

// nms applies class-scoped non-maximum suppression: among same-class
// boxes with IoU at or above the threshold, only the highest-confidence
// one survives.
func (a *Aggregator) nms(dets []defect.Detection) []defect.Detection {
	sorted := make([]defect.Detection, len(dets))
	copy(sorted, dets)
	sortDetections(sorted)

	kept := make([]defect.Detection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.Class == d.Class && defect.IoU(k.Box, d.Box) >= a.cfg.NMSIoUThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

// sortDetections orders by confidence descending with deterministic
// tie-breaks on class and position.
func sortDetections(dets []defect.Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		if dets[i].Confidence != dets[j].Confidence {
			return dets[i].Confidence > dets[j].Confidence
		}
		if dets[i].Class != dets[j].Class {
			return dets[i].Class < dets[j].Class
		}
		if dets[i].Box.X != dets[j].Box.X {
			return dets[i].Box.X < dets[j].Box.X
		}
		return dets[i].Box.Y < dets[j].Box.Y
	})
}
