package defect

// Class identifies one of the defect categories the detectors are trained
// and prompted on. The set is fixed: detections with any other class label
// are discarded during parsing.
type Class string

const (
	ClassCrack             Class = "crack"
	ClassCorrosion         Class = "corrosion"
	ClassDent              Class = "dent"
	ClassScratch           Class = "scratch"
	ClassPaintPeel         Class = "paint_peel"
	ClassRivetDamage       Class = "rivet_damage"
	ClassLightningStrike   Class = "lightning_strike"
	ClassDelamination      Class = "delamination"
	ClassErosion           Class = "erosion"
	ClassFastenerMissing   Class = "fastener_missing"
	ClassSealDeterioration Class = "seal_deterioration"
	ClassDebrisImpact      Class = "debris_impact"
)

// Classes lists every known defect class in model output order.
var Classes = []Class{
	ClassCrack,
	ClassCorrosion,
	ClassDent,
	ClassScratch,
	ClassPaintPeel,
	ClassRivetDamage,
	ClassLightningStrike,
	ClassDelamination,
	ClassErosion,
	ClassFastenerMissing,
	ClassSealDeterioration,
	ClassDebrisImpact,
}

// ValidClass reports whether s names a known defect class.
func ValidClass(s string) bool {
	for _, c := range Classes {
		if string(c) == s {
			return true
		}
	}
	return false
}

// Source tells which detector produced a detection.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
	SourceEnsemble  Source = "ensemble"
)

// BoundingBox is an axis-aligned rectangle in pixel space.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the box area in pixels, 0 for degenerate boxes.
func (b BoundingBox) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Valid reports whether the box has positive area.
func (b BoundingBox) Valid() bool {
	return b.Width > 0 && b.Height > 0
}

// Detection is one predicted defect instance.
type Detection struct {
	Class      Class       `json:"class"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"bbox"`
	Source     Source      `json:"source"`
}

// DetectionSet is the output of one adapter for one job. Err records an
// adapter-level failure; the coordinator decides whether it is fatal.
type DetectionSet struct {
	Detections []Detection
	LatencyMs  int64
	Err        error
}

// Usable reports whether the set can contribute to aggregation.
func (s DetectionSet) Usable() bool {
	return s.Err == nil
}

// EnsembleResult is the final merged output for one inspection job.
type EnsembleResult struct {
	Detections       []Detection `json:"defects"`
	ProcessingTimeMs int64       `json:"processing_time_ms"`
	Degraded         bool        `json:"degraded"`
	Warnings         []string    `json:"warnings"`
}
