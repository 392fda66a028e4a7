package l3correspondence

import (
	"image"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/vision/l2features"
)

// Outcome is the tracker's verdict for one frame.
type Outcome int

const (
	// OutcomeColdStart: no previous image existed; the frame was stored and
	// features detected. No correspondences.
	OutcomeColdStart Outcome = iota
	// OutcomeRedetected: too few previous features; re-detected and stored
	// the frame. No correspondences.
	OutcomeRedetected
	// OutcomeLost: no tracked point survived filtering; re-detected on the
	// current frame. No correspondences.
	OutcomeLost
	// OutcomeStatic: points tracked but motion confidence was below
	// threshold; the frame replaces the previous one. No correspondences.
	OutcomeStatic
	// OutcomeTracked: correspondences are ready for motion estimation.
	OutcomeTracked
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeColdStart:
		return "cold_start"
	case OutcomeRedetected:
		return "redetected"
	case OutcomeLost:
		return "lost"
	case OutcomeStatic:
		return "static"
	case OutcomeTracked:
		return "tracked"
	default:
		return "unknown"
	}
}

// Config holds tracker thresholds.
type Config struct {
	// MinFeatures is the previous-point count below which the tracker
	// re-detects instead of tracking.
	MinFeatures int
	// ImageDifferenceThreshold is the minimum motion confidence (mean
	// squared displacement in px²) for a frame pair to count as motion.
	ImageDifferenceThreshold float64
}

// DefaultConfig returns the tracker defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from tuning values.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MinFeatures:              cfg.GetMinFeatures(),
		ImageDifferenceThreshold: cfg.GetImageDifferenceThreshold(),
	}
}

// State is the tracker's frame-to-frame memory. After a tracking step
// len(Previous) == len(Current) and both are index-aligned.
type State struct {
	// PreviousImage is a copy owned by the tracker, never the caller's buffer.
	PreviousImage *image.Gray
	Previous      []r2.Point
	Current       []r2.Point
}

// Empty reports whether no previous image is stored.
func (s *State) Empty() bool {
	return s.PreviousImage == nil
}

// Correspondences are index-aligned point pairs between two frames.
type Correspondences struct {
	Previous []r2.Point
	Current  []r2.Point
}

// Len returns the number of pairs.
func (c Correspondences) Len() int {
	return len(c.Previous)
}

// Result is what Track reports for one frame.
type Result struct {
	Outcome Outcome
	// Correspondences is populated only for OutcomeTracked. The slices are
	// shared with the tracker state and must not be modified.
	Correspondences Correspondences
	// Confidence is the motion confidence in px²; zero unless tracking ran.
	Confidence float64
	// PreFilterCount is the number of previous points handed to the point
	// tracker.
	PreFilterCount int
	// Features is the previous-point count after this frame's update.
	Features int
}

// Tracker maintains correspondences across frames. It is not safe for
// concurrent use; the odometry session owns it.
type Tracker struct {
	cfg      Config
	detector l2features.FeatureDetector
	points   l2features.PointTracker
	state    State
}

// NewTracker creates a tracker with the given collaborators.
func NewTracker(cfg Config, detector l2features.FeatureDetector, points l2features.PointTracker) *Tracker {
	return &Tracker{cfg: cfg, detector: detector, points: points}
}

// State returns a copy of the tracker state for inspection.
func (t *Tracker) State() State {
	return t.state
}

// Config returns the tracker configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Reset clears all state; the next frame is a cold start.
func (t *Tracker) Reset() {
	t.state = State{}
}

// Track processes one frame.
func (t *Tracker) Track(img *image.Gray) Result {
	if t.state.Empty() {
		t.state.PreviousImage = cloneGray(img)
		t.state.Previous = t.detector.Detect(img)
		t.state.Current = nil
		diagf("cold start: %d features detected", len(t.state.Previous))
		return Result{Outcome: OutcomeColdStart, Features: len(t.state.Previous)}
	}

	if n := len(t.state.Previous); n < t.cfg.MinFeatures {
		if n == 0 {
			diagf("no features in previous frame")
		}
		diagf("feature count below minimum threshold %d < %d", n, t.cfg.MinFeatures)
		// Detection runs on the stored frame before it is replaced.
		t.state.Previous = t.detector.Detect(t.state.PreviousImage)
		t.state.PreviousImage = cloneGray(img)
		t.state.Current = nil
		return Result{Outcome: OutcomeRedetected, Features: len(t.state.Previous)}
	}

	preFilter := len(t.state.Previous)
	tracked, valid := t.points.Track(t.state.PreviousImage, img, t.state.Previous)
	prev, curr, sumSq := FilterTracked(t.state.Previous, tracked, valid)
	confidence := MotionConfidence(sumSq, preFilter)
	t.state.Previous = prev
	t.state.Current = curr

	tracef("tracked %d/%d points, confidence=%.3f", len(curr), preFilter, confidence)

	if len(curr) == 0 {
		opsf("lost all %d tracked points; re-detecting", preFilter)
		t.state.Previous = t.detector.Detect(img)
		t.state.Current = nil
		t.state.PreviousImage = cloneGray(img)
		return Result{Outcome: OutcomeLost, PreFilterCount: preFilter, Features: len(t.state.Previous)}
	}

	if confidence < t.cfg.ImageDifferenceThreshold {
		diagf("motion confidence below minimum threshold %.3f < %.3f", confidence, t.cfg.ImageDifferenceThreshold)
		t.Advance(img)
		return Result{
			Outcome:        OutcomeStatic,
			Confidence:     confidence,
			PreFilterCount: preFilter,
			Features:       len(t.state.Previous),
		}
	}

	return Result{
		Outcome:         OutcomeTracked,
		Correspondences: Correspondences{Previous: prev, Current: curr},
		Confidence:      confidence,
		PreFilterCount:  preFilter,
		Features:        len(curr),
	}
}

// Advance makes img the previous frame and the tracked points the previous
// points. The caller invokes it after motion estimation for an
// OutcomeTracked frame, whether or not estimation succeeded.
func (t *Tracker) Advance(img *image.Gray) {
	t.state.PreviousImage = cloneGray(img)
	t.state.Previous = t.state.Current
}

// cloneGray returns a tracker-owned copy of img, so callers may reuse their
// frame buffer between calls.
func cloneGray(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	w := b.Dx()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		src := img.PixOffset(b.Min.X, y)
		dst := out.PixOffset(b.Min.X, y)
		copy(out.Pix[dst:dst+w], img.Pix[src:src+w])
	}
	return out
}

// FilterTracked drops pairs whose tracking failed or whose tracked position
// has a negative coordinate, preserving order. It returns the surviving
// pairs and the sum of their squared displacements.
func FilterTracked(prev, tracked []r2.Point, valid []bool) (fp, fc []r2.Point, sumSq float64) {
	n := len(prev)
	if len(tracked) < n {
		n = len(tracked)
	}
	if len(valid) < n {
		n = len(valid)
	}
	fp = make([]r2.Point, 0, n)
	fc = make([]r2.Point, 0, n)
	for i := 0; i < n; i++ {
		c := tracked[i]
		if !valid[i] || c.X < 0 || c.Y < 0 {
			continue
		}
		d := c.Sub(prev[i])
		sumSq += d.X*d.X + d.Y*d.Y
		fp = append(fp, prev[i])
		fc = append(fc, c)
	}
	return fp, fc, sumSq
}

// MotionConfidence is the mean squared displacement over the pre-filter
// point count; zero when there were no points.
func MotionConfidence(sumSq float64, preFilterCount int) float64 {
	if preFilterCount <= 0 {
		return 0
	}
	return sumSq / float64(preFilterCount)
}
