package pipeline

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/timeutil"
	"github.com/banshee-data/pose.report/internal/vision/geom"
	"github.com/banshee-data/pose.report/internal/vision/l1frames"
	"github.com/banshee-data/pose.report/internal/vision/l2features"
	"github.com/banshee-data/pose.report/internal/vision/l4motion"
	"github.com/banshee-data/pose.report/internal/vision/l5odometry"
	"github.com/banshee-data/pose.report/internal/vision/l6fusion"
	"github.com/banshee-data/pose.report/internal/vision/pnp"
)

// Diagnostic explains why part of a frame's processing was skipped.
type Diagnostic string

const (
	DiagNotGreyscale   Diagnostic = "not_greyscale"   // frame is not 8-bit greyscale; nothing ran
	DiagNoCalibration  Diagnostic = "no_calibration"  // no intrinsics for the frame size; nothing ran
	DiagNoMarkerMap    Diagnostic = "no_marker_map"   // joint solve requested without a marker map
	DiagDetectorFailed Diagnostic = "detector_failed" // marker detector returned an error
)

// Result is everything the pipeline produced for one frame.
type Result struct {
	SequenceID     int64
	CapturedAt     time.Time
	ProcessingTime time.Duration
	FPS            float64

	Targets  []l6fusion.FusedTarget
	MultiTag *l6fusion.MultiMarkerResult

	// Odometry is nil when no motion estimate was produced; OdometryReport
	// says why.
	Odometry       *l4motion.MotionEstimate
	OdometryReport l5odometry.Report
	Trajectory     geom.Pose3d

	Diagnostics []Diagnostic
}

// Has reports whether d was raised for this frame.
func (r Result) Has(d Diagnostic) bool {
	for _, x := range r.Diagnostics {
		if x == d {
			return true
		}
	}
	return false
}

// ResultSink receives every processed frame's result.
type ResultSink interface {
	Record(res *Result) error
}

// Config wires the pipeline. Only Tuning and Intrinsics shape the default
// collaborators; any non-nil override replaces the default.
type Config struct {
	Tuning     *config.TuningConfig
	Intrinsics *l1frames.CameraIntrinsics
	Detector   l6fusion.MarkerDetector
	MarkerMap  l6fusion.MarkerMap
	Clock      timeutil.Clock
	Sinks      []ResultSink

	FeatureDetector l2features.FeatureDetector
	PointTracker    l2features.PointTracker
	PoseSolver      l4motion.PoseSolver
	SingleSolver    l6fusion.SingleMarkerSolver
	MultiSolver     l6fusion.MultiMarkerSolver
}

// Pipeline runs fiducial fusion and visual odometry over a frame stream.
// Process calls are serialized; Configure may be called from another
// goroutine and takes effect from the next frame.
type Pipeline struct {
	mu  sync.Mutex
	cfg Config

	session *l5odometry.Session
	fuser   *l6fusion.Fuser
	fps     *timeutil.FrameRateMeter

	hadTargets bool
}

// New builds a pipeline. A nil Tuning uses the built-in defaults and a nil
// Clock uses the wall clock.
func New(cfg Config) *Pipeline {
	if cfg.Tuning == nil {
		cfg.Tuning = config.EmptyTuningConfig()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	p := &Pipeline{
		cfg: cfg,
		fps: timeutil.NewFrameRateMeter(cfg.Clock, timeutil.DefaultFPSSmoothing),
	}
	p.buildLocked()
	return p
}

// Configure replaces the intrinsics and tuning and rebuilds odometry and
// fusion. A nil tuning keeps the current one. The accumulated trajectory is
// discarded.
func (p *Pipeline) Configure(k *l1frames.CameraIntrinsics, tuning *config.TuningConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Intrinsics = k
	if tuning != nil {
		p.cfg.Tuning = tuning
	}
	p.buildLocked()
}

// AddSink registers another result sink.
func (p *Pipeline) AddSink(s ResultSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Sinks = append(p.cfg.Sinks, s)
}

// ResetOdometry discards the odometry session's tracking state and
// trajectory.
func (p *Pipeline) ResetOdometry() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		p.session.Reset()
	}
}

// OdometryState returns the odometry session state, or StateUninitialized
// when the pipeline has no calibration.
func (p *Pipeline) OdometryState() l5odometry.SessionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return l5odometry.StateUninitialized
	}
	return p.session.State()
}

func (p *Pipeline) buildLocked() {
	t, k := p.cfg.Tuning, p.cfg.Intrinsics
	p.hadTargets = false
	if cd, ok := p.cfg.Detector.(l6fusion.ConfigurableDetector); ok {
		if err := cd.Configure(l6fusion.DetectorSettingsFromTuning(t)); err != nil {
			opsf("marker detector rejected settings: %v", err)
		}
	}
	if k == nil {
		p.session, p.fuser = nil, nil
		opsf("no camera calibration: pose solving and odometry disabled")
		return
	}

	det := p.cfg.FeatureDetector
	if det == nil {
		det = l2features.NewFASTDetector(l2features.FASTConfigFromTuning(t))
	}
	pt := p.cfg.PointTracker
	if pt == nil {
		pt = l2features.NewPyramidalLK(l2features.LKConfigFromTuning(t))
	}
	solver := p.cfg.PoseSolver
	if solver == nil {
		solver = l4motion.NewEightPointSolver(l4motion.RANSACConfigFromTuning(t))
	}
	p.session = l5odometry.NewSession(l5odometry.ConfigFromTuning(t), k, det, pt, solver)

	model := pnp.TagModelFromTuning(t)
	sc := pnp.SolverConfigFromTuning(t)
	single := p.cfg.SingleSolver
	if single == nil {
		single = pnp.NewPlanarSolver(k, model, sc)
	}
	multi := p.cfg.MultiSolver
	if multi == nil && p.cfg.MarkerMap != nil {
		multi = pnp.NewMultiTagSolver(k, model, p.cfg.MarkerMap, sc)
	}
	p.fuser = l6fusion.NewFuser(l6fusion.ConfigFromTuning(t, p.cfg.MarkerMap), single, multi)

	if t.GetDoMultiTarget() && p.cfg.MarkerMap == nil {
		opsf("multi-target enabled without a marker map: joint solve disabled")
	}
	diagf("configured %dx%d fx=%.1f fy=%.1f tag=%s multi=%v single_always=%v pnp=%v",
		k.Width(), k.Height(), k.Fx(), k.Fy(), model.Family,
		t.GetDoMultiTarget(), t.GetDoSingleTargetAlways(), t.GetSolvePNPEnabled())
}

// Process runs one frame through fusion and odometry. It never fails:
// anything that prevents processing is reported as a Diagnostic.
func (p *Pipeline) Process(frame l1frames.Frame) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.cfg.Clock.Now()
	res := Result{SequenceID: frame.SequenceID, CapturedAt: frame.CapturedAt}
	p.processLocked(frame, &res)
	res.ProcessingTime = p.cfg.Clock.Since(start)
	res.FPS = p.fps.Tick()

	for _, s := range p.cfg.Sinks {
		if err := s.Record(&res); err != nil {
			opsf("result sink failed for frame %d: %v", res.SequenceID, err)
		}
	}
	return res
}

func (p *Pipeline) processLocked(frame l1frames.Frame, res *Result) {
	g, ok := frame.Grey()
	if !ok {
		res.Diagnostics = append(res.Diagnostics, DiagNotGreyscale)
		opsf("frame %d is %s, want greyscale", frame.SequenceID, frame.Type())
		return
	}
	k := p.cfg.Intrinsics
	if k == nil || p.session == nil {
		res.Diagnostics = append(res.Diagnostics, DiagNoCalibration)
		opsf("frame %d skipped: no camera calibration configured", frame.SequenceID)
		return
	}
	if !k.Matches(g.Bounds()) {
		res.Diagnostics = append(res.Diagnostics, DiagNoCalibration)
		opsf("frame %d is %dx%d, calibration is for %dx%d",
			frame.SequenceID, g.Bounds().Dx(), g.Bounds().Dy(), k.Width(), k.Height())
		return
	}

	if p.cfg.Tuning.GetDoMultiTarget() && p.cfg.MarkerMap == nil {
		res.Diagnostics = append(res.Diagnostics, DiagNoMarkerMap)
	}
	if p.cfg.Detector != nil {
		dets, err := p.cfg.Detector.Detect(frame)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, DiagDetectorFailed)
			opsf("marker detection failed for frame %d: %v", frame.SequenceID, err)
		} else {
			res.Targets, res.MultiTag = p.fuser.FuseWithJoint(dets)
		}
	}

	reacquired := len(res.Targets) > 0 && !p.hadTargets
	p.hadTargets = len(res.Targets) > 0
	if reacquired && p.cfg.Tuning.GetResetOdometryOnReacquire() {
		diagf("targets reacquired at frame %d: resetting odometry", frame.SequenceID)
		p.session.Reset()
	}

	res.Odometry, res.OdometryReport = p.session.Estimate(g)
	res.Trajectory = p.session.Trajectory()
	if est := res.Odometry; est != nil {
		x, y := est.Translation.X, est.Translation.Y
		tracef("frame %d offset x/y %.4f/%.4f a/m %.4f/%.4f",
			frame.SequenceID, x, y, math.Atan2(y, x), math.Hypot(x, y))
	}
}
