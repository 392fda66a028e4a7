package trajplot

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/pose.report/internal/vision/pipeline"
)

// ErrNoSamples is returned by Generate when nothing was recorded.
var ErrNoSamples = errors.New("no samples to plot")

// Sample is the per-frame data the plots are drawn from. Trajectory
// coordinates are in the optical frame (X right, Z forward).
type Sample struct {
	Seq         int64
	X, Y, Z     float64
	Confidence  float64
	HasEstimate bool
	// MarkerRange maps marker ID to the camera-to-marker distance in metres
	// for every target with a pose.
	MarkerRange map[int]float64
}

// SampleFromResult extracts a Sample from a pipeline result.
func SampleFromResult(res *pipeline.Result) Sample {
	t := res.Trajectory.Translation
	s := Sample{
		Seq:         res.SequenceID,
		X:           t.X,
		Y:           t.Y,
		Z:           t.Z,
		Confidence:  res.OdometryReport.Confidence,
		HasEstimate: res.Odometry != nil,
	}
	for _, tg := range res.Targets {
		if tg.Candidate == nil {
			continue
		}
		if s.MarkerRange == nil {
			s.MarkerRange = make(map[int]float64)
		}
		s.MarkerRange[tg.Detection.ID] = tg.Candidate.Best.Translation.Norm()
	}
	return s
}

// Plotter accumulates samples over a run and renders them as PNG plots.
// It is safe for concurrent use and implements pipeline.ResultSink.
type Plotter struct {
	mu        sync.Mutex
	outputDir string
	title     string
	samples   []Sample
}

var _ pipeline.ResultSink = (*Plotter)(nil)

// NewPlotter creates a plotter writing into outputDir. title prefixes every
// plot title.
func NewPlotter(outputDir, title string) *Plotter {
	return &Plotter{outputDir: outputDir, title: title}
}

// Add records one sample.
func (p *Plotter) Add(s Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples, s)
}

// Record implements pipeline.ResultSink.
func (p *Plotter) Record(res *pipeline.Result) error {
	p.Add(SampleFromResult(res))
	return nil
}

// Len returns the number of recorded samples.
func (p *Plotter) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.samples)
}

// Generate writes trajectory.png, confidence.png and, when any marker had
// a pose, markers.png. It returns the paths written.
func (p *Plotter) Generate() ([]string, error) {
	p.mu.Lock()
	samples := append([]Sample(nil), p.samples...)
	p.mu.Unlock()

	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Seq < samples[j].Seq })

	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var written []string
	for _, gen := range []func([]Sample) (string, error){p.trajectoryPlot, p.confidencePlot, p.markerPlot} {
		path, err := gen(samples)
		if err != nil {
			return written, err
		}
		if path != "" {
			written = append(written, path)
		}
	}
	return written, nil
}

func (p *Plotter) newPlot(title, x, y string) *plot.Plot {
	pl := plot.New()
	pl.Title.Text = title
	if p.title != "" {
		pl.Title.Text = p.title + " - " + title
	}
	pl.X.Label.Text = x
	pl.Y.Label.Text = y
	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	return pl
}

func (p *Plotter) save(pl *plot.Plot, name string, w, h vg.Length) (string, error) {
	path := filepath.Join(p.outputDir, name)
	if err := pl.Save(w, h, path); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return path, nil
}

// trajectoryPlot draws the top-down (X, Z) camera path.
func (p *Plotter) trajectoryPlot(samples []Sample) (string, error) {
	pl := p.newPlot("Odometry Trajectory (top down)", "X (right, unit steps)", "Z (forward, unit steps)")

	path := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		path = append(path, plotter.XY{X: s.X, Y: s.Z})
	}
	line, points, err := plotter.NewLinePoints(path)
	if err != nil {
		return "", fmt.Errorf("trajectory line: %w", err)
	}
	colors := Palette(2)
	line.Color = colors[0]
	line.Width = vg.Points(1)
	points.Color = colors[0]
	points.Radius = vg.Points(1.5)
	pl.Add(line, points)
	pl.Legend.Add("camera", line)

	start, err := plotter.NewScatter(plotter.XYs{path[0]})
	if err != nil {
		return "", fmt.Errorf("trajectory start: %w", err)
	}
	start.Color = colors[1]
	start.Radius = vg.Points(4)
	pl.Add(start)
	pl.Legend.Add("start", start)

	return p.save(pl, "trajectory.png", 8*vg.Inch, 8*vg.Inch)
}

// confidencePlot draws motion confidence per frame, marking frames that
// produced an estimate.
func (p *Plotter) confidencePlot(samples []Sample) (string, error) {
	pl := p.newPlot("Motion Confidence", "Frame", "Mean squared displacement (px²)")

	all := make(plotter.XYs, 0, len(samples))
	var est plotter.XYs
	for _, s := range samples {
		xy := plotter.XY{X: float64(s.Seq), Y: s.Confidence}
		all = append(all, xy)
		if s.HasEstimate {
			est = append(est, xy)
		}
	}
	colors := Palette(2)
	line, err := plotter.NewLine(all)
	if err != nil {
		return "", fmt.Errorf("confidence line: %w", err)
	}
	line.Color = colors[0]
	line.Width = vg.Points(1)
	pl.Add(line)
	pl.Legend.Add("confidence", line)

	if len(est) > 0 {
		sc, err := plotter.NewScatter(est)
		if err != nil {
			return "", fmt.Errorf("estimate markers: %w", err)
		}
		sc.Color = colors[1]
		sc.Radius = vg.Points(2)
		pl.Add(sc)
		pl.Legend.Add("estimate", sc)
	}

	return p.save(pl, "confidence.png", 14*vg.Inch, 6*vg.Inch)
}

// markerPlot draws camera-to-marker range per marker ID. It writes nothing
// when no marker had a pose.
func (p *Plotter) markerPlot(samples []Sample) (string, error) {
	series := make(map[int]plotter.XYs)
	for _, s := range samples {
		for id, r := range s.MarkerRange {
			series[id] = append(series[id], plotter.XY{X: float64(s.Seq), Y: r})
		}
	}
	if len(series) == 0 {
		return "", nil
	}
	ids := make([]int, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	pl := p.newPlot("Marker Range", "Frame", "Distance (m)")
	colors := Palette(len(ids))
	for i, id := range ids {
		sc, err := plotter.NewScatter(series[id])
		if err != nil {
			return "", fmt.Errorf("marker %d: %w", id, err)
		}
		sc.Color = colors[i]
		sc.Radius = vg.Points(2)
		pl.Add(sc)
		pl.Legend.Add(fmt.Sprintf("marker %d", id), sc)
	}
	return p.save(pl, "markers.png", 14*vg.Inch, 6*vg.Inch)
}

// Palette returns n evenly spaced, distinct hues.
func Palette(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	out := make([]color.Color, n)
	for i := range out {
		h := math.Mod(360*float64(i)/float64(n)+210, 360)
		out[i] = colorful.Hsl(h, 0.7, 0.5).Clamped()
	}
	return out
}
