package l2features

import (
	"image"
	"sort"

	"github.com/anthonynsimon/bild/blur"
	"github.com/golang/geo/r2"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/vision/l1frames"
)

// FASTConfig holds FAST detector parameters.
type FASTConfig struct {
	// Threshold is the minimum intensity difference between the centre and
	// an arc pixel.
	Threshold int
	// NonMaxSuppression keeps only local score maxima in a 3x3 window.
	NonMaxSuppression bool
	// BlurRadius applies a Gaussian pre-blur when positive.
	BlurRadius float64
	// MaxFeatures caps the number of returned corners (strongest first).
	// Zero means unlimited.
	MaxFeatures int
}

// DefaultFASTConfig returns the detector defaults.
func DefaultFASTConfig() FASTConfig {
	return FASTConfigFromTuning(config.EmptyTuningConfig())
}

// FASTConfigFromTuning builds a FASTConfig from tuning values.
func FASTConfigFromTuning(cfg *config.TuningConfig) FASTConfig {
	return FASTConfig{
		Threshold:         cfg.GetFeatureThreshold(),
		NonMaxSuppression: true,
		BlurRadius:        cfg.GetFeaturePreBlurRadius(),
	}
}

// FASTDetector implements FeatureDetector with the FAST-9 segment test:
// a pixel is a corner when 9 contiguous pixels on the radius-3 Bresenham
// circle are all brighter, or all darker, than it by more than Threshold.
type FASTDetector struct {
	cfg FASTConfig
}

// NewFASTDetector creates a detector.
func NewFASTDetector(cfg FASTConfig) *FASTDetector {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	return &FASTDetector{cfg: cfg}
}

// circle is the 16-pixel Bresenham circle of radius 3, clockwise from the
// top.
var circle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

const (
	fastArc    = 9
	fastBorder = 3
)

type corner struct {
	idx   int
	score int
}

// Detect returns corner positions in raster order, or strongest first when
// MaxFeatures truncates the set.
func (d *FASTDetector) Detect(img *image.Gray) []r2.Point {
	if img == nil {
		return nil
	}
	src := img
	if d.cfg.BlurRadius > 0 {
		src = l1frames.ToGreyscale(blur.Gaussian(img, d.cfg.BlurRadius))
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 2*fastBorder || h <= 2*fastBorder {
		return nil
	}

	var offsets [16]int
	for i, c := range circle {
		offsets[i] = c[1]*src.Stride + c[0]
	}

	scores := make([]int, w*h)
	for y := fastBorder; y < h-fastBorder; y++ {
		row := y * src.Stride
		for x := fastBorder; x < w-fastBorder; x++ {
			scores[y*w+x] = segmentScore(src.Pix, row+x, &offsets, d.cfg.Threshold)
		}
	}

	var corners []corner
	for y := fastBorder; y < h-fastBorder; y++ {
		for x := fastBorder; x < w-fastBorder; x++ {
			i := y*w + x
			s := scores[i]
			if s == 0 {
				continue
			}
			if d.cfg.NonMaxSuppression && !isLocalMax(scores, w, x, y) {
				continue
			}
			corners = append(corners, corner{idx: i, score: s})
		}
	}

	if d.cfg.MaxFeatures > 0 && len(corners) > d.cfg.MaxFeatures {
		sort.SliceStable(corners, func(a, b int) bool { return corners[a].score > corners[b].score })
		corners = corners[:d.cfg.MaxFeatures]
	}

	pts := make([]r2.Point, len(corners))
	for i, c := range corners {
		pts[i] = r2.Point{X: float64(c.idx % w), Y: float64(c.idx / w)}
	}
	return pts
}

// segmentScore returns 0 for non-corners, otherwise the sum of the
// threshold-exceeding differences along the circle for the winning polarity.
func segmentScore(pix []uint8, centre int, offsets *[16]int, t int) int {
	p := int(pix[centre])
	hi, lo := p+t, p-t

	var brighter, darker uint32
	for i, off := range offsets {
		v := int(pix[centre+off])
		if v > hi {
			brighter |= 1 << uint(i)
		} else if v < lo {
			darker |= 1 << uint(i)
		}
	}

	score := 0
	if hasArc(brighter) {
		for _, off := range offsets {
			if v := int(pix[centre+off]); v > hi {
				score += v - hi
			}
		}
	}
	if hasArc(darker) {
		s := 0
		for _, off := range offsets {
			if v := int(pix[centre+off]); v < lo {
				s += lo - v
			}
		}
		if s > score {
			score = s
		}
	}
	return score
}

// hasArc reports whether mask has fastArc contiguous set bits on the
// 16-element ring.
func hasArc(mask uint32) bool {
	if mask == 0 {
		return false
	}
	ring := mask | mask<<16
	run := 0
	for i := 0; i < 32; i++ {
		if ring&(1<<uint(i)) != 0 {
			run++
			if run >= fastArc {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// isLocalMax keeps the first pixel in raster order of any equal-score
// plateau.
func isLocalMax(scores []int, w, x, y int) bool {
	i := y*w + x
	s := scores[i]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			j := (y+dy)*w + x + dx
			if scores[j] > s || (scores[j] == s && j < i) {
				return false
			}
		}
	}
	return true
}
