package l2features

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"

	"github.com/banshee-data/pose.report/internal/config"
)

// LKConfig holds pyramidal Lucas-Kanade parameters.
type LKConfig struct {
	WindowSize    int     // odd side length of the integration window
	MaxLevel      int     // number of pyramid levels above the base image
	MaxIterations int     // per-level iteration cap
	Epsilon       float64 // stop when the update is shorter than this (px)
	// MinEigThreshold rejects points whose window has too little texture:
	// the smaller eigenvalue of the normalised structure tensor must reach it.
	MinEigThreshold float64
}

// DefaultLKConfig returns the tracker defaults.
func DefaultLKConfig() LKConfig {
	return LKConfigFromTuning(config.EmptyTuningConfig())
}

// LKConfigFromTuning builds an LKConfig from tuning values.
func LKConfigFromTuning(cfg *config.TuningConfig) LKConfig {
	return LKConfig{
		WindowSize:      cfg.GetLKWindowSize(),
		MaxLevel:        cfg.GetLKMaxLevel(),
		MaxIterations:   cfg.GetLKMaxIterations(),
		Epsilon:         cfg.GetLKEpsilon(),
		MinEigThreshold: cfg.GetLKMinEigenThreshold(),
	}
}

// PyramidalLK implements PointTracker with iterative pyramidal
// Lucas-Kanade optical flow (Bouguet's formulation). Intensities are
// normalised to [0, 1] and gradients use the Scharr operator.
type PyramidalLK struct {
	cfg LKConfig
}

// NewPyramidalLK creates a tracker.
func NewPyramidalLK(cfg LKConfig) *PyramidalLK {
	if cfg.WindowSize < 3 {
		cfg.WindowSize = 3
	}
	if cfg.WindowSize%2 == 0 {
		cfg.WindowSize++
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	if cfg.MaxLevel < 0 {
		cfg.MaxLevel = 0
	}
	return &PyramidalLK{cfg: cfg}
}

// plane is a float intensity image with clamped bilinear sampling.
type plane struct {
	w, h int
	pix  []float64
}

func planeFromGray(g *image.Gray) *plane {
	b := g.Bounds()
	p := &plane{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < p.h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+p.w]
		for x, v := range row {
			p.pix[y*p.w+x] = float64(v) / 255
		}
	}
	return p
}

func planeFromNRGBA(img *image.NRGBA) *plane {
	b := img.Bounds()
	p := &plane{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			p.pix[y*p.w+x] = float64(img.Pix[y*img.Stride+x*4]) / 255
		}
	}
	return p
}

func (p *plane) at(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= p.w {
		x = p.w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= p.h {
		y = p.h - 1
	}
	return p.pix[y*p.w+x]
}

func (p *plane) sample(x, y float64) float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)
	a := p.at(ix, iy)
	b := p.at(ix+1, iy)
	c := p.at(ix, iy+1)
	d := p.at(ix+1, iy+1)
	return (a*(1-fx)+b*fx)*(1-fy) + (c*(1-fx)+d*fx)*fy
}

// scharr returns the x and y derivative planes of p.
func scharr(p *plane) (gx, gy *plane) {
	gx = &plane{w: p.w, h: p.h, pix: make([]float64, len(p.pix))}
	gy = &plane{w: p.w, h: p.h, pix: make([]float64, len(p.pix))}
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			tl, tc, tr := p.at(x-1, y-1), p.at(x, y-1), p.at(x+1, y-1)
			ml, mr := p.at(x-1, y), p.at(x+1, y)
			bl, bc, br := p.at(x-1, y+1), p.at(x, y+1), p.at(x+1, y+1)
			gx.pix[y*p.w+x] = (3*(tr-tl) + 10*(mr-ml) + 3*(br-bl)) / 32
			gy.pix[y*p.w+x] = (3*(bl-tl) + 10*(bc-tc) + 3*(br-tr)) / 32
		}
	}
	return gx, gy
}

// level is one pyramid level with its scale relative to the base image.
type level struct {
	img    *plane
	sx, sy float64
}

// buildPyramid downsamples with a box filter, stopping before a level gets
// smaller than the integration window.
func buildPyramid(g *image.Gray, maxLevel, minSize int) []level {
	base := planeFromGray(g)
	levels := []level{{img: base, sx: 1, sy: 1}}
	for l := 1; l <= maxLevel; l++ {
		w, h := base.w>>uint(l), base.h>>uint(l)
		if w < minSize || h < minSize {
			break
		}
		small := imaging.Resize(g, w, h, imaging.Box)
		levels = append(levels, level{
			img: planeFromNRGBA(small),
			sx:  float64(w) / float64(base.w),
			sy:  float64(h) / float64(base.h),
		})
	}
	return levels
}

// Track follows each point from prev into curr.
func (t *PyramidalLK) Track(prev, curr *image.Gray, pts []r2.Point) ([]r2.Point, []bool) {
	tracked := make([]r2.Point, len(pts))
	valid := make([]bool, len(pts))
	if prev == nil || curr == nil || len(pts) == 0 {
		copy(tracked, pts)
		return tracked, valid
	}

	win := t.cfg.WindowSize
	prevPyr := buildPyramid(prev, t.cfg.MaxLevel, win)
	currPyr := buildPyramid(curr, len(prevPyr)-1, win)
	if len(currPyr) < len(prevPyr) {
		prevPyr = prevPyr[:len(currPyr)]
	}
	grads := make([][2]*plane, len(prevPyr))
	for l, lv := range prevPyr {
		gx, gy := scharr(lv.img)
		grads[l] = [2]*plane{gx, gy}
	}

	for i, pt := range pts {
		tracked[i], valid[i] = t.trackPoint(prevPyr, currPyr, grads, pt)
	}
	return tracked, valid
}

func (t *PyramidalLK) trackPoint(prevPyr, currPyr []level, grads [][2]*plane, pt r2.Point) (r2.Point, bool) {
	win := t.cfg.WindowSize
	half := win / 2
	n := win * win
	iw := make([]float64, n)
	ix := make([]float64, n)
	iy := make([]float64, n)

	valid := true
	var g r2.Point // displacement guess at the current level
	for l := len(prevPyr) - 1; l >= 0; l-- {
		lv := prevPyr[l]
		J := currPyr[l].img
		px := (pt.X+0.5)*lv.sx - 0.5
		py := (pt.Y+0.5)*lv.sy - 0.5

		var gxx, gxy, gyy float64
		k := 0
		for dy := -half; dy <= half; dy++ {
			for dx := -half; dx <= half; dx++ {
				sx, sy := px+float64(dx), py+float64(dy)
				iw[k] = lv.img.sample(sx, sy)
				ix[k] = grads[l][0].sample(sx, sy)
				iy[k] = grads[l][1].sample(sx, sy)
				gxx += ix[k] * ix[k]
				gxy += ix[k] * iy[k]
				gyy += iy[k] * iy[k]
				k++
			}
		}

		det := gxx*gyy - gxy*gxy
		minEig := (gxx + gyy - math.Sqrt((gxx-gyy)*(gxx-gyy)+4*gxy*gxy)) / (2 * float64(n))
		if minEig < t.cfg.MinEigThreshold || det < 1e-12 {
			if l == 0 {
				valid = false
			}
			if l > 0 {
				g = scaleDisplacement(g, prevPyr[l], prevPyr[l-1])
			}
			continue
		}

		var v r2.Point
		for it := 0; it < t.cfg.MaxIterations; it++ {
			nx, ny := px+g.X+v.X, py+g.Y+v.Y
			if nx < -float64(half) || nx >= float64(J.w) || ny < -float64(half) || ny >= float64(J.h) {
				if l == 0 {
					valid = false
				}
				break
			}
			var bx, by float64
			k = 0
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					diff := iw[k] - J.sample(nx+float64(dx), ny+float64(dy))
					bx += diff * ix[k]
					by += diff * iy[k]
					k++
				}
			}
			eta := r2.Point{X: (gyy*bx - gxy*by) / det, Y: (gxx*by - gxy*bx) / det}
			v = v.Add(eta)
			if eta.Norm() <= t.cfg.Epsilon {
				break
			}
		}
		g = g.Add(v)
		if l > 0 {
			g = scaleDisplacement(g, prevPyr[l], prevPyr[l-1])
		}
	}

	out := pt.Add(g)
	if !valid {
		return out, false
	}
	base := prevPyr[0].img
	if out.X < -float64(half) || out.X >= float64(base.w) || out.Y < -float64(half) || out.Y >= float64(base.h) {
		return out, false
	}
	if math.IsNaN(out.X) || math.IsNaN(out.Y) {
		return pt, false
	}
	return out, true
}

func scaleDisplacement(g r2.Point, from, to level) r2.Point {
	return r2.Point{X: g.X * to.sx / from.sx, Y: g.Y * to.sy / from.sy}
}
