package timeutil

import (
	"sync"
	"time"
)

// DefaultFPSSmoothing is the EMA weight given to the newest inter-frame
// interval.
const DefaultFPSSmoothing = 0.1

// FrameRateMeter measures a smoothed frame rate from frame arrival times.
// The first frame only primes the meter; a rate is reported from the second
// frame onwards.
type FrameRateMeter struct {
	mu       sync.Mutex
	clock    Clock
	alpha    float64
	last     time.Time
	interval float64 // smoothed seconds per frame
	frames   int
}

// NewFrameRateMeter creates a meter driven by clock. alpha outside (0, 1]
// falls back to DefaultFPSSmoothing.
func NewFrameRateMeter(clock Clock, alpha float64) *FrameRateMeter {
	if clock == nil {
		clock = RealClock{}
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultFPSSmoothing
	}
	return &FrameRateMeter{clock: clock, alpha: alpha}
}

// Tick records a frame arrival and returns the current smoothed rate in
// frames per second.
func (m *FrameRateMeter) Tick() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.frames++
	if m.frames == 1 {
		m.last = now
		return 0
	}
	dt := now.Sub(m.last).Seconds()
	m.last = now
	if dt <= 0 {
		return m.rateLocked()
	}
	if m.interval == 0 {
		m.interval = dt
	} else {
		m.interval = m.alpha*dt + (1-m.alpha)*m.interval
	}
	return m.rateLocked()
}

// FPS returns the current smoothed rate without recording a frame.
func (m *FrameRateMeter) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rateLocked()
}

// Reset forgets all recorded frames.
func (m *FrameRateMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = 0
	m.interval = 0
	m.last = time.Time{}
}

func (m *FrameRateMeter) rateLocked() float64 {
	if m.interval <= 0 {
		return 0
	}
	return 1 / m.interval
}
