package l6fusion

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/pose.report/internal/vision/l1frames"
)

type logDetection struct {
	ID             int          `json:"id"`
	DecisionMargin float64      `json:"decision_margin"`
	Hamming        int          `json:"hamming"`
	Corners        [][2]float64 `json:"corners"`
}

type logFrame struct {
	Seq        int64          `json:"seq"`
	Detections []logDetection `json:"detections"`
}

// DetectionLog is a MarkerDetector that replays detections recorded by an
// external detector. Each line of the log is one frame:
//
//	{"seq":12,"detections":[{"id":3,"decision_margin":61.2,"hamming":0,"corners":[[x,y],[x,y],[x,y],[x,y]]}]}
//
// Frames with no entry yield no detections.
type DetectionLog struct {
	frames map[int64][]MarkerDetection
}

// LoadDetectionLog reads a JSON-lines detection log from disk.
func LoadDetectionLog(path string) (*DetectionLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open detection log: %w", err)
	}
	defer f.Close()
	return ReadDetectionLog(f)
}

// ReadDetectionLog parses a JSON-lines detection log. Blank lines are
// skipped; a later line for the same sequence ID replaces an earlier one.
func ReadDetectionLog(r io.Reader) (*DetectionLog, error) {
	l := &DetectionLog{frames: make(map[int64][]MarkerDetection)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var fr logFrame
		if err := json.Unmarshal(raw, &fr); err != nil {
			return nil, fmt.Errorf("detection log line %d: %w", line, err)
		}
		dets := make([]MarkerDetection, 0, len(fr.Detections))
		for _, d := range fr.Detections {
			if len(d.Corners) != 4 {
				return nil, fmt.Errorf("detection log line %d: marker %d has %d corners, want 4", line, d.ID, len(d.Corners))
			}
			md := MarkerDetection{ID: d.ID, DecisionMargin: d.DecisionMargin, Hamming: d.Hamming}
			for i, c := range d.Corners {
				md.Corners[i] = r2.Point{X: c[0], Y: c[1]}
			}
			dets = append(dets, md)
		}
		l.frames[fr.Seq] = dets
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read detection log: %w", err)
	}
	return l, nil
}

// Detect implements MarkerDetector.
func (l *DetectionLog) Detect(frame l1frames.Frame) ([]MarkerDetection, error) {
	dets := l.frames[frame.SequenceID]
	out := make([]MarkerDetection, len(dets))
	copy(out, dets)
	return out, nil
}

// Len returns the number of frames in the log.
func (l *DetectionLog) Len() int { return len(l.frames) }
