package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pose.report/internal/vision/l6fusion"
	"github.com/banshee-data/pose.report/internal/vision/pipeline"
)

// Session is one recorded run of the pipeline.
type Session struct {
	SessionID string `json:"session_id"`
	Label     string `json:"label"`
	StartedAt int64  `json:"started_at_ns"`
	Frames    int    `json:"frames"`
}

// FrameRecord is the stored summary of one processed frame. Motion fields
// are set only when HasEstimate is true.
type FrameRecord struct {
	SessionID    string   `json:"session_id"`
	Seq          int64    `json:"seq"`
	CapturedAt   int64    `json:"captured_at_ns,omitempty"`
	ProcessingNs int64    `json:"processing_ns"`
	FPS          float64  `json:"fps"`
	State        string   `json:"state"`
	Outcome      string   `json:"outcome"`
	Confidence   float64  `json:"confidence"`
	Points       int      `json:"points"`
	Failure      string   `json:"failure"`
	HasEstimate  bool     `json:"has_estimate"`
	TX           float64  `json:"tx,omitempty"`
	TY           float64  `json:"ty,omitempty"`
	TZ           float64  `json:"tz,omitempty"`
	Roll         float64  `json:"roll,omitempty"`
	Pitch        float64  `json:"pitch,omitempty"`
	Yaw          float64  `json:"yaw,omitempty"`
	TrajX        float64  `json:"traj_x"`
	TrajY        float64  `json:"traj_y"`
	TrajZ        float64  `json:"traj_z"`
	TrajYaw      float64  `json:"traj_yaw"`
	Diagnostics  []string `json:"diagnostics,omitempty"`
}

// TargetRecord is one stored fused target. Pose fields are set only when
// Source is non-empty.
type TargetRecord struct {
	SessionID      string  `json:"session_id"`
	Seq            int64   `json:"seq"`
	MarkerID       int     `json:"marker_id"`
	DecisionMargin float64 `json:"decision_margin"`
	Hamming        int     `json:"hamming"`
	CenterX        float64 `json:"center_x"`
	CenterY        float64 `json:"center_y"`
	Area           float64 `json:"area"`
	Source         string  `json:"source,omitempty"`
	BestX          float64 `json:"best_x"`
	BestY          float64 `json:"best_y"`
	BestZ          float64 `json:"best_z"`
	BestRoll       float64 `json:"best_roll"`
	BestPitch      float64 `json:"best_pitch"`
	BestYaw        float64 `json:"best_yaw"`
	BestError      float64 `json:"best_error"`
	AltX           float64 `json:"alt_x"`
	AltY           float64 `json:"alt_y"`
	AltZ           float64 `json:"alt_z"`
	AltError       float64 `json:"alt_error"`
	Ambiguity      float64 `json:"ambiguity"`
}

// PoseStore records pipeline results for one session.
type PoseStore struct {
	db        *sql.DB
	sessionID string
}

var _ pipeline.ResultSink = (*PoseStore)(nil)

// NewPoseStore starts a new session labelled label.
func NewPoseStore(db *sql.DB, label string) (*PoseStore, error) {
	s := &PoseStore{db: db, sessionID: uuid.New().String()}
	err := retryOnBusy(func() error {
		_, err := db.Exec(`INSERT INTO vo_sessions (session_id, label, started_at_ns) VALUES (?, ?, ?)`,
			s.sessionID, label, time.Now().UnixNano())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// SessionID returns the ID of the session being recorded.
func (s *PoseStore) SessionID() string { return s.sessionID }

// Record implements pipeline.ResultSink. Recording the same sequence ID
// twice replaces the earlier frame and its targets.
func (s *PoseStore) Record(res *pipeline.Result) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM vo_targets WHERE session_id = ? AND seq = ?`, s.sessionID, res.SequenceID); err != nil {
			return fmt.Errorf("clear targets: %w", err)
		}
		if err := s.insertFrame(tx, res); err != nil {
			return err
		}
		for _, tg := range res.Targets {
			if err := s.insertTarget(tx, res.SequenceID, tg); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *PoseStore) insertFrame(tx *sql.Tx, res *pipeline.Result) error {
	rep := res.OdometryReport
	var capturedAt interface{}
	if !res.CapturedAt.IsZero() {
		capturedAt = res.CapturedAt.UnixNano()
	}
	var hasEst int
	var mx, my, mz, roll, pitch, yaw interface{}
	if est := res.Odometry; est != nil {
		hasEst = 1
		mx, my, mz = est.Translation.X, est.Translation.Y, est.Translation.Z
		roll, pitch, yaw = est.Roll, est.Pitch, est.Yaw
	}
	diags := make([]string, len(res.Diagnostics))
	for i, d := range res.Diagnostics {
		diags[i] = string(d)
	}
	traj := res.Trajectory

	_, err := tx.Exec(`
		INSERT OR REPLACE INTO vo_frames (
			session_id, seq, captured_at_ns, processing_ns, fps,
			state, outcome, confidence, points, failure,
			has_estimate, tx, ty, tz, roll, pitch, yaw,
			traj_x, traj_y, traj_z, traj_yaw, diagnostics
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sessionID, res.SequenceID, capturedAt, res.ProcessingTime.Nanoseconds(), res.FPS,
		string(rep.State), rep.Outcome.String(), rep.Confidence, rep.Points, rep.Failure.String(),
		hasEst, mx, my, mz, roll, pitch, yaw,
		traj.Translation.X, traj.Translation.Y, traj.Translation.Z, traj.Rotation.Yaw(),
		strings.Join(diags, ","),
	)
	if err != nil {
		return fmt.Errorf("insert frame %d: %w", res.SequenceID, err)
	}
	return nil
}

func (s *PoseStore) insertTarget(tx *sql.Tx, seq int64, tg l6fusion.FusedTarget) error {
	d := tg.Detection
	c := d.Center()
	args := []interface{}{s.sessionID, seq, d.ID, d.DecisionMargin, d.Hamming, c.X, c.Y, d.Area()}
	if cand := tg.Candidate; cand != nil {
		b, a := cand.Best, cand.Alt
		args = append(args, string(cand.Source),
			b.Translation.X, b.Translation.Y, b.Translation.Z,
			b.Rotation.Roll(), b.Rotation.Pitch(), b.Rotation.Yaw(), cand.BestError,
			a.Translation.X, a.Translation.Y, a.Translation.Z, cand.AltError, cand.Ambiguity())
	} else {
		for i := 0; i < 13; i++ {
			args = append(args, nil)
		}
	}
	_, err := tx.Exec(`
		INSERT INTO vo_targets (
			session_id, seq, marker_id, decision_margin, hamming, center_x, center_y, area,
			source, best_x, best_y, best_z, best_roll, best_pitch, best_yaw, best_error,
			alt_x, alt_y, alt_z, alt_error, ambiguity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("insert target %d in frame %d: %w", d.ID, seq, err)
	}
	return nil
}

// ListFrames returns a session's frames in sequence order.
func (s *PoseStore) ListFrames(sessionID string) ([]*FrameRecord, error) {
	return ListFrames(s.db, sessionID)
}

// ListTargets returns the targets stored for one frame.
func (s *PoseStore) ListTargets(sessionID string, seq int64) ([]*TargetRecord, error) {
	return ListTargets(s.db, sessionID, seq)
}

// ListFrames returns the frames of session sessionID in sequence order.
func ListFrames(db *sql.DB, sessionID string) ([]*FrameRecord, error) {
	rows, err := db.Query(`
		SELECT session_id, seq, captured_at_ns, processing_ns, fps,
		       state, outcome, confidence, points, failure,
		       has_estimate, tx, ty, tz, roll, pitch, yaw,
		       traj_x, traj_y, traj_z, traj_yaw, diagnostics
		FROM vo_frames
		WHERE session_id = ?
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []*FrameRecord
	for rows.Next() {
		var f FrameRecord
		var capturedAt sql.NullInt64
		var mx, my, mz, roll, pitch, yaw sql.NullFloat64
		var diags string
		if err := rows.Scan(
			&f.SessionID, &f.Seq, &capturedAt, &f.ProcessingNs, &f.FPS,
			&f.State, &f.Outcome, &f.Confidence, &f.Points, &f.Failure,
			&f.HasEstimate, &mx, &my, &mz, &roll, &pitch, &yaw,
			&f.TrajX, &f.TrajY, &f.TrajZ, &f.TrajYaw, &diags,
		); err != nil {
			return nil, fmt.Errorf("scan frame row: %w", err)
		}
		f.CapturedAt = capturedAt.Int64
		f.TX, f.TY, f.TZ = mx.Float64, my.Float64, mz.Float64
		f.Roll, f.Pitch, f.Yaw = roll.Float64, pitch.Float64, yaw.Float64
		if diags != "" {
			f.Diagnostics = strings.Split(diags, ",")
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// ListTargets returns the targets stored for one frame, in insertion order.
func ListTargets(db *sql.DB, sessionID string, seq int64) ([]*TargetRecord, error) {
	rows, err := db.Query(`
		SELECT session_id, seq, marker_id, decision_margin, hamming, center_x, center_y, area,
		       source, best_x, best_y, best_z, best_roll, best_pitch, best_yaw, best_error,
		       alt_x, alt_y, alt_z, alt_error, ambiguity
		FROM vo_targets
		WHERE session_id = ? AND seq = ?
		ORDER BY target_id`, sessionID, seq)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	var out []*TargetRecord
	for rows.Next() {
		var t TargetRecord
		var source sql.NullString
		var pose [12]sql.NullFloat64
		if err := rows.Scan(
			&t.SessionID, &t.Seq, &t.MarkerID, &t.DecisionMargin, &t.Hamming, &t.CenterX, &t.CenterY, &t.Area,
			&source, &pose[0], &pose[1], &pose[2], &pose[3], &pose[4], &pose[5], &pose[6],
			&pose[7], &pose[8], &pose[9], &pose[10], &pose[11],
		); err != nil {
			return nil, fmt.Errorf("scan target row: %w", err)
		}
		t.Source = source.String
		t.BestX, t.BestY, t.BestZ = pose[0].Float64, pose[1].Float64, pose[2].Float64
		t.BestRoll, t.BestPitch, t.BestYaw = pose[3].Float64, pose[4].Float64, pose[5].Float64
		t.BestError = pose[6].Float64
		t.AltX, t.AltY, t.AltZ = pose[7].Float64, pose[8].Float64, pose[9].Float64
		t.AltError, t.Ambiguity = pose[10].Float64, pose[11].Float64
		out = append(out, &t)
	}
	return out, rows.Err()
}

// Sessions lists every recorded session, newest first, with its frame
// count.
func (s *PoseStore) Sessions() ([]*Session, error) {
	return ListSessions(s.db)
}

// ListSessions lists every recorded session in db, newest first.
func ListSessions(db *sql.DB) ([]*Session, error) {
	rows, err := db.Query(`
		SELECT s.session_id, s.label, s.started_at_ns, COUNT(f.seq)
		FROM vo_sessions s
		LEFT JOIN vo_frames f ON f.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_at_ns DESC, s.session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var ss Session
		if err := rows.Scan(&ss.SessionID, &ss.Label, &ss.StartedAt, &ss.Frames); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, &ss)
	}
	return out, rows.Err()
}
