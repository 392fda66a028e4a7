// Command trajectory-plot renders a stored vo-replay session as PNG plots.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/pose.report/internal/security"
	"github.com/banshee-data/pose.report/internal/version"
	"github.com/banshee-data/pose.report/internal/vision/storage/sqlite"
	"github.com/banshee-data/pose.report/internal/vision/trajplot"
)

func main() {
	var dbPath, sessionID, outDir string
	var list, showVer bool

	flag.StringVar(&dbPath, "db", "pose.db", "path to sqlite db")
	flag.StringVar(&sessionID, "session", "", "session ID to plot (default: newest)")
	flag.StringVar(&outDir, "out", "plots", "output directory")
	flag.BoolVar(&list, "list", false, "list sessions and exit")
	flag.BoolVar(&showVer, "version", false, "print version and exit")
	flag.Parse()

	if showVer {
		fmt.Println(version.String("trajectory-plot"))
		return
	}
	if _, err := os.Stat(dbPath); err != nil {
		log.Fatalf("open db: %v", err)
	}
	db, err := sqlite.Open(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if list {
		sessions, err := sqlite.ListSessions(db)
		if err != nil {
			log.Fatalf("list sessions: %v", err)
		}
		for _, s := range sessions {
			fmt.Printf("%s\t%d frames\t%q\n", s.SessionID, s.Frames, s.Label)
		}
		return
	}

	paths, err := plotSession(db, sessionID, outDir)
	if err != nil {
		log.Fatalf("plot: %v", err)
	}
	for _, p := range paths {
		fmt.Println("wrote", p)
	}
}

var errNoSessions = errors.New("database has no sessions")

// plotSession renders sessionID, or the newest session when it is empty,
// into a subdirectory of outDir named after the session label.
func plotSession(db *sql.DB, sessionID, outDir string) ([]string, error) {
	label := sessionID
	if sessionID == "" {
		sessions, err := sqlite.ListSessions(db)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			return nil, errNoSessions
		}
		sessionID = sessions[0].SessionID
		label = sessions[0].Label
	}

	frames, err := sqlite.ListFrames(db, sessionID)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("session %s has no frames", sessionID)
	}

	dir := filepath.Join(outDir, security.SanitizeFilename(label))
	p := trajplot.NewPlotter(dir, label)
	for _, f := range frames {
		targets, err := sqlite.ListTargets(db, sessionID, f.Seq)
		if err != nil {
			return nil, err
		}
		p.Add(sampleFromRecords(f, targets))
	}
	return p.Generate()
}

func sampleFromRecords(f *sqlite.FrameRecord, targets []*sqlite.TargetRecord) trajplot.Sample {
	s := trajplot.Sample{
		Seq:         f.Seq,
		X:           f.TrajX,
		Y:           f.TrajY,
		Z:           f.TrajZ,
		Confidence:  f.Confidence,
		HasEstimate: f.HasEstimate,
	}
	for _, tg := range targets {
		// targets stored without a pose have no source
		if tg.Source == "" {
			continue
		}
		if s.MarkerRange == nil {
			s.MarkerRange = make(map[int]float64)
		}
		s.MarkerRange[tg.MarkerID] = math.Sqrt(tg.BestX*tg.BestX + tg.BestY*tg.BestY + tg.BestZ*tg.BestZ)
	}
	return s
}
