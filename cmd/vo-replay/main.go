// Command vo-replay runs a directory of recorded frames through the pose
// pipeline, optionally storing results in SQLite and writing trajectory plots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/monitoring"
	"github.com/banshee-data/pose.report/internal/security"
	"github.com/banshee-data/pose.report/internal/version"
	"github.com/banshee-data/pose.report/internal/vision/l1frames"
	"github.com/banshee-data/pose.report/internal/vision/l3correspondence"
	"github.com/banshee-data/pose.report/internal/vision/l5odometry"
	"github.com/banshee-data/pose.report/internal/vision/l6fusion"
	"github.com/banshee-data/pose.report/internal/vision/pipeline"
	"github.com/banshee-data/pose.report/internal/vision/storage/sqlite"
	"github.com/banshee-data/pose.report/internal/vision/trajplot"
)

var frameExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

type options struct {
	framesDir  string
	calibPath  string
	tuningPath string
	layoutPath string
	detections string
	dbPath     string
	label      string
	plotDir    string
	diag       bool
	trace      bool
	showVer    bool
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("vo-replay", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.framesDir, "frames", "", "directory of frames, replayed in name order")
	fs.StringVar(&o.calibPath, "calib", "", "camera calibration JSON")
	fs.StringVar(&o.tuningPath, "tuning", "", "tuning JSON (default: "+config.DefaultConfigPath+" when present)")
	fs.StringVar(&o.layoutPath, "layout", "", "marker map (JSON or YAML)")
	fs.StringVar(&o.detections, "detections", "", "marker detections as JSON lines keyed by frame sequence")
	fs.StringVar(&o.dbPath, "db", "", "sqlite database for results (disabled when empty)")
	fs.StringVar(&o.label, "label", "", "session label stored with results")
	fs.StringVar(&o.plotDir, "plot", "", "write trajectory plots into this directory")
	fs.BoolVar(&o.diag, "diag", false, "enable diagnostic logging")
	fs.BoolVar(&o.trace, "trace", false, "enable per-frame trace logging")
	fs.BoolVar(&o.showVer, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.showVer {
		return o, nil
	}
	if o.framesDir == "" {
		return o, errors.New("-frames is required")
	}
	if o.calibPath == "" {
		return o, errors.New("-calib is required")
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("vo-replay: %v", err)
	}
	if opts.showVer {
		fmt.Println(version.String("vo-replay"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sum, err := run(ctx, opts, os.Stderr)
	if err != nil {
		log.Fatalf("vo-replay: %v", err)
	}
	fmt.Println(sum)
}

// summary counts what happened during a replay.
type summary struct {
	Frames    int
	Estimates int
	Targets   int
	Flagged   int
	SessionID string
	Plots     []string
}

func (s summary) String() string {
	out := fmt.Sprintf("replayed %d frames: %d motion estimates, %d targets, %d with diagnostics",
		s.Frames, s.Estimates, s.Targets, s.Flagged)
	if s.SessionID != "" {
		out += ", session " + s.SessionID
	}
	for _, p := range s.Plots {
		out += "\nwrote " + p
	}
	return out
}

func configureLogging(w io.Writer, diag, trace bool) {
	ops, d, tr := monitoring.Streams(w, diag, trace)
	l3correspondence.SetLogWriters(ops, d, tr)
	l5odometry.SetLogWriters(ops, d, tr)
	l6fusion.SetLogWriters(ops, d, tr)
	pipeline.SetLogWriters(ops, d, tr)
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		if cfg, err := config.LoadTuningConfig(config.DefaultConfigPath); err == nil {
			return cfg, nil
		}
		return config.DefaultTuningConfig(), nil
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning %s: %w", path, err)
	}
	return cfg, nil
}

// listFrames returns the frame files in dir sorted by name. Symlinks that
// leave dir are skipped.
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
			monitoring.Logf("skipping frame: %v", err)
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

func loadFrame(seq int64, path string) (l1frames.Frame, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return l1frames.Frame{}, fmt.Errorf("decode %s: %w", path, err)
	}
	capturedAt := time.Time{}
	if info, err := os.Stat(path); err == nil {
		capturedAt = info.ModTime()
	}
	return l1frames.NewGreyscaleFrame(seq, img, capturedAt), nil
}

func run(ctx context.Context, opts options, logW io.Writer) (summary, error) {
	var sum summary
	configureLogging(logW, opts.diag, opts.trace)

	tuning, err := loadTuning(opts.tuningPath)
	if err != nil {
		return sum, err
	}
	cal, err := config.LoadCalibration(opts.calibPath)
	if err != nil {
		return sum, err
	}
	k, err := l1frames.NewCameraIntrinsics(cal.Matrix(), cal.Resolution.Width, cal.Resolution.Height)
	if err != nil {
		return sum, fmt.Errorf("calibration %s: %w", opts.calibPath, err)
	}

	cfg := pipeline.Config{Tuning: tuning, Intrinsics: k}
	if opts.layoutPath != "" {
		layout, err := l6fusion.LoadFieldLayout(opts.layoutPath)
		if err != nil {
			return sum, err
		}
		cfg.MarkerMap = layout
	}
	if opts.detections != "" {
		dets, err := l6fusion.LoadDetectionLog(opts.detections)
		if err != nil {
			return sum, err
		}
		monitoring.Logf("loaded detections for %d frames from %s", dets.Len(), opts.detections)
		cfg.Detector = dets
	}

	if opts.dbPath != "" {
		db, err := sqlite.Open(opts.dbPath)
		if err != nil {
			return sum, err
		}
		defer db.Close()
		store, err := sqlite.NewPoseStore(db, opts.label)
		if err != nil {
			return sum, err
		}
		sum.SessionID = store.SessionID()
		cfg.Sinks = append(cfg.Sinks, store)
	}

	var plots *trajplot.Plotter
	if opts.plotDir != "" {
		plots = trajplot.NewPlotter(opts.plotDir, opts.label)
		cfg.Sinks = append(cfg.Sinks, plots)
	}

	paths, err := listFrames(opts.framesDir)
	if err != nil {
		return sum, err
	}
	if len(paths) == 0 {
		return sum, fmt.Errorf("no frames found in %s", opts.framesDir)
	}

	p := pipeline.New(cfg)
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("replay interrupted after %d frames", sum.Frames)
			break
		}
		frame, err := loadFrame(int64(i+1), path)
		if err != nil {
			return sum, err
		}
		res := p.Process(frame)
		sum.Frames++
		if res.Odometry != nil {
			sum.Estimates++
		}
		sum.Targets += len(res.Targets)
		if len(res.Diagnostics) > 0 {
			sum.Flagged++
		}
	}

	if plots != nil {
		written, err := plots.Generate()
		if err != nil {
			return sum, fmt.Errorf("generate plots: %w", err)
		}
		sum.Plots = written
	}
	return sum, nil
}
