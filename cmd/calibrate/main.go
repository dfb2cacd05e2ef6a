package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"safetycam/internal/calibration"
	"safetycam/internal/camera"
	"safetycam/internal/logging"
	"safetycam/internal/store"
)

var (
	defaults = calibration.DefaultConfig()

	videoPath        = flag.String("video", "", "Checkerboard calibration video (.mp4/.mov)")
	outPath          = flag.String("out", "", "Intrinsics CSV to write (default: video name with .csv)")
	plotPath         = flag.String("plot", "", "Write a PNG scatter of the detected corners")
	dbPath           = flag.String("db", "", "SQLite database to record the run in")
	listRuns         = flag.Int("list", 0, "List the N most recent recorded runs and exit")
	exportRun        = flag.String("export", "", "Write the intrinsics of a recorded run ID to -out and exit")
	patternRows      = flag.Int("pattern-rows", defaults.PatternRows, "Checkerboard internal corners per column")
	patternCols      = flag.Int("pattern-cols", defaults.PatternCols, "Checkerboard internal corners per row")
	maxRawSamples    = flag.Int("max-raw-samples", defaults.MaxRawSamples, "Frames sampled from the video")
	maxSolverSamples = flag.Int("max-solver-samples", defaults.MaxSolverSamples, "Detections handed to the solver")
	debugVerbose     = flag.Bool("debug-verbose", false, "Enable verbose debug output")
)

func main() {
	flag.Parse()

	logger := logging.NewLogger(os.Stdout, *debugVerbose)
	defer logger.Close()
	calibration.SetDebugFunction(logger.Verbose)
	camera.SetDebugFunction(logger.Verbose)
	store.SetDebugFunction(logger.Verbose)

	var err error
	switch {
	case *listRuns > 0:
		err = list(*listRuns)
	case *exportRun != "":
		err = export(*exportRun)
	default:
		err = calibrate()
	}
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		logger.Close()
		os.Exit(1)
	}
}

func calibrate() error {
	if *videoPath == "" {
		flag.Usage()
		return fmt.Errorf("-video is required")
	}
	cfg := calibration.Config{
		PatternRows:      *patternRows,
		PatternCols:      *patternCols,
		MaxRawSamples:    *maxRawSamples,
		MaxSolverSamples: *maxSolverSamples,
	}

	fmt.Printf("📐 CAMERA INTRINSICS CALIBRATOR\n")
	fmt.Printf("==============================\n\n")
	fmt.Printf("🎞️  Video: %s\n", *videoPath)
	fmt.Printf("🏁 Pattern: %d x %d internal corners\n", cfg.PatternRows, cfg.PatternCols)
	fmt.Printf("🔢 Samples: %d raw, %d to the solver\n\n", cfg.MaxRawSamples, cfg.MaxSolverSamples)

	orch, err := calibration.NewOrchestrator(cfg)
	if err != nil {
		return err
	}
	var result *calibration.Result
	orch.OnResult = func(_ string, res *calibration.Result) { result = res }

	fmt.Printf("🔍 Scanning video, this blocks until the solver finishes...\n")
	k, d, err := orch.CalibrateVideo(*videoPath)
	if err != nil {
		return fmt.Errorf("calibration failed: %w", err)
	}
	printResult(result)

	out := *outPath
	if out == "" {
		out = defaultOutput(*videoPath)
	}
	if err := camera.SaveIntrinsics(out, k, d); err != nil {
		return err
	}
	fmt.Printf("💾 Intrinsics written to %s\n", out)

	if *plotPath != "" {
		if err := calibration.SaveCoveragePlot(result, *plotPath); err != nil {
			return err
		}
		fmt.Printf("📊 Corner coverage plot written to %s\n", *plotPath)
	}

	if *dbPath != "" {
		db, err := store.Open(*dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		run := store.NewCalibrationRun(*videoPath, cfg, result)
		if err := db.RecordCalibration(run); err != nil {
			return err
		}
		fmt.Printf("🗄️  Recorded as run %s\n", run.ID)
	}

	fmt.Printf("🎉 Calibration completed successfully!\n")
	return nil
}

// defaultOutput replaces the video extension with .csv
func defaultOutput(video string) string {
	return strings.TrimSuffix(video, filepath.Ext(video)) + ".csv"
}

func printResult(res *calibration.Result) {
	fmt.Printf("\n📋 RESULTS\n")
	fmt.Println(strings.Repeat("=", 41))
	fmt.Printf("Image size:     %dx%d\n", res.ImageSize.X, res.ImageSize.Y)
	fmt.Printf("Frames read:    %d (stride %d, %d scanned)\n", res.FramesRead, res.Stride, res.FramesScanned)
	fmt.Printf("Detections:     %d raw, %d used\n", res.Raw.Len(), res.Sampled.Len())
	fmt.Printf("RMS error:      %.4f px\n", res.RMS)
	fmt.Printf("Elapsed:        %v\n", res.Duration.Round(time.Millisecond))
	fmt.Printf("K: %s\n", res.K)
	fmt.Printf("D: %v\n\n", res.D)
}

func list(n int) error {
	if *dbPath == "" {
		return fmt.Errorf("-list needs -db")
	}
	db, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.Calibrations(n)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Printf("No calibration runs recorded in %s\n", *dbPath)
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %s  %-30s %4dx%-4d rms=%.4f fx=%.1f fy=%.1f\n",
			run.ID, run.CreatedAt.Format("2006-01-02 15:04"), run.SourcePath,
			run.ImageWidth, run.ImageHeight, run.RMS, run.K.Fx(), run.K.Fy())
	}
	return nil
}

func export(id string) error {
	if *dbPath == "" || *outPath == "" {
		return fmt.Errorf("-export needs -db and -out")
	}
	runID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("bad run id %q: %w", id, err)
	}
	db, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.Calibration(runID)
	if err != nil {
		return err
	}
	if err := camera.SaveIntrinsics(*outPath, run.K, run.D); err != nil {
		return err
	}
	fmt.Printf("💾 Run %s (%s) written to %s\n", run.ID, run.SourcePath, *outPath)
	return nil
}
