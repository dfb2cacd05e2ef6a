package calibration

import (
	"errors"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"safetycam/internal/camera"
	"safetycam/internal/geometry"
)

// Config holds the board geometry and sample bounds
type Config struct {
	PatternRows      int // internal corners per column
	PatternCols      int // internal corners per row
	MaxRawSamples    int
	MaxSolverSamples int
}

// DefaultConfig returns the 6x8 board with 150 raw and 30 solver samples
func DefaultConfig() Config {
	return Config{
		PatternRows:      6,
		PatternCols:      8,
		MaxRawSamples:    150,
		MaxSolverSamples: 30,
	}
}

// Validate rejects board sizes and sample bounds the scan cannot work with
func (c Config) Validate() error {
	var errs []error
	if c.PatternRows < 2 || c.PatternCols < 2 {
		errs = append(errs, fmt.Errorf("pattern must have at least 2x2 internal corners, got %dx%d", c.PatternRows, c.PatternCols))
	}
	if c.MaxRawSamples <= 0 {
		errs = append(errs, fmt.Errorf("max raw samples must be positive, got %d", c.MaxRawSamples))
	}
	if c.MaxSolverSamples <= 0 {
		errs = append(errs, fmt.Errorf("max solver samples must be positive, got %d", c.MaxSolverSamples))
	}
	return errors.Join(errs...)
}

// VideoSource delivers decoded frames in order
type VideoSource interface {
	// FrameCount is the container's reported frame total; <= 0 when unknown
	FrameCount() int
	Read(dst *gocv.Mat) bool
	Close() error
}

// ChessboardFinder locates and refines the internal corners of a board with
// rows x cols corners. ok is false when the board is not fully visible.
type ChessboardFinder interface {
	FindCorners(frame gocv.Mat, rows, cols int) (corners []geometry.Point2f, ok bool)
}

// Solver estimates K and D from a validated set
type Solver interface {
	Solve(set Set, imageSize image.Point) (Solution, error)
}

// Solution is what the solver returns. Per-view poses are discarded.
type Solution struct {
	K   camera.Intrinsics
	D   camera.Distortion
	RMS float64
}

// Result summarises one calibration run
type Result struct {
	Solution
	ImageSize     image.Point
	FramesRead    int
	FramesScanned int
	Stride        int
	Raw           Set
	Sampled       Set
	Duration      time.Duration
}

// Orchestrator turns a calibration video into intrinsics
type Orchestrator struct {
	cfg    Config
	open   func(path string) (VideoSource, error)
	finder ChessboardFinder
	solver Solver

	// called with each finished run, used by the calibrate tool to persist it
	OnResult func(path string, res *Result)
}

// NewOrchestrator wires the gocv-backed video reader, chessboard finder and solver
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	return NewOrchestratorWith(cfg, OpenVideo, NewChessboardFinder(), NewSolver())
}

// NewOrchestratorWith allows substituting any of the vision collaborators
func NewOrchestratorWith(cfg Config, open func(string) (VideoSource, error), finder ChessboardFinder, solver Solver) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration config: %w", err)
	}
	return &Orchestrator{
		cfg:    cfg,
		open:   open,
		finder: finder,
		solver: solver,
	}, nil
}

// Config returns the configuration the orchestrator was built with
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// CalibrateVideo opens path, runs the scan and returns K and D
func (o *Orchestrator) CalibrateVideo(path string) (camera.Intrinsics, camera.Distortion, error) {
	src, err := o.open(path)
	if err != nil {
		return camera.Intrinsics{}, camera.Distortion{}, err
	}
	defer src.Close()

	res, err := o.Run(src)
	if err != nil {
		return camera.Intrinsics{}, camera.Distortion{}, err
	}
	if o.OnResult != nil {
		o.OnResult(path, res)
	}
	return res.K, res.D, nil
}

// Run scans src, validates and subsamples the detections and calls the
// solver. It blocks until the whole video has been read.
func (o *Orchestrator) Run(src VideoSource) (*Result, error) {
	start := time.Now()
	res := &Result{}

	total := src.FrameCount()
	res.Stride = Stride(total, o.cfg.MaxRawSamples)
	debugMsg("CALIB", fmt.Sprintf("video reports %d frames, scanning every %d", total, res.Stride))

	objp := geometry.BoardPoints(o.cfg.PatternRows, o.cfg.PatternCols)

	frame := gocv.NewMat()
	defer frame.Close()

	for i := 0; ; i++ {
		if ok := src.Read(&frame); !ok || frame.Empty() {
			break
		}
		res.FramesRead++
		if res.ImageSize == (image.Point{}) {
			res.ImageSize = image.Pt(frame.Cols(), frame.Rows())
		}
		if i%res.Stride != 0 {
			continue
		}
		res.FramesScanned++

		corners, found := o.finder.FindCorners(frame, o.cfg.PatternRows, o.cfg.PatternCols)
		if !found {
			continue
		}
		res.Raw.Add(objp, corners)
	}
	debugMsg("CALIB", fmt.Sprintf("read %d frames, scanned %d, board found in %d", res.FramesRead, res.FramesScanned, res.Raw.Len()))

	if err := res.Raw.Validate(); err != nil {
		debugMsg("CALIB", fmt.Sprintf("calibration aborted: %v", err))
		return nil, err
	}

	res.Sampled = res.Raw.Subsample(o.cfg.MaxSolverSamples)
	debugMsg("CALIB", fmt.Sprintf("solving with %d of %d detections at %dx%d", res.Sampled.Len(), res.Raw.Len(), res.ImageSize.X, res.ImageSize.Y))

	sol, err := o.solver.Solve(res.Sampled, res.ImageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalibration, err)
	}
	if err := sol.K.Validate(); err != nil {
		return nil, fmt.Errorf("%w: solver returned %v", ErrCalibration, err)
	}
	res.Solution = sol
	res.Duration = time.Since(start)
	debugMsg("CALIB", fmt.Sprintf("calibrated %s rms=%.4f in %v", sol.K, sol.RMS, res.Duration))
	return res, nil
}
