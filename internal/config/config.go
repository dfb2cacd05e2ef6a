// Package config holds the monitor's runtime settings: file paths, camera
// mount height, distance limits and the tunables of every stage.
//
// Settings come from DefaultConfig, optionally overlaid by a JSON file and
// then by command-line flags. Fields omitted from the JSON file keep their
// default values, so partial configs are safe.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"safetycam/internal/calibration"
	"safetycam/internal/detection"
	"safetycam/internal/locator"
	"safetycam/internal/safety"
)

var (
	// ErrDistanceOrder is reported when D_close is not strictly below D_max
	ErrDistanceOrder = errors.New("config: D close must be smaller than D max")
	// ErrNonPositiveDistance is reported when either distance is <= 0
	ErrNonPositiveDistance = errors.New("config: distance inputs must be greater than zero")
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// ModelConfig locates the person detector files
type ModelConfig struct {
	Weights string `json:"weights"`
	Config  string `json:"config"`
	Names   string `json:"names"`
}

// Config is the complete monitor configuration
type Config struct {
	IntrinsicsPath string      `json:"intrinsics_path"`
	ExtrinsicsPath string      `json:"extrinsics_path"`
	VideoSource    string      `json:"video_source"`
	Model          ModelConfig `json:"model"`
	DatabasePath   string      `json:"database_path"`
	LogFile        string      `json:"log_file"`
	Verbose        bool        `json:"verbose"`

	CameraHeightM float64 `json:"camera_height_m"`
	DMaxM         float64 `json:"d_max_m"`
	DCloseM       float64 `json:"d_close_m"`

	PatternRows      int `json:"pattern_rows"`
	PatternCols      int `json:"pattern_cols"`
	MaxRawSamples    int `json:"max_raw_samples"`
	MaxSolverSamples int `json:"max_solver_samples"`

	MaxFeatures        int     `json:"max_features"`
	FeatureQuality     float64 `json:"feature_quality"`
	FeatureMinDistance float64 `json:"feature_min_distance"`
	PickRadiusPx       float64 `json:"pick_radius_px"`
	MinRegionPx        int     `json:"min_region_px"`

	DetectorInputSize int     `json:"detector_input_size"`
	Objectness        float64 `json:"objectness_threshold"`
	ClassScore        float64 `json:"class_score_threshold"`
	NMSScore          float64 `json:"nms_score_threshold"`
	NMSIoU            float64 `json:"nms_iou_threshold"`
}

// DefaultConfig returns the stock configuration. Distances default to a
// 1.5m / 6m band; paths are empty and must be supplied.
func DefaultConfig() *Config {
	cal := calibration.DefaultConfig()
	loc := locator.DefaultParams()
	th := detection.DefaultThresholds()
	return &Config{
		Model: ModelConfig{
			Weights: "models/yolov3-tiny.weights",
			Config:  "models/yolov3-tiny.cfg",
			Names:   "models/coco.names",
		},
		VideoSource: "0",

		CameraHeightM: loc.CameraHeight,
		DMaxM:         6,
		DCloseM:       1.5,

		PatternRows:      cal.PatternRows,
		PatternCols:      cal.PatternCols,
		MaxRawSamples:    cal.MaxRawSamples,
		MaxSolverSamples: cal.MaxSolverSamples,

		MaxFeatures:        loc.MaxCorners,
		FeatureQuality:     loc.QualityLevel,
		FeatureMinDistance: loc.MinDistance,
		PickRadiusPx:       loc.PickRadius,
		MinRegionPx:        loc.MinRegion,

		DetectorInputSize: th.InputSize,
		Objectness:        th.Objectness,
		ClassScore:        th.ClassScore,
		NMSScore:          th.NMSScore,
		NMSIoU:            th.NMSIoU,
	}
}

// LoadConfig overlays a JSON file onto DefaultConfig. The file must have a
// .json extension and be under 1MB. The result is not validated.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return cfg, nil
}

// CheckDistances validates the D_close / D_max pair. Each violated rule is
// reported exactly once.
func (c *Config) CheckDistances() error {
	var errs []error
	if c.DCloseM <= 0 || c.DMaxM <= 0 {
		errs = append(errs, fmt.Errorf("%w (d_close=%g, d_max=%g)", ErrNonPositiveDistance, c.DCloseM, c.DMaxM))
	}
	if c.DCloseM >= c.DMaxM {
		errs = append(errs, fmt.Errorf("%w (d_close=%g, d_max=%g)", ErrDistanceOrder, c.DCloseM, c.DMaxM))
	}
	return errors.Join(errs...)
}

// CheckSettings validates everything except the distance limits. Failures
// here leave the monitor unable to run.
func (c *Config) CheckSettings() error {
	var errs []error
	if c.CameraHeightM <= 0 {
		errs = append(errs, fmt.Errorf("camera_height_m must be positive, got %g", c.CameraHeightM))
	}
	if err := c.Calibration().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxFeatures <= 0 {
		errs = append(errs, fmt.Errorf("max_features must be positive, got %d", c.MaxFeatures))
	}
	if c.FeatureQuality <= 0 || c.FeatureQuality >= 1 {
		errs = append(errs, fmt.Errorf("feature_quality must be between 0 and 1, got %g", c.FeatureQuality))
	}
	if c.FeatureMinDistance < 0 {
		errs = append(errs, fmt.Errorf("feature_min_distance must be non-negative, got %g", c.FeatureMinDistance))
	}
	if c.PickRadiusPx <= 0 {
		errs = append(errs, fmt.Errorf("pick_radius_px must be positive, got %g", c.PickRadiusPx))
	}
	if c.MinRegionPx < 1 {
		errs = append(errs, fmt.Errorf("min_region_px must be at least 1, got %d", c.MinRegionPx))
	}
	if c.DetectorInputSize <= 0 || c.DetectorInputSize%32 != 0 {
		errs = append(errs, fmt.Errorf("detector_input_size must be a positive multiple of 32, got %d", c.DetectorInputSize))
	}
	for name, v := range map[string]float64{
		"objectness_threshold":  c.Objectness,
		"class_score_threshold": c.ClassScore,
		"nms_score_threshold":   c.NMSScore,
		"nms_iou_threshold":     c.NMSIoU,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 1, got %g", name, v))
		}
	}
	return errors.Join(errs...)
}

// Validate joins CheckDistances and CheckSettings
func (c *Config) Validate() error {
	return errors.Join(c.CheckDistances(), c.CheckSettings())
}

// Calibration returns the orchestrator settings
func (c *Config) Calibration() calibration.Config {
	return calibration.Config{
		PatternRows:      c.PatternRows,
		PatternCols:      c.PatternCols,
		MaxRawSamples:    c.MaxRawSamples,
		MaxSolverSamples: c.MaxSolverSamples,
	}
}

// Locator returns the selection tunables
func (c *Config) Locator() locator.Params {
	return locator.Params{
		MaxCorners:   c.MaxFeatures,
		QualityLevel: c.FeatureQuality,
		MinDistance:  c.FeatureMinDistance,
		PickRadius:   c.PickRadiusPx,
		MinRegion:    c.MinRegionPx,
		CameraHeight: c.CameraHeightM,
	}
}

// Thresholds returns the person detector settings
func (c *Config) Thresholds() detection.Thresholds {
	return detection.Thresholds{
		InputSize:  c.DetectorInputSize,
		Objectness: c.Objectness,
		ClassScore: c.ClassScore,
		NMSScore:   c.NMSScore,
		NMSIoU:     c.NMSIoU,
	}
}

// ModelFiles returns the detector model paths
func (c *Config) ModelFiles() detection.ModelFiles {
	return detection.ModelFiles{Weights: c.Model.Weights, Config: c.Model.Config, Names: c.Model.Names}
}

// Limits returns the proximity zone thresholds
func (c *Config) Limits() safety.Limits {
	return safety.Limits{Close: c.DCloseM, Max: c.DMaxM}
}

// BindFlags registers one flag per setting on fs, writing into c. Current
// values of c become the flag defaults.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.IntrinsicsPath, "intrinsics", c.IntrinsicsPath, "Intrinsics source: .csv file or .mp4/.mov checkerboard video")
	fs.StringVar(&c.ExtrinsicsPath, "extrinsics", c.ExtrinsicsPath, "Extrinsics .csv file (12 values, row-major [R|t])")
	fs.StringVar(&c.VideoSource, "input", c.VideoSource, "Video file path or camera index")
	fs.StringVar(&c.Model.Weights, "weights", c.Model.Weights, "YOLO weights file")
	fs.StringVar(&c.Model.Config, "model-config", c.Model.Config, "YOLO network config file")
	fs.StringVar(&c.Model.Names, "names", c.Model.Names, "Class names file (one per line, must contain \"person\")")
	fs.StringVar(&c.DatabasePath, "db", c.DatabasePath, "SQLite database for calibration runs and monitor sessions (empty disables)")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Mirror debug messages to this file")
	fs.BoolVar(&c.Verbose, "debug-verbose", c.Verbose, "Enable verbose debug output")

	fs.Float64Var(&c.CameraHeightM, "camera-height", c.CameraHeightM, "Camera mount height above the ground in metres")
	fs.Float64Var(&c.DMaxM, "d-max", c.DMaxM, "Far detection limit in metres")
	fs.Float64Var(&c.DCloseM, "d-close", c.DCloseM, "Near safety limit in metres (must be below -d-max)")

	fs.IntVar(&c.PatternRows, "pattern-rows", c.PatternRows, "Checkerboard internal corners per column")
	fs.IntVar(&c.PatternCols, "pattern-cols", c.PatternCols, "Checkerboard internal corners per row")
	fs.IntVar(&c.MaxRawSamples, "max-raw-samples", c.MaxRawSamples, "Frames sampled from the calibration video")
	fs.IntVar(&c.MaxSolverSamples, "max-solver-samples", c.MaxSolverSamples, "Detections handed to the calibration solver")

	fs.IntVar(&c.MaxFeatures, "max-features", c.MaxFeatures, "Maximum corner features per selected region")
	fs.Float64Var(&c.FeatureQuality, "feature-quality", c.FeatureQuality, "Corner quality level (0-1)")
	fs.Float64Var(&c.FeatureMinDistance, "feature-min-distance", c.FeatureMinDistance, "Minimum pixel spacing between features")
	fs.Float64Var(&c.PickRadiusPx, "pick-radius", c.PickRadiusPx, "Maximum click distance to a feature in pixels")
	fs.IntVar(&c.MinRegionPx, "min-region", c.MinRegionPx, "Minimum selection width and height in pixels")

	fs.IntVar(&c.DetectorInputSize, "detector-size", c.DetectorInputSize, "Detector network input size (multiple of 32)")
	fs.Float64Var(&c.Objectness, "objectness", c.Objectness, "Minimum detector objectness")
	fs.Float64Var(&c.ClassScore, "class-score", c.ClassScore, "Minimum person class score")
	fs.Float64Var(&c.NMSScore, "nms-score", c.NMSScore, "Non-max suppression score threshold")
	fs.Float64Var(&c.NMSIoU, "nms-iou", c.NMSIoU, "Non-max suppression IoU threshold")
}

// Parse builds a Config from command-line arguments. A -config JSON file is
// loaded first and any flag given explicitly overrides it.
func Parse(name string, args []string) (*Config, error) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "JSON configuration file")
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *configPath == "" {
		return cfg, nil
	}

	fileCfg, err := LoadConfig(*configPath)
	if err != nil {
		return nil, err
	}
	overlay := flag.NewFlagSet(name, flag.ContinueOnError)
	fileCfg.BindFlags(overlay)
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" || setErr != nil {
			return
		}
		setErr = overlay.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return nil, setErr
	}
	return fileCfg, nil
}
