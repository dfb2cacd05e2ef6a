package camera

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// SourceKind records where the intrinsics came from
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceFile
	SourceCalibration
)

func (s SourceKind) String() string {
	switch s {
	case SourceFile:
		return "file"
	case SourceCalibration:
		return "calibration"
	default:
		return "none"
	}
}

// VideoCalibrator derives intrinsics from a checkerboard calibration video
type VideoCalibrator interface {
	CalibrateVideo(path string) (Intrinsics, Distortion, error)
}

// Model owns K, D and E. It is built once at startup and never changes.
type Model struct {
	intrinsics Intrinsics
	distortion Distortion
	extrinsics Extrinsics
	source     SourceKind
}

// NewModel loads intrinsics from intrinsicsPath (a .csv file or a .mp4/.mov
// calibration video) and, when extrinsicsPath is not empty, extrinsics from a
// .csv file. Any failure is returned; a Model is only handed out calibrated.
func NewModel(intrinsicsPath, extrinsicsPath string, calibrator VideoCalibrator) (*Model, error) {
	k, d, source, err := LoadIntrinsics(intrinsicsPath, calibrator)
	if err != nil {
		return nil, err
	}

	var e Extrinsics
	if extrinsicsPath != "" {
		e, err = LoadExtrinsics(extrinsicsPath)
		if err != nil {
			return nil, err
		}
	} else {
		debugMsg("CAMERA", "no extrinsics path configured, E left at zero")
	}

	return NewModelFromParams(k, d, e, source)
}

// NewModelFromParams wraps already-known parameters
func NewModelFromParams(k Intrinsics, d Distortion, e Extrinsics, source SourceKind) (*Model, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return &Model{
		intrinsics: k,
		distortion: d,
		extrinsics: e,
		source:     source,
	}, nil
}

// LoadIntrinsics dispatches strictly on the file extension
func LoadIntrinsics(path string, calibrator VideoCalibrator) (Intrinsics, Distortion, SourceKind, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		debugMsg("CAMERA", fmt.Sprintf("loading intrinsics from file %s", path))
		f, err := os.Open(path)
		if err != nil {
			return Intrinsics{}, Distortion{}, SourceNone, fmt.Errorf("%w: %v", ErrIO, err)
		}
		defer f.Close()
		k, d, err := ParseIntrinsics(f)
		if err != nil {
			return Intrinsics{}, Distortion{}, SourceNone, fmt.Errorf("intrinsics %s: %w", path, err)
		}
		return k, d, SourceFile, nil

	case ".mp4", ".mov":
		if calibrator == nil {
			return Intrinsics{}, Distortion{}, SourceNone, fmt.Errorf("%w: no calibrator available for video %s", ErrFormat, path)
		}
		debugMsg("CAMERA", fmt.Sprintf("calibrating from video %s", path))
		k, d, err := calibrator.CalibrateVideo(path)
		if err != nil {
			return Intrinsics{}, Distortion{}, SourceNone, err
		}
		return k, d, SourceCalibration, nil

	default:
		return Intrinsics{}, Distortion{}, SourceNone, fmt.Errorf("%w: invalid file format for intrinsics %q", ErrFormat, ext)
	}
}

// LoadExtrinsics reads E from a comment-tolerant .csv file
func LoadExtrinsics(path string) (Extrinsics, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".csv" {
		return Extrinsics{}, fmt.Errorf("%w: invalid file format for extrinsics %q", ErrFormat, ext)
	}
	debugMsg("CAMERA", fmt.Sprintf("loading extrinsics from file %s", path))
	f, err := os.Open(path)
	if err != nil {
		return Extrinsics{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer f.Close()
	e, err := ParseExtrinsics(f)
	if err != nil {
		return Extrinsics{}, fmt.Errorf("extrinsics %s: %w", path, err)
	}
	return e, nil
}

func (m *Model) K() Intrinsics      { return m.intrinsics }
func (m *Model) D() Distortion      { return m.distortion }
func (m *Model) E() Extrinsics      { return m.extrinsics }
func (m *Model) Source() SourceKind { return m.source }

// Undistort removes lens distortion from img. The result has the same size
// and type as img and is owned by the caller.
func (m *Model) Undistort(img gocv.Mat) (gocv.Mat, error) {
	if err := m.intrinsics.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	if img.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: empty image", ErrFormat)
	}
	// No distortion means the remap is the identity
	if m.distortion.IsZero() {
		return img.Clone(), nil
	}
	return m.remap(img), nil
}

// remap always runs the OpenCV undistortion, even for zero distortion
func (m *Model) remap(img gocv.Mat) gocv.Mat {
	k := m.intrinsics.ToMat()
	defer k.Close()
	d := m.distortion.ToMat()
	defer d.Close()

	size := image.Pt(img.Cols(), img.Rows())
	newK, _ := gocv.GetOptimalNewCameraMatrixWithParams(k, d, size, 0, size, false)
	defer newK.Close()

	dst := gocv.NewMat()
	gocv.Undistort(img, &dst, k, d, newK)
	return dst
}
