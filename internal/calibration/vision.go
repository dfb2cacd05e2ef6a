package calibration

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"safetycam/internal/camera"
	"safetycam/internal/geometry"
)

// Corner refinement parameters
var (
	SubPixWindow   = image.Pt(5, 5)
	SubPixZeroZone = image.Pt(-1, -1)
	SubPixCriteria = gocv.NewTermCriteria(gocv.Count|gocv.EPS, 30, 0.001)
)

// captureSource adapts gocv.VideoCapture to VideoSource
type captureSource struct {
	cap *gocv.VideoCapture
}

// OpenVideo opens a calibration video file
func OpenVideo(path string) (VideoSource, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open calibration video %s: %v", camera.ErrIO, path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: could not open calibration video %s", camera.ErrIO, path)
	}
	return &captureSource{cap: vc}, nil
}

func (c *captureSource) FrameCount() int {
	return int(c.cap.Get(gocv.VideoCaptureFrameCount))
}

func (c *captureSource) Read(dst *gocv.Mat) bool {
	return c.cap.Read(dst)
}

func (c *captureSource) Close() error {
	return c.cap.Close()
}

// chessboardFinder runs the OpenCV chessboard detector on a grayscale copy
// of the frame and refines the hits to sub-pixel accuracy.
type chessboardFinder struct {
	flags gocv.CalibCBFlag
}

// NewChessboardFinder uses adaptive thresholding with image normalisation
func NewChessboardFinder() ChessboardFinder {
	return &chessboardFinder{flags: gocv.CalibCBAdaptiveThresh | gocv.CalibCBNormalizeImage}
}

func (f *chessboardFinder) FindCorners(frame gocv.Mat, rows, cols int) ([]geometry.Point2f, bool) {
	gray := gocv.NewMat()
	defer gray.Close()
	toGray(frame, &gray)

	corners := gocv.NewMat()
	defer corners.Close()

	// OpenCV takes the pattern as (corners per row, corners per column)
	if !gocv.FindChessboardCorners(gray, image.Pt(cols, rows), &corners, f.flags) {
		return nil, false
	}
	gocv.CornerSubPix(gray, &corners, SubPixWindow, SubPixZeroZone, SubPixCriteria)

	pts := make([]geometry.Point2f, 0, corners.Rows())
	for i := 0; i < corners.Rows(); i++ {
		v := corners.GetVecfAt(i, 0)
		if len(v) < 2 {
			return nil, false
		}
		pts = append(pts, geometry.Pt2(float64(v[0]), float64(v[1])))
	}
	return pts, true
}

// toGray converts BGR or BGRA frames to single channel, copying gray input
func toGray(src gocv.Mat, dst *gocv.Mat) {
	switch src.Channels() {
	case 3:
		gocv.CvtColor(src, dst, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(src, dst, gocv.ColorBGRAToGray)
	default:
		src.CopyTo(dst)
	}
}

// gocvSolver wraps cv::calibrateCamera
type gocvSolver struct{}

// NewSolver returns the OpenCV calibration solver
func NewSolver() Solver {
	return gocvSolver{}
}

func (gocvSolver) Solve(set Set, imageSize image.Point) (Solution, error) {
	if err := set.Validate(); err != nil {
		return Solution{}, err
	}

	objectPoints := gocv.NewPoints3fVector()
	defer objectPoints.Close()
	imagePoints := gocv.NewPoints2fVector()
	defer imagePoints.Close()

	for i := 0; i < set.Len(); i++ {
		obj := make([]gocv.Point3f, len(set.Object[i]))
		for j, p := range set.Object[i] {
			obj[j] = gocv.Point3f{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)}
		}
		img := make([]gocv.Point2f, len(set.Image[i]))
		for j, p := range set.Image[i] {
			img[j] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
		}

		ov := gocv.NewPoint3fVectorFromPoints(obj)
		objectPoints.Append(ov)
		ov.Close()

		iv := gocv.NewPoint2fVectorFromPoints(img)
		imagePoints.Append(iv)
		iv.Close()
	}

	k := gocv.NewMat()
	defer k.Close()
	d := gocv.NewMat()
	defer d.Close()
	rvecs := gocv.NewMat()
	defer rvecs.Close()
	tvecs := gocv.NewMat()
	defer tvecs.Close()

	rms := gocv.CalibrateCamera(objectPoints, imagePoints, imageSize, &k, &d, &rvecs, &tvecs, 0)

	intr, err := camera.IntrinsicsFromMat(k)
	if err != nil {
		return Solution{}, err
	}
	dist, err := camera.DistortionFromMat(d)
	if err != nil {
		return Solution{}, err
	}
	return Solution{K: intr, D: dist, RMS: rms}, nil
}
