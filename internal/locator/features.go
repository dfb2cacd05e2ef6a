package locator

import (
	"fmt"

	"gocv.io/x/gocv"

	"safetycam/internal/geometry"
)

// FeatureDetector finds trackable points in a single-channel image. Returned
// coordinates are relative to the image it was given.
type FeatureDetector interface {
	Detect(gray gocv.Mat) ([]geometry.Point2f, error)
}

// ShiTomasi is the good-features-to-track corner detector
type ShiTomasi struct {
	MaxCorners   int
	QualityLevel float64
	MinDistance  float64
}

// NewShiTomasi returns a detector configured from p
func NewShiTomasi(p Params) *ShiTomasi {
	return &ShiTomasi{
		MaxCorners:   p.MaxCorners,
		QualityLevel: p.QualityLevel,
		MinDistance:  p.MinDistance,
	}
}

func (s *ShiTomasi) Detect(gray gocv.Mat) ([]geometry.Point2f, error) {
	if gray.Empty() {
		return nil, ErrNoFrame
	}
	if gray.Channels() != 1 {
		return nil, fmt.Errorf("feature detection needs a single channel image, got %d channels", gray.Channels())
	}

	corners := gocv.NewMat()
	defer corners.Close()
	gocv.GoodFeaturesToTrack(gray, &corners, s.MaxCorners, s.QualityLevel, s.MinDistance)

	pts := make([]geometry.Point2f, 0, corners.Rows())
	for i := 0; i < corners.Rows(); i++ {
		v := corners.GetVecfAt(i, 0)
		if len(v) < 2 {
			continue
		}
		pts = append(pts, geometry.Pt2(float64(v[0]), float64(v[1])))
	}
	return pts, nil
}
