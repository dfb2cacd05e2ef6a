package calibration

import (
	"fmt"

	"safetycam/internal/geometry"
)

// Set is an ordered collection of per-frame correspondences. Object[i] and
// Image[i] belong to the same frame.
type Set struct {
	Object [][]geometry.Point3f
	Image  [][]geometry.Point2f
}

// Add appends one frame's correspondence pair
func (s *Set) Add(object []geometry.Point3f, img []geometry.Point2f) {
	s.Object = append(s.Object, object)
	s.Image = append(s.Image, img)
}

// Len is the number of frames in the set
func (s Set) Len() int {
	return len(s.Image)
}

// Validate checks the set is usable by the solver: non-empty, equal length
// sequences, and a matching point count in every frame.
func (s Set) Validate() error {
	if len(s.Object) == 0 || len(s.Image) == 0 {
		return fmt.Errorf("%w: no corners were found", ErrCalibration)
	}
	if len(s.Object) != len(s.Image) {
		return fmt.Errorf("%w: mismatch: object sets=%d, image sets=%d", ErrCalibration, len(s.Object), len(s.Image))
	}
	for i := range s.Object {
		if len(s.Object[i]) != len(s.Image[i]) {
			return fmt.Errorf("%w: frame %d has mismatched point counts (%d vs %d)",
				ErrCalibration, i, len(s.Object[i]), len(s.Image[i]))
		}
		if len(s.Object[i]) != len(s.Object[0]) {
			return fmt.Errorf("%w: frame %d has %d points, frame 0 has %d",
				ErrCalibration, i, len(s.Object[i]), len(s.Object[0]))
		}
	}
	return nil
}

// Subsample keeps every Stride(Len, max)-th frame starting at the first
func (s Set) Subsample(max int) Set {
	step := Stride(s.Len(), max)
	var out Set
	for i := 0; i < s.Len(); i += step {
		out.Add(s.Object[i], s.Image[i])
	}
	return out
}

// ImagePoints flattens every frame's detected corners
func (s Set) ImagePoints() []geometry.Point2f {
	var n int
	for _, img := range s.Image {
		n += len(img)
	}
	out := make([]geometry.Point2f, 0, n)
	for _, img := range s.Image {
		out = append(out, img...)
	}
	return out
}

// Stride is max(1, total/max). A non-positive max disables striding.
func Stride(total, max int) int {
	if max <= 0 {
		return 1
	}
	if step := total / max; step > 1 {
		return step
	}
	return 1
}
