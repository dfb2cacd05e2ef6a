package camera

import (
	"fmt"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// Intrinsics is the 3x3 pinhole camera matrix K:
//
//	[fx  s cx]
//	[ 0 fy cy]
//	[ 0  0  1]
//
// The zero value (all zero) is the uncalibrated state.
type Intrinsics struct {
	m *mat.Dense
}

// NewIntrinsics builds K from 9 row-major values
func NewIntrinsics(values []float64) (Intrinsics, error) {
	if len(values) != 9 {
		return Intrinsics{}, fmt.Errorf("%w: camera matrix needs 9 values, got %d", ErrFormat, len(values))
	}
	data := make([]float64, 9)
	copy(data, values)
	return Intrinsics{m: mat.NewDense(3, 3, data)}, nil
}

// IntrinsicsFromParams builds a zero-skew K
func IntrinsicsFromParams(fx, fy, cx, cy float64) Intrinsics {
	return Intrinsics{m: mat.NewDense(3, 3, []float64{
		fx, 0, cx,
		0, fy, cy,
		0, 0, 1,
	})}
}

// At returns K[r][c]
func (k Intrinsics) At(r, c int) float64 {
	if k.m == nil {
		return 0
	}
	return k.m.At(r, c)
}

func (k Intrinsics) Fx() float64   { return k.At(0, 0) }
func (k Intrinsics) Fy() float64   { return k.At(1, 1) }
func (k Intrinsics) Cx() float64   { return k.At(0, 2) }
func (k Intrinsics) Cy() float64   { return k.At(1, 2) }
func (k Intrinsics) Skew() float64 { return k.At(0, 1) }

// Matrix returns a copy of K
func (k Intrinsics) Matrix() *mat.Dense {
	out := mat.NewDense(3, 3, nil)
	if k.m != nil {
		out.Copy(k.m)
	}
	return out
}

// Values returns K row-major
func (k Intrinsics) Values() []float64 {
	out := make([]float64, 9)
	if k.m != nil {
		copy(out, k.m.RawMatrix().Data)
	}
	return out
}

// IsZero reports whether K is the uncalibrated sentinel
func (k Intrinsics) IsZero() bool {
	return k.m == nil || mat.Equal(k.m, mat.NewDense(3, 3, nil))
}

// Validate fails with ErrUncalibrated unless both focal lengths are positive
func (k Intrinsics) Validate() error {
	if k.IsZero() {
		return ErrUncalibrated
	}
	if k.Fx() <= 0 || k.Fy() <= 0 {
		return fmt.Errorf("%w: focal lengths must be positive (fx=%g, fy=%g)", ErrUncalibrated, k.Fx(), k.Fy())
	}
	return nil
}

func (k Intrinsics) String() string {
	return fmt.Sprintf("K{fx=%.3f fy=%.3f cx=%.3f cy=%.3f}", k.Fx(), k.Fy(), k.Cx(), k.Cy())
}

// Distortion holds the Brown-Conrady coefficients k1, k2, p1, p2, k3
type Distortion [5]float64

// IsZero reports whether every coefficient is zero
func (d Distortion) IsZero() bool {
	return d == Distortion{}
}

// Extrinsics is the 3x4 [R|t] matrix, loaded verbatim
type Extrinsics struct {
	m *mat.Dense
}

// NewExtrinsics builds E from 12 row-major values
func NewExtrinsics(values []float64) (Extrinsics, error) {
	if len(values) != 12 {
		return Extrinsics{}, fmt.Errorf("%w: extrinsic matrix needs 12 values, got %d", ErrFormat, len(values))
	}
	data := make([]float64, 12)
	copy(data, values)
	return Extrinsics{m: mat.NewDense(3, 4, data)}, nil
}

// At returns E[r][c]
func (e Extrinsics) At(r, c int) float64 {
	if e.m == nil {
		return 0
	}
	return e.m.At(r, c)
}

// Matrix returns a copy of E
func (e Extrinsics) Matrix() *mat.Dense {
	out := mat.NewDense(3, 4, nil)
	if e.m != nil {
		out.Copy(e.m)
	}
	return out
}

// IsZero reports whether E was never loaded
func (e Extrinsics) IsZero() bool {
	return e.m == nil || mat.Equal(e.m, mat.NewDense(3, 4, nil))
}

// ToMat converts K to a CV_64F gocv matrix. The caller owns the result.
func (k Intrinsics) ToMat() gocv.Mat {
	out := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.SetDoubleAt(r, c, k.At(r, c))
		}
	}
	return out
}

// ToMat converts D to a 1x5 CV_64F gocv matrix. The caller owns the result.
func (d Distortion) ToMat() gocv.Mat {
	out := gocv.NewMatWithSize(1, 5, gocv.MatTypeCV64F)
	for i, v := range d {
		out.SetDoubleAt(0, i, v)
	}
	return out
}

// IntrinsicsFromMat reads a 3x3 gocv matrix of any float depth
func IntrinsicsFromMat(m gocv.Mat) (Intrinsics, error) {
	if m.Rows() != 3 || m.Cols() != 3 {
		return Intrinsics{}, fmt.Errorf("%w: camera matrix is %dx%d", ErrFormat, m.Rows(), m.Cols())
	}
	d := gocv.NewMat()
	defer d.Close()
	m.ConvertTo(&d, gocv.MatTypeCV64F)

	values := make([]float64, 0, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			values = append(values, d.GetDoubleAt(r, c))
		}
	}
	return NewIntrinsics(values)
}

// DistortionFromMat reads the first five coefficients of a 1xN or Nx1 matrix
func DistortionFromMat(m gocv.Mat) (Distortion, error) {
	var out Distortion
	if m.Total() < len(out) {
		return out, fmt.Errorf("%w: need %d distortion coefficients, got %d", ErrFormat, len(out), m.Total())
	}
	d := gocv.NewMat()
	defer d.Close()
	m.ConvertTo(&d, gocv.MatTypeCV64F)

	flat := d.Reshape(1, 1)
	defer flat.Close()
	for i := range out {
		out[i] = flat.GetDoubleAt(0, i)
	}
	return out, nil
}
