package calibration

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"safetycam/internal/geometry"
)

// Synthetic board: 9x7 squares of boardSquare pixels give 8x6 internal corners
const (
	boardRows   = 6
	boardCols   = 8
	boardSquare = 40
	boardLeft   = 140
	boardTop    = 100
)

// drawBoard renders a black and white checkerboard on a white 640x480 frame
func drawBoard(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { img.Close() })
	for r := 0; r <= boardRows; r++ {
		for c := 0; c <= boardCols; c++ {
			if (r+c)%2 != 0 {
				continue
			}
			x, y := boardLeft+c*boardSquare, boardTop+r*boardSquare
			gocv.Rectangle(&img, image.Rect(x, y, x+boardSquare, y+boardSquare), color.RGBA{0, 0, 0, 0}, -1)
		}
	}
	return img
}

// boardCorners are the internal corners of drawBoard in row-major order.
// A corner sits on the boundary between two pixel centres.
func boardCorners() []geometry.Point2f {
	pts := make([]geometry.Point2f, 0, boardRows*boardCols)
	for r := 0; r < boardRows; r++ {
		for c := 0; c < boardCols; c++ {
			pts = append(pts, geometry.Pt2(
				float64(boardLeft+(c+1)*boardSquare)-0.5,
				float64(boardTop+(r+1)*boardSquare)-0.5,
			))
		}
	}
	return pts
}

// matchesInOrder reports whether got lies within tol of want point by point
func matchesInOrder(got, want []geometry.Point2f, tol float64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if math.Abs(got[i].X-want[i].X) > tol || math.Abs(got[i].Y-want[i].Y) > tol {
			return false
		}
	}
	return true
}

func reversed(pts []geometry.Point2f) []geometry.Point2f {
	out := make([]geometry.Point2f, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

func TestChessboardFinderOnSyntheticBoard(t *testing.T) {
	board := drawBoard(t)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(board, &gray, gocv.ColorBGRToGray)
	bgra := gocv.NewMat()
	defer bgra.Close()
	gocv.CvtColor(board, &bgra, gocv.ColorBGRToBGRA)

	want := boardCorners()
	frames := map[string]gocv.Mat{"bgr": board, "gray": gray, "bgra": bgra}
	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			pts, found := NewChessboardFinder().FindCorners(frame, boardRows, boardCols)
			require.True(t, found)
			require.Len(t, pts, boardRows*boardCols)

			// A board with odd square counts is symmetric under a half turn, so
			// the detector may start from either end.
			assert.True(t, matchesInOrder(pts, want, 1) || matchesInOrder(pts, reversed(want), 1),
				"corners %v are not the board corners in row-major order", pts)

			// rows run along x: constant y, one square apart
			for r := 0; r < boardRows; r++ {
				for c := 1; c < boardCols; c++ {
					prev, cur := pts[r*boardCols+c-1], pts[r*boardCols+c]
					assert.InDelta(t, boardSquare, math.Abs(cur.X-prev.X), 1, "row %d col %d", r, c)
					assert.InDelta(t, 0, cur.Y-prev.Y, 1, "row %d col %d", r, c)
				}
			}
		})
	}
}

func TestChessboardFinderWithoutBoard(t *testing.T) {
	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer blank.Close()

	pts, found := NewChessboardFinder().FindCorners(blank, boardRows, boardCols)
	assert.False(t, found)
	assert.Empty(t, pts)
}

func TestToGray(t *testing.T) {
	board := drawBoard(t)
	bgra := gocv.NewMat()
	defer bgra.Close()
	gocv.CvtColor(board, &bgra, gocv.ColorBGRToBGRA)

	for _, src := range []gocv.Mat{board, bgra} {
		dst := gocv.NewMat()
		toGray(src, &dst)
		assert.Equal(t, 1, dst.Channels())
		assert.Equal(t, src.Rows(), dst.Rows())
		assert.Equal(t, src.Cols(), dst.Cols())
		assert.Equal(t, uint8(0), dst.GetUCharAt(boardTop+1, boardLeft+1))
		assert.Equal(t, uint8(255), dst.GetUCharAt(10, 10))

		// single channel input is copied
		again := gocv.NewMat()
		toGray(dst, &again)
		assert.Equal(t, dst.ToBytes(), again.ToBytes())
		again.Close()
		dst.Close()
	}
}

// pinhole projects object points through a view rotated ay about Y then ax
// about X, with the board centre 20 units in front of the camera.
func pinhole(fx, fy, cx, cy, ax, ay float64, object []geometry.Point3f) []geometry.Point2f {
	sa, ca := math.Sincos(ax)
	sb, cb := math.Sincos(ay)
	// R = Ry(ay) * Rx(ax)
	r := [3][3]float64{
		{cb, sb * sa, sb * ca},
		{0, ca, -sa},
		{-sb, cb * sa, cb * ca},
	}
	centre := [3]float64{float64(boardCols-1) / 2, float64(boardRows-1) / 2, 0}
	var tvec [3]float64
	for i := 0; i < 3; i++ {
		tvec[i] = -(r[i][0]*centre[0] + r[i][1]*centre[1] + r[i][2]*centre[2])
	}
	tvec[2] += 20

	out := make([]geometry.Point2f, len(object))
	for i, p := range object {
		x := r[0][0]*p.X + r[0][1]*p.Y + r[0][2]*p.Z + tvec[0]
		y := r[1][0]*p.X + r[1][1]*p.Y + r[1][2]*p.Z + tvec[1]
		z := r[2][0]*p.X + r[2][1]*p.Y + r[2][2]*p.Z + tvec[2]
		out[i] = geometry.Pt2(fx*x/z+cx, fy*y/z+cy)
	}
	return out
}

func TestSolverRecoversIntrinsics(t *testing.T) {
	const fx, fy, cx, cy = 800.0, 800.0, 320.0, 240.0
	deg := math.Pi / 180
	views := [][2]float64{{0, 0}, {20, 0}, {-20, 0}, {0, 20}, {0, -20}, {15, 15}, {-15, 10}, {10, -25}}

	object := geometry.BoardPoints(boardRows, boardCols)
	var set Set
	for _, v := range views {
		set.Add(object, pinhole(fx, fy, cx, cy, v[0]*deg, v[1]*deg, object))
	}

	sol, err := NewSolver().Solve(set, image.Pt(640, 480))
	require.NoError(t, err)

	assert.Greater(t, sol.K.Fx(), 0.0)
	assert.Greater(t, sol.K.Fy(), 0.0)
	assert.InEpsilon(t, fx, sol.K.Fx(), 0.02)
	assert.InEpsilon(t, fy, sol.K.Fy(), 0.02)
	assert.InDelta(t, cx, sol.K.Cx(), 10)
	assert.InDelta(t, cy, sol.K.Cy(), 10)
	assert.Less(t, sol.RMS, 0.5)
	assert.Equal(t, 1.0, sol.K.At(2, 2))
}

func TestSolverRejectsEmptySet(t *testing.T) {
	_, err := NewSolver().Solve(Set{}, image.Pt(640, 480))
	assert.ErrorIs(t, err, ErrCalibration)
}
