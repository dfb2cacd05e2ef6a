// Package geometry holds the small pixel- and world-space helpers shared by
// the calibration and locator packages.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// Point2f is a sub-pixel image coordinate
type Point2f struct {
	X float64
	Y float64
}

// Pt2 is shorthand for Point2f{x, y}
func Pt2(x, y float64) Point2f {
	return Point2f{X: x, Y: y}
}

// Add offsets p by an integer pixel translation
func (p Point2f) Add(by image.Point) Point2f {
	return Point2f{X: p.X + float64(by.X), Y: p.Y + float64(by.Y)}
}

// Image rounds p to the nearest pixel
func (p Point2f) Image() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

func (p Point2f) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

// Point3f is an object-space coordinate
type Point3f struct {
	X float64
	Y float64
	Z float64
}

// GroundPoint is a world coordinate on the ground plane; Y is always 0
type GroundPoint struct {
	X float64
	Y float64
	Z float64
}

// Range is the horizontal distance from the point below the camera
func (g GroundPoint) Range() float64 {
	return math.Hypot(g.X, g.Z)
}

func (g GroundPoint) String() string {
	return fmt.Sprintf("(X=%.3f, Y=%.3f, Z=%.3f)", g.X, g.Y, g.Z)
}

// SquaredDistance between two image points
func SquaredDistance(a, b Point2f) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// Nearest returns the index of the point closest to p and its squared
// distance. The index is -1 when points is empty.
func Nearest(points []Point2f, p Point2f) (int, float64) {
	best := -1
	bestD2 := math.Inf(1)
	for i, q := range points {
		if d2 := SquaredDistance(q, p); d2 < bestD2 {
			best = i
			bestD2 = d2
		}
	}
	return best, bestD2
}

// Offset translates every point by the given pixel offset
func Offset(points []Point2f, by image.Point) []Point2f {
	out := make([]Point2f, len(points))
	for i, p := range points {
		out[i] = p.Add(by)
	}
	return out
}

// Span returns the normalized rectangle between two arbitrary corners,
// clamped to bounds.
func Span(a, b image.Point, bounds image.Rectangle) image.Rectangle {
	return image.Rectangle{Min: a, Max: b}.Canon().Intersect(bounds)
}

// BoardPoints returns the object-space corners of a planar checkerboard with
// rows x cols internal corners, one unit apart on the Z=0 plane. Points run
// along each row first, matching the corner order of the chessboard finder.
func BoardPoints(rows, cols int) []Point3f {
	if rows <= 0 || cols <= 0 {
		return nil
	}
	pts := make([]Point3f, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			pts = append(pts, Point3f{X: float64(j), Y: float64(i), Z: 0})
		}
	}
	return pts
}
