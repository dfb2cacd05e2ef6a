// Package locator implements the operator's two-step point picking: drag a
// box around a person, then click one of the corner features found inside
// it. The chosen pixel is back-projected onto the ground plane.
//
// A Locator is not safe for concurrent use. Events are expected to arrive one
// at a time from the UI loop that owns it.
package locator

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"safetycam/internal/camera"
	"safetycam/internal/geometry"
)

// Mode is the selection state
type Mode int

const (
	AwaitingRegion Mode = iota
	Dragging
	RegionFinalized
	FeatureChosen
)

func (m Mode) String() string {
	switch m {
	case AwaitingRegion:
		return "awaiting-region"
	case Dragging:
		return "dragging"
	case RegionFinalized:
		return "region-finalized"
	case FeatureChosen:
		return "feature-chosen"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// singularEpsilon bounds |v - cy| below which the ground intersection is undefined
const singularEpsilon = 1e-6

// Params are the locator tunables
type Params struct {
	MaxCorners   int
	QualityLevel float64
	MinDistance  float64
	PickRadius   float64 // pixels
	MinRegion    int     // pixels, per side
	CameraHeight float64 // metres above the ground
}

// DefaultParams returns the stock tunables
func DefaultParams() Params {
	return Params{
		MaxCorners:   200,
		QualityLevel: 0.01,
		MinDistance:  8,
		PickRadius:   12,
		MinRegion:    4,
		CameraHeight: 0.77,
	}
}

// Locator is the region/feature selection state machine
type Locator struct {
	k        camera.Intrinsics
	params   Params
	detector FeatureDetector

	frame gocv.Mat
	gray  gocv.Mat

	mode     Mode
	anchor   image.Point
	region   image.Rectangle
	features []geometry.Point2f

	chosen    geometry.Point2f
	hasChosen bool
	ground    geometry.GroundPoint
	hasGround bool
}

// New creates a locator for a calibrated camera. detector may be nil, in
// which case a Shi-Tomasi detector built from params is used.
func New(k camera.Intrinsics, params Params, detector FeatureDetector) (*Locator, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if params.CameraHeight <= 0 {
		return nil, fmt.Errorf("camera height must be positive, got %g", params.CameraHeight)
	}
	if params.MinRegion < 1 {
		params.MinRegion = 1
	}
	if detector == nil {
		detector = NewShiTomasi(params)
	}
	return &Locator{
		k:        k,
		params:   params,
		detector: detector,
		frame:    gocv.NewMat(),
		gray:     gocv.NewMat(),
		mode:     AwaitingRegion,
	}, nil
}

// Close releases the frame buffers
func (l *Locator) Close() error {
	l.frame.Close()
	l.gray.Close()
	return nil
}

// SetFrame replaces the current frame and its grayscale cache. The selection
// state is left untouched.
func (l *Locator) SetFrame(img gocv.Mat) error {
	if img.Empty() {
		return ErrNoFrame
	}
	img.CopyTo(&l.frame)
	switch img.Channels() {
	case 1:
		img.CopyTo(&l.gray)
	case 4:
		gocv.CvtColor(img, &l.gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(img, &l.gray, gocv.ColorBGRToGray)
	}
	return nil
}

// Frame returns the current frame; the locator keeps ownership
func (l *Locator) Frame() gocv.Mat {
	return l.frame
}

// CopyFrame copies the current frame into dst, which the caller owns
func (l *Locator) CopyFrame(dst *gocv.Mat) {
	l.frame.CopyTo(dst)
}

func (l *Locator) bounds() image.Rectangle {
	return image.Rect(0, 0, l.gray.Cols(), l.gray.Rows())
}

// Press anchors a new region
func (l *Locator) Press(p image.Point) error {
	if l.mode != AwaitingRegion {
		return l.reject(ErrUnexpectedEvent, "press")
	}
	if l.gray.Empty() {
		return l.reject(ErrNoFrame, "press")
	}
	l.anchor = p
	l.region = geometry.Span(p, p, l.bounds())
	l.mode = Dragging
	return nil
}

// Drag updates the candidate region
func (l *Locator) Drag(p image.Point) error {
	if l.mode != Dragging {
		return l.reject(ErrUnexpectedEvent, "drag")
	}
	l.region = geometry.Span(l.anchor, p, l.bounds())
	return nil
}

// Release finalizes the region and detects features inside it. A region
// smaller than MinRegion on either side is discarded.
func (l *Locator) Release(p image.Point) error {
	if l.mode != Dragging {
		return l.reject(ErrUnexpectedEvent, "release")
	}
	region := geometry.Span(l.anchor, p, l.bounds())
	if region.Dx() < l.params.MinRegion || region.Dy() < l.params.MinRegion {
		l.clearSelection()
		debugMsg("LOCATOR", fmt.Sprintf("region %v too small, need %dpx per side", region, l.params.MinRegion))
		return ErrRegionTooSmall
	}

	roi := l.gray.Region(region)
	local, err := l.detector.Detect(roi)
	roi.Close()
	if err != nil {
		l.clearSelection()
		return fmt.Errorf("feature detection failed: %w", err)
	}
	if max := l.params.MaxCorners; max > 0 && len(local) > max {
		local = local[:max]
	}

	l.region = region
	l.features = geometry.Offset(local, region.Min)
	l.hasChosen = false
	l.hasGround = false
	l.mode = RegionFinalized
	debugMsg("LOCATOR", fmt.Sprintf("region %v finalized with %d features", region, len(l.features)))
	return nil
}

// Click selects the feature nearest to p when it lies within PickRadius and
// projects it to the ground.
func (l *Locator) Click(p image.Point) (geometry.GroundPoint, error) {
	if l.mode != RegionFinalized && l.mode != FeatureChosen {
		return geometry.GroundPoint{}, l.reject(ErrUnexpectedEvent, "click")
	}
	if len(l.features) == 0 {
		return geometry.GroundPoint{}, l.reject(ErrNoFeatures, "click")
	}

	idx, d2 := geometry.Nearest(l.features, geometry.Pt2(float64(p.X), float64(p.Y)))
	if r := l.params.PickRadius; d2 > r*r {
		debugMsg("LOCATOR", fmt.Sprintf("click at %v is %.1fpx from the nearest feature, limit %.0fpx", p, math.Sqrt(d2), r))
		return geometry.GroundPoint{}, ErrClickTooFar
	}

	l.chosen = l.features[idx]
	l.hasChosen = true
	l.mode = FeatureChosen

	g, err := l.PixelToGround(l.chosen.X, l.chosen.Y)
	if err != nil {
		l.hasGround = false
		return geometry.GroundPoint{}, err
	}
	l.ground = g
	l.hasGround = true
	debugMsg("LOCATOR", fmt.Sprintf("feature %s -> ground %s", l.chosen, g))
	return g, nil
}

// Reset returns to AwaitingRegion from any mode
func (l *Locator) Reset() {
	l.clearSelection()
	debugMsg("LOCATOR", "selection reset")
}

func (l *Locator) clearSelection() {
	l.mode = AwaitingRegion
	l.anchor = image.Point{}
	l.region = image.Rectangle{}
	l.features = nil
	l.chosen = geometry.Point2f{}
	l.hasChosen = false
	l.ground = geometry.GroundPoint{}
	l.hasGround = false
}

func (l *Locator) reject(err error, event string) error {
	debugMsg("LOCATOR", fmt.Sprintf("%s ignored in %s: %v", event, l.mode, err))
	return err
}

// PixelToGround intersects the ray through pixel (u, v) with the ground
// plane, assuming zero tilt and flat ground:
//
//	Z = fy*h / (v - cy)
//	X = Z * (u - cx) / fx
//	Y = 0
func (l *Locator) PixelToGround(u, v float64) (geometry.GroundPoint, error) {
	return Backproject(l.k, l.params.CameraHeight, u, v)
}

// Backproject is PixelToGround for an arbitrary K and mount height
func Backproject(k camera.Intrinsics, height, u, v float64) (geometry.GroundPoint, error) {
	if err := k.Validate(); err != nil {
		return geometry.GroundPoint{}, err
	}
	denom := v - k.Cy()
	if math.Abs(denom) < singularEpsilon {
		return geometry.GroundPoint{}, fmt.Errorf("%w: v=%.3f is on the horizon row cy=%.3f", ErrSingularProjection, v, k.Cy())
	}
	z := k.Fy() * height / denom
	x := z * (u - k.Cx()) / k.Fx()
	return geometry.GroundPoint{X: x, Y: 0, Z: z}, nil
}

// SetCameraHeight changes the mount height used by later projections
func (l *Locator) SetCameraHeight(h float64) error {
	if h <= 0 || math.IsNaN(h) || math.IsInf(h, 0) {
		return fmt.Errorf("camera height must be positive, got %g", h)
	}
	l.params.CameraHeight = h
	if l.hasChosen {
		if g, err := l.PixelToGround(l.chosen.X, l.chosen.Y); err == nil {
			l.ground = g
			l.hasGround = true
		}
	}
	return nil
}

func (l *Locator) Mode() Mode              { return l.mode }
func (l *Locator) Region() image.Rectangle { return l.region }
func (l *Locator) CameraHeight() float64   { return l.params.CameraHeight }
func (l *Locator) K() camera.Intrinsics    { return l.k }
func (l *Locator) Params() Params          { return l.params }

// Features returns a copy of the current feature set
func (l *Locator) Features() []geometry.Point2f {
	out := make([]geometry.Point2f, len(l.features))
	copy(out, l.features)
	return out
}

// Chosen returns the selected feature, if any
func (l *Locator) Chosen() (geometry.Point2f, bool) {
	return l.chosen, l.hasChosen
}

// LastGround returns the projection of the chosen feature, if any
func (l *Locator) LastGround() (geometry.GroundPoint, bool) {
	return l.ground, l.hasGround
}
