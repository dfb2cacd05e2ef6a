package overlay

import (
	"fmt"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"safetycam/internal/detection"
	"safetycam/internal/geometry"
	"safetycam/internal/locator"
	"safetycam/internal/logging"
	"safetycam/internal/safety"
)

type fakeSelection struct {
	mode     locator.Mode
	region   image.Rectangle
	features []geometry.Point2f
	chosen   *geometry.Point2f
}

func (f fakeSelection) Mode() locator.Mode           { return f.mode }
func (f fakeSelection) Region() image.Rectangle      { return f.region }
func (f fakeSelection) Features() []geometry.Point2f { return f.features }
func (f fakeSelection) Chosen() (geometry.Point2f, bool) {
	if f.chosen == nil {
		return geometry.Point2f{}, false
	}
	return *f.chosen, true
}

func blankFrame(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 240, 320, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { img.Close() })
	return img
}

// bgr reads one pixel in OpenCV channel order
func bgr(img gocv.Mat, x, y int) [3]uint8 {
	v := img.GetVecbAt(y, x)
	return [3]uint8{v[0], v[1], v[2]}
}

var (
	yellow = [3]uint8{0, 255, 255}
	green  = [3]uint8{0, 255, 0}
	red    = [3]uint8{0, 0, 255}
	black  = [3]uint8{0, 0, 0}
)

func TestDrawSelectionByMode(t *testing.T) {
	r := NewRenderer(safety.Limits{Close: 1.5, Max: 6})
	region := image.Rect(40, 50, 140, 150)
	feature := geometry.Pt2(90, 100)

	t.Run("awaiting draws nothing", func(t *testing.T) {
		img := blankFrame(t)
		r.DrawSelection(&img, fakeSelection{mode: locator.AwaitingRegion, region: region})
		assert.Equal(t, 0, gocv.CountNonZero(toGray(t, img)))
	})

	t.Run("dragging draws only the rectangle", func(t *testing.T) {
		img := blankFrame(t)
		r.DrawSelection(&img, fakeSelection{
			mode:     locator.Dragging,
			region:   region,
			features: []geometry.Point2f{feature},
		})
		assert.Equal(t, yellow, bgr(img, 90, 50))
		assert.Equal(t, black, bgr(img, 90, 100))
	})

	t.Run("finalized draws features", func(t *testing.T) {
		img := blankFrame(t)
		r.DrawSelection(&img, fakeSelection{
			mode:     locator.RegionFinalized,
			region:   region,
			features: []geometry.Point2f{feature},
		})
		assert.Equal(t, yellow, bgr(img, 40, 100))
		assert.Equal(t, green, bgr(img, 90, 100))
		assert.Equal(t, black, bgr(img, 96, 100))
	})

	t.Run("chosen gets a ring", func(t *testing.T) {
		img := blankFrame(t)
		r.DrawSelection(&img, fakeSelection{
			mode:     locator.FeatureChosen,
			region:   region,
			features: []geometry.Point2f{feature},
			chosen:   &feature,
		})
		assert.Equal(t, green, bgr(img, 90, 100))
		assert.Equal(t, red, bgr(img, 96, 100))
	})
}

func toGray(t *testing.T, img gocv.Mat) gocv.Mat {
	t.Helper()
	gray := gocv.NewMat()
	t.Cleanup(func() { gray.Close() })
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	return gray
}

func TestDrawPersons(t *testing.T) {
	r := NewRenderer(safety.Limits{Close: 1.5, Max: 6})
	img := blankFrame(t)

	r.DrawPersons(&img, []detection.Detection{{Box: image.Rect(100, 60, 180, 200), Confidence: 0.87}})
	assert.Equal(t, green, bgr(img, 140, 60))
	assert.Equal(t, green, bgr(img, 100, 130))
	assert.Equal(t, black, bgr(img, 140, 130))

	// no detections leaves the frame untouched
	empty := blankFrame(t)
	r.DrawPersons(&empty, nil)
	assert.Equal(t, 0, gocv.CountNonZero(toGray(t, empty)))
}

func TestZoneColors(t *testing.T) {
	zones := []safety.Zone{safety.ZoneUnknown, safety.ZoneClose, safety.ZoneMonitored, safety.ZoneOutOfRange}
	seen := map[string]bool{}
	for _, z := range zones {
		seen[fmt.Sprint(ZoneColor(z))] = true
	}
	assert.Len(t, seen, len(zones), "each zone has its own colour")
	assert.Equal(t, uint8(255), ZoneColor(safety.ZoneClose).R)
}

func TestGroundReadout(t *testing.T) {
	r := NewRenderer(safety.Limits{Close: 1.5, Max: 6})
	assert.Equal(t, "MONITORED Z=2.40m X=0.36m", r.GroundReadout(geometry.GroundPoint{X: 0.36, Z: 2.4}))

	r.SetLimits(safety.Limits{Close: 3, Max: 6})
	assert.True(t, strings.HasPrefix(r.GroundReadout(geometry.GroundPoint{Z: 2.4}), "CLOSE"))

	img := blankFrame(t)
	r.DrawGround(&img, geometry.Pt2(300, 5), geometry.GroundPoint{Z: 2.4})
	assert.NotZero(t, gocv.CountNonZero(toGray(t, img)))
}

func TestInstructions(t *testing.T) {
	assert.Contains(t, Instructions(locator.AwaitingRegion)[0], "Step 1")
	assert.Contains(t, Instructions(locator.Dragging)[0], "Step 1")
	assert.Contains(t, Instructions(locator.RegionFinalized)[0], "Step 2")
	assert.Contains(t, Instructions(locator.FeatureChosen)[0], "[r]")
}

func TestTerminalLines(t *testing.T) {
	r := NewRenderer(safety.Limits{Close: 1.5, Max: 6})

	var history []logging.Message
	for i := 0; i < 20; i++ {
		history = append(history, logging.Message{Component: "LOCATOR", Message: fmt.Sprintf("event %d", i)})
	}
	history = append(history, logging.Message{Component: "DETECT", Message: strings.Repeat("y", 200)})

	lines := r.TerminalLines(history)
	require.Len(t, lines, r.terminalLines)
	assert.Equal(t, "[LOCATOR] event 9", lines[0])
	last := lines[len(lines)-1]
	assert.Len(t, last, r.terminalLineLen)
	assert.True(t, strings.HasSuffix(last, "..."))

	assert.Empty(t, r.TerminalLines(nil))
}

func TestDrawComposesLayers(t *testing.T) {
	r := NewRenderer(safety.Limits{Close: 1.5, Max: 6})
	feature := geometry.Pt2(90, 100)
	img := blankFrame(t)

	r.Draw(&img, Frame{
		Selection: fakeSelection{
			mode:     locator.FeatureChosen,
			region:   image.Rect(40, 50, 140, 150),
			features: []geometry.Point2f{feature},
			chosen:   &feature,
		},
		Ground:       geometry.GroundPoint{Z: 2.4, X: 0.36},
		HasGround:    true,
		CameraHeight: 0.77,
	})
	assert.Equal(t, yellow, bgr(img, 90, 149))
	assert.Equal(t, green, bgr(img, 90, 100))

	// a nil selection still draws the HUD
	hud := blankFrame(t)
	r.Draw(&hud, Frame{CameraHeight: 0.77, History: []logging.Message{}})
	assert.NotZero(t, gocv.CountNonZero(toGray(t, hud)))
}
