// Package overlay draws the monitor's annotations onto display frames: the
// selection rectangle, candidate features, the chosen ground point, person
// boxes, the step instructions and a terminal of recent debug messages.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"safetycam/internal/detection"
	"safetycam/internal/geometry"
	"safetycam/internal/locator"
	"safetycam/internal/logging"
	"safetycam/internal/safety"
)

// Selection is the read side of a locator the renderer needs
type Selection interface {
	Mode() locator.Mode
	Region() image.Rectangle
	Features() []geometry.Point2f
	Chosen() (geometry.Point2f, bool)
}

// Renderer holds colours and layout for the overlay
type Renderer struct {
	regionColor  color.RGBA
	featureColor color.RGBA
	chosenColor  color.RGBA
	personColor  color.RGBA
	hudColor     color.RGBA
	shadowColor  color.RGBA

	limits safety.Limits

	// Terminal layout
	terminalLines   int
	terminalLineLen int
	lineHeight      int
}

// NewRenderer creates a renderer colouring ground readouts by limits
func NewRenderer(limits safety.Limits) *Renderer {
	return &Renderer{
		regionColor:     color.RGBA{255, 255, 0, 255}, // Yellow selection rectangle
		featureColor:    color.RGBA{0, 255, 0, 255},
		chosenColor:     color.RGBA{255, 0, 0, 255},
		personColor:     color.RGBA{0, 255, 0, 255},
		hudColor:        color.RGBA{255, 255, 255, 255},
		shadowColor:     color.RGBA{0, 0, 0, 255},
		limits:          limits,
		terminalLines:   12,
		terminalLineLen: 90,
		lineHeight:      14,
	}
}

// SetLimits updates the zone thresholds used for readout colours
func (r *Renderer) SetLimits(limits safety.Limits) {
	r.limits = limits
}

// ZoneColor is the readout colour for a zone
func ZoneColor(z safety.Zone) color.RGBA {
	switch z {
	case safety.ZoneClose:
		return color.RGBA{255, 0, 0, 255}
	case safety.ZoneMonitored:
		return color.RGBA{255, 165, 0, 255}
	case safety.ZoneOutOfRange:
		return color.RGBA{0, 200, 255, 255}
	default:
		return color.RGBA{160, 160, 160, 255}
	}
}

// DrawSelection draws the region while dragging or once finalized, the
// candidate features and the chosen feature
func (r *Renderer) DrawSelection(img *gocv.Mat, sel Selection) {
	mode := sel.Mode()
	if mode == locator.AwaitingRegion {
		return
	}

	region := sel.Region()
	if !region.Empty() {
		gocv.Rectangle(img, region, r.regionColor, 2)
	}
	if mode == locator.Dragging {
		return
	}

	for _, f := range sel.Features() {
		gocv.Circle(img, f.Image(), 3, r.featureColor, -1)
	}
	if chosen, ok := sel.Chosen(); ok {
		gocv.Circle(img, chosen.Image(), 6, r.chosenColor, 2)
	}
}

// DrawPersons outlines each detection with corner brackets and a label
func (r *Renderer) DrawPersons(img *gocv.Mat, persons []detection.Detection) {
	for _, p := range persons {
		gocv.Rectangle(img, p.Box, r.personColor, 2)
		r.drawCornerBrackets(img, p.Box, r.personColor, 3, 12)

		label := fmt.Sprintf("Person %.0f%%", p.Confidence*100)
		labelPos := image.Pt(p.Box.Min.X, p.Box.Min.Y-8)
		// Keep the label inside the frame
		if labelPos.Y < 15 {
			labelPos.Y = p.Box.Max.Y + 20
		}
		gocv.PutText(img, label, labelPos, gocv.FontHersheySimplex, 0.5, r.personColor, 1)
	}
}

func (r *Renderer) drawCornerBrackets(img *gocv.Mat, rect image.Rectangle, c color.RGBA, thickness, length int) {
	if rect.Dx() < 2*length || rect.Dy() < 2*length {
		return
	}
	lo, hi := rect.Min, rect.Max
	gocv.Line(img, lo, image.Pt(lo.X+length, lo.Y), c, thickness)
	gocv.Line(img, lo, image.Pt(lo.X, lo.Y+length), c, thickness)
	gocv.Line(img, image.Pt(hi.X, lo.Y), image.Pt(hi.X-length, lo.Y), c, thickness)
	gocv.Line(img, image.Pt(hi.X, lo.Y), image.Pt(hi.X, lo.Y+length), c, thickness)
	gocv.Line(img, image.Pt(lo.X, hi.Y), image.Pt(lo.X+length, hi.Y), c, thickness)
	gocv.Line(img, image.Pt(lo.X, hi.Y), image.Pt(lo.X, hi.Y-length), c, thickness)
	gocv.Line(img, hi, image.Pt(hi.X-length, hi.Y), c, thickness)
	gocv.Line(img, hi, image.Pt(hi.X, hi.Y-length), c, thickness)
}

// GroundReadout is the text shown for a projected point
func (r *Renderer) GroundReadout(g geometry.GroundPoint) string {
	return r.limits.Describe(g)
}

// DrawGround prints the latest ground position next to the chosen pixel,
// coloured by its safety zone
func (r *Renderer) DrawGround(img *gocv.Mat, at geometry.Point2f, g geometry.GroundPoint) {
	text := r.GroundReadout(g)
	c := ZoneColor(r.limits.Classify(g))

	pos := at.Image().Add(image.Pt(10, -10))
	if pos.Y < 20 {
		pos.Y = 20
	}
	// Flip to the left of the point near the right edge
	if w := img.Cols(); w > 0 && pos.X > w-260 {
		pos.X = at.Image().X - 260
		if pos.X < 0 {
			pos.X = 0
		}
	}
	r.putShadowed(img, text, pos, 0.55, c, 2)
}

// Instructions are the HUD lines for a selection mode
func Instructions(mode locator.Mode) []string {
	switch mode {
	case locator.AwaitingRegion:
		return []string{"Step 1: drag a rectangle around the feet", "[r] reset  [ESC] quit"}
	case locator.Dragging:
		return []string{"Step 1: release to finalize the region"}
	case locator.RegionFinalized:
		return []string{"Step 2: click a green feature point", "[r] reset  [ESC] quit"}
	default:
		return []string{"Click another feature or [r] to select a new region", "[ESC] quit"}
	}
}

// DrawHUD prints the step instructions, the projection formula and the
// current camera height along the bottom of the frame
func (r *Renderer) DrawHUD(img *gocv.Mat, mode locator.Mode, cameraHeight float64) {
	lines := Instructions(mode)
	lines = append(lines,
		fmt.Sprintf("Z = fy*h/(v-cy)  X = Z*(u-cx)/fx  h=%.2fm", cameraHeight),
		fmt.Sprintf("D_close=%.2fm D_max=%.2fm", r.limits.Close, r.limits.Max),
	)

	y := img.Rows() - 10 - (len(lines)-1)*20
	for _, line := range lines {
		r.putShadowed(img, line, image.Pt(10, y), 0.5, r.hudColor, 1)
		y += 20
	}
}

func (r *Renderer) putShadowed(img *gocv.Mat, text string, pos image.Point, scale float64, c color.RGBA, thickness int) {
	gocv.PutText(img, text, pos.Add(image.Pt(1, 1)), gocv.FontHersheySimplex, scale, r.shadowColor, thickness+1)
	gocv.PutText(img, text, pos, gocv.FontHersheySimplex, scale, c, thickness)
}

// TerminalLines picks the newest history entries that fit the terminal,
// truncating long ones
func (r *Renderer) TerminalLines(history []logging.Message) []string {
	start := 0
	if len(history) > r.terminalLines {
		start = len(history) - r.terminalLines
	}
	lines := make([]string, 0, len(history)-start)
	for _, m := range history[start:] {
		text := m.String()
		if len(text) > r.terminalLineLen {
			text = text[:r.terminalLineLen-3] + "..."
		}
		lines = append(lines, text)
	}
	return lines
}

// DrawTerminal draws recent debug messages in a dark box at the top left
func (r *Renderer) DrawTerminal(img *gocv.Mat, history []logging.Message) {
	lines := r.TerminalLines(history)

	width := 560
	if w := img.Cols() - 40; w < width {
		width = w
	}
	height := r.terminalLines*r.lineHeight + 10
	box := image.Rect(20, 20, 20+width, 20+height)
	gocv.Rectangle(img, box, color.RGBA{0, 0, 0, 180}, -1)

	y := box.Min.Y + 14
	if len(lines) == 0 {
		gocv.PutText(img, "No debug messages available...", image.Pt(box.Min.X+10, y),
			gocv.FontHersheySimplex, 0.4, color.RGBA{128, 128, 128, 255}, 1)
		return
	}
	for _, line := range lines {
		gocv.PutText(img, line, image.Pt(box.Min.X+10, y), gocv.FontHersheySimplex, 0.35, r.hudColor, 1)
		y += r.lineHeight
	}
}

// Frame is everything drawn on one display frame
type Frame struct {
	Selection Selection
	Persons   []detection.Detection
	// Ground is valid when HasGround is set
	Ground       geometry.GroundPoint
	HasGround    bool
	CameraHeight float64
	// History is nil when the terminal is hidden
	History []logging.Message
}

// Draw renders every layer of f onto img
func (r *Renderer) Draw(img *gocv.Mat, f Frame) {
	r.DrawPersons(img, f.Persons)
	mode := locator.AwaitingRegion
	if f.Selection != nil {
		mode = f.Selection.Mode()
		r.DrawSelection(img, f.Selection)
		if chosen, ok := f.Selection.Chosen(); ok && f.HasGround {
			r.DrawGround(img, chosen, f.Ground)
		}
	}
	if f.History != nil {
		r.DrawTerminal(img, f.History)
	}
	r.DrawHUD(img, mode, f.CameraHeight)
}
