package detection

import (
	"image"

	"gocv.io/x/gocv"
)

// decodeRow turns one YOLO output row [cx, cy, w, h, objectness, scores...]
// into a person candidate. Coordinates are normalised to the frame. Boxes
// that leave the frame or have no area are dropped.
func decodeRow(row []float32, frame image.Point, personID int, th Thresholds) (Detection, bool) {
	if len(row) <= 5 {
		return Detection{}, false
	}
	if float64(row[4]) <= th.Objectness {
		return Detection{}, false
	}

	scores := row[5:]
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	if best != personID || float64(scores[best]) <= th.ClassScore {
		return Detection{}, false
	}

	centerX := int(row[0] * float32(frame.X))
	centerY := int(row[1] * float32(frame.Y))
	width := int(row[2] * float32(frame.X))
	height := int(row[3] * float32(frame.Y))
	left := centerX - width/2
	top := centerY - height/2

	box := image.Rect(left, top, left+width, top+height)
	if width <= 0 || height <= 0 || !box.In(image.Rect(0, 0, frame.X, frame.Y)) {
		return Detection{}, false
	}
	return Detection{Box: box, Confidence: float64(scores[best]), ClassID: best}, true
}

// Suppress runs non-max suppression over candidates of a single class
func Suppress(candidates []Detection, th Thresholds) []Detection {
	if len(candidates) == 0 {
		return nil
	}
	boxes := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		boxes[i] = c.Box
		scores[i] = float32(c.Confidence)
	}

	indices := gocv.NMSBoxes(boxes, scores, float32(th.NMSScore), float32(th.NMSIoU))
	out := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(candidates) {
			out = append(out, candidates[idx])
		}
	}
	return out
}
