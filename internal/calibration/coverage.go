package calibration

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// CoveragePlot builds a scatter of every detected corner in image
// coordinates. Raw detections are grey, the subset given to the solver is
// drawn on top in red. The Y axis is flipped to match image rows.
func CoveragePlot(res *Result) (*plot.Plot, error) {
	if res == nil || res.Raw.Len() == 0 {
		return nil, fmt.Errorf("%w: nothing to plot", ErrCalibration)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Checkerboard coverage (%d raw, %d solved, %dx%d)",
		res.Raw.Len(), res.Sampled.Len(), res.ImageSize.X, res.ImageSize.Y)
	p.X.Label.Text = "u (px)"
	p.Y.Label.Text = "v (px)"
	p.X.Min, p.X.Max = 0, float64(res.ImageSize.X)
	p.Y.Min, p.Y.Max = -float64(res.ImageSize.Y), 0

	raw, err := plotter.NewScatter(toXYs(res.Raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build raw scatter: %w", err)
	}
	raw.GlyphStyle.Color = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	raw.GlyphStyle.Radius = vg.Points(1)
	raw.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(raw)
	p.Legend.Add("raw", raw)

	if res.Sampled.Len() > 0 {
		sampled, err := plotter.NewScatter(toXYs(res.Sampled))
		if err != nil {
			return nil, fmt.Errorf("failed to build solver scatter: %w", err)
		}
		sampled.GlyphStyle.Color = color.RGBA{R: 220, A: 255}
		sampled.GlyphStyle.Radius = vg.Points(1.5)
		sampled.GlyphStyle.Shape = draw.CrossGlyph{}
		p.Add(sampled)
		p.Legend.Add("solver", sampled)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SaveCoveragePlot writes the coverage scatter as an image; the format
// follows the file extension.
func SaveCoveragePlot(res *Result, path string) error {
	p, err := CoveragePlot(res)
	if err != nil {
		return err
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save coverage plot: %w", err)
	}
	debugMsg("CALIB", fmt.Sprintf("coverage plot saved to %s", path))
	return nil
}

func toXYs(s Set) plotter.XYs {
	pts := s.ImagePoints()
	xys := make(plotter.XYs, len(pts))
	for i, p := range pts {
		xys[i] = plotter.XY{X: p.X, Y: -p.Y}
	}
	return xys
}
