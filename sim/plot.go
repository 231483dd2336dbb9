package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// NewTrajectoryPlot creates a ground plane plot of the simulation from three
// data sources:
// truth:     ground truth trajectory (x, y rows)
// filtered:  filter trajectory estimate (x, y rows)
// landmarks: landmark position estimates (x, y rows)
// It returns error if either of the supplied data matrices is nil, has fewer
// than 2 columns, or the gonum plotters fail to be created.
func NewTrajectoryPlot(truth, filtered, landmarks *mat.Dense) (*plot.Plot, error) {
	if truth == nil || filtered == nil || landmarks == nil {
		return nil, fmt.Errorf("invalid data supplied")
	}

	for _, m := range []*mat.Dense{truth, filtered, landmarks} {
		if _, c := m.Dims(); c < 2 {
			return nil, fmt.Errorf("invalid data dimensions")
		}
	}

	p := plot.New()

	p.Title.Text = "EKF-SLAM"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	truthLine, err := plotter.NewLine(makePoints(truth))
	if err != nil {
		return nil, err
	}
	truthLine.Color = color.RGBA{R: 255, B: 128, A: 255}

	p.Add(truthLine)
	p.Legend.Add("truth", truthLine)

	filterLine, err := plotter.NewLine(makePoints(filtered))
	if err != nil {
		return nil, err
	}
	filterLine.Color = color.RGBA{R: 169, G: 169, B: 169}
	filterLine.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}

	p.Add(filterLine)
	p.Legend.Add("filtered", filterLine)

	lmScatter, err := plotter.NewScatter(makePoints(landmarks))
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %v", err)
	}
	lmScatter.GlyphStyle.Color = color.RGBA{G: 255, A: 128}
	lmScatter.Shape = draw.PyramidGlyph{}
	lmScatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(lmScatter)
	p.Legend.Add("landmarks", lmScatter)

	return p, nil
}

func makePoints(m *mat.Dense) plotter.XYs {
	r, _ := m.Dims()
	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = m.At(i, 0)
		pts[i].Y = m.At(i, 1)
	}

	return pts
}
