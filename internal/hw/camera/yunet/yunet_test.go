package yunet

import (
	"math"
	"testing"

	"github.com/cjeanneret/PanTrack/internal/logic/geometry"
)

func TestNormalizeBox(t *testing.T) {
	f := geometry.Frame{Width: 300, Height: 300}
	d := normalizeBox(120, 60, 60, 90, 0.87, f)

	want := geometry.Detection{XMin: 0.4, YMin: 0.2, XMax: 0.6, YMax: 0.5, Confidence: 0.87}
	const eps = 1e-12
	for _, c := range []struct {
		name      string
		got, want float64
	}{
		{"xmin", d.XMin, want.XMin},
		{"ymin", d.YMin, want.YMin},
		{"xmax", d.XMax, want.XMax},
		{"ymax", d.YMax, want.YMax},
		{"confidence", d.Confidence, want.Confidence},
	} {
		if diff := c.got - c.want; diff > eps || diff < -eps {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	// the box center lands where the estimator expects it
	if x, y := d.PixelCenter(f); math.Abs(x-150) > 1e-9 || math.Abs(y-105) > 1e-9 {
		t.Errorf("PixelCenter = (%v, %v), want (150, 105)", x, y)
	}
}
