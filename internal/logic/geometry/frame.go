package geometry

import (
	"fmt"
	"math"
)

// Frame is the pixel size of the images the detector runs on.
type Frame struct {
	Width  int
	Height int
}

// Validate checks that both dimensions are positive.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("frame size must be positive, got %dx%d", f.Width, f.Height)
	}
	return nil
}

// Center returns the pixel coordinates of the frame center.
func (f Frame) Center() (x, y float64) {
	return float64(f.Width) / 2, float64(f.Height) / 2
}

// Detection is one bounding box reported by the detector, in coordinates
// normalized to [0, 1] of the frame.
type Detection struct {
	XMin       float64 `yaml:"xmin" json:"xmin"`
	YMin       float64 `yaml:"ymin" json:"ymin"`
	XMax       float64 `yaml:"xmax" json:"xmax"`
	YMax       float64 `yaml:"ymax" json:"ymax"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
}

// Center returns the normalized box center.
func (d Detection) Center() (x, y float64) {
	return (d.XMin + d.XMax) / 2, (d.YMin + d.YMax) / 2
}

// Area returns the normalized box area. Inverted boxes have zero area.
func (d Detection) Area() float64 {
	return math.Max(0, d.XMax-d.XMin) * math.Max(0, d.YMax-d.YMin)
}

// PixelCenter returns the box center in pixels of f.
func (d Detection) PixelCenter(f Frame) (x, y float64) {
	cx, cy := d.Center()
	return cx * float64(f.Width), cy * float64(f.Height)
}

// Sanitize clamps every coordinate into [0, 1]. It reports false when a
// coordinate is NaN or infinite; such a detection must not be used.
func (d Detection) Sanitize() (Detection, bool) {
	for _, v := range []float64{d.XMin, d.YMin, d.XMax, d.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Detection{}, false
		}
	}
	d.XMin = clamp01(d.XMin)
	d.YMin = clamp01(d.YMin)
	d.XMax = clamp01(d.XMax)
	d.YMax = clamp01(d.YMax)
	if math.IsNaN(d.Confidence) {
		d.Confidence = 0
	}
	d.Confidence = clamp01(d.Confidence)
	return d, true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
