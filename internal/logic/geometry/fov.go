package geometry

import (
	"fmt"
	"math"
)

// FieldOfView is the angular coverage of the detection frame, in degrees.
type FieldOfView struct {
	HorizontalDeg float64
	VerticalDeg   float64
}

// LensFOV computes the field of view of a rectilinear lens on a sensor.
// Formula: FOV = 2 × arctan(sensor_size / (2 × focal_length))
func LensFOV(focalLengthMm, sensorWidthMm, sensorHeightMm float64) (FieldOfView, error) {
	if !(focalLengthMm > 0) || !(sensorWidthMm > 0) || !(sensorHeightMm > 0) {
		return FieldOfView{}, fmt.Errorf("focal length and sensor size must be > 0, got f=%v sensor=%vx%v",
			focalLengthMm, sensorWidthMm, sensorHeightMm)
	}
	return FieldOfView{
		HorizontalDeg: 2.0 * math.Atan(sensorWidthMm/(2.0*focalLengthMm)) * 180.0 / math.Pi,
		VerticalDeg:   2.0 * math.Atan(sensorHeightMm/(2.0*focalLengthMm)) * 180.0 / math.Pi,
	}, nil
}

// DegreesPerPixel returns the angle subtended by one pixel next to the
// frame center on each axis. It is the gain that points the head straight
// at a detection in one tick.
func (v FieldOfView) DegreesPerPixel(f Frame) (x, y float64) {
	return perPixel(v.HorizontalDeg, f.Width), perPixel(v.VerticalDeg, f.Height)
}

func perPixel(fovDeg float64, px int) float64 {
	// focal length in pixels for this axis
	focalPx := float64(px) / 2 / math.Tan(fovDeg/2*math.Pi/180)
	return math.Atan(1/focalPx) * 180 / math.Pi
}
