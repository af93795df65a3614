// Package yunet is a detection source running OpenCV's YuNet face detector
// on a V4L2 webcam. It needs OpenCV and is only built with -tags=gocv.
package yunet

import "github.com/cjeanneret/PanTrack/internal/logic/geometry"

// Config configures the webcam face detector.
type Config struct {
	DeviceID         int
	ModelPath        string  // YuNet ONNX model
	ConfidenceThresh float64 // detector score threshold
	Frame            geometry.Frame
}

// normalizeBox converts a YuNet pixel box (top-left corner and size) into
// a detection normalized to f.
func normalizeBox(x, y, w, h, score float64, f geometry.Frame) geometry.Detection {
	fw, fh := float64(f.Width), float64(f.Height)
	return geometry.Detection{
		XMin:       x / fw,
		YMin:       y / fh,
		XMax:       (x + w) / fw,
		YMax:       (y + h) / fh,
		Confidence: score,
	}
}
