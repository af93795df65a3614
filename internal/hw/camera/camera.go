package camera

import (
	"context"
	"errors"

	"github.com/cjeanneret/PanTrack/internal/logic/geometry"
)

// ErrEndOfStream is returned by Next when a finite source has no more frames.
var ErrEndOfStream = errors.New("camera: end of stream")

// Frame is the detector output for one video frame.
type Frame struct {
	Index      int
	Detections []geometry.Detection
}

// Source is the high-level interface used by the control loop.
// It represents an abstract "camera with a face detector", regardless of
// how frames are obtained (USB webcam, replay file, ...).
type Source interface {
	// Next blocks until the next frame is available and returns its
	// detections, possibly none.
	Next(ctx context.Context) (Frame, error)

	// Geometry returns the pixel size detections are normalized against.
	Geometry() geometry.Frame

	Close() error
}
