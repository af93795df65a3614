//go:build !gocv
// +build !gocv

package yunet

import (
	"fmt"

	"github.com/cjeanneret/PanTrack/internal/hw/camera"
)

// Open is a stub used when OpenCV support is disabled.
// Build with -tags=gocv to enable the webcam face detector.
func Open(cfg Config) (camera.Source, error) {
	return nil, fmt.Errorf("yunet source not enabled: rebuild with -tags=gocv (device %d)", cfg.DeviceID)
}
