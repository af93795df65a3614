//go:build gocv
// +build gocv

package yunet

import (
	"context"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/hw/camera"
	"github.com/cjeanneret/PanTrack/internal/logic/geometry"
)

// Source reads frames from a V4L2 webcam, resizes them to the configured
// geometry and runs OpenCV's FaceDetectorYN on them.
type Source struct {
	capture  *gocv.VideoCapture
	detector gocv.FaceDetectorYN
	geom     geometry.Frame
	img      gocv.Mat
	resized  gocv.Mat
	index    int
}

var _ camera.Source = (*Source)(nil)

// Open returns the webcam source as a camera.Source.
func Open(cfg Config) (camera.Source, error) {
	return New(cfg)
}

// New opens the webcam and loads the face detection model.
func New(cfg Config) (*Source, error) {
	if err := cfg.Frame.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	capture, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("open video device %d: %w", cfg.DeviceID, err)
	}
	capture.Set(gocv.VideoCaptureBufferSize, 1)

	size := image.Pt(cfg.Frame.Width, cfg.Frame.Height)
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		size,
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	debug.Info("YuNet source: device %d, %dx%d", cfg.DeviceID, cfg.Frame.Width, cfg.Frame.Height)

	return &Source{
		capture:  capture,
		detector: detector,
		geom:     cfg.Frame,
		img:      gocv.NewMat(),
		resized:  gocv.NewMat(),
	}, nil
}

// Next blocks on the next webcam frame. Context cancellation is checked
// between frames; a frame read in progress is not interrupted.
func (y *Source) Next(ctx context.Context) (camera.Frame, error) {
	if err := ctx.Err(); err != nil {
		return camera.Frame{}, err
	}
	if ok := y.capture.Read(&y.img); !ok || y.img.Empty() {
		return camera.Frame{}, fmt.Errorf("read frame %d: device closed or empty frame", y.index)
	}

	size := image.Pt(y.geom.Width, y.geom.Height)
	gocv.Resize(y.img, &y.resized, size, 0, 0, gocv.InterpolationLinear)

	faces := gocv.NewMat()
	defer faces.Close()
	y.detector.Detect(y.resized, &faces)

	dets := make([]geometry.Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		// columns 0-3: x, y, w, h in pixels; 4-13: landmarks; 14: score
		dets = append(dets, normalizeBox(
			float64(faces.GetFloatAt(r, 0)),
			float64(faces.GetFloatAt(r, 1)),
			float64(faces.GetFloatAt(r, 2)),
			float64(faces.GetFloatAt(r, 3)),
			float64(faces.GetFloatAt(r, 14)),
			y.geom,
		))
	}

	f := camera.Frame{Index: y.index, Detections: dets}
	y.index++
	return f, nil
}

func (y *Source) Geometry() geometry.Frame {
	return y.geom
}

func (y *Source) Close() error {
	y.detector.Close()
	y.img.Close()
	y.resized.Close()
	return y.capture.Close()
}
