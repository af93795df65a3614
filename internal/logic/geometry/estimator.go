package geometry

import (
	"fmt"
	"math"

	"github.com/cjeanneret/PanTrack/internal/debug"
)

// PixelError is the offset of the target from the frame center, in pixels.
// Positive X is right of center and positive Y is below center.
type PixelError struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EstimateError converts the first detection into a pixel error relative
// to the frame center. Each axis whose magnitude is below deadbandPx is
// snapped to exactly zero. It reports false when there is no usable
// detection.
//
// Coordinates outside [0, 1] are clamped, and a detection with a
// non-finite coordinate counts as no detection.
func EstimateError(detections []Detection, f Frame, deadbandPx float64) (PixelError, bool) {
	if len(detections) == 0 {
		return PixelError{}, false
	}
	d, ok := detections[0].Sanitize()
	if !ok {
		return PixelError{}, false
	}
	return pixelError(d, f, deadbandPx), true
}

func pixelError(d Detection, f Frame, deadbandPx float64) PixelError {
	tx, ty := d.PixelCenter(f)
	cx, cy := f.Center()
	return PixelError{
		X: applyDeadband(tx-cx, deadbandPx),
		Y: applyDeadband(ty-cy, deadbandPx),
	}
}

func applyDeadband(e, deadband float64) float64 {
	if math.Abs(e) < deadband {
		return 0
	}
	return e
}

// Estimator turns the detections of one tick into a pixel error, using a
// selection strategy to pick the target and a confidence floor to decide
// which detections qualify.
type Estimator struct {
	frame         Frame
	deadbandPx    float64
	minConfidence float64
	selector      Selector
}

// EstimatorConfig holds the estimator constants.
type EstimatorConfig struct {
	Frame         Frame
	DeadbandPx    float64
	MinConfidence float64
	Selector      Selector // nil selects the first qualifying detection
}

// NewEstimator validates cfg and returns an Estimator.
func NewEstimator(cfg EstimatorConfig) (*Estimator, error) {
	if err := cfg.Frame.Validate(); err != nil {
		return nil, err
	}
	if cfg.DeadbandPx < 0 || math.IsNaN(cfg.DeadbandPx) || math.IsInf(cfg.DeadbandPx, 0) {
		return nil, fmt.Errorf("deadband must be a finite value >= 0, got %v", cfg.DeadbandPx)
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 || math.IsNaN(cfg.MinConfidence) {
		return nil, fmt.Errorf("min confidence must be between 0 and 1, got %v", cfg.MinConfidence)
	}
	sel := cfg.Selector
	if sel == nil {
		sel = First{}
	}
	return &Estimator{
		frame:         cfg.Frame,
		deadbandPx:    cfg.DeadbandPx,
		minConfidence: cfg.MinConfidence,
		selector:      sel,
	}, nil
}

// Frame returns the frame geometry the estimator works in.
func (e *Estimator) Frame() Frame {
	return e.frame
}

// ResetSelection drops any target history the selector keeps, for when
// the camera has moved away from the last target.
func (e *Estimator) ResetSelection() {
	if r, ok := e.selector.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// Estimate returns the pixel error of the selected target, the detection
// it was computed from, and false when no detection qualifies.
func (e *Estimator) Estimate(detections []Detection) (PixelError, Detection, bool) {
	qualifying := make([]Detection, 0, len(detections))
	for _, d := range detections {
		s, ok := d.Sanitize()
		if !ok {
			debug.Verbose("Estimator: dropping non-finite detection %+v", d)
			continue
		}
		if s.Confidence < e.minConfidence {
			continue
		}
		qualifying = append(qualifying, s)
	}
	if len(qualifying) == 0 {
		return PixelError{}, Detection{}, false
	}

	target := e.selector.Select(qualifying)
	pe := pixelError(target, e.frame, e.deadbandPx)
	debug.Verbose("Estimator: %d/%d qualifying, target=%+v error=(%.1f, %.1f)",
		len(qualifying), len(detections), target, pe.X, pe.Y)
	return pe, target, true
}
