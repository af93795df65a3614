// Package tracking implements the pan/tilt control law: a proportional
// controller on pixel error, a frame-counted grace period on target loss,
// exponential smoothing of the commanded angle and clamping to the
// mechanical limits of each axis.
package tracking

import (
	"fmt"
	"math"

	"github.com/cjeanneret/PanTrack/internal/logic/geometry"
)

// Default control constants. A zero SmoothingFactor is replaced by its
// default; LossThresholdFrames is used as given, since 0 is a valid grace
// period.
const (
	DefaultLossThresholdFrames = 60
	DefaultSmoothingFactor     = 0.15
)

// Mount sign conventions. Mirrored means a target right of (or below) the
// frame center lowers the angle.
const (
	Mirrored = -1.0
	Direct   = 1.0
)

// AxisConfig holds the calibration constants of one axis, in degrees.
type AxisConfig struct {
	MinAngle    float64
	MaxAngle    float64
	CenterAngle float64
	Gain        float64 // degrees per pixel of error
	Direction   float64 // Mirrored or Direct; zero means Mirrored
}

func (a AxisConfig) validate(name string) error {
	for _, v := range []float64{a.MinAngle, a.MaxAngle, a.CenterAngle, a.Gain} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s axis: values must be finite", name)
		}
	}
	if a.MinAngle > a.MaxAngle {
		return fmt.Errorf("%s axis: min angle %.2f > max angle %.2f", name, a.MinAngle, a.MaxAngle)
	}
	if a.CenterAngle < a.MinAngle || a.CenterAngle > a.MaxAngle {
		return fmt.Errorf("%s axis: center angle %.2f outside [%.2f, %.2f]", name, a.CenterAngle, a.MinAngle, a.MaxAngle)
	}
	if a.Direction != Mirrored && a.Direction != Direct {
		return fmt.Errorf("%s axis: direction must be -1 or 1, got %v", name, a.Direction)
	}
	return nil
}

// Config holds every constant of the control law. It is fixed for the
// lifetime of a Controller.
type Config struct {
	Pan  AxisConfig
	Tilt AxisConfig

	// Consecutive ticks without a target tolerated before recentering.
	// 0 recenters on the first tick without one.
	LossThresholdFrames int
	// Weight in (0, 1] of the gap between target and current angle
	// applied each tick. 1 disables smoothing.
	SmoothingFactor float64
}

func (c *Config) applyDefaults() {
	if c.SmoothingFactor == 0 {
		c.SmoothingFactor = DefaultSmoothingFactor
	}
	if c.Pan.Direction == 0 {
		c.Pan.Direction = Mirrored
	}
	if c.Tilt.Direction == 0 {
		c.Tilt.Direction = Mirrored
	}
}

// Validate applies defaults and reports the first invalid constant.
func (c *Config) Validate() error {
	c.applyDefaults()
	if err := c.Pan.validate("pan"); err != nil {
		return err
	}
	if err := c.Tilt.validate("tilt"); err != nil {
		return err
	}
	if c.LossThresholdFrames < 0 {
		return fmt.Errorf("loss threshold must be >= 0 frames, got %d", c.LossThresholdFrames)
	}
	if !(c.SmoothingFactor > 0 && c.SmoothingFactor <= 1) {
		return fmt.Errorf("smoothing factor must be in (0, 1], got %v", c.SmoothingFactor)
	}
	return nil
}

// AxisState is the filter state of one axis.
type AxisState struct {
	Current float64 `json:"current"` // last commanded angle
	Target  float64 `json:"target"`  // feedback law output the filter converges to
}

// State is a snapshot of the controller.
type State struct {
	Pan             AxisState `json:"pan"`
	Tilt            AxisState `json:"tilt"`
	FramesSinceLost int       `json:"frames_since_lost"`
	Phase           Phase     `json:"phase"`
}

// Command is the pair of angles to send to the actuators.
type Command struct {
	Pan  float64 `json:"pan"`
	Tilt float64 `json:"tilt"`
}

// Controller owns the tracker state and advances it one tick per Update.
// It is not safe for concurrent use; the control loop is its only owner.
type Controller struct {
	cfg             Config
	pan             AxisState
	tilt            AxisState
	framesSinceLost int
}

// NewController validates cfg and returns a controller with both axes at
// their center angle.
func NewController(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tracking config: %w", err)
	}
	c := &Controller{cfg: cfg}
	c.pan = AxisState{Current: cfg.Pan.CenterAngle, Target: cfg.Pan.CenterAngle}
	c.tilt = AxisState{Current: cfg.Tilt.CenterAngle, Target: cfg.Tilt.CenterAngle}
	return c, nil
}

// Config returns the validated configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Update advances the controller by one tick. found reports whether a
// qualifying detection exists this tick, in which case e is its error.
func (c *Controller) Update(e geometry.PixelError, found bool) Command {
	if found {
		c.framesSinceLost = 0
		c.pan.Target = feedback(c.pan.Current, e.X, c.cfg.Pan)
		c.tilt.Target = feedback(c.tilt.Current, e.Y, c.cfg.Tilt)
	} else {
		c.framesSinceLost++
	}

	if c.framesSinceLost > c.cfg.LossThresholdFrames {
		c.pan.Target = c.cfg.Pan.CenterAngle
		c.tilt.Target = c.cfg.Tilt.CenterAngle
	}

	c.pan.Current = c.smooth(c.pan, c.cfg.Pan)
	c.tilt.Current = c.smooth(c.tilt, c.cfg.Tilt)

	return Command{Pan: c.pan.Current, Tilt: c.tilt.Current}
}

func feedback(current, err float64, a AxisConfig) float64 {
	return current + a.Direction*err*a.Gain
}

// smooth runs one step of the low-pass filter and clamps the result, so
// the filter state itself never leaves the mechanical range.
func (c *Controller) smooth(s AxisState, a AxisConfig) float64 {
	next := s.Current + (s.Target-s.Current)*c.cfg.SmoothingFactor
	return clamp(next, a.MinAngle, a.MaxAngle)
}

// Recenter makes the head return to center from the next tick on, as if
// the target had been lost for longer than the grace period. A new
// detection resumes tracking.
func (c *Controller) Recenter() {
	c.pan.Target = c.cfg.Pan.CenterAngle
	c.tilt.Target = c.cfg.Tilt.CenterAngle
	if c.framesSinceLost <= c.cfg.LossThresholdFrames {
		c.framesSinceLost = c.cfg.LossThresholdFrames + 1
	}
}

// CenterCommand returns the command that puts both axes at center. It does
// not touch the controller state.
func (c *Controller) CenterCommand() Command {
	return Command{Pan: c.cfg.Pan.CenterAngle, Tilt: c.cfg.Tilt.CenterAngle}
}

// FramesSinceLost returns the number of consecutive ticks without target.
func (c *Controller) FramesSinceLost() int {
	return c.framesSinceLost
}

// Phase returns the current phase of the loss state machine.
func (c *Controller) Phase() Phase {
	return phaseOf(c.framesSinceLost, c.cfg.LossThresholdFrames)
}

// State returns a copy of the controller state.
func (c *Controller) State() State {
	return State{
		Pan:             c.pan,
		Tilt:            c.tilt,
		FramesSinceLost: c.framesSinceLost,
		Phase:           c.Phase(),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
