package motion

import (
	"errors"
	"fmt"
)

// Axis is an actuator that can be driven to an absolute angle in degrees.
// Implementations clamp to their own mechanical limits.
type Axis interface {
	SetAngle(angle float64) error
}

// Controller orchestrates pan/tilt movements via two actuators.
// It's an intermediate layer between the control loop and the
// hardware drivers (servo PWM, stepper pulses).
type Controller struct {
	pan  Axis
	tilt Axis
}

func NewController(pan, tilt Axis) *Controller {
	return &Controller{
		pan:  pan,
		tilt: tilt,
	}
}

func (c *Controller) MovePan(angle float64) error {
	if err := c.pan.SetAngle(angle); err != nil {
		return fmt.Errorf("pan: %w", err)
	}
	return nil
}

func (c *Controller) MoveTilt(angle float64) error {
	if err := c.tilt.SetAngle(angle); err != nil {
		return fmt.Errorf("tilt: %w", err)
	}
	return nil
}

// MovePanTilt commands both axes. A failure on one axis does not keep the
// other from moving; both errors are returned joined.
func (c *Controller) MovePanTilt(pan, tilt float64) error {
	return errors.Join(c.MovePan(pan), c.MoveTilt(tilt))
}
