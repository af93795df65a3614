package haptic

import (
	"fmt"
	"math"

	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/hw/gpio"
)

// Vibration motors run off an L298N bridge: IN1/IN2 select the direction
// and the enable line is driven with PWM for intensity.
const (
	pwmFreqHz = 1000
	cycleLen  = 100
	// Intensities at or below this are treated as off.
	offThreshold = 0.01
)

// MotorConfig holds the pins of one vibration motor.
type MotorConfig struct {
	In1Pin int
	In2Pin int
	PWMPin int
}

// Controller drives a set of vibration motors indexed by position.
type Controller struct {
	gpio      gpio.Driver
	motors    []MotorConfig
	intensity []float64
}

// NewController sets up direction pins low and PWM on the enable lines.
func NewController(g gpio.Driver, motors []MotorConfig) (*Controller, error) {
	for i, m := range motors {
		for _, pin := range []int{m.In1Pin, m.In2Pin} {
			if err := g.SetupPin(pin, gpio.Output); err != nil {
				return nil, fmt.Errorf("haptic motor %d: setup pin %d: %w", i, pin, err)
			}
			if err := g.WritePin(pin, gpio.Low); err != nil {
				return nil, fmt.Errorf("haptic motor %d: write pin %d: %w", i, pin, err)
			}
		}
		if err := g.SetupPWM(m.PWMPin, pwmFreqHz*cycleLen); err != nil {
			return nil, fmt.Errorf("haptic motor %d: setup pwm: %w", i, err)
		}
	}
	debug.Info("Haptics: %d motor(s) initialized", len(motors))

	return &Controller{
		gpio:      g,
		motors:    motors,
		intensity: make([]float64, len(motors)),
	}, nil
}

// Motors returns the number of configured motors.
func (c *Controller) Motors() int {
	return len(c.motors)
}

// SetVibration sets motor id to intensity in [0, 1]. Out of range
// intensities are clamped.
func (c *Controller) SetVibration(id int, intensity float64) error {
	if id < 0 || id >= len(c.motors) {
		return fmt.Errorf("haptic motor %d does not exist", id)
	}
	if math.IsNaN(intensity) {
		intensity = 0
	}
	intensity = math.Max(0, math.Min(1, intensity))
	m := c.motors[id]

	if intensity > offThreshold {
		if err := c.gpio.WritePin(m.In1Pin, gpio.High); err != nil {
			return err
		}
		if err := c.gpio.WritePin(m.In2Pin, gpio.Low); err != nil {
			return err
		}
		duty := uint32(math.Round(intensity * cycleLen))
		if err := c.gpio.WritePWM(m.PWMPin, duty, cycleLen); err != nil {
			return err
		}
	} else {
		intensity = 0
		if err := c.gpio.WritePin(m.In1Pin, gpio.Low); err != nil {
			return err
		}
		if err := c.gpio.WritePin(m.In2Pin, gpio.Low); err != nil {
			return err
		}
		if err := c.gpio.WritePWM(m.PWMPin, 0, cycleLen); err != nil {
			return err
		}
	}

	debug.Trace("Haptics: motor %d intensity=%.2f", id, intensity)
	c.intensity[id] = intensity
	return nil
}

// Intensity returns the last intensity applied to motor id.
func (c *Controller) Intensity(id int) float64 {
	if id < 0 || id >= len(c.intensity) {
		return 0
	}
	return c.intensity[id]
}

// Stop turns every motor off. All motors are attempted even if one fails.
func (c *Controller) Stop() error {
	var first error
	for id := range c.motors {
		if err := c.SetVibration(id, 0); err != nil && first == nil {
			first = err
		}
	}
	return first
}
