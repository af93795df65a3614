package stepper

import (
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/hw/gpio"
)

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	StepPin       int
	DirPin        int
	EnablePin     int // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	StepsPerRev   int
	Microstepping int
	StepDelay     time.Duration // delay per half-cycle of STEP pulse. Total step = 2*StepDelay.

	// Angular frame of the axis. The motor is assumed to sit at
	// HomeAngle when the driver is created.
	HomeAngle float64
	MinAngle  float64
	MaxAngle  float64
}

// Stepper moves a stepper motor and keeps track of its absolute position
// in microsteps, so it can be driven by angle like a servo.
type Stepper struct {
	gpio     gpio.Driver
	name     string
	cfg      Config
	delay    time.Duration // delay between STEP pulse half-cycles
	perDeg   float64       // microsteps per degree
	position int           // microsteps from HomeAngle
}

// NewStepper creates a new stepper motor controller.
// cfg.StepDelay: if 0, defaults to 1ms. For A4988, use cfg.Defaults.MoveSpeedMs/2 per half-cycle.
func NewStepper(g gpio.Driver, name string, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}
	if cfg.MinAngle == 0 && cfg.MaxAngle == 0 {
		cfg.MinAngle, cfg.MaxAngle = math.Inf(-1), math.Inf(1)
	}

	s := &Stepper{
		gpio:   g,
		name:   name,
		cfg:    cfg,
		delay:  delay,
		perDeg: float64(cfg.StepsPerRev*cfg.Microstepping) / 360.0,
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low) // enable by default
	}

	return s
}

// MoveSteps moves the motor by a number of steps (positive or negative).
func (s *Stepper) MoveSteps(steps int) error {
	if steps == 0 {
		return nil
	}

	var dirLevel gpio.Level
	var direction string
	count := steps
	if steps > 0 {
		dirLevel = gpio.High
		direction = "forward"
	} else {
		dirLevel = gpio.Low
		direction = "backward"
		count = -steps
	}

	debug.Verbose("Stepper %s: moving %d steps (%s) on pin %d", s.name, count, direction, s.cfg.StepPin)

	if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
		return err
	}

	unit := 1
	if steps < 0 {
		unit = -1
	}
	for i := 0; i < count; i++ {
		if err := s.stepPulse(); err != nil {
			return err
		}
		s.position += unit
	}
	return nil
}

// SetAngle moves to the absolute angle in degrees, clamped to the
// configured range. The move is rounded to the nearest microstep.
func (s *Stepper) SetAngle(angle float64) error {
	if math.IsNaN(angle) {
		return fmt.Errorf("stepper %s: angle is NaN", s.name)
	}
	clamped := math.Max(s.cfg.MinAngle, math.Min(s.cfg.MaxAngle, angle))
	target := s.StepsFromAngle(clamped - s.cfg.HomeAngle)
	if err := s.MoveSteps(target - s.position); err != nil {
		return fmt.Errorf("stepper %s: %w", s.name, err)
	}
	return nil
}

// Angle returns the current position in degrees.
func (s *Stepper) Angle() float64 {
	if s.perDeg == 0 {
		return s.cfg.HomeAngle
	}
	return s.cfg.HomeAngle + float64(s.position)/s.perDeg
}

// StepsFromAngle converts an angle (in degrees) to motor microsteps,
// rounded to the nearest microstep.
func (s *Stepper) StepsFromAngle(angleDegrees float64) int {
	return int(math.Round(angleDegrees * s.perDeg))
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). Motors freewheel
// and the tracked position is no longer guaranteed.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
