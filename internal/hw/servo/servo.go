package servo

import (
	"fmt"
	"math"

	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/hw/gpio"
)

// Hobby servos expect a 50 Hz frame. The PWM clock runs at one tick per
// microsecond so the duty length is the pulse width in µs.
const (
	FrameHz      = 50
	cycleLen     = 1_000_000 / FrameHz // 20000 µs per frame
	pwmClockHz   = FrameHz * cycleLen
	fullRangeDeg = 180.0
)

// Config holds the hardware configuration for a PWM servo.
type Config struct {
	Pin        int     // BCM pin with hardware PWM (12, 13, 18, 19)
	MinPulseUs int     // pulse width at 0°, default 500
	MaxPulseUs int     // pulse width at 180°, default 2500
	MinAngle   float64 // lowest angle this servo will ever be driven to
	MaxAngle   float64 // highest angle this servo will ever be driven to
}

// Servo drives a single hobby servo by angle.
// It re-clamps every command to its own limits, independently of
// whatever clamping the caller already did.
type Servo struct {
	gpio  gpio.Driver
	name  string
	cfg   Config
	angle float64
	set   bool
}

// NewServo configures the PWM pin and returns a servo controller.
// Nothing is written to the pin until the first SetAngle.
func NewServo(g gpio.Driver, name string, cfg Config) (*Servo, error) {
	if cfg.MinPulseUs <= 0 {
		cfg.MinPulseUs = 500
	}
	if cfg.MaxPulseUs <= 0 {
		cfg.MaxPulseUs = 2500
	}
	if cfg.MinPulseUs >= cfg.MaxPulseUs || cfg.MaxPulseUs >= cycleLen {
		return nil, fmt.Errorf("servo %s: invalid pulse range %d-%d µs", name, cfg.MinPulseUs, cfg.MaxPulseUs)
	}
	if cfg.MinAngle > cfg.MaxAngle {
		return nil, fmt.Errorf("servo %s: min angle %.1f > max angle %.1f", name, cfg.MinAngle, cfg.MaxAngle)
	}
	if err := g.SetupPWM(cfg.Pin, pwmClockHz); err != nil {
		return nil, fmt.Errorf("servo %s: setup pwm: %w", name, err)
	}

	return &Servo{
		gpio: g,
		name: name,
		cfg:  cfg,
	}, nil
}

// SetAngle moves the servo to angle degrees, clamped to [MinAngle, MaxAngle].
func (s *Servo) SetAngle(angle float64) error {
	if math.IsNaN(angle) {
		return fmt.Errorf("servo %s: angle is NaN", s.name)
	}
	clamped := math.Max(s.cfg.MinAngle, math.Min(s.cfg.MaxAngle, angle))
	if clamped != angle {
		debug.Verbose("Servo %s: clamped %.2f -> %.2f", s.name, angle, clamped)
	}

	pulse := s.PulseWidth(clamped)
	debug.Trace("Servo %s: angle=%.2f pulse=%dµs", s.name, clamped, pulse)
	if err := s.gpio.WritePWM(s.cfg.Pin, uint32(pulse), cycleLen); err != nil {
		return fmt.Errorf("servo %s: write pwm: %w", s.name, err)
	}

	s.angle = clamped
	s.set = true
	return nil
}

// Angle returns the last angle written, and false if none was.
func (s *Servo) Angle() (float64, bool) {
	return s.angle, s.set
}

// PulseWidth maps an angle in [0, 180] to a pulse width in µs.
func (s *Servo) PulseWidth(angle float64) int {
	angle = math.Max(0, math.Min(fullRangeDeg, angle))
	span := float64(s.cfg.MaxPulseUs - s.cfg.MinPulseUs)
	return s.cfg.MinPulseUs + int(math.Round(angle/fullRangeDeg*span))
}
