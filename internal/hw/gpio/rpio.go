package gpio

import (
	"fmt"

	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// pwmCapable lists the BCM pins wired to the Raspberry Pi PWM channels.
// 12/18 share channel 0 and 13/19 share channel 1.
var pwmCapable = map[int]bool{
	12: true,
	13: true,
	18: true,
	19: true,
}

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	pins map[int]rpio.Pin
	pwm  map[int]bool
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
// Hardware PWM needs /dev/mem, i.e. root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
		pwm:  make(map[int]bool),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	r.pins[pin] = p

	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	case PWM:
		if !pwmCapable[pin] {
			return fmt.Errorf("pin %d has no hardware PWM", pin)
		}
		p.Mode(rpio.Pwm)
		r.pwm[pin] = true
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as output
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as input
		if err := r.SetupPin(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}

	state := p.Read()
	if state == rpio.High {
		return High, nil
	}
	return Low, nil
}

func (r *RPiDriver) SetupPWM(pin int, freqHz int) error {
	debug.GPIO("SetupPWM", pin, freqHz)

	if err := r.SetupPin(pin, PWM); err != nil {
		return err
	}
	if freqHz <= 0 {
		return fmt.Errorf("pwm frequency must be > 0, got %d", freqHz)
	}
	r.pins[pin].Freq(freqHz)
	return nil
}

func (r *RPiDriver) WritePWM(pin int, dutyLen, cycleLen uint32) error {
	debug.GPIO("WritePWM", pin, debug.Fmt("%d/%d", dutyLen, cycleLen))

	if !r.pwm[pin] {
		return fmt.Errorf("pin %d is not configured for PWM", pin)
	}
	if cycleLen == 0 || dutyLen > cycleLen {
		return fmt.Errorf("invalid duty cycle %d/%d", dutyLen, cycleLen)
	}
	r.pins[pin].DutyCycle(dutyLen, cycleLen)
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	// Reset all pins to input (safe state)
	for pin, p := range r.pins {
		if r.pwm[pin] {
			p.DutyCycle(0, 1)
		}
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}

	return rpio.Close()
}
