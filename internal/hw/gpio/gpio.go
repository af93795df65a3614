package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/PanTrack/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input, output or hardware PWM.
type PinMode int

const (
	Input PinMode = iota
	Output
	PWM
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)

	// SetupPWM puts pin into hardware PWM mode with the given clock
	// frequency in Hz. The PWM period is cycleLen clock ticks, so the
	// output frequency is freqHz / cycleLen.
	SetupPWM(pin int, freqHz int) error
	// WritePWM sets the duty cycle as dutyLen high ticks out of cycleLen.
	WritePWM(pin int, dutyLen, cycleLen uint32) error

	Close() error
}

// MockDriver simulates a board for development on PC and in tests: it logs
// every call at trace level and remembers the last level and duty cycle
// written to each pin. The zero value is ready to use.
type MockDriver struct {
	mu     sync.Mutex
	modes  map[int]PinMode
	levels map[int]Level
	duty   map[int][2]uint32
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) init() {
	if m.modes == nil {
		m.modes = make(map[int]PinMode)
		m.levels = make(map[int]Level)
		m.duty = make(map[int][2]uint32)
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.modes[pin] = mode
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.levels[pin] = level
	return nil
}

// ReadPin returns the last level written to pin, Low if none.
func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) SetupPWM(pin int, freqHz int) error {
	debug.GPIO("SetupPWM", pin, freqHz)
	if freqHz <= 0 {
		return fmt.Errorf("pin %d: PWM frequency must be > 0, got %d", pin, freqHz)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.modes[pin] = PWM
	return nil
}

func (m *MockDriver) WritePWM(pin int, dutyLen, cycleLen uint32) error {
	debug.GPIO("WritePWM", pin, debug.Fmt("%d/%d", dutyLen, cycleLen))
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modes[pin] != PWM {
		return fmt.Errorf("pin %d: WritePWM before SetupPWM", pin)
	}
	m.duty[pin] = [2]uint32{dutyLen, cycleLen}
	return nil
}

// Duty returns the last duty cycle written to pin.
func (m *MockDriver) Duty(pin int) (dutyLen, cycleLen uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.duty[pin]
	return d[0], d[1]
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
