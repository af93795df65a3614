package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/hw/camera"
	"github.com/cjeanneret/PanTrack/internal/logic/geometry"
	"github.com/cjeanneret/PanTrack/internal/logic/motion"
	"github.com/cjeanneret/PanTrack/internal/logic/tracking"
)

// Haptics is the vibration motor bank used for phase cues.
type Haptics interface {
	Motors() int
	SetVibration(id int, intensity float64) error
	Stop() error
}

// CueConfig controls the vibration cues played on phase changes.
// Motor 0 pulses when a target is acquired, the last motor pulses when
// the head starts recentering.
type CueConfig struct {
	Intensity   float64
	PulseFrames int // pulse length, in ticks
}

// Session contains the control loop: it pulls detections from the source,
// runs them through the estimator and the tracking controller, and sends
// the resulting angles to the motion controller.
type Session struct {
	source    camera.Source
	estimator *geometry.Estimator
	tracker   *tracking.Controller
	motion    *motion.Controller

	haptics   Haptics
	cue       CueConfig
	cueMotor  int
	cueLeft   int // ticks until the running pulse stops
	lastPhase tracking.Phase
	ticks     int
}

func NewSession(src camera.Source, est *geometry.Estimator, tr *tracking.Controller, m *motion.Controller) *Session {
	return &Session{
		source:    src,
		estimator: est,
		tracker:   tr,
		motion:    m,
		cueMotor:  -1,
		lastPhase: tr.Phase(),
	}
}

// WithHaptics enables vibration cues.
func (s *Session) WithHaptics(h Haptics, cfg CueConfig) *Session {
	if h != nil && h.Motors() > 0 && cfg.PulseFrames > 0 {
		s.haptics = h
		s.cue = cfg
	}
	return s
}

// Telemetry describes one control tick.
type Telemetry struct {
	Tick            int                 `json:"tick"`
	Frame           int                 `json:"frame"`
	Detections      int                 `json:"detections"`
	Found           bool                `json:"found"`
	Target          *geometry.Detection `json:"target,omitempty"`
	Error           geometry.PixelError `json:"error"`
	Command         tracking.Command    `json:"command"`
	PanTarget       float64             `json:"pan_target"`
	TiltTarget      float64             `json:"tilt_target"`
	FramesSinceLost int                 `json:"frames_since_lost"`
	Phase           tracking.Phase      `json:"phase"`
	ActuatorError   string              `json:"actuator_error,omitempty"`
}

// Params controls a Run.
type Params struct {
	MaxTicks int             // stop after this many ticks; 0 = until cancelled
	Recenter <-chan struct{} // operator recenter requests, applied between ticks
	OnTick   func(Telemetry) // called after every tick, from the loop goroutine
}

// Run executes the control loop until ctx is cancelled, the source ends,
// MaxTicks is reached or the source fails. Whatever the reason, both axes
// are commanded back to center before Run returns. Cancellation and end
// of stream are normal stops and return nil.
func (s *Session) Run(ctx context.Context, p Params) (err error) {
	debug.Section("Tracking")
	defer func() {
		err = errors.Join(err, s.Shutdown())
	}()

	for p.MaxTicks <= 0 || s.ticks < p.MaxTicks {
		select {
		case <-ctx.Done():
			return nil
		case <-p.Recenter:
			debug.Info("Recenter requested")
			s.tracker.Recenter()
		default:
		}

		frame, err := s.source.Next(ctx)
		if err != nil {
			if errors.Is(err, camera.ErrEndOfStream) {
				debug.Info("Source ended after %d ticks", s.ticks)
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tick %d: %w", s.ticks, err)
		}

		t := s.Step(frame)
		if p.OnTick != nil {
			p.OnTick(t)
		}
	}
	return nil
}

// Step runs one control tick on frame and commands the actuators.
// Actuator failures are reported in the telemetry; the controller state
// advances regardless since there is no position feedback.
func (s *Session) Step(frame camera.Frame) Telemetry {
	pe, target, found := s.estimator.Estimate(frame.Detections)
	cmd := s.tracker.Update(pe, found)
	state := s.tracker.State()

	t := Telemetry{
		Tick:            s.ticks,
		Frame:           frame.Index,
		Detections:      len(frame.Detections),
		Found:           found,
		Error:           pe,
		Command:         cmd,
		PanTarget:       state.Pan.Target,
		TiltTarget:      state.Tilt.Target,
		FramesSinceLost: state.FramesSinceLost,
		Phase:           state.Phase,
	}
	if found {
		t.Target = &target
	}

	if err := s.motion.MovePanTilt(cmd.Pan, cmd.Tilt); err != nil {
		t.ActuatorError = err.Error()
		debug.Error(fmt.Errorf("tick %d: %w", s.ticks, err))
	}
	debug.Tick(s.ticks, cmd.Pan, cmd.Tilt, state.FramesSinceLost)

	s.advanceCue()
	if state.Phase != s.lastPhase {
		debug.Phase(s.ticks, s.lastPhase.String(), state.Phase.String())
		if state.Phase == tracking.Recentering {
			// last target position is stale once the head heads home
			s.estimator.ResetSelection()
		}
		s.onPhaseChange(state.Phase)
		s.lastPhase = state.Phase
	}

	s.ticks++
	return t
}

// Ticks returns the number of ticks run so far.
func (s *Session) Ticks() int {
	return s.ticks
}

// Shutdown commands both axes to center and silences the haptics.
func (s *Session) Shutdown() error {
	center := s.tracker.CenterCommand()
	debug.Info("Recentering: pan=%.1f tilt=%.1f", center.Pan, center.Tilt)

	var errs []error
	if err := s.motion.MovePanTilt(center.Pan, center.Tilt); err != nil {
		errs = append(errs, fmt.Errorf("recenter: %w", err))
	}
	if s.haptics != nil {
		if err := s.haptics.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop haptics: %w", err))
		}
		s.cueLeft = 0
	}
	return errors.Join(errs...)
}

func (s *Session) onPhaseChange(p tracking.Phase) {
	if s.haptics == nil {
		return
	}
	var motor int
	switch p {
	case tracking.Tracking:
		motor = 0
	case tracking.Recentering:
		motor = s.haptics.Motors() - 1
	default:
		return
	}

	if s.cueLeft > 0 && s.cueMotor != motor {
		_ = s.haptics.SetVibration(s.cueMotor, 0)
	}
	if err := s.haptics.SetVibration(motor, s.cue.Intensity); err != nil {
		debug.Error(err)
		return
	}
	s.cueMotor = motor
	s.cueLeft = s.cue.PulseFrames
}

func (s *Session) advanceCue() {
	if s.cueLeft == 0 {
		return
	}
	s.cueLeft--
	if s.cueLeft == 0 {
		if err := s.haptics.SetVibration(s.cueMotor, 0); err != nil {
			debug.Error(err)
		}
	}
}
