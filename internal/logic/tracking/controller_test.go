package tracking

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/cjeanneret/PanTrack/internal/logic/geometry"
)

const epsilon = 1e-9

func testConfig() Config {
	return Config{
		Pan:                 AxisConfig{MinAngle: 10, MaxAngle: 170, CenterAngle: 90, Gain: 0.03},
		Tilt:                AxisConfig{MinAngle: 30, MaxAngle: 100, CenterAngle: 54, Gain: 0.04},
		LossThresholdFrames: 60,
		SmoothingFactor:     0.15,
	}
}

func newTestController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c, err := NewController(cfg)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

var noTarget = geometry.PixelError{}

func TestNewController_StartsAtCenter(t *testing.T) {
	c := newTestController(t, testConfig())
	s := c.State()
	if s.Pan.Current != 90 || s.Pan.Target != 90 {
		t.Errorf("pan = %+v, want current=target=90", s.Pan)
	}
	if s.Tilt.Current != 54 || s.Tilt.Target != 54 {
		t.Errorf("tilt = %+v, want current=target=54", s.Tilt)
	}
	if s.FramesSinceLost != 0 {
		t.Errorf("FramesSinceLost = %d, want 0", s.FramesSinceLost)
	}
}

func TestNewController_Defaults(t *testing.T) {
	cfg := testConfig()
	cfg.LossThresholdFrames = 0
	cfg.SmoothingFactor = 0
	c := newTestController(t, cfg)

	got := c.Config()
	if got.LossThresholdFrames != 0 {
		t.Errorf("LossThresholdFrames = %d, want 0 kept as given", got.LossThresholdFrames)
	}
	if got.SmoothingFactor != 0.15 {
		t.Errorf("SmoothingFactor = %v, want 0.15", got.SmoothingFactor)
	}
	if got.Pan.Direction != Mirrored || got.Tilt.Direction != Mirrored {
		t.Errorf("directions = %v/%v, want mirrored", got.Pan.Direction, got.Tilt.Direction)
	}
}

func TestNewController_InvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Config)
	}{
		{"min_above_max", func(c *Config) { c.Pan.MinAngle = 180 }},
		{"center_outside_range", func(c *Config) { c.Tilt.CenterAngle = 120 }},
		{"smoothing_above_one", func(c *Config) { c.SmoothingFactor = 1.01 }},
		{"smoothing_negative", func(c *Config) { c.SmoothingFactor = -0.1 }},
		{"smoothing_nan", func(c *Config) { c.SmoothingFactor = math.NaN() }},
		{"negative_threshold", func(c *Config) { c.LossThresholdFrames = -1 }},
		{"bad_direction", func(c *Config) { c.Pan.Direction = 2 }},
		{"nan_gain", func(c *Config) { c.Tilt.Gain = math.NaN() }},
		{"inf_max", func(c *Config) { c.Pan.MaxAngle = math.Inf(1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.modify(&cfg)
			if _, err := NewController(cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestUpdate_SmoothingOneIsDirect(t *testing.T) {
	cfg := testConfig()
	cfg.SmoothingFactor = 1
	c := newTestController(t, cfg)

	cmd := c.Update(geometry.PixelError{X: 100, Y: -100}, true)
	// pan: 90 - 100*0.03 = 87, tilt: 54 + 100*0.04 = 58
	if math.Abs(cmd.Pan-87) > epsilon || math.Abs(cmd.Tilt-58) > epsilon {
		t.Errorf("cmd = %+v, want {87 58}", cmd)
	}
}

// current 90, feedback target 80, smoothing 0.15 -> 88.5
func TestUpdate_ScenarioB(t *testing.T) {
	cfg := testConfig()
	cfg.Pan.Gain = 0.5
	c := newTestController(t, cfg)

	cmd := c.Update(geometry.PixelError{X: 20}, true)

	if got := c.State().Pan.Target; math.Abs(got-80) > epsilon {
		t.Fatalf("pan target = %v, want 80", got)
	}
	if math.Abs(cmd.Pan-88.5) > epsilon {
		t.Errorf("pan = %v, want 88.5", cmd.Pan)
	}
	if cmd.Tilt != 54 {
		t.Errorf("tilt = %v, want 54 (no error)", cmd.Tilt)
	}
}

func TestUpdate_DirectionIsConfigurable(t *testing.T) {
	cfg := testConfig()
	cfg.Pan.Direction = Direct
	cfg.SmoothingFactor = 1
	c := newTestController(t, cfg)

	cmd := c.Update(geometry.PixelError{X: 100}, true)
	if math.Abs(cmd.Pan-93) > epsilon {
		t.Errorf("pan = %v, want 93 for a direct mount", cmd.Pan)
	}
}

func TestUpdate_LossCounter(t *testing.T) {
	c := newTestController(t, testConfig())

	for i := 1; i <= 5; i++ {
		c.Update(noTarget, false)
		if got := c.FramesSinceLost(); got != i {
			t.Fatalf("after %d misses FramesSinceLost = %d", i, got)
		}
	}
	c.Update(geometry.PixelError{}, true)
	if got := c.FramesSinceLost(); got != 0 {
		t.Errorf("FramesSinceLost = %d after detection, want 0", got)
	}
}

func TestUpdate_GracePeriodHoldsTarget(t *testing.T) {
	c := newTestController(t, testConfig())
	c.Update(geometry.PixelError{X: 500, Y: 300}, true)
	held := c.State()

	for i := 1; i <= 60; i++ {
		c.Update(noTarget, false)
		s := c.State()
		if s.Pan.Target != held.Pan.Target || s.Tilt.Target != held.Tilt.Target {
			t.Fatalf("tick %d: target changed to %+v/%+v during grace period", i, s.Pan, s.Tilt)
		}
	}
}

// After 61 misses with threshold 60 the target is center; at 60 it is not.
func TestUpdate_ScenarioC(t *testing.T) {
	c := newTestController(t, testConfig())
	c.Update(geometry.PixelError{X: 500, Y: 300}, true)
	held := c.State()

	for i := 0; i < 60; i++ {
		c.Update(noTarget, false)
	}
	s := c.State()
	if s.FramesSinceLost != 60 {
		t.Fatalf("FramesSinceLost = %d, want 60", s.FramesSinceLost)
	}
	if s.Pan.Target != held.Pan.Target || s.Tilt.Target != held.Tilt.Target {
		t.Errorf("at tick 60 target = %v/%v, want held %v/%v",
			s.Pan.Target, s.Tilt.Target, held.Pan.Target, held.Tilt.Target)
	}
	if s.Phase != Settling {
		t.Errorf("phase = %v, want SETTLING", s.Phase)
	}

	c.Update(noTarget, false)
	s = c.State()
	if s.Pan.Target != 90 || s.Tilt.Target != 54 {
		t.Errorf("at tick 61 target = %v/%v, want center 90/54", s.Pan.Target, s.Tilt.Target)
	}
	if s.Phase != Recentering {
		t.Errorf("phase = %v, want RECENTERING", s.Phase)
	}
}

func TestUpdate_ForcedRecenterProperty(t *testing.T) {
	cfg := testConfig()
	cfg.LossThresholdFrames = 3
	c := newTestController(t, cfg)
	c.Update(geometry.PixelError{X: -400, Y: 200}, true)

	for i := 1; i <= 50; i++ {
		c.Update(noTarget, false)
		if i <= 3 {
			continue
		}
		s := c.State()
		if s.Pan.Target != 90 || s.Tilt.Target != 54 {
			t.Fatalf("tick %d: target = %v/%v, want center", i, s.Pan.Target, s.Tilt.Target)
		}
	}
	// converged towards center
	s := c.State()
	if math.Abs(s.Pan.Current-90) > 0.01 || math.Abs(s.Tilt.Current-54) > 0.01 {
		t.Errorf("after 47 recentering ticks current = %v/%v, want ~90/54", s.Pan.Current, s.Tilt.Current)
	}
}

func TestUpdate_ZeroThresholdRecentersOnFirstMiss(t *testing.T) {
	cfg := testConfig()
	cfg.LossThresholdFrames = 0
	c := newTestController(t, cfg)

	c.Update(geometry.PixelError{X: 100}, true) // target 90 - 3 = 87
	if got := c.State().Pan.Target; math.Abs(got-87) > epsilon {
		t.Fatalf("pan target after detection = %v, want 87", got)
	}

	c.Update(noTarget, false)
	s := c.State()
	if s.Phase != Recentering {
		t.Errorf("phase = %v, want RECENTERING", s.Phase)
	}
	if s.Pan.Target != 90 || s.Tilt.Target != 54 {
		t.Errorf("target = %v/%v, want center 90/54", s.Pan.Target, s.Tilt.Target)
	}
}

// Starting below min, a target further below min still ends clamped at min.
func TestUpdate_ScenarioD(t *testing.T) {
	c := newTestController(t, testConfig())
	c.pan.Current = 5

	cmd := c.Update(geometry.PixelError{X: 1000}, true) // 5 - 30 = -25
	if cmd.Pan != 10 {
		t.Errorf("pan = %v, want exactly 10", cmd.Pan)
	}
	if c.State().Pan.Current != 10 {
		t.Errorf("filter state = %v, want 10", c.State().Pan.Current)
	}
}

func TestUpdate_NoWindupAtLimit(t *testing.T) {
	cfg := testConfig()
	cfg.SmoothingFactor = 1
	c := newTestController(t, cfg)

	for i := 0; i < 100; i++ {
		c.Update(geometry.PixelError{X: 1000}, true)
	}
	if got := c.State().Pan.Current; got != 10 {
		t.Fatalf("pan = %v, want saturated at 10", got)
	}

	// error reverses: recovery starts from the limit on the very next tick
	cmd := c.Update(geometry.PixelError{X: -100}, true)
	if math.Abs(cmd.Pan-13) > epsilon {
		t.Errorf("pan = %v, want 13", cmd.Pan)
	}
}

func TestUpdate_ClampInvariant(t *testing.T) {
	cfg := testConfig()
	cfg.SmoothingFactor = 0.7
	cfg.LossThresholdFrames = 5
	c := newTestController(t, cfg)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 5000; i++ {
		found := rng.Intn(4) != 0
		e := geometry.PixelError{
			X: (rng.Float64() - 0.5) * 1e6,
			Y: (rng.Float64() - 0.5) * 1e6,
		}
		cmd := c.Update(e, found)
		if cmd.Pan < 10 || cmd.Pan > 170 {
			t.Fatalf("tick %d: pan %v out of [10, 170]", i, cmd.Pan)
		}
		if cmd.Tilt < 30 || cmd.Tilt > 100 {
			t.Fatalf("tick %d: tilt %v out of [30, 100]", i, cmd.Tilt)
		}
	}
}

func TestUpdate_RecenteredIsFixedPoint(t *testing.T) {
	c := newTestController(t, testConfig())
	for i := 0; i < 200; i++ {
		cmd := c.Update(noTarget, false)
		if cmd.Pan != 90 || cmd.Tilt != 54 {
			t.Fatalf("tick %d: cmd = %+v, want center to stay fixed", i, cmd)
		}
	}
}

func TestUpdate_CommandIsPostClampState(t *testing.T) {
	c := newTestController(t, testConfig())
	cmd := c.Update(geometry.PixelError{X: 40, Y: -25}, true)
	s := c.State()
	if cmd.Pan != s.Pan.Current || cmd.Tilt != s.Tilt.Current {
		t.Errorf("cmd %+v does not match state %+v/%+v", cmd, s.Pan, s.Tilt)
	}
}

func TestPhaseTransitions(t *testing.T) {
	cfg := testConfig()
	cfg.LossThresholdFrames = 2
	c := newTestController(t, cfg)

	steps := []struct {
		found bool
		want  Phase
	}{
		{true, Tracking},
		{false, Settling},
		{false, Settling},
		{false, Recentering},
		{true, Tracking},
		{false, Settling},
		{true, Tracking},
	}
	for i, s := range steps {
		c.Update(geometry.PixelError{}, s.found)
		if got := c.Phase(); got != s.want {
			t.Errorf("step %d: phase = %v, want %v", i, got, s.want)
		}
	}
}

func TestRecenter(t *testing.T) {
	c := newTestController(t, testConfig())
	c.Update(geometry.PixelError{X: 500, Y: 500}, true)

	c.Recenter()
	if c.Phase() != Recentering {
		t.Errorf("phase = %v, want RECENTERING", c.Phase())
	}
	c.Update(noTarget, false)
	s := c.State()
	if s.Pan.Target != 90 || s.Tilt.Target != 54 {
		t.Errorf("target = %v/%v, want center", s.Pan.Target, s.Tilt.Target)
	}

	c.Update(geometry.PixelError{X: 100}, true)
	if c.Phase() != Tracking {
		t.Errorf("phase = %v, want TRACKING after a detection", c.Phase())
	}
}

func TestCenterCommand(t *testing.T) {
	c := newTestController(t, testConfig())
	c.Update(geometry.PixelError{X: 300}, true)
	before := c.State()

	if cmd := c.CenterCommand(); cmd != (Command{Pan: 90, Tilt: 54}) {
		t.Errorf("CenterCommand() = %+v, want {90 54}", cmd)
	}
	if c.State() != before {
		t.Error("CenterCommand must not change controller state")
	}
}

func TestPhase_String(t *testing.T) {
	cases := map[Phase]string{
		Tracking:    "TRACKING",
		Settling:    "SETTLING",
		Recentering: "RECENTERING",
		Phase(9):    "Phase(9)",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestPhase_TextRoundTrip(t *testing.T) {
	for _, p := range []Phase{Tracking, Settling, Recentering} {
		data, err := json.Marshal(State{Phase: p})
		if err != nil {
			t.Fatalf("marshal %v: %v", p, err)
		}
		var got State
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got.Phase != p {
			t.Errorf("round trip of %v = %v", p, got.Phase)
		}
	}

	var p Phase
	for _, bad := range []string{"", "tracking", "LOST", "Phase(9)"} {
		if err := p.UnmarshalText([]byte(bad)); err == nil {
			t.Errorf("UnmarshalText(%q) should fail", bad)
		}
	}
}
