package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// Actuator types.
const (
	ActuatorServo   = "servo"
	ActuatorStepper = "stepper"
)

// Detection source types.
const (
	CameraYuNet    = "yunet"
	CameraScripted = "scripted"
)

// ServoConfig holds the wiring of a PWM hobby servo.
type ServoConfig struct {
	Pin        int `yaml:"pin"`          // BCM pin with hardware PWM (12, 13, 18 or 19)
	MinPulseUs int `yaml:"min_pulse_us"` // pulse width at 0° (default: 500)
	MaxPulseUs int `yaml:"max_pulse_us"` // pulse width at 180° (default: 2500)
}

// StepperConfig holds the configuration for a stepper motor.
type StepperConfig struct {
	StepPin       int `yaml:"step_pin"`
	DirPin        int `yaml:"dir_pin"`
	EnablePin     int `yaml:"enable_pin"` // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev   int `yaml:"steps_per_rev"`
	Microstepping int `yaml:"microstepping"`
}

// AxisConfig describes one axis of the mount: its calibration and the
// actuator driving it.
type AxisConfig struct {
	Actuator    string        `yaml:"actuator"` // "servo" (default) or "stepper"
	MinAngle    float64       `yaml:"min_angle"`
	MaxAngle    float64       `yaml:"max_angle"`
	CenterAngle float64       `yaml:"center_angle"`
	Gain        float64       `yaml:"gain"`      // degrees per pixel of error
	Direction   float64       `yaml:"direction"` // -1 mirrored (default), 1 direct
	Servo       ServoConfig   `yaml:"servo"`
	Stepper     StepperConfig `yaml:"stepper"`
}

// TrackingConfig holds the control law constants.
type TrackingConfig struct {
	DeadbandPx          *float64 `yaml:"deadband_px"`           // default: 20
	LossThresholdFrames *int     `yaml:"loss_threshold_frames"` // default: 60; 0 recenters on the first miss
	SmoothingFactor     float64  `yaml:"smoothing_factor"`      // default: 0.15
	Selection           string   `yaml:"selection"`             // first, confidence, largest, nearest
	MinConfidence       *float64 `yaml:"min_confidence"`        // default: 0.5
}

// CameraConfig selects the detection source.
type CameraConfig struct {
	Type            string `yaml:"type"`              // "yunet" or "scripted"
	DeviceID        int    `yaml:"device_id"`         // V4L2 device index (yunet)
	ModelPath       string `yaml:"model_path"`        // YuNet ONNX model (yunet)
	ScriptPath      string `yaml:"script_path"`       // detection replay (scripted)
	FrameIntervalMs int    `yaml:"frame_interval_ms"` // replay pace (scripted, default: 33)
}

// FrameConfig is the image size detections are computed on.
type FrameConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// LensConfig is optional: when set, an axis without an explicit gain gets
// the gain that points the head at the detection in one step, scaled by
// GainScale.
type LensConfig struct {
	FocalLengthMm  float64 `yaml:"focal_length_mm"`
	SensorWidthMm  float64 `yaml:"sensor_width_mm"`  // e.g., 3.68 for the Pi Camera v2
	SensorHeightMm float64 `yaml:"sensor_height_mm"` // e.g., 2.76
	GainScale      float64 `yaml:"gain_scale"`       // default: 1
}

// HapticMotorConfig holds the L298N pins of one vibration motor.
type HapticMotorConfig struct {
	In1Pin int `yaml:"in1_pin"`
	In2Pin int `yaml:"in2_pin"`
	PWMPin int `yaml:"pwm_pin"`
}

// HapticConfig configures the vibration cues played on tracking phase
// changes.
type HapticConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Motors      []HapticMotorConfig `yaml:"motors"`
	PulseFrames int                 `yaml:"pulse_frames"` // cue length in ticks (default: 10)
	Intensity   float64             `yaml:"intensity"`    // 0-1 (default: 1)
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	MoveSpeedMs int  `yaml:"move_speed_ms"` // delay between stepper pulses
	DebugLevel  int  `yaml:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO    bool `yaml:"mock_gpio"`     // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	PanAxis  AxisConfig     `yaml:"pan_axis"`
	TiltAxis AxisConfig     `yaml:"tilt_axis"`
	Tracking TrackingConfig `yaml:"tracking"`
	Camera   CameraConfig   `yaml:"camera"`
	Frame    FrameConfig    `yaml:"frame"`
	Lens     *LensConfig    `yaml:"lens,omitempty"` // optional
	Haptic   HapticConfig   `yaml:"haptic"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file inside a
// directory called "configs" and does not climb out of it.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be in a configs/ directory, got %q", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Camera.Type {
	case "":
		return fmt.Errorf("camera.type is required")
	case CameraYuNet:
		if c.Camera.ModelPath == "" {
			return fmt.Errorf("camera.model_path is required for type %q", CameraYuNet)
		}
	case CameraScripted:
		if c.Camera.ScriptPath == "" {
			return fmt.Errorf("camera.script_path is required for type %q", CameraScripted)
		}
	default:
		return fmt.Errorf("unknown camera.type %q (want %q or %q)", c.Camera.Type, CameraYuNet, CameraScripted)
	}
	if c.Camera.FrameIntervalMs <= 0 {
		c.Camera.FrameIntervalMs = 33 // ~30 fps
	}

	if c.Frame.Width == 0 && c.Frame.Height == 0 {
		c.Frame = FrameConfig{Width: 300, Height: 300}
	}
	if c.Frame.Width <= 0 || c.Frame.Height <= 0 {
		return fmt.Errorf("frame size must be positive, got %dx%d", c.Frame.Width, c.Frame.Height)
	}

	// With a lens, gains left at zero are derived from its field of view.
	var panDef, tiltDef AxisConfig
	if c.Lens != nil {
		if err := c.Lens.validate(); err != nil {
			return err
		}
		panDef = AxisConfig{MinAngle: 10, MaxAngle: 170, CenterAngle: 90}
		tiltDef = AxisConfig{MinAngle: 30, MaxAngle: 100, CenterAngle: 54}
	} else {
		// Defaults match the reference pan/tilt bracket.
		panDef = AxisConfig{MinAngle: 10, MaxAngle: 170, CenterAngle: 90, Gain: 0.03}
		tiltDef = AxisConfig{MinAngle: 30, MaxAngle: 100, CenterAngle: 54, Gain: 0.04}
	}
	if err := c.PanAxis.validate("pan_axis", panDef); err != nil {
		return err
	}
	if err := c.TiltAxis.validate("tilt_axis", tiltDef); err != nil {
		return err
	}

	if err := c.Tracking.validate(); err != nil {
		return err
	}
	if err := c.Haptic.validate(); err != nil {
		return err
	}

	if c.Defaults.MoveSpeedMs <= 0 {
		c.Defaults.MoveSpeedMs = 2 // reasonable default
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

func (a *AxisConfig) validate(name string, def AxisConfig) error {
	if a.MinAngle == 0 && a.MaxAngle == 0 {
		a.MinAngle, a.MaxAngle = def.MinAngle, def.MaxAngle
		if a.CenterAngle == 0 {
			a.CenterAngle = def.CenterAngle
		}
	}
	if a.Gain == 0 {
		a.Gain = def.Gain
	}
	if a.Direction == 0 {
		a.Direction = -1
	}
	if a.Actuator == "" {
		a.Actuator = ActuatorServo
	}

	for _, v := range []float64{a.MinAngle, a.MaxAngle, a.CenterAngle, a.Gain} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: angles and gain must be finite", name)
		}
	}
	if a.MinAngle > a.MaxAngle {
		return fmt.Errorf("%s: min_angle %.2f > max_angle %.2f", name, a.MinAngle, a.MaxAngle)
	}
	if a.CenterAngle < a.MinAngle || a.CenterAngle > a.MaxAngle {
		return fmt.Errorf("%s: center_angle %.2f outside [%.2f, %.2f]", name, a.CenterAngle, a.MinAngle, a.MaxAngle)
	}
	if a.Direction != -1 && a.Direction != 1 {
		return fmt.Errorf("%s: direction must be -1 or 1, got %v", name, a.Direction)
	}

	switch a.Actuator {
	case ActuatorServo:
		if a.Servo.MinPulseUs < 0 || a.Servo.MaxPulseUs < 0 {
			return fmt.Errorf("%s: servo pulse widths must be >= 0", name)
		}
	case ActuatorStepper:
		if a.Stepper.StepsPerRev <= 0 {
			return fmt.Errorf("%s: stepper.steps_per_rev must be > 0", name)
		}
		if a.Stepper.Microstepping <= 0 {
			a.Stepper.Microstepping = 1
		}
	default:
		return fmt.Errorf("%s: unknown actuator %q (want %q or %q)", name, a.Actuator, ActuatorServo, ActuatorStepper)
	}
	return nil
}

// UnmarshalYAML centers the axis in its range when limits are given
// without center_angle.
func (a *AxisConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain AxisConfig
	if err := value.Decode((*plain)(a)); err != nil {
		return err
	}
	if !hasKey(value, "center_angle") && (a.MinAngle != 0 || a.MaxAngle != 0) {
		a.CenterAngle = (a.MinAngle + a.MaxAngle) / 2
	}
	return nil
}

func hasKey(n *yaml.Node, key string) bool {
	if n.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return true
		}
	}
	return false
}

func (l *LensConfig) validate() error {
	if !(l.FocalLengthMm > 0) {
		return fmt.Errorf("lens.focal_length_mm must be > 0")
	}
	if !(l.SensorWidthMm > 0) || !(l.SensorHeightMm > 0) {
		return fmt.Errorf("lens.sensor_width_mm and lens.sensor_height_mm must be > 0")
	}
	if l.GainScale == 0 {
		l.GainScale = 1
	}
	if !(l.GainScale > 0) || math.IsInf(l.GainScale, 0) {
		return fmt.Errorf("lens.gain_scale must be > 0, got %v", l.GainScale)
	}
	return nil
}

func (t *TrackingConfig) validate() error {
	if t.DeadbandPx == nil {
		t.DeadbandPx = float64Ptr(20)
	}
	if *t.DeadbandPx < 0 || math.IsNaN(*t.DeadbandPx) {
		return fmt.Errorf("tracking.deadband_px must be >= 0, got %v", *t.DeadbandPx)
	}
	if t.LossThresholdFrames == nil {
		t.LossThresholdFrames = intPtr(60)
	}
	if *t.LossThresholdFrames < 0 {
		return fmt.Errorf("tracking.loss_threshold_frames must be >= 0, got %d", *t.LossThresholdFrames)
	}
	if t.SmoothingFactor == 0 {
		t.SmoothingFactor = 0.15
	}
	if !(t.SmoothingFactor > 0 && t.SmoothingFactor <= 1) {
		return fmt.Errorf("tracking.smoothing_factor must be in (0, 1], got %v", t.SmoothingFactor)
	}
	if t.Selection == "" {
		t.Selection = "first"
	}
	switch t.Selection {
	case "first", "confidence", "largest", "nearest":
	default:
		return fmt.Errorf("unknown tracking.selection %q", t.Selection)
	}
	if t.MinConfidence == nil {
		t.MinConfidence = float64Ptr(0.5)
	}
	if *t.MinConfidence < 0 || *t.MinConfidence > 1 || math.IsNaN(*t.MinConfidence) {
		return fmt.Errorf("tracking.min_confidence must be between 0 and 1, got %v", *t.MinConfidence)
	}
	return nil
}

func (h *HapticConfig) validate() error {
	if !h.Enabled {
		return nil
	}
	if len(h.Motors) == 0 {
		return fmt.Errorf("haptic.motors is required when haptic is enabled")
	}
	if h.PulseFrames <= 0 {
		h.PulseFrames = 10
	}
	if h.Intensity == 0 {
		h.Intensity = 1
	}
	if h.Intensity < 0 || h.Intensity > 1 {
		return fmt.Errorf("haptic.intensity must be between 0 and 1, got %v", h.Intensity)
	}
	return nil
}

func float64Ptr(v float64) *float64 {
	return &v
}

func intPtr(v int) *int {
	return &v
}

// MoveSpeed returns the duration between two motor steps.
func (c *Config) MoveSpeed() time.Duration {
	return time.Duration(c.Defaults.MoveSpeedMs) * time.Millisecond
}

// FrameInterval returns the pace of the scripted detection source.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Camera.FrameIntervalMs) * time.Millisecond
}

// Deadband returns the dead-band radius in pixels.
func (c *Config) Deadband() float64 {
	if c.Tracking.DeadbandPx == nil {
		return 0
	}
	return *c.Tracking.DeadbandPx
}

// LossThreshold returns the number of missed frames tolerated before the
// head recenters.
func (c *Config) LossThreshold() int {
	if c.Tracking.LossThresholdFrames == nil {
		return 0
	}
	return *c.Tracking.LossThresholdFrames
}

// MinConfidence returns the detection confidence floor.
func (c *Config) MinConfidence() float64 {
	if c.Tracking.MinConfidence == nil {
		return 0
	}
	return *c.Tracking.MinConfidence
}

// Overrides are per-run adjustments of the tracking constants, from the
// command line or the web API. Zero smoothing and dead-band keep the
// configured value; a nil loss threshold does.
type Overrides struct {
	SmoothingFactor     float64 `json:"smoothing_factor"`
	DeadbandPx          float64 `json:"deadband_px"`
	LossThresholdFrames *int    `json:"loss_threshold_frames,omitempty"`
}

// ValidateOverrides reports the first out-of-range override.
func ValidateOverrides(o Overrides) error {
	if o.SmoothingFactor != 0 && !(o.SmoothingFactor > 0 && o.SmoothingFactor <= 1) {
		return fmt.Errorf("smoothing must be in (0, 1], got %v", o.SmoothingFactor)
	}
	if o.DeadbandPx < 0 || math.IsNaN(o.DeadbandPx) || math.IsInf(o.DeadbandPx, 0) {
		return fmt.Errorf("deadband must be >= 0, got %v", o.DeadbandPx)
	}
	if o.LossThresholdFrames != nil && *o.LossThresholdFrames < 0 {
		return fmt.Errorf("loss frames must be >= 0, got %d", *o.LossThresholdFrames)
	}
	return nil
}

// WithOverrides returns a copy of c with o applied. The receiver is left
// untouched so a base configuration can serve several runs.
func (c *Config) WithOverrides(o Overrides) *Config {
	out := *c
	if o.SmoothingFactor != 0 {
		out.Tracking.SmoothingFactor = o.SmoothingFactor
	}
	if o.DeadbandPx != 0 {
		out.Tracking.DeadbandPx = float64Ptr(o.DeadbandPx)
	}
	if o.LossThresholdFrames != nil {
		out.Tracking.LossThresholdFrames = intPtr(*o.LossThresholdFrames)
	}
	return &out
}
