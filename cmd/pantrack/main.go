package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/PanTrack/internal/config"
	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/hw/camera"
	"github.com/cjeanneret/PanTrack/internal/hw/camera/yunet"
	"github.com/cjeanneret/PanTrack/internal/hw/gpio"
	"github.com/cjeanneret/PanTrack/internal/hw/haptic"
	"github.com/cjeanneret/PanTrack/internal/hw/servo"
	"github.com/cjeanneret/PanTrack/internal/hw/stepper"
	"github.com/cjeanneret/PanTrack/internal/logic/geometry"
	"github.com/cjeanneret/PanTrack/internal/logic/motion"
	"github.com/cjeanneret/PanTrack/internal/logic/session"
	"github.com/cjeanneret/PanTrack/internal/logic/tracking"
	"github.com/cjeanneret/PanTrack/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	smoothing := flag.Float64("smoothing", 0, "override smoothing factor (0-1]")
	deadband := flag.Float64("deadband_px", 0, "override dead-band radius in pixels")
	lossFrames := flag.Int("loss_frames", 0, "override loss grace period in frames (0 = recenter on the first miss)")
	maxTicks := flag.Int("max_ticks", 0, "stop after this many frames (0 = until interrupted)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Smoothing and dead-band apply when non-zero; the loss threshold
	// applies whenever the flag is given, since 0 is a valid threshold.
	cliOverrides := config.Overrides{
		SmoothingFactor: *smoothing,
		DeadbandPx:      *deadband,
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "loss_frames" {
			cliOverrides.LossThresholdFrames = lossFrames
		}
	})
	if err := config.ValidateOverrides(cliOverrides); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	if *maxTicks < 0 {
		log.Fatalf("invalid CLI override: max_ticks must be >= 0, got %d", *maxTicks)
	}
	cfg = cfg.WithOverrides(cliOverrides)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Initializing actuators")
	hw, err := newHardware(gpioDriver, cfg)
	if err != nil {
		log.Printf("init hardware failed: %v", err)
		return
	}

	// Build runTracking closure over hardware and base config
	runTracking := func(ctx context.Context, overrides config.Overrides, recenter <-chan struct{}, onTick func(session.Telemetry)) error {
		return executeTracking(ctx, cfg.WithOverrides(overrides), hw, session.Params{
			MaxTicks: *maxTicks,
			Recenter: recenter,
			OnTick:   onTick,
		})
	}

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		formDefaults := web.FormConfig{
			SmoothingFactor:     cfg.Tracking.SmoothingFactor,
			DeadbandPx:          cfg.Deadband(),
			LossThresholdFrames: cfg.LossThreshold(),
			Selection:           cfg.Tracking.Selection,
			PanCenter:           cfg.PanAxis.CenterAngle,
			TiltCenter:          cfg.TiltAxis.CenterAngle,
		}
		srv := web.NewServer(webAddr, broadcaster, runTracking, formDefaults)
		if err := srv.Run(ctx); err != nil {
			log.Printf("web server: %v", err)
		}
		return
	}

	// Run once with current config (already has CLI overrides applied);
	// Ctrl-C stops the loop and the head recenters.
	if err := runTracking(ctx, config.Overrides{}, nil, nil); err != nil {
		log.Printf("tracking failed: %v", err)
	}
}

// hardware holds the actuators, which outlive tracking sessions so that
// stepper positions stay known between runs.
type hardware struct {
	motion  *motion.Controller
	haptics *haptic.Controller // nil when disabled
}

func newHardware(g gpio.Driver, cfg *config.Config) (*hardware, error) {
	pan, err := newAxis(g, "pan", cfg.PanAxis, cfg)
	if err != nil {
		return nil, err
	}
	debug.PrintStruct("Pan axis config", cfg.PanAxis)
	tilt, err := newAxis(g, "tilt", cfg.TiltAxis, cfg)
	if err != nil {
		return nil, err
	}
	debug.PrintStruct("Tilt axis config", cfg.TiltAxis)

	hw := &hardware{motion: motion.NewController(pan, tilt)}

	if cfg.Haptic.Enabled {
		motors := make([]haptic.MotorConfig, len(cfg.Haptic.Motors))
		for i, m := range cfg.Haptic.Motors {
			motors[i] = haptic.MotorConfig{In1Pin: m.In1Pin, In2Pin: m.In2Pin, PWMPin: m.PWMPin}
		}
		hw.haptics, err = haptic.NewController(g, motors)
		if err != nil {
			return nil, err
		}
		debug.Value("Haptic motors", len(motors))
	}
	return hw, nil
}

// newAxis selects an actuator implementation based on configuration.
func newAxis(g gpio.Driver, name string, a config.AxisConfig, cfg *config.Config) (motion.Axis, error) {
	switch a.Actuator {
	case config.ActuatorServo:
		s, err := servo.NewServo(g, name, servo.Config{
			Pin:        a.Servo.Pin,
			MinPulseUs: a.Servo.MinPulseUs,
			MaxPulseUs: a.Servo.MaxPulseUs,
			MinAngle:   a.MinAngle,
			MaxAngle:   a.MaxAngle,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.ActuatorStepper:
		// The axis must be parked at center when the program starts.
		return stepper.NewStepper(g, name, stepper.Config{
			StepPin:       a.Stepper.StepPin,
			DirPin:        a.Stepper.DirPin,
			EnablePin:     a.Stepper.EnablePin,
			StepsPerRev:   a.Stepper.StepsPerRev,
			Microstepping: a.Stepper.Microstepping,
			StepDelay:     cfg.MoveSpeed() / 2,
			HomeAngle:     a.CenterAngle,
			MinAngle:      a.MinAngle,
			MaxAngle:      a.MaxAngle,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported actuator for %s axis: %s", name, a.Actuator)
	}
}

// executeTracking opens the detection source and runs one tracking session
// with the given config. The head is recentered before it returns.
func executeTracking(ctx context.Context, cfg *config.Config, hw *hardware, params session.Params) error {
	debug.Step(3, "Opening detection source")
	src, err := newSourceFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()
	debug.Value("Camera type", cfg.Camera.Type)

	debug.Step(4, "Creating estimator and tracking controller")
	sel, err := geometry.NewSelector(cfg.Tracking.Selection)
	if err != nil {
		return err
	}
	est, err := geometry.NewEstimator(geometry.EstimatorConfig{
		Frame:         src.Geometry(),
		DeadbandPx:    cfg.Deadband(),
		MinConfidence: cfg.MinConfidence(),
		Selector:      sel,
	})
	if err != nil {
		return fmt.Errorf("create estimator: %w", err)
	}
	tc, err := trackingConfig(cfg, src.Geometry())
	if err != nil {
		return err
	}
	tr, err := tracking.NewController(tc)
	if err != nil {
		return err
	}
	debug.PrintStruct("Tracking config", tr.Config())

	sess := session.NewSession(src, est, tr, hw.motion)
	if hw.haptics != nil {
		sess.WithHaptics(hw.haptics, session.CueConfig{
			Intensity:   cfg.Haptic.Intensity,
			PulseFrames: cfg.Haptic.PulseFrames,
		})
	}

	if err := sess.Run(ctx, params); err != nil {
		return err
	}
	debug.Summary("Session Summary")
	debug.Value("Ticks", sess.Ticks())
	return nil
}

// trackingConfig maps the config onto the control law. With a lens
// configured, axes without an explicit gain use the lens's degrees per
// pixel on frame.
func trackingConfig(cfg *config.Config, frame geometry.Frame) (tracking.Config, error) {
	axis := func(a config.AxisConfig, lensGain float64) tracking.AxisConfig {
		gain := a.Gain
		if gain == 0 {
			gain = lensGain
		}
		return tracking.AxisConfig{
			MinAngle:    a.MinAngle,
			MaxAngle:    a.MaxAngle,
			CenterAngle: a.CenterAngle,
			Gain:        gain,
			Direction:   a.Direction,
		}
	}

	var panGain, tiltGain float64
	if l := cfg.Lens; l != nil {
		fov, err := geometry.LensFOV(l.FocalLengthMm, l.SensorWidthMm, l.SensorHeightMm)
		if err != nil {
			return tracking.Config{}, fmt.Errorf("lens: %w", err)
		}
		x, y := fov.DegreesPerPixel(frame)
		panGain, tiltGain = x*l.GainScale, y*l.GainScale
		debug.Value("Lens FOV (deg)", fmt.Sprintf("%.1f x %.1f", fov.HorizontalDeg, fov.VerticalDeg))
	}

	return tracking.Config{
		Pan:                 axis(cfg.PanAxis, panGain),
		Tilt:                axis(cfg.TiltAxis, tiltGain),
		LossThresholdFrames: cfg.LossThreshold(),
		SmoothingFactor:     cfg.Tracking.SmoothingFactor,
	}, nil
}

// newSourceFromConfig selects a detection source based on configuration.
func newSourceFromConfig(cfg *config.Config) (camera.Source, error) {
	frame := geometry.Frame{Width: cfg.Frame.Width, Height: cfg.Frame.Height}
	switch cfg.Camera.Type {
	case config.CameraScripted:
		script, err := camera.LoadScript(cfg.Camera.ScriptPath)
		if err != nil {
			return nil, err
		}
		return camera.NewScripted(script, frame, cfg.FrameInterval())
	case config.CameraYuNet:
		return yunet.Open(yunet.Config{
			DeviceID:         cfg.Camera.DeviceID,
			ModelPath:        cfg.Camera.ModelPath,
			ConfidenceThresh: cfg.MinConfidence(),
			Frame:            frame,
		})
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
