package camera

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/PanTrack/internal/debug"
	"github.com/cjeanneret/PanTrack/internal/logic/geometry"
)

// Script is a replayable sequence of detector outputs, used in mock mode
// and in tests.
//
//	frame: {width: 300, height: 300}
//	loop: true
//	frames:
//	  - detections: [{xmin: 0.4, ymin: 0.4, xmax: 0.6, ymax: 0.6, confidence: 0.9}]
//	    repeat: 30
//	  - repeat: 90 # no face
type Script struct {
	Frame struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"frame"`
	Loop   bool          `yaml:"loop"`
	Frames []ScriptEntry `yaml:"frames"`
}

// ScriptEntry is one detector output, emitted Repeat times (at least once).
type ScriptEntry struct {
	Detections []geometry.Detection `yaml:"detections"`
	Repeat     int                  `yaml:"repeat"`
}

// LoadScript reads a YAML script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal script: %w", err)
	}
	return &s, nil
}

// Scripted replays a Script, optionally paced at a fixed frame interval.
type Scripted struct {
	geom     geometry.Frame
	frames   [][]geometry.Detection
	loop     bool
	interval time.Duration

	index  int
	ticker *time.Ticker
}

// NewScripted expands s into a frame sequence. If the script has no frame
// size, fallback is used. interval <= 0 replays as fast as Next is called.
func NewScripted(s *Script, fallback geometry.Frame, interval time.Duration) (*Scripted, error) {
	geom := geometry.Frame{Width: s.Frame.Width, Height: s.Frame.Height}
	if geom.Width == 0 && geom.Height == 0 {
		geom = fallback
	}
	if err := geom.Validate(); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}

	var frames [][]geometry.Detection
	for _, e := range s.Frames {
		n := e.Repeat
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			frames = append(frames, e.Detections)
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("script has no frames")
	}
	debug.Info("Scripted source: %d frames (loop=%v)", len(frames), s.Loop)

	src := &Scripted{
		geom:     geom,
		frames:   frames,
		loop:     s.Loop,
		interval: interval,
	}
	if interval > 0 {
		src.ticker = time.NewTicker(interval)
	}
	return src, nil
}

func (s *Scripted) Next(ctx context.Context) (Frame, error) {
	if s.index >= len(s.frames) {
		if !s.loop {
			return Frame{}, ErrEndOfStream
		}
		s.index = 0
	}

	if s.ticker != nil {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-s.ticker.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	f := Frame{Index: s.index, Detections: s.frames[s.index]}
	s.index++
	return f, nil
}

func (s *Scripted) Geometry() geometry.Frame {
	return s.geom
}

func (s *Scripted) Close() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	return nil
}
