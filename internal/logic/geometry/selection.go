package geometry

import (
	"fmt"
	"math"
)

// Selector picks the target among the qualifying detections of a tick.
// Select is only called with a non-empty slice.
type Selector interface {
	Select(detections []Detection) Detection
}

// Selection strategy names as used in configuration.
const (
	SelectFirst      = "first"
	SelectConfidence = "confidence"
	SelectLargest    = "largest"
	SelectNearest    = "nearest"
)

// NewSelector returns the strategy registered under name. An empty name
// selects the first detection.
func NewSelector(name string) (Selector, error) {
	switch name {
	case "", SelectFirst:
		return First{}, nil
	case SelectConfidence:
		return HighestConfidence{}, nil
	case SelectLargest:
		return Largest{}, nil
	case SelectNearest:
		return &Nearest{}, nil
	default:
		return nil, fmt.Errorf("unknown selection strategy: %q", name)
	}
}

// First keeps detector order and takes index 0.
type First struct{}

func (First) Select(detections []Detection) Detection {
	return detections[0]
}

// HighestConfidence takes the most confident detection. Ties keep the
// earlier one.
type HighestConfidence struct{}

func (HighestConfidence) Select(detections []Detection) Detection {
	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best
}

// Largest takes the detection with the biggest box, which is usually the
// closest face. Ties keep the earlier one.
type Largest struct{}

func (Largest) Select(detections []Detection) Detection {
	best := detections[0]
	for _, d := range detections[1:] {
		if d.Area() > best.Area() {
			best = d
		}
	}
	return best
}

// Nearest takes the detection whose center is closest to the previously
// selected one, so the head keeps following the same face when several
// are in view. With no history it behaves like First.
type Nearest struct {
	has   bool
	lastX float64
	lastY float64
}

func (n *Nearest) Select(detections []Detection) Detection {
	best := detections[0]
	if n.has {
		bestDist := math.Inf(1)
		for _, d := range detections {
			x, y := d.Center()
			if dist := math.Hypot(x-n.lastX, y-n.lastY); dist < bestDist {
				bestDist = dist
				best = d
			}
		}
	}
	n.lastX, n.lastY = best.Center()
	n.has = true
	return best
}

// Reset forgets the previous target.
func (n *Nearest) Reset() {
	n.has = false
}
