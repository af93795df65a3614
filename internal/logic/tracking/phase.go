package tracking

import "fmt"

// Phase is the target-loss state of the controller.
type Phase int

const (
	// Tracking: a target was seen this tick.
	Tracking Phase = iota
	// Settling: the target is lost but the grace period has not run out;
	// the axes keep converging on the last target angles.
	Settling
	// Recentering: the grace period ran out; the axes converge on center.
	Recentering
)

func phaseOf(framesSinceLost, threshold int) Phase {
	switch {
	case framesSinceLost == 0:
		return Tracking
	case framesSinceLost > threshold:
		return Recentering
	default:
		return Settling
	}
}

func (p Phase) String() string {
	switch p {
	case Tracking:
		return "TRACKING"
	case Settling:
		return "SETTLING"
	case Recentering:
		return "RECENTERING"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MarshalText encodes the phase by name, for JSON telemetry.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{Tracking, Settling, Recentering} {
		if string(text) == candidate.String() {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}
