// Package replay implements the replay driver: a single-threaded event
// loop over a dataset, with a virtual clock, wall-clock pacing,
// breakpoints, and interactive step/pause/resume/seek control.
package replay

import (
	"fmt"
	"strconv"
	"strings"
)

// Speed is the replay driver's pacing mode: unlimited (no sleeping),
// realtime (1x wall-clock), or an arbitrary multiplier. Supplemented as
// a first-class type rather than a bare float, mirroring
// ReplayConnectorConfig::speed's named constructors in the original
// connector.
type Speed struct {
	multiplier float64
}

// Unlimited replays as fast as the reader can deliver events.
func Unlimited() Speed { return Speed{multiplier: 0} }

// Realtime paces delivery to match the events' own timestamps.
func Realtime() Speed { return Speed{multiplier: 1.0} }

// Multiplier paces delivery at x times realtime; x must be > 0.
func Multiplier(x float64) Speed { return Speed{multiplier: x} }

// IsUnlimited reports whether no pacing sleep should occur.
func (s Speed) IsUnlimited() bool { return s.multiplier <= 0 }

// Value returns the underlying multiplier (0 for unlimited).
func (s Speed) Value() float64 { return s.multiplier }

func (s Speed) String() string {
	switch {
	case s.IsUnlimited():
		return "unlimited"
	case s.multiplier == 1.0:
		return "realtime"
	default:
		return strconv.FormatFloat(s.multiplier, 'g', -1, 64) + "x"
	}
}

// ParseSpeed accepts "unlimited", "realtime", or "<float>x" / "<float>",
// the forms a config file or CLI flag would carry.
func ParseSpeed(s string) (Speed, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unlimited", "max", "":
		return Unlimited(), nil
	case "realtime", "1x":
		return Realtime(), nil
	}
	trimmed := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "x")
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return Speed{}, fmt.Errorf("replay: invalid speed %q: %w", s, err)
	}
	if v <= 0 {
		return Unlimited(), nil
	}
	return Multiplier(v), nil
}
