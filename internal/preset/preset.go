// Package preset defines the closed set of mastering presets the player can
// apply to a track.
package preset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPreset is returned when a preset name is not part of the set.
var ErrUnknownPreset = errors.New("unknown mastering preset")

// Preset is a mastering style.
type Preset int

const (
	// None means no preset has been selected yet.
	None Preset = iota

	// Adaptive lets the mastering chain follow the content.
	Adaptive

	// Gentle applies light compression and a soft top end.
	Gentle

	// Warm lifts the low mids.
	Warm

	// Bright lifts the presence region.
	Bright

	// Punchy emphasises transients.
	Punchy
)

// All lists every selectable preset in declaration order.
var All = []Preset{Adaptive, Gentle, Warm, Bright, Punchy}

// String returns the lowercase preset name.
func (p Preset) String() string {
	switch p {
	case Adaptive:
		return "adaptive"
	case Gentle:
		return "gentle"
	case Warm:
		return "warm"
	case Bright:
		return "bright"
	case Punchy:
		return "punchy"
	case None:
		return "none"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the selectable presets.
func (p Preset) Valid() bool {
	return p >= Adaptive && p <= Punchy
}

// Parse converts a preset name into a Preset. Matching is case-insensitive.
func Parse(name string) (Preset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "adaptive":
		return Adaptive, nil
	case "gentle":
		return Gentle, nil
	case "warm":
		return Warm, nil
	case "bright":
		return Bright, nil
	case "punchy":
		return Punchy, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Preset) MarshalText() ([]byte, error) {
	if !p.Valid() && p != None {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPreset, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Preset) UnmarshalText(text []byte) error {
	if string(text) == "none" || len(text) == 0 {
		*p = None
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Prior is the switch distribution used before any switch has been observed.
// The values are ranking scores and sum to 1 over all presets.
var Prior = map[Preset]float64{
	Adaptive: 0.5,
	Gentle:   0.2,
	Warm:     0.15,
	Bright:   0.1,
	Punchy:   0.05,
}
