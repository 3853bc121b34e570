package tff

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNoStops         = errors.New("tff: at least one color stop is required")
	ErrInvalidPosition = errors.New("tff: stop position outside [0, 1]")
	ErrInvalidRawTable = errors.New("tff: raw table length must be a non-zero multiple of 4")
	ErrInterpolation   = errors.New("tff: unknown interpolation")
)

// An 8-bit RGBA color.
type Color [4]uint8

// A color stop on the [0, 1] density axis.
type Stop struct {
	Position float32 `json:"pos"`
	Color    Color   `json:"rgba"`
}

type Stops []Stop

// Check that the stop list is usable for building a table.
func (s Stops) Validate() error {
	if len(s) == 0 {
		return ErrNoStops
	}
	for i, stop := range s {
		if stop.Position < 0 || stop.Position > 1 || stop.Position != stop.Position {
			return fmt.Errorf("%w: stop %d at %f", ErrInvalidPosition, i, stop.Position)
		}
	}
	return nil
}

// Return a copy sorted by position. Stops sharing a position keep their
// relative order.
func (s Stops) Sorted() Stops {
	out := make(Stops, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// The easing curve applied to the timeline before stop interpolation.
type Interpolation uint8

const (
	Linear Interpolation = iota
	InOutQuad
	InOutCubic
)

func (i Interpolation) String() string {
	switch i {
	case Linear:
		return "linear"
	case InOutQuad:
		return "quad"
	case InOutCubic:
		return "cubic"
	}
	return fmt.Sprintf("interpolation(%d)", uint8(i))
}

// Parse an interpolation name as produced by String.
func ParseInterpolation(name string) (Interpolation, error) {
	switch strings.ToLower(name) {
	case "", "linear":
		return Linear, nil
	case "quad", "inoutquad":
		return InOutQuad, nil
	case "cubic", "inoutcubic":
		return InOutCubic, nil
	}
	return Linear, fmt.Errorf("%w %q", ErrInterpolation, name)
}

// Map global progress in [0, 1] through the easing curve.
func (i Interpolation) ease(t float64) float64 {
	switch i {
	case InOutQuad:
		if t < 0.5 {
			return 2 * t * t
		}
		u := -2*t + 2
		return 1 - u*u/2
	case InOutCubic:
		if t < 0.5 {
			return 4 * t * t * t
		}
		u := -2*t + 2
		return 1 - u*u*u/2
	}
	return t
}
