// Package fleet holds the shared domain primitives for the blue/green fleet:
// environment colors, orchestrated operation names, and the health indicators
// that feed switch decisions.
package fleet

import (
	"errors"
	"fmt"
	"strings"
)

// Color identifies one of the two environments of a team.
type Color string

const (
	Blue  Color = "blue"
	Green Color = "green"
)

// ErrInvalidColor is returned when a string is neither "blue" nor "green".
var ErrInvalidColor = errors.New("invalid environment color")

// ParseColor parses a color name, case-insensitively.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Blue):
		return Blue, nil
	case string(Green):
		return Green, nil
	default:
		return "", fmt.Errorf("%w: %q (must be blue or green)", ErrInvalidColor, s)
	}
}

// Other returns the standby counterpart of a color.
func (c Color) Other() Color {
	if c == Blue {
		return Green
	}
	return Blue
}

// Valid reports whether the color is one of the two known environments.
func (c Color) Valid() bool {
	return c == Blue || c == Green
}

func (c Color) String() string {
	return string(c)
}
