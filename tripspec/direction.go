package tripspec

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Direction is the rider facing direction of a trip variant. A route
// trip specification always uses one opposing pair.
type Direction int

const (
	DirectionNone Direction = iota
	North
	South
	East
	West
)

func (d Direction) String() string {
	switch d {
	case North:
		return "NORTH"
	case South:
		return "SOUTH"
	case East:
		return "EAST"
	case West:
		return "WEST"
	}
	return "NONE"
}

// Opposite returns the complementary direction, or DirectionNone for
// DirectionNone.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	}
	return DirectionNone
}

func (d Direction) valid() bool {
	return d >= North && d <= West
}

// ParseDirection accepts full names and single letter abbreviations,
// case insensitive.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n":
		return North, nil
	case "south", "s":
		return South, nil
	case "east", "e":
		return East, nil
	case "west", "w":
		return West, nil
	}
	return DirectionNone, fmt.Errorf("unknown direction '%s'", s)
}

func (d *Direction) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: direction must be a scalar", value.Line)
	}
	parsed, err := ParseDirection(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = parsed
	return nil
}

func (d Direction) MarshalYAML() (interface{}, error) {
	return strings.ToLower(d.String()), nil
}
