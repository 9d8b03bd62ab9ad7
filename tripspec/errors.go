package tripspec

import (
	"errors"
	"fmt"
)

var (
	ErrRegistrySealed = errors.New("registry is sealed")
	ErrForeignTrip    = errors.New("trip belongs to another route")
	ErrDuplicateTrip  = errors.New("duplicate trip")
)

// ConfigError reports a malformed or duplicate route trip
// specification. It is raised while the registry is built, before any
// trip is processed.
type ConfigError struct {
	RouteID string
	Msg     string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %s", msg, e.Err)
		}
	}
	if e.RouteID == "" {
		return fmt.Sprintf("trip spec: %s", msg)
	}
	return fmt.Sprintf("trip spec for route '%s': %s", e.RouteID, msg)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(routeID string, format string, args ...interface{}) *ConfigError {
	return &ConfigError{RouteID: routeID, Msg: fmt.Sprintf(format, args...)}
}

// AmbiguousTripError is returned for a trip that matches both
// templates equally well, or neither.
type AmbiguousTripError struct {
	RouteID    string
	TripID     string
	Directions [2]Direction
	Matches    [2]int
}

func (e *AmbiguousTripError) Error() string {
	if e.Matches[0] == 0 && e.Matches[1] == 0 {
		return fmt.Sprintf(
			"route '%s': trip '%s' matches neither the %s nor the %s template",
			e.RouteID, e.TripID, e.Directions[0], e.Directions[1],
		)
	}
	return fmt.Sprintf(
		"route '%s': trip '%s' matches the %s and %s templates equally (%d stops)",
		e.RouteID, e.TripID, e.Directions[0], e.Directions[1], e.Matches[0],
	)
}
