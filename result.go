package parser

import (
	"strconv"
	"strings"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/tripspec"
)

// Result is everything generated for one service date.
type Result struct {
	// Date requested, and the date whose services were used.
	Date          string
	EffectiveDate string
	Services      []string

	Routes []*Route
	Stops  []*Stop
}

// Route is a published Brandon Transit route. It may merge several
// GTFS routes, such as the two halves of a City Circular.
type Route struct {
	ID           int64
	ShortName    string
	LongName     string
	Color        string
	GTFSRouteIDs []string

	// Either metrics.HandlingSpec or metrics.HandlingDefault.
	Handling string

	Directions []*Direction
}

type Direction struct {
	Direction tripspec.Direction
	Index     int
	Headsign  string

	// Distinct stops of the direction, in order of travel.
	Stops []string

	// Ordered by departure, then trip ID.
	Trips []*Trip
}

// Label identifies the direction within its route.
func (d *Direction) Label() string {
	if d.Direction == tripspec.DirectionNone {
		return strconv.Itoa(d.Index)
	}
	return strings.ToLower(d.Direction.String())
}

type Trip struct {
	ID          string
	GTFSRouteID string
	ServiceID   string

	// First departure of the trip, as HHMMSS.
	Departure string

	Stops []*TripStop
}

// Times are HHMMSS, and blank for stops that aren't timepoints.
type TripStop struct {
	StopID    string
	Sequence  uint32
	Arrival   string
	Departure string
}

type Stop struct {
	ID   string
	Code string
	Name string
	Lat  float64
	Lon  float64
}
