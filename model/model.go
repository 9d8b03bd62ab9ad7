package model

import "time"

// Records of a Brandon Transit static feed, reduced to what the
// schedule generator reads. Parsing validates more of the feed than is
// kept here.

type LocationType int

const (
	LocationTypeStop LocationType = iota
	LocationTypeStation
	LocationTypeEntranceExit
	LocationTypeGenericNode
	LocationTypeBoardingArea
)

type RouteType int

// Types 0 through 7 are contiguous. Brandon Transit only runs buses.
const (
	RouteTypeTram       RouteType = 0
	RouteTypeBus        RouteType = 3
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

type ExceptionType int8

const (
	ExceptionTypeAdded   ExceptionType = 1
	ExceptionTypeRemoved ExceptionType = 2
)

type Agency struct {
	ID       string
	Name     string
	Timezone string
}

// Weekday is a bitmask, with bit (1 << time.Weekday) set for each
// day the service runs.
type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

func (c *Calendar) RunsOn(day time.Weekday) bool {
	return c.Weekday&(1<<day) != 0
}

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType ExceptionType
}

// Code is what riders see on the pole; Name is as published, before
// cleanup.
type Stop struct {
	ID   string
	Code string
	Name string
	Lat  float64
	Lon  float64
}

// DirectionID is only trusted for routes without a trip spec.
type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	DirectionID int8
}

// Color defaults to FFFFFF, which the agency package treats as unset
// in favour of Brandon's own palette.
type Route struct {
	ID        string
	ShortName string
	LongName  string
	Color     string
}

// Arrival and Departure are stored as HHMMSS, possibly with hours
// above 23 for trips running past midnight. Both are empty for
// untimed stops.
type StopTime struct {
	TripID       string
	StopID       string
	StopSequence uint32
	Arrival      string
	Departure    string
}
