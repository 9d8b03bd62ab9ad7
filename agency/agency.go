// Package agency holds the Brandon Transit specific rules: how GTFS
// routes map onto published route numbers, their colours and names,
// label cleaning, and the route trip specifications shipped with the
// parser.
package agency

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mtransitapps/ca-brandon-transit-bus-parser/clean"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/model"
	"github.com/mtransitapps/ca-brandon-transit-bus-parser/tripspec"
)

const (
	Name  = "Brandon Transit"
	URL   = "http://opendata.brandon.ca/Transit/google_transit.zip"
	Color = "00B8F1"

	// The industrial shuttle has no number of its own.
	IndustrialShortName = "IND"
	IndustrialRouteID   = 9001
)

var ErrUnknownRoute = errors.New("unexpected route")

//go:embed brandon.yaml
var specsYAML []byte

var digits = regexp.MustCompile(`\d+`)

// Route colours, keyed by route number.
var routeColors = map[int64]string{
	1:                 "EC222C",
	4:                 "409AED",
	5:                 "A83800",
	6:                 "F033A3",
	8:                 "F8E208",
	9:                 "28BAF2",
	10:                "2E3192",
	11:                "A83E28",
	14:                "960096",
	15:                "0070FF",
	16:                "66C7EB",
	17:                "FF00C4",
	20:                "7DCC2B",
	21:                "416025",
	22:                "FFAB00",
	23:                "73B373",
	IndustrialRouteID: "4F4C4C",
}

func isDigitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// RouteID is the published route number. Variants of one route (20E
// and 20W) share a number.
func RouteID(route *model.Route) (int64, error) {
	shortName := strings.TrimSpace(route.ShortName)
	if shortName == IndustrialShortName {
		return IndustrialRouteID, nil
	}
	match := shortName
	if !isDigitsOnly(shortName) {
		match = digits.FindString(shortName)
	}
	if match == "" {
		return 0, fmt.Errorf("%w: no route number in short name '%s' (route_id '%s')", ErrUnknownRoute, route.ShortName, route.ID)
	}
	id, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: route number '%s': %w", ErrUnknownRoute, match, err)
	}
	return id, nil
}

func RouteShortName(route *model.Route) string {
	shortName := strings.TrimSpace(route.ShortName)
	if isDigitsOnly(shortName) || shortName == IndustrialShortName {
		return shortName
	}
	if match := digits.FindString(shortName); match != "" {
		return match
	}
	return shortName
}

func RouteLongName(route *model.Route) string {
	shortName := strings.TrimSpace(route.ShortName)
	switch {
	case strings.HasPrefix(shortName, "20"):
		return "City Circular 20"
	case strings.HasPrefix(shortName, "21"):
		return "City Circular 21"
	}
	return clean.Label(clean.StreetTypes(clean.Numbers(route.LongName)))
}

// RouteColor prefers the agency's own palette, then whatever the feed
// sets. Routes with neither are an error.
func RouteColor(route *model.Route) (string, error) {
	id, err := RouteID(route)
	if err == nil {
		if color, found := routeColors[id]; found {
			return color, nil
		}
	}
	if route.Color != "" && !strings.EqualFold(route.Color, "FFFFFF") {
		return strings.ToUpper(route.Color), nil
	}
	return "", fmt.Errorf("%w: no colour for route '%s' (short name '%s')", ErrUnknownRoute, route.ID, route.ShortName)
}

func CleanTripHeadsign(headsign string) string {
	headsign = clean.ReturnSuffix(headsign)
	headsign = clean.Bounds(headsign)
	headsign = clean.Numbers(headsign)
	headsign = clean.StreetTypes(headsign)
	return clean.Label(headsign)
}

func CleanStopName(name string) string {
	name = clean.AndSlash(name)
	name = clean.Bounds(name)
	name = clean.Numbers(name)
	name = clean.StreetTypes(name)
	return clean.Label(name)
}

// TripDirection files a trip of a route without a trip spec. City
// Circular variants carry their direction in the GTFS route_id
// suffix; everything else falls back on direction_id, with no
// compass direction.
func TripDirection(gtfsRouteID string, directionID int8) (tripspec.Direction, int8) {
	switch {
	case strings.HasSuffix(gtfsRouteID, "E"):
		return tripspec.East, 0
	case strings.HasSuffix(gtfsRouteID, "W"):
		return tripspec.West, 1
	}
	return tripspec.DirectionNone, directionID
}

// FixedHeadsign returns the headsign used for every trip of routes
// whose trip headsigns are meaningless.
func FixedHeadsign(routeID int64, longName string) (string, bool) {
	switch routeID {
	case 5, 11:
		return CleanTripHeadsign(longName), true
	}
	return "", false
}

// Specs returns the route trip specifications shipped with the
// parser.
func Specs() ([]tripspec.RouteTripSpec, error) {
	return tripspec.LoadSpecs(bytes.NewReader(specsYAML))
}

// Registry compiles Specs into a sealed registry.
func Registry() (*tripspec.Registry, error) {
	return tripspec.LoadRegistry(bytes.NewReader(specsYAML))
}
